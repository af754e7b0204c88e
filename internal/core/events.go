package core

import "github.com/book-expert/events"

// EpisodeRequestedEvent asks the service to generate (or fetch from cache) an episode.
type EpisodeRequestedEvent struct {
	Header     events.EventHeader `json:"header"`
	Topic      string             `json:"topic"`
	Minutes    float64            `json:"minutes"`
	AgeProfile string             `json:"age_profile,omitempty"`
	Voice      string             `json:"voice,omitempty"`
}

// EpisodeGeneratedEvent is the reply to EpisodeRequestedEvent.
type EpisodeGeneratedEvent struct {
	Header   events.EventHeader `json:"header"`
	DraftID  string             `json:"draft_id,omitempty"`
	AudioKey string             `json:"audio_key,omitempty"`
	Script   string             `json:"script,omitempty"`
	Cached   bool               `json:"cached"`
	Warning  string             `json:"warning,omitempty"`
	Error    string             `json:"error,omitempty"`
	// Reason is the listener-facing explanation of Error, when there is one.
	Reason string `json:"reason,omitempty"`
}

// EpisodeRatedEvent carries a listener rating for a draft.
type EpisodeRatedEvent struct {
	Header  events.EventHeader `json:"header"`
	DraftID string             `json:"draft_id"`
	Stars   int                `json:"stars"`
}

// EpisodeRatingResultEvent is the reply to EpisodeRatedEvent.
type EpisodeRatingResultEvent struct {
	Header events.EventHeader `json:"header"`
	Saved  bool               `json:"saved"`
	Error  string             `json:"error,omitempty"`
}

// EpisodeListRequestEvent asks for saved episodes.
type EpisodeListRequestEvent struct {
	Header  events.EventHeader `json:"header"`
	Options ListOptions        `json:"options"`
}

// EpisodeListResultEvent is the reply to EpisodeListRequestEvent.
type EpisodeListResultEvent struct {
	Header   events.EventHeader `json:"header"`
	Episodes []Episode          `json:"episodes"`
	Error    string             `json:"error,omitempty"`
}

// EpisodeDeleteRequestEvent removes a saved episode and its audio.
type EpisodeDeleteRequestEvent struct {
	Header  events.EventHeader `json:"header"`
	Topic   string             `json:"topic"`
	Minutes float64            `json:"minutes"`
}

// EpisodeDeleteResultEvent is the reply to EpisodeDeleteRequestEvent.
type EpisodeDeleteResultEvent struct {
	Header  events.EventHeader `json:"header"`
	Deleted bool               `json:"deleted"`
	Error   string             `json:"error,omitempty"`
}
