// Package core defines the shared types and collaborator interfaces of the podcast service.
package core

import (
	"context"
	"time"
)

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]ObjectInfo, error)
}

// ObjectInfo describes a stored blob.
type ObjectInfo struct {
	Key      string    `json:"key"`
	Size     uint64    `json:"size"`
	Modified time.Time `json:"modified"`
}

// Oracle is a text-generation collaborator. It returns the generated text for
// the ordered conversation in req.
type Oracle interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// SummarySource returns a short reference summary for a topic. Rejections
// are reported as errors wrapping ErrInputRejected or ErrTopicNotFound.
type SummarySource interface {
	Summarize(ctx context.Context, topic string, sentences int) (string, error)
}

// Synthesizer turns one chunk of text into encoded audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, chunk, voice string) ([]byte, error)
}

// EpisodeStore persists rated episodes. Only records rated 5 are accepted.
type EpisodeStore interface {
	SaveRated(ctx context.Context, ep Episode) (bool, error)
	Lookup(ctx context.Context, topic string, minutes float64) (*Episode, error)
	List(ctx context.Context, opts ListOptions) ([]Episode, error)
	Delete(ctx context.Context, topic string, minutes float64) error
}

// DraftStore holds generated episodes that have not been rated yet.
type DraftStore interface {
	PutDraft(ctx context.Context, draft Draft) error
	GetDraft(ctx context.Context, id string) (*Draft, error)
	DeleteDraft(ctx context.Context, id string) error
}
