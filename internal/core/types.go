package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInputRejected indicates the request was refused before any generation work.
	ErrInputRejected = errors.New("input rejected")
	// ErrTopicNotFound indicates the summary source has no usable article for the topic.
	ErrTopicNotFound = errors.New("topic not found")
	// ErrNotFound indicates a stored record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnknownAgeProfile indicates an age profile string could not be parsed.
	ErrUnknownAgeProfile = errors.New("unknown age profile")
)

// Role is the speaker of a conversation turn.
type Role string

// Conversation roles understood by every Oracle.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in an oracle conversation.
type Turn struct {
	Role    Role
	Content string
}

// CompletionRequest carries everything an Oracle needs for one call.
type CompletionRequest struct {
	Turns            []Turn
	Temperature      float64
	PresencePenalty  float64
	FrequencyPenalty float64
	MaxOutputTokens  int
	Stop             []string
}

// AgeProfile selects the narration tone.
type AgeProfile string

// Supported audiences.
const (
	AgeYoung    AgeProfile = "young"
	AgeStandard AgeProfile = "standard"
)

// ParseAgeProfile accepts either the profile name or the age range label.
// An empty string selects AgeStandard.
func ParseAgeProfile(s string) (AgeProfile, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard", "7-12":
		return AgeStandard, nil
	case "young", "3-6":
		return AgeYoung, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAgeProfile, s)
	}
}

// Episode is a persisted, rated episode.
type Episode struct {
	ID          string    `json:"id"`
	Topic       string    `json:"topic"`
	Minutes     float64   `json:"minutes"`
	Lang        string    `json:"lang"`
	Script      string    `json:"script"`
	DurationSec int       `json:"duration_sec"`
	StorageKey  string    `json:"storage_key"`
	PublicURL   string    `json:"public_url,omitempty"`
	Rating      int       `json:"rating"`
	CreatedAt   time.Time `json:"created_at"`
}

// Draft is a generated episode waiting for a rating.
type Draft struct {
	ID         string     `json:"id"`
	Topic      string     `json:"topic"`
	Minutes    float64    `json:"minutes"`
	AgeProfile AgeProfile `json:"age_profile"`
	Script     string     `json:"script"`
	AudioKey   string     `json:"audio_key"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ListOptions controls episode listing.
type ListOptions struct {
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
	Search string `json:"search,omitempty"`
	// CollapseByMinutes keeps one row per (topic, minutes) pair when true,
	// otherwise only the latest row per topic.
	CollapseByMinutes bool `json:"collapse_by_minutes"`
}
