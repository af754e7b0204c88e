// Package podcast ties summary lookup, script composition, narration and
// persistence into the episode workflow.
package podcast

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/episode"
	"github.com/book-expert/podcast-service/internal/script"
	"github.com/book-expert/podcast-service/internal/summary"
	"github.com/book-expert/podcast-service/internal/tts"
	"github.com/book-expert/podcast-service/internal/tts/audio"
)

// Defaults for Config.
const (
	DefaultSummarySentences = 6
	DefaultAudioPrefix      = "audio/"
	audioExtension          = ".mp3"
	minStars                = 1
	maxStars                = 5
)

// Warnings attached to a Result.
const (
	WarningClosingOnly = "the model returned no narration; the episode contains the closing only"
	WarningShort       = "the script is shorter than the requested length"
)

var (
	// ErrEmptyTopic is returned when the requested topic is blank.
	ErrEmptyTopic = summary.ErrEmptyTopic
	// ErrInvalidMinutes is returned for a non-positive duration.
	ErrInvalidMinutes = fmt.Errorf("%w: minutes must be positive", core.ErrInputRejected)
	// ErrInvalidStars is returned for a rating outside 1..5.
	ErrInvalidStars = fmt.Errorf("%w: stars must be between %d and %d", core.ErrInputRejected, minStars, maxStars)
	// ErrMissingDependency is returned when a required collaborator is nil.
	ErrMissingDependency = errors.New("missing dependency")
)

const (
	logFmtGenerate      = "Generating episode for %q (%.1f min, %s)"
	logFmtCacheHit      = "Serving cached episode for %q (%.1f min)"
	logFmtCacheFailed   = "Cache lookup for %q failed, generating: %v"
	logFmtMeasured      = "Episode %q: %d chars over %s, %.0f chars/minute"
	logFmtMeasureFailed = "Could not measure audio for %q: %v"
	logFmtDraftStored   = "Stored draft %s for %q (%d bytes of audio at %s)"
	logFmtRated         = "Draft %s rated %d star(s), saved=%t"
	logFmtAudioCleanup  = "Failed to delete audio %s: %v"
)

// Composer produces a closed, length-bounded script.
type Composer interface {
	Compose(ctx context.Context, req script.Request) (script.ComposedScript, error)
}

// Narrator renders a script to encoded audio.
type Narrator interface {
	Narrate(ctx context.Context, script, voice string, w io.Writer) (tts.NarrationStats, error)
}

// Dependencies are the collaborators of a Service.
type Dependencies struct {
	Summary  core.SummarySource
	Composer Composer
	Narrator Narrator
	Episodes core.EpisodeStore
	Drafts   core.DraftStore
	Audio    core.ObjectStore
}

// Config tunes a Service.
type Config struct {
	SummarySentences int
	AudioPrefix      string
	// DisableCache always generates a fresh episode.
	DisableCache bool
}

// Request is the input to Generate.
type Request struct {
	Topic      string
	Minutes    float64
	AgeProfile core.AgeProfile
	Voice      string
}

// Result describes a generated or cached episode.
type Result struct {
	DraftID  string
	AudioKey string
	Script   string
	Cached   bool
	Warning  string
	Stats    tts.NarrationStats
	Duration time.Duration
	Budget   script.LengthBudget
}

// Service runs the episode workflow.
type Service struct {
	deps Dependencies
	cfg  Config
	log  *logger.Logger
}

// NewService validates deps and returns a Service.
func NewService(deps Dependencies, cfg Config, log *logger.Logger) (*Service, error) {
	switch {
	case deps.Summary == nil:
		return nil, fmt.Errorf("%w: summary source", ErrMissingDependency)
	case deps.Composer == nil:
		return nil, fmt.Errorf("%w: composer", ErrMissingDependency)
	case deps.Narrator == nil:
		return nil, fmt.Errorf("%w: narrator", ErrMissingDependency)
	case deps.Episodes == nil:
		return nil, fmt.Errorf("%w: episode store", ErrMissingDependency)
	case deps.Drafts == nil:
		return nil, fmt.Errorf("%w: draft store", ErrMissingDependency)
	case deps.Audio == nil:
		return nil, fmt.Errorf("%w: audio store", ErrMissingDependency)
	}

	if cfg.SummarySentences <= 0 {
		cfg.SummarySentences = DefaultSummarySentences
	}

	if cfg.AudioPrefix == "" {
		cfg.AudioPrefix = DefaultAudioPrefix
	}

	return &Service{deps: deps, cfg: cfg, log: log}, nil
}

// Generate returns a saved episode for the request when one exists, and
// otherwise generates a new draft waiting for a rating.
func (s *Service) Generate(ctx context.Context, req Request) (Result, error) {
	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		return Result{}, ErrEmptyTopic
	}

	if req.Minutes <= 0 {
		return Result{}, ErrInvalidMinutes
	}

	if req.AgeProfile == "" {
		req.AgeProfile = core.AgeStandard
	}

	s.log.Info(logFmtGenerate, req.Topic, req.Minutes, req.AgeProfile)

	if cached, ok := s.cached(ctx, req); ok {
		return cached, nil
	}

	reference, err := s.deps.Summary.Summarize(ctx, req.Topic, s.cfg.SummarySentences)
	if err != nil {
		return Result{}, fmt.Errorf("summary for %q: %w", req.Topic, err)
	}

	composed, err := s.deps.Composer.Compose(ctx, script.Request{
		Topic:    req.Topic,
		Summary:  reference,
		Duration: script.DurationRequest{Minutes: req.Minutes, AgeProfile: req.AgeProfile},
	})
	if err != nil {
		return Result{}, err
	}

	var buf bytes.Buffer

	stats, err := s.deps.Narrator.Narrate(ctx, composed.Final, req.Voice, &buf)
	if err != nil {
		return Result{}, fmt.Errorf("narration for %q: %w", req.Topic, err)
	}

	result := Result{
		Script:  composed.Final,
		Warning: warningFor(composed),
		Stats:   stats,
		Budget:  composed.Budget,
	}

	if m, err := audio.MeasureMP3(buf.Bytes()); err != nil {
		s.log.Warn(logFmtMeasureFailed, req.Topic, err)
	} else {
		result.Duration = m.Duration
		s.log.Info(logFmtMeasured, req.Topic, script.Len(composed.Final), m.Duration.Round(time.Second),
			audio.CharsPerMinute(script.Len(composed.Final), m.Duration))
	}

	result.AudioKey = s.cfg.AudioPrefix + strings.ReplaceAll(uuid.NewString(), "-", "") + audioExtension
	if err := s.deps.Audio.Upload(ctx, result.AudioKey, buf.Bytes()); err != nil {
		return Result{}, fmt.Errorf("upload audio for %q: %w", req.Topic, err)
	}

	result.DraftID = uuid.NewString()

	err = s.deps.Drafts.PutDraft(ctx, core.Draft{
		ID:         result.DraftID,
		Topic:      req.Topic,
		Minutes:    req.Minutes,
		AgeProfile: req.AgeProfile,
		Script:     composed.Final,
		AudioKey:   result.AudioKey,
	})
	if err != nil {
		s.removeAudio(ctx, result.AudioKey)

		return Result{}, fmt.Errorf("store draft for %q: %w", req.Topic, err)
	}

	s.log.Info(logFmtDraftStored, result.DraftID, req.Topic, buf.Len(), result.AudioKey)

	return result, nil
}

func (s *Service) cached(ctx context.Context, req Request) (Result, bool) {
	if s.cfg.DisableCache {
		return Result{}, false
	}

	ep, err := s.deps.Episodes.Lookup(ctx, req.Topic, req.Minutes)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			s.log.Warn(logFmtCacheFailed, req.Topic, err)
		}

		return Result{}, false
	}

	s.log.Info(logFmtCacheHit, req.Topic, req.Minutes)

	return Result{
		AudioKey: ep.StorageKey,
		Script:   ep.Script,
		Cached:   true,
		Duration: time.Duration(ep.DurationSec) * time.Second,
	}, true
}

func warningFor(composed script.ComposedScript) string {
	switch {
	case composed.Degenerate:
		return WarningClosingOnly
	case script.Len(composed.Body) < composed.Budget.BodyGoalChars:
		return WarningShort
	default:
		return ""
	}
}

// Rate records a listener rating for a draft. Five stars saves the episode;
// any other rating discards the draft and its audio. The draft is removed
// either way once the rating has been applied.
func (s *Service) Rate(ctx context.Context, draftID string, stars int) (bool, error) {
	if stars < minStars || stars > maxStars {
		return false, ErrInvalidStars
	}

	draft, err := s.deps.Drafts.GetDraft(ctx, draftID)
	if err != nil {
		return false, err
	}

	saved := false

	if stars == episode.RequiredRating {
		saved, err = s.deps.Episodes.SaveRated(ctx, core.Episode{
			Topic:      draft.Topic,
			Minutes:    draft.Minutes,
			Script:     draft.Script,
			StorageKey: draft.AudioKey,
			Rating:     stars,
		})
		if err != nil {
			return false, fmt.Errorf("save episode %q: %w", draft.Topic, err)
		}
	} else {
		s.removeAudio(ctx, draft.AudioKey)
	}

	if err := s.deps.Drafts.DeleteDraft(ctx, draftID); err != nil {
		return saved, fmt.Errorf("delete draft %s: %w", draftID, err)
	}

	s.log.Info(logFmtRated, draftID, stars, saved)

	return saved, nil
}

// List returns saved episodes.
func (s *Service) List(ctx context.Context, opts core.ListOptions) ([]core.Episode, error) {
	return s.deps.Episodes.List(ctx, opts)
}

// Delete removes a saved episode and its audio.
func (s *Service) Delete(ctx context.Context, topic string, minutes float64) error {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return ErrEmptyTopic
	}

	return s.deps.Episodes.Delete(ctx, topic, minutes)
}

func (s *Service) removeAudio(ctx context.Context, key string) {
	if key == "" {
		return
	}

	if err := s.deps.Audio.Delete(ctx, key); err != nil && !errors.Is(err, core.ErrNotFound) {
		s.log.Warn(logFmtAudioCleanup, key, err)
	}
}
