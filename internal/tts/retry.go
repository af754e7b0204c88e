package tts

import (
	"context"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/resilience"
)

// RetryingSynthesizer retries transient failures of an inner synthesizer.
type RetryingSynthesizer struct {
	inner core.Synthesizer
	cfg   resilience.RetryConfig
}

// NewRetryingSynthesizer wraps inner with cfg.
func NewRetryingSynthesizer(inner core.Synthesizer, cfg resilience.RetryConfig, log *logger.Logger) *RetryingSynthesizer {
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		log.Warn("Synthesis failed (attempt %d), retrying in %s: %v", attempt, delay.Round(time.Millisecond), err)
	}

	return &RetryingSynthesizer{inner: inner, cfg: cfg}
}

// Synthesize implements core.Synthesizer.
func (r *RetryingSynthesizer) Synthesize(ctx context.Context, chunk, voice string) ([]byte, error) {
	var audio []byte

	err := resilience.Retry(ctx, r.cfg, func() error {
		data, err := r.inner.Synthesize(ctx, chunk, voice)
		if err != nil {
			return err
		}

		audio = data

		return nil
	})

	return audio, err
}
