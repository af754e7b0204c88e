package llm

import (
	"context"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/resilience"
)

// RetryingOracle retries transient failures of an inner oracle with
// exponential backoff.
type RetryingOracle struct {
	inner core.Oracle
	cfg   resilience.RetryConfig
}

// NewRetryingOracle wraps inner. A nil cfg.IsRetryable uses the OpenAI classifier.
func NewRetryingOracle(inner core.Oracle, cfg resilience.RetryConfig, log *logger.Logger) *RetryingOracle {
	if cfg.IsRetryable == nil {
		cfg.IsRetryable = resilience.IsRetryableOpenAI
	}

	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		log.Warn("Oracle call failed (attempt %d), retrying in %s: %v", attempt, delay.Round(time.Millisecond), err)
	}

	return &RetryingOracle{inner: inner, cfg: cfg}
}

// Complete implements core.Oracle.
func (r *RetryingOracle) Complete(ctx context.Context, req core.CompletionRequest) (string, error) {
	var out string

	err := resilience.Retry(ctx, r.cfg, func() error {
		text, err := r.inner.Complete(ctx, req)
		if err != nil {
			return err
		}

		out = text

		return nil
	})

	return out, err
}
