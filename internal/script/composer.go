package script

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/podcast-service/internal/core"
)

// Reference sampling values for every oracle call.
const (
	DefaultTemperature      = 0.9
	DefaultPresencePenalty  = 0.2
	DefaultFrequencyPenalty = 0.1
)

const paragraphBreak = "\n\n"

var (
	// ErrOracleMissing is returned when a Composer is built without an oracle.
	ErrOracleMissing = errors.New("oracle cannot be nil")
	// ErrClosingEmpty is returned when no closing statement is configured.
	ErrClosingEmpty = errors.New("closing text cannot be empty")
	// ErrClosingTooLong is returned when the closing leaves no room for a body
	// in the smallest possible budget.
	ErrClosingTooLong = errors.New("closing text does not fit the smallest budget")
)

const (
	logFmtDraft        = "Drafting script for %q: target=%d min=%d max=%d goal=%d"
	logFmtContinuation = "Body short for %q (%d/%d chars), requesting continuation %d"
	logFmtContFailed   = "Continuation for %q failed, keeping draft: %v"
	logFmtDegenerate   = "Oracle returned no body for %q, episode will contain the closing only"
	logFmtTrimmed      = "Trimmed body for %q from %d to %d chars"
	logFmtComposed     = "Composed script for %q: %d chars in %d oracle call(s)"
)

// Sampling holds the oracle sampling parameters.
type Sampling struct {
	Temperature      float64
	PresencePenalty  float64
	FrequencyPenalty float64
}

// Config configures a Composer.
type Config struct {
	Pacing        Pacing
	Tokens        TokenPolicy
	Policy        Policy
	Sampling      Sampling
	Closing       string
	StopSequences []string
	Prompts       PromptSet
}

// DefaultConfig returns the reference composer configuration.
func DefaultConfig() Config {
	return Config{
		Pacing: DefaultPacing(),
		Tokens: DefaultTokenPolicy(),
		Policy: DefaultPolicy(),
		Sampling: Sampling{
			Temperature:      DefaultTemperature,
			PresencePenalty:  DefaultPresencePenalty,
			FrequencyPenalty: DefaultFrequencyPenalty,
		},
		Closing:       DefaultClosing,
		StopSequences: append([]string(nil), DefaultStopSequences...),
		Prompts:       HebrewPrompts(),
	}
}

// DurationRequest describes the requested episode length and audience.
// A zero CharsPerMinute uses the configured pacing.
type DurationRequest struct {
	Minutes        float64
	CharsPerMinute int
	AgeProfile     core.AgeProfile
}

// Request is the input to Compose.
type Request struct {
	Topic    string
	Summary  string
	Duration DurationRequest
}

// ComposedScript is the result of a composition. Final always contains
// Closing exactly once and is never longer than Budget.MaxChars.
type ComposedScript struct {
	Body          string       `json:"body"`
	Closing       string       `json:"closing"`
	Final         string       `json:"final"`
	Trimmed       bool         `json:"trimmed"`
	Degenerate    bool         `json:"degenerate"`
	Budget        LengthBudget `json:"budget"`
	OracleCalls   int          `json:"oracle_calls"`
	Continuations int          `json:"continuations"`
}

// Composer drafts, extends, closes and trims narration scripts.
type Composer struct {
	oracle core.Oracle
	cfg    Config
	log    *logger.Logger
}

// NewComposer validates cfg and returns a Composer bound to oracle.
func NewComposer(oracle core.Oracle, cfg Config, log *logger.Logger) (*Composer, error) {
	if oracle == nil {
		return nil, ErrOracleMissing
	}

	cfg.Closing = strings.TrimSpace(cfg.Closing)
	if cfg.Closing == "" {
		return nil, ErrClosingEmpty
	}

	if cfg.Prompts.Draft == "" {
		cfg.Prompts = HebrewPrompts()
	}

	cfg.Pacing = cfg.Pacing.withDefaults()
	cfg.Tokens = cfg.Tokens.withDefaults()
	cfg.Policy = cfg.Policy.withDefaults()

	smallest := NewBudget(0, cfg.Pacing, cfg.Policy)
	if Len(paragraphBreak+cfg.Closing)+ellipsisLen >= smallest.MaxChars {
		return nil, fmt.Errorf("%w: %d chars against a %d char ceiling",
			ErrClosingTooLong, Len(cfg.Closing), smallest.MaxChars)
	}

	return &Composer{oracle: oracle, cfg: cfg, log: log}, nil
}

// Budget returns the length budget Compose would use for d.
func (c *Composer) Budget(d DurationRequest) LengthBudget {
	pacing := c.cfg.Pacing
	if d.CharsPerMinute > 0 {
		pacing.CharsPerMinute = d.CharsPerMinute
	}

	return NewBudget(d.Minutes, pacing, c.cfg.Policy)
}

// Compose produces a closed, length-bounded script. An error from the first
// oracle call is returned as is; a failed continuation only ends extension.
func (c *Composer) Compose(ctx context.Context, req Request) (ComposedScript, error) {
	budget := c.Budget(req.Duration)
	c.log.Info(logFmtDraft, req.Topic, budget.TargetChars, budget.MinChars, budget.MaxChars, budget.BodyGoalChars)

	turns := []core.Turn{
		c.cfg.Prompts.systemTurn(req.Duration.AgeProfile),
		c.cfg.Prompts.draftTurn(req.Topic, req.Summary, budget),
	}

	draft, err := c.oracle.Complete(ctx, c.completion(turns, budget.MaxChars))
	if err != nil {
		return ComposedScript{}, err
	}

	result := ComposedScript{Closing: c.cfg.Closing, Budget: budget, OracleCalls: 1}
	body := strings.TrimSpace(draft)
	last := body

	for round := 1; round <= c.cfg.Policy.MaxContinuationRounds; round++ {
		if body == "" || Len(body) >= budget.BodyGoalChars {
			break
		}

		c.log.Info(logFmtContinuation, req.Topic, Len(body), budget.BodyGoalChars, round)

		turns = append(turns,
			core.Turn{Role: core.RoleAssistant, Content: last},
			c.cfg.Prompts.continuationTurn(budget.BodyGoalChars-Len(body)),
		)

		more, contErr := c.oracle.Complete(ctx, c.completion(turns, budget.MaxChars-Len(body)))
		result.OracleCalls++

		if contErr != nil {
			c.log.Warn(logFmtContFailed, req.Topic, contErr)

			break
		}

		more = strings.TrimSpace(more)
		if more == "" {
			break
		}

		body += paragraphBreak + more
		last = more
		result.Continuations++
	}

	for strings.Contains(body, c.cfg.Closing) {
		body = strings.TrimSpace(strings.ReplaceAll(body, c.cfg.Closing, ""))
	}

	if body == "" {
		result.Degenerate = true

		c.log.Warn(logFmtDegenerate, req.Topic)
	}

	closingBlock := paragraphBreak + c.cfg.Closing
	bodyBudget := budget.MaxChars - Len(closingBlock)

	if Len(body) > bodyBudget {
		before := Len(body)
		body = TrimToBoundary(body, bodyBudget-ellipsisLen)
		result.Trimmed = true

		c.log.Info(logFmtTrimmed, req.Topic, before, Len(body))
	}

	result.Body = body
	result.Final = strings.TrimSpace(body + closingBlock)

	c.log.Info(logFmtComposed, req.Topic, Len(result.Final), result.OracleCalls)

	return result, nil
}

func (c *Composer) completion(turns []core.Turn, chars int) core.CompletionRequest {
	return core.CompletionRequest{
		Turns:            append([]core.Turn(nil), turns...),
		Temperature:      c.cfg.Sampling.Temperature,
		PresencePenalty:  c.cfg.Sampling.PresencePenalty,
		FrequencyPenalty: c.cfg.Sampling.FrequencyPenalty,
		MaxOutputTokens:  TokenCap(chars, c.cfg.Tokens),
		Stop:             append([]string(nil), c.cfg.StopSequences...),
	}
}
