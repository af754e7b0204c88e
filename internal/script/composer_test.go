package script_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/script"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testTopic    = "כוכבים"
	testSummary  = "כוכב הוא גוף שמימי זוהר."
	testSentence = "הילדים אוהבים ללמוד על החלל. "
)

var errOracleDown = errors.New("oracle unavailable")

type reply struct {
	text string
	err  error
}

// scriptedOracle answers calls from a fixed list and records every request.
type scriptedOracle struct {
	mu       sync.Mutex
	replies  []reply
	requests []core.CompletionRequest
}

func (o *scriptedOracle) Complete(_ context.Context, req core.CompletionRequest) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.requests = append(o.requests, req)
	if len(o.requests) > len(o.replies) {
		return "", nil
	}

	r := o.replies[len(o.requests)-1]

	return r.text, r.err
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func newComposer(t *testing.T, oracle core.Oracle, mutate func(*script.Config)) *script.Composer {
	t.Helper()

	cfg := script.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	composer, err := script.NewComposer(oracle, cfg, newTestLogger(t))
	require.NoError(t, err)

	return composer
}

func request(minutes float64) script.Request {
	return script.Request{
		Topic:    testTopic,
		Summary:  testSummary,
		Duration: script.DurationRequest{Minutes: minutes, AgeProfile: core.AgeStandard},
	}
}

func assertWellFormed(t *testing.T, result script.ComposedScript) {
	t.Helper()

	assert.Equal(t, 1, strings.Count(result.Final, script.DefaultClosing))
	assert.True(t, strings.HasSuffix(result.Final, script.DefaultClosing))
	assert.LessOrEqual(t, script.Len(result.Final), result.Budget.MaxChars)
}

func TestCompose_SufficientDraft(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("x", 600)
	oracle := &scriptedOracle{replies: []reply{{text: body}}}

	result, err := newComposer(t, oracle, nil).Compose(context.Background(), request(1))
	require.NoError(t, err)

	assert.Len(t, oracle.requests, 1)
	assert.Equal(t, body+"\n\n"+script.DefaultClosing, result.Final)
	assert.False(t, result.Trimmed)
	assert.Zero(t, result.Continuations)
	assertWellFormed(t, result)
}

func TestCompose_ShortDraftGetsOneContinuation(t *testing.T) {
	t.Parallel()

	draft := strings.Repeat("א", 300)
	more := strings.Repeat("ב", 300)
	oracle := &scriptedOracle{replies: []reply{{text: draft}, {text: more}}}

	result, err := newComposer(t, oracle, nil).Compose(context.Background(), request(1))
	require.NoError(t, err)

	require.Len(t, oracle.requests, 2)
	assert.Equal(t, draft+"\n\n"+more, result.Body)
	assert.Equal(t, 1, result.Continuations)

	cont := oracle.requests[1]
	require.Len(t, cont.Turns, 4)
	assert.Equal(t, core.RoleAssistant, cont.Turns[2].Role)
	assert.Equal(t, draft, cont.Turns[2].Content)
	assert.Equal(t, core.RoleUser, cont.Turns[3].Role)
	assert.Equal(t, script.TokenCap(result.Budget.MaxChars-300, script.DefaultTokenPolicy()), cont.MaxOutputTokens)
	assertWellFormed(t, result)
}

func TestCompose_AtMostOneContinuationByDefault(t *testing.T) {
	t.Parallel()

	oracle := &scriptedOracle{replies: []reply{{text: "קצר."}, {text: "עוד קצת."}, {text: "ועוד."}}}

	result, err := newComposer(t, oracle, nil).Compose(context.Background(), request(3))
	require.NoError(t, err)

	assert.Len(t, oracle.requests, 2)
	assert.Equal(t, 2, result.OracleCalls)
	assertWellFormed(t, result)
}

func TestCompose_ConfigurableContinuationRounds(t *testing.T) {
	t.Parallel()

	piece := strings.Repeat("ג", 100)
	oracle := &scriptedOracle{replies: []reply{{text: piece}, {text: piece}, {text: piece}, {text: piece}, {text: piece}}}

	composer := newComposer(t, oracle, func(cfg *script.Config) {
		cfg.Policy.MaxContinuationRounds = 3
	})

	result, err := composer.Compose(context.Background(), request(1))
	require.NoError(t, err)

	assert.Equal(t, 4, result.OracleCalls)
	assert.Equal(t, 3, result.Continuations)
	assert.Len(t, oracle.requests[3].Turns, 8)
	assertWellFormed(t, result)
}

func TestCompose_OverlongDraftIsTrimmed(t *testing.T) {
	t.Parallel()

	draft := strings.Repeat(testSentence, 200)
	oracle := &scriptedOracle{replies: []reply{{text: draft}}}

	result, err := newComposer(t, oracle, nil).Compose(context.Background(), request(5))
	require.NoError(t, err)

	assert.Len(t, oracle.requests, 1)
	assert.True(t, result.Trimmed)
	assert.True(t, strings.HasSuffix(result.Body, "."))
	assert.True(t, strings.HasPrefix(draft, result.Body))
	assertWellFormed(t, result)
}

func TestCompose_EmptyDraftYieldsClosingOnly(t *testing.T) {
	t.Parallel()

	oracle := &scriptedOracle{replies: []reply{{text: "   "}}}

	result, err := newComposer(t, oracle, nil).Compose(context.Background(), request(2.5))
	require.NoError(t, err)

	assert.Len(t, oracle.requests, 1)
	assert.Equal(t, script.DefaultClosing, result.Final)
	assert.True(t, result.Degenerate)
	assertWellFormed(t, result)
}

func TestCompose_DraftErrorPropagatesUnchanged(t *testing.T) {
	t.Parallel()

	oracle := &scriptedOracle{replies: []reply{{err: errOracleDown}}}

	_, err := newComposer(t, oracle, nil).Compose(context.Background(), request(2.5))
	require.Error(t, err)
	assert.Equal(t, errOracleDown, err)
}

func TestCompose_FailedContinuationKeepsDraft(t *testing.T) {
	t.Parallel()

	draft := strings.Repeat(testSentence, 5)
	oracle := &scriptedOracle{replies: []reply{{text: draft}, {err: errOracleDown}}}

	result, err := newComposer(t, oracle, nil).Compose(context.Background(), request(2.5))
	require.NoError(t, err)

	assert.Equal(t, 2, result.OracleCalls)
	assert.Zero(t, result.Continuations)
	assert.Equal(t, strings.TrimSpace(draft), result.Body)
	assertWellFormed(t, result)
}

func TestCompose_ClosingWrittenByModelIsNotDuplicated(t *testing.T) {
	t.Parallel()

	draft := strings.Repeat(testSentence, 30) + script.DefaultClosing
	oracle := &scriptedOracle{replies: []reply{{text: draft}}}

	result, err := newComposer(t, oracle, nil).Compose(context.Background(), request(1))
	require.NoError(t, err)

	assertWellFormed(t, result)
}

func TestCompose_RequestParameters(t *testing.T) {
	t.Parallel()

	oracle := &scriptedOracle{replies: []reply{{text: strings.Repeat(testSentence, 100)}}}

	req := request(2.5)
	req.Duration.AgeProfile = core.AgeYoung

	result, err := newComposer(t, oracle, nil).Compose(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, oracle.requests, 1)

	draft := oracle.requests[0]
	assert.InDelta(t, script.DefaultTemperature, draft.Temperature, 1e-9)
	assert.InDelta(t, script.DefaultPresencePenalty, draft.PresencePenalty, 1e-9)
	assert.InDelta(t, script.DefaultFrequencyPenalty, draft.FrequencyPenalty, 1e-9)
	assert.Equal(t, script.DefaultStopSequences, draft.Stop)
	assert.Equal(t, script.TokenCap(result.Budget.MaxChars, script.DefaultTokenPolicy()), draft.MaxOutputTokens)

	require.Len(t, draft.Turns, 2)
	assert.Equal(t, core.RoleSystem, draft.Turns[0].Role)
	assert.Contains(t, draft.Turns[0].Content, script.HebrewPrompts().Tones[core.AgeYoung])
	assert.Contains(t, draft.Turns[1].Content, testTopic)
	assert.Contains(t, draft.Turns[1].Content, testSummary)
}

func TestCompose_PacingOverride(t *testing.T) {
	t.Parallel()

	composer := newComposer(t, &scriptedOracle{}, nil)

	budget := composer.Budget(script.DurationRequest{Minutes: 2, CharsPerMinute: 900})
	assert.Equal(t, 1800, budget.TargetChars)
}

func TestNewComposer_Validation(t *testing.T) {
	t.Parallel()

	log := newTestLogger(t)

	_, err := script.NewComposer(nil, script.DefaultConfig(), log)
	require.ErrorIs(t, err, script.ErrOracleMissing)

	cfg := script.DefaultConfig()
	cfg.Closing = " "
	_, err = script.NewComposer(&scriptedOracle{}, cfg, log)
	require.ErrorIs(t, err, script.ErrClosingEmpty)

	cfg = script.DefaultConfig()
	cfg.Closing = strings.Repeat("א", 800)
	_, err = script.NewComposer(&scriptedOracle{}, cfg, log)
	require.ErrorIs(t, err, script.ErrClosingTooLong)
}
