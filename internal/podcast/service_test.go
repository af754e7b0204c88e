package podcast_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/episode"
	"github.com/book-expert/podcast-service/internal/podcast"
	"github.com/book-expert/podcast-service/internal/script"
	"github.com/book-expert/podcast-service/internal/tts"
)

type fakeSummary struct {
	calls int
	err   error
}

func (f *fakeSummary) Summarize(_ context.Context, topic string, _ int) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}

	return "סיכום על " + topic, nil
}

type fakeComposer struct {
	calls  int
	result script.ComposedScript
	err    error
	last   script.Request
}

func (f *fakeComposer) Compose(_ context.Context, req script.Request) (script.ComposedScript, error) {
	f.calls++
	f.last = req

	return f.result, f.err
}

type fakeNarrator struct {
	voice string
	err   error
}

func (f *fakeNarrator) Narrate(_ context.Context, text, voice string, w io.Writer) (tts.NarrationStats, error) {
	f.voice = voice
	if f.err != nil {
		return tts.NarrationStats{}, f.err
	}

	n, _ := io.WriteString(w, "audio:"+text)

	return tts.NarrationStats{Chunks: 1, Chars: len([]rune(text)), Bytes: int64(n)}, nil
}

type memEpisodes struct {
	mu    sync.Mutex
	saved map[string]core.Episode
}

func (m *memEpisodes) SaveRated(_ context.Context, ep core.Episode) (bool, error) {
	if ep.Rating != episode.RequiredRating {
		return false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ep.DurationSec = int(ep.Minutes * 60)
	m.saved[episode.Key(ep.Topic, ep.Minutes)] = ep

	return true, nil
}

func (m *memEpisodes) Lookup(_ context.Context, topic string, minutes float64) (*core.Episode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ep, ok := m.saved[episode.Key(topic, minutes)]
	if !ok {
		return nil, core.ErrNotFound
	}

	return &ep, nil
}

func (m *memEpisodes) List(context.Context, core.ListOptions) ([]core.Episode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]core.Episode, 0, len(m.saved))
	for _, ep := range m.saved {
		out = append(out, ep)
	}

	return out, nil
}

func (m *memEpisodes) Delete(_ context.Context, topic string, minutes float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := episode.Key(topic, minutes)
	if _, ok := m.saved[key]; !ok {
		return core.ErrNotFound
	}

	delete(m.saved, key)

	return nil
}

type memDrafts struct {
	drafts map[string]core.Draft
}

func (m *memDrafts) PutDraft(_ context.Context, d core.Draft) error {
	m.drafts[d.ID] = d

	return nil
}

func (m *memDrafts) GetDraft(_ context.Context, id string) (*core.Draft, error) {
	d, ok := m.drafts[id]
	if !ok {
		return nil, core.ErrNotFound
	}

	return &d, nil
}

func (m *memDrafts) DeleteDraft(_ context.Context, id string) error {
	delete(m.drafts, id)

	return nil
}

type memObjects struct {
	objects map[string][]byte
}

func (m *memObjects) Download(_ context.Context, key string) ([]byte, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, core.ErrNotFound
	}

	return data, nil
}

func (m *memObjects) Upload(_ context.Context, key string, data []byte) error {
	m.objects[key] = data

	return nil
}

func (m *memObjects) Delete(_ context.Context, key string) error {
	if _, ok := m.objects[key]; !ok {
		return core.ErrNotFound
	}

	delete(m.objects, key)

	return nil
}

func (m *memObjects) List(context.Context) ([]core.ObjectInfo, error) {
	out := make([]core.ObjectInfo, 0, len(m.objects))
	for k, v := range m.objects {
		out = append(out, core.ObjectInfo{Key: k, Size: uint64(len(v))})
	}

	return out, nil
}

type harness struct {
	svc      *podcast.Service
	summary  *fakeSummary
	composer *fakeComposer
	narrator *fakeNarrator
	episodes *memEpisodes
	drafts   *memDrafts
	objects  *memObjects
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	log, err := logger.New(t.TempDir(), "podcast-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	h := &harness{
		summary: &fakeSummary{},
		composer: &fakeComposer{result: script.ComposedScript{
			Body:    strings.Repeat("א", 900),
			Closing: script.DefaultClosing,
			Final:   strings.Repeat("א", 900) + "\n\n" + script.DefaultClosing,
			Budget:  script.LengthBudget{TargetChars: 660, MinChars: 726, MaxChars: 825, BodyGoalChars: 546},
		}},
		narrator: &fakeNarrator{},
		episodes: &memEpisodes{saved: map[string]core.Episode{}},
		drafts:   &memDrafts{drafts: map[string]core.Draft{}},
		objects:  &memObjects{objects: map[string][]byte{}},
	}

	h.svc, err = podcast.NewService(podcast.Dependencies{
		Summary:  h.summary,
		Composer: h.composer,
		Narrator: h.narrator,
		Episodes: h.episodes,
		Drafts:   h.drafts,
		Audio:    h.objects,
	}, podcast.Config{}, log)
	require.NoError(t, err)

	return h
}

func TestGenerate_NewDraft(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	res, err := h.svc.Generate(context.Background(), podcast.Request{
		Topic: "  הירח ", Minutes: 1, AgeProfile: core.AgeYoung, Voice: "he-IL-Wavenet-A",
	})
	require.NoError(t, err)

	assert.False(t, res.Cached)
	assert.Empty(t, res.Warning)
	assert.NotEmpty(t, res.DraftID)
	assert.Regexp(t, `^audio/[0-9a-f]{32}\.mp3$`, res.AudioKey)
	assert.Equal(t, h.composer.result.Final, res.Script)
	assert.Equal(t, "he-IL-Wavenet-A", h.narrator.voice)

	assert.Equal(t, "הירח", h.composer.last.Topic)
	assert.Equal(t, "סיכום על הירח", h.composer.last.Summary)
	assert.Equal(t, core.AgeYoung, h.composer.last.Duration.AgeProfile)

	require.Contains(t, h.objects.objects, res.AudioKey)
	assert.Equal(t, "audio:"+res.Script, string(h.objects.objects[res.AudioKey]))

	draft := h.drafts.drafts[res.DraftID]
	assert.Equal(t, res.AudioKey, draft.AudioKey)
	assert.Equal(t, "הירח", draft.Topic)
}

func TestGenerate_Warnings(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.composer.result = script.ComposedScript{
		Closing:    script.DefaultClosing,
		Final:      script.DefaultClosing,
		Degenerate: true,
		Budget:     script.LengthBudget{BodyGoalChars: 546},
	}

	res, err := h.svc.Generate(context.Background(), podcast.Request{Topic: "הירח", Minutes: 1})
	require.NoError(t, err)
	assert.Equal(t, podcast.WarningClosingOnly, res.Warning)
	assert.Equal(t, script.DefaultClosing, res.Script)

	h.composer.result.Degenerate = false
	h.composer.result.Body = "קצר"

	res, err = h.svc.Generate(context.Background(), podcast.Request{Topic: "השמש", Minutes: 1})
	require.NoError(t, err)
	assert.Equal(t, podcast.WarningShort, res.Warning)
}

func TestGenerate_Rejections(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	_, err := h.svc.Generate(context.Background(), podcast.Request{Topic: "   ", Minutes: 1})
	require.ErrorIs(t, err, core.ErrInputRejected)

	_, err = h.svc.Generate(context.Background(), podcast.Request{Topic: "הירח", Minutes: 0})
	require.ErrorIs(t, err, core.ErrInputRejected)

	h.summary.err = core.ErrInputRejected

	_, err = h.svc.Generate(context.Background(), podcast.Request{Topic: "ירח Moon", Minutes: 1})
	require.ErrorIs(t, err, core.ErrInputRejected)

	assert.Zero(t, h.composer.calls, "no oracle work for rejected input")
	assert.Empty(t, h.objects.objects)
}

func TestGenerate_ComposerErrorReturnedUnchanged(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	oracleErr := errors.New("oracle unavailable")
	h.composer.err = oracleErr

	_, err := h.svc.Generate(context.Background(), podcast.Request{Topic: "הירח", Minutes: 1})
	assert.Same(t, oracleErr, err)
	assert.Empty(t, h.drafts.drafts)
}

func TestGenerate_NarrationError(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.narrator.err = tts.ErrNothingToSay

	_, err := h.svc.Generate(context.Background(), podcast.Request{Topic: "הירח", Minutes: 1})
	require.ErrorIs(t, err, tts.ErrNothingToSay)
	assert.Empty(t, h.objects.objects)
}

func TestRate_FiveStarsSavesAndServesFromCache(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.Generate(ctx, podcast.Request{Topic: "הירח", Minutes: 2})
	require.NoError(t, err)

	saved, err := h.svc.Rate(ctx, res.DraftID, 5)
	require.NoError(t, err)
	assert.True(t, saved)
	assert.Empty(t, h.drafts.drafts)
	assert.Contains(t, h.objects.objects, res.AudioKey)

	cached, err := h.svc.Generate(ctx, podcast.Request{Topic: "הירח", Minutes: 2})
	require.NoError(t, err)
	assert.True(t, cached.Cached)
	assert.Equal(t, res.AudioKey, cached.AudioKey)
	assert.Equal(t, res.Script, cached.Script)
	assert.Equal(t, 1, h.composer.calls, "cache hit makes no oracle call")
	assert.Equal(t, 1, h.summary.calls)

	eps, err := h.svc.List(ctx, core.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, eps, 1)

	require.NoError(t, h.svc.Delete(ctx, "הירח", 2))
	require.ErrorIs(t, h.svc.Delete(ctx, "הירח", 2), core.ErrNotFound)
}

func TestRate_LowRatingDiscards(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.Generate(ctx, podcast.Request{Topic: "הירח", Minutes: 2})
	require.NoError(t, err)

	saved, err := h.svc.Rate(ctx, res.DraftID, 4)
	require.NoError(t, err)
	assert.False(t, saved)
	assert.Empty(t, h.drafts.drafts)
	assert.NotContains(t, h.objects.objects, res.AudioKey)
	assert.Empty(t, h.episodes.saved)
}

func TestRate_Errors(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	_, err := h.svc.Rate(context.Background(), "missing", 5)
	require.ErrorIs(t, err, core.ErrNotFound)

	for _, stars := range []int{0, 6, -1} {
		_, err = h.svc.Rate(context.Background(), "any", stars)
		require.ErrorIs(t, err, core.ErrInputRejected)
	}
}

func TestNewService_MissingDependency(t *testing.T) {
	t.Parallel()

	_, err := podcast.NewService(podcast.Dependencies{}, podcast.Config{}, nil)
	require.ErrorIs(t, err, podcast.ErrMissingDependency)
}
