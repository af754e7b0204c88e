package episode_test

import (
	"context"
	"testing"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/episode"
	"github.com/book-expert/podcast-service/internal/objectstore"
)

type fixture struct {
	store   *episode.Store
	objects *objectstore.NatsObjectStore
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	return newFixtureWith(t, episode.Config{})
}

func newFixtureWith(t *testing.T, cfg episode.Config) fixture {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&opts)
	t.Cleanup(natsServer.Shutdown)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	require.NoError(t, err)
	t.Cleanup(natsConnection.Close)

	js, err := natsConnection.JetStream()
	require.NoError(t, err)

	log, err := logger.New(t.TempDir(), "episode-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	objects, err := objectstore.New(js, "audio")
	require.NoError(t, err)

	store, err := episode.New(js, cfg, objects, log)
	require.NoError(t, err)

	return fixture{store: store, objects: objects}
}

func rated(topic string, minutes float64) core.Episode {
	return core.Episode{Topic: topic, Minutes: minutes, Script: "תסריט על " + topic, Rating: episode.RequiredRating}
}

func TestKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, episode.Key("הירח", 2.5), episode.Key("  הירח ", 2.5))
	assert.Equal(t, episode.Key("Moon Landing", 3), episode.Key("moon   landing", 3))
	assert.NotEqual(t, episode.Key("הירח", 2.5), episode.Key("הירח", 3))
	assert.Regexp(t, `^episode\.[0-9a-f]{16}\.m25$`, episode.Key("הירח", 2.5))
}

func TestSaveRated_OnlyFiveStars(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	for _, stars := range []int{1, 2, 3, 4} {
		ep := rated("הירח", 2)
		ep.Rating = stars

		saved, err := f.store.SaveRated(ctx, ep)
		require.NoError(t, err)
		assert.False(t, saved, "rating %d", stars)
	}

	_, err := f.store.Lookup(ctx, "הירח", 2)
	require.ErrorIs(t, err, core.ErrNotFound)

	saved, err := f.store.SaveRated(ctx, rated("הירח", 2))
	require.NoError(t, err)
	assert.True(t, saved)

	got, err := f.store.Lookup(ctx, "הירח", 2)
	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, 120, got.DurationSec)
	assert.Equal(t, "he", got.Lang)
	assert.Equal(t, 5, got.Rating)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSaveRated_Validation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.store.SaveRated(context.Background(), rated("  ", 2))
	require.ErrorIs(t, err, core.ErrInputRejected)

	_, err = f.store.SaveRated(context.Background(), rated("הירח", 0))
	require.ErrorIs(t, err, core.ErrInputRejected)
}

func TestLookup_MostRecent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	first := rated("הירח", 2)
	first.Script = "ישן"
	second := rated("הירח", 2)
	second.Script = "חדש"

	_, err := f.store.SaveRated(ctx, first)
	require.NoError(t, err)
	_, err = f.store.SaveRated(ctx, second)
	require.NoError(t, err)

	got, err := f.store.Lookup(ctx, "הירח", 2)
	require.NoError(t, err)
	assert.Equal(t, "חדש", got.Script)
}

func TestList(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	for _, ep := range []core.Episode{
		rated("Zebra", 1), rated("apple", 3), rated("Apple", 1), rated("mango", 2), rated("זברה", 2),
	} {
		_, err := f.store.SaveRated(ctx, ep)
		require.NoError(t, err)
	}

	all, err := f.store.List(ctx, core.ListOptions{CollapseByMinutes: true})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "Apple", all[0].Topic)
	assert.InDelta(t, 1.0, all[0].Minutes, 1e-9)
	assert.Equal(t, "apple", all[1].Topic)
	assert.InDelta(t, 3.0, all[1].Minutes, 1e-9)
	assert.Equal(t, "mango", all[2].Topic)
	assert.Equal(t, "Zebra", all[3].Topic)
	assert.Equal(t, "זברה", all[4].Topic)

	perTopic, err := f.store.List(ctx, core.ListOptions{})
	require.NoError(t, err)
	require.Len(t, perTopic, 4)
	assert.Equal(t, "Apple", perTopic[0].Topic, "latest save of the topic wins")
	assert.InDelta(t, 1.0, perTopic[0].Minutes, 1e-9)

	search, err := f.store.List(ctx, core.ListOptions{Search: "APP", CollapseByMinutes: true})
	require.NoError(t, err)
	assert.Len(t, search, 2)

	paged, err := f.store.List(ctx, core.ListOptions{Limit: 2, Offset: 2, CollapseByMinutes: true})
	require.NoError(t, err)
	require.Len(t, paged, 2)
	assert.Equal(t, "mango", paged[0].Topic)
	assert.Equal(t, "Zebra", paged[1].Topic)

	beyond, err := f.store.List(ctx, core.ListOptions{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, beyond)
}

func TestList_Empty(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	eps, err := f.store.List(context.Background(), core.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, eps)
}

func TestDelete_RemovesRecordAndAudio(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.objects.Upload(ctx, "audio/1.mp3", []byte("ID3")))

	ep := rated("הירח", 2)
	ep.StorageKey = "audio/1.mp3"

	_, err := f.store.SaveRated(ctx, ep)
	require.NoError(t, err)

	require.NoError(t, f.store.Delete(ctx, "הירח", 2))

	_, err = f.store.Lookup(ctx, "הירח", 2)
	require.ErrorIs(t, err, core.ErrNotFound)

	_, err = f.objects.Download(ctx, "audio/1.mp3")
	require.ErrorIs(t, err, core.ErrNotFound)

	err = f.store.Delete(ctx, "הירח", 2)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func savedWithAudio(t *testing.T, f fixture, audioKey string) {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, f.objects.Upload(ctx, audioKey, []byte("ID3 "+audioKey)))

	ep := rated("הירח", 2)
	ep.StorageKey = audioKey

	saved, err := f.store.SaveRated(ctx, ep)
	require.NoError(t, err)
	require.True(t, saved)
}

func assertAudio(t *testing.T, f fixture, present bool, keys ...string) {
	t.Helper()

	for _, key := range keys {
		_, err := f.objects.Download(context.Background(), key)
		if present {
			assert.NoError(t, err, key)
		} else {
			assert.ErrorIs(t, err, core.ErrNotFound, key)
		}
	}
}

func TestDelete_RemovesAudioOfEveryRevision(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	savedWithAudio(t, f, "audio/1.mp3")
	savedWithAudio(t, f, "audio/2.mp3")
	savedWithAudio(t, f, "audio/3.mp3")

	require.NoError(t, f.store.Delete(context.Background(), "הירח", 2))

	assertAudio(t, f, false, "audio/1.mp3", "audio/2.mp3", "audio/3.mp3")
}

func TestSaveRated_ReleasesEvictedAudio(t *testing.T) {
	t.Parallel()

	f := newFixtureWith(t, episode.Config{History: 2})

	savedWithAudio(t, f, "audio/1.mp3")
	savedWithAudio(t, f, "audio/2.mp3")
	assertAudio(t, f, true, "audio/1.mp3", "audio/2.mp3")

	savedWithAudio(t, f, "audio/3.mp3")
	assertAudio(t, f, false, "audio/1.mp3")
	assertAudio(t, f, true, "audio/2.mp3", "audio/3.mp3")

	savedWithAudio(t, f, "audio/4.mp3")
	assertAudio(t, f, false, "audio/2.mp3")
	assertAudio(t, f, true, "audio/3.mp3", "audio/4.mp3")

	latest, err := f.store.Lookup(context.Background(), "הירח", 2)
	require.NoError(t, err)
	assert.Equal(t, "audio/4.mp3", latest.StorageKey)
}

func TestSaveRated_KeepsAudioSharedWithRetainedRevision(t *testing.T) {
	t.Parallel()

	f := newFixtureWith(t, episode.Config{History: 2})
	ctx := context.Background()

	require.NoError(t, f.objects.Upload(ctx, "audio/shared.mp3", []byte("ID3")))

	ep := rated("הירח", 2)
	ep.StorageKey = "audio/shared.mp3"

	for range 3 {
		_, err := f.store.SaveRated(ctx, ep)
		require.NoError(t, err)
	}

	assertAudio(t, f, true, "audio/shared.mp3")
}

func TestDrafts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	draft := core.Draft{ID: "d-1", Topic: "הירח", Minutes: 2, AgeProfile: core.AgeYoung, Script: "s", AudioKey: "audio/d.mp3"}
	require.NoError(t, f.store.PutDraft(ctx, draft))

	got, err := f.store.GetDraft(ctx, "d-1")
	require.NoError(t, err)
	assert.Equal(t, "audio/d.mp3", got.AudioKey)
	assert.Equal(t, core.AgeYoung, got.AgeProfile)
	assert.False(t, got.CreatedAt.IsZero())

	require.NoError(t, f.store.DeleteDraft(ctx, "d-1"))

	_, err = f.store.GetDraft(ctx, "d-1")
	require.ErrorIs(t, err, core.ErrNotFound)

	require.ErrorIs(t, f.store.PutDraft(ctx, core.Draft{}), core.ErrInputRejected)
}
