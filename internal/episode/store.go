// Package episode persists rated episodes and unrated drafts in NATS JetStream
// key-value buckets.
package episode

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/book-expert/podcast-service/internal/core"
)

// Defaults for Config.
const (
	DefaultBucket      = "episodes"
	DefaultDraftBucket = "episode-drafts"
	DefaultHistory     = 5
	DefaultDraftTTL    = 24 * time.Hour
	DefaultLang        = "he"
	// RequiredRating is the only rating accepted by SaveRated.
	RequiredRating = 5
	topicHashBytes = 8
)

var (
	// ErrTopicRequired is returned when an episode has no topic.
	ErrTopicRequired = fmt.Errorf("%w: episode topic is empty", core.ErrInputRejected)
	// ErrMinutesRequired is returned when an episode has a non-positive duration.
	ErrMinutesRequired = fmt.Errorf("%w: episode minutes must be positive", core.ErrInputRejected)
)

// Config names the buckets used by Store.
type Config struct {
	Bucket      string
	DraftBucket string
	// History is the number of revisions kept per (topic, minutes) key.
	History  uint8
	DraftTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.Bucket == "" {
		c.Bucket = DefaultBucket
	}

	if c.DraftBucket == "" {
		c.DraftBucket = DefaultDraftBucket
	}

	if c.History == 0 {
		c.History = DefaultHistory
	}

	if c.DraftTTL <= 0 {
		c.DraftTTL = DefaultDraftTTL
	}

	return c
}

// Store implements core.EpisodeStore and core.DraftStore.
type Store struct {
	episodes nats.KeyValue
	history  int
	drafts   nats.KeyValue
	objects  core.ObjectStore
	log      *logger.Logger
	now      func() time.Time
}

// New creates or binds the episode and draft buckets. objects holds the
// episode audio and is used when an episode is deleted.
func New(js nats.JetStreamContext, cfg Config, objects core.ObjectStore, log *logger.Logger) (*Store, error) {
	cfg = cfg.withDefaults()

	episodes, err := bindKeyValue(js, &nats.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "Episodes rated five stars.",
		History:     cfg.History,
		Storage:     nats.FileStorage,
	})
	if err != nil {
		return nil, err
	}

	drafts, err := bindKeyValue(js, &nats.KeyValueConfig{
		Bucket:      cfg.DraftBucket,
		Description: "Generated episodes waiting for a rating.",
		TTL:         cfg.DraftTTL,
		Storage:     nats.FileStorage,
	})
	if err != nil {
		return nil, err
	}

	status, err := episodes.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to read status of bucket '%s': %w", cfg.Bucket, err)
	}

	return &Store{
		episodes: episodes,
		history:  int(status.History()),
		drafts:   drafts,
		objects:  objects,
		log:      log,
		now:      time.Now,
	}, nil
}

func bindKeyValue(js nats.JetStreamContext, cfg *nats.KeyValueConfig) (nats.KeyValue, error) {
	kv, err := js.CreateKeyValue(cfg)
	if err == nil {
		return kv, nil
	}

	if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return nil, fmt.Errorf("failed to create key-value bucket '%s': %w", cfg.Bucket, err)
	}

	kv, err = js.KeyValue(cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to bind to existing key-value bucket '%s': %w", cfg.Bucket, err)
	}

	return kv, nil
}

// NormalizeTopic lowercases topic and collapses whitespace.
func NormalizeTopic(topic string) string {
	return strings.ToLower(strings.Join(strings.Fields(topic), " "))
}

// Key returns the bucket key for a (topic, minutes) pair. Minutes are kept
// to one decimal place.
func Key(topic string, minutes float64) string {
	sum := sha256.Sum256([]byte(NormalizeTopic(topic)))

	return fmt.Sprintf("episode.%s.m%d", hex.EncodeToString(sum[:topicHashBytes]), int64(math.Round(minutes*10)))
}

// SaveRated stores ep when its rating is five and reports whether it did.
// The stored record gets a fresh ID and creation time and replaces the
// previous latest revision for the same (topic, minutes). Audio of a revision
// that falls out of the bucket history is deleted.
func (s *Store) SaveRated(ctx context.Context, ep core.Episode) (bool, error) {
	if ep.Rating != RequiredRating {
		return false, nil
	}

	ep.Topic = strings.TrimSpace(ep.Topic)
	if ep.Topic == "" {
		return false, ErrTopicRequired
	}

	if ep.Minutes <= 0 {
		return false, ErrMinutesRequired
	}

	ep.ID = uuid.NewString()
	ep.CreatedAt = s.now().UTC()
	ep.DurationSec = int(ep.Minutes * 60)

	if ep.Lang == "" {
		ep.Lang = DefaultLang
	}

	data, err := json.Marshal(ep)
	if err != nil {
		return false, fmt.Errorf("failed to encode episode: %w", err)
	}

	key := Key(ep.Topic, ep.Minutes)

	previous, err := s.revisions(key)
	if err != nil {
		return false, err
	}

	if _, err := s.episodes.Put(key, data); err != nil {
		return false, fmt.Errorf("failed to store episode '%s': %w", ep.Topic, err)
	}

	s.releaseEvicted(ctx, previous, ep)

	return true, nil
}

// revisions returns the stored revisions for key, oldest first.
func (s *Store) revisions(key string) ([]core.Episode, error) {
	entries, err := s.episodes.History(key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read history of '%s': %w", key, err)
	}

	eps := make([]core.Episode, 0, len(entries))

	for _, entry := range entries {
		if entry.Operation() != nats.KeyValuePut {
			continue
		}

		var ep core.Episode
		if err := json.Unmarshal(entry.Value(), &ep); err != nil {
			s.log.Warn("Skipping unreadable revision %d of '%s': %v", entry.Revision(), key, err)

			continue
		}

		eps = append(eps, ep)
	}

	return eps, nil
}

// releaseEvicted deletes the audio of revisions pushed out of the history by
// saved, unless a retained revision still points at it.
func (s *Store) releaseEvicted(ctx context.Context, previous []core.Episode, saved core.Episode) {
	keep := s.history - 1
	if keep < 0 || len(previous) <= keep {
		return
	}

	split := len(previous) - keep
	retained := storageKeys(append(append([]core.Episode(nil), previous[split:]...), saved))

	for _, key := range storageKeys(previous[:split]) {
		if slices.Contains(retained, key) {
			continue
		}

		s.deleteAudio(ctx, key, saved.Topic)
	}
}

func (s *Store) deleteAudio(ctx context.Context, key, topic string) {
	if s.objects == nil {
		return
	}

	if err := s.objects.Delete(ctx, key); err != nil && !errors.Is(err, core.ErrNotFound) {
		s.log.Warn("Failed to delete audio '%s' for episode %q: %v", key, topic, err)
	}
}

// storageKeys returns the distinct non-empty audio keys of eps in order.
func storageKeys(eps []core.Episode) []string {
	var keys []string

	for _, ep := range eps {
		if ep.StorageKey != "" && !slices.Contains(keys, ep.StorageKey) {
			keys = append(keys, ep.StorageKey)
		}
	}

	return keys
}

// Lookup returns the most recent saved episode for (topic, minutes).
func (s *Store) Lookup(_ context.Context, topic string, minutes float64) (*core.Episode, error) {
	entry, err := s.episodes.Get(Key(topic, minutes))
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return nil, fmt.Errorf("episode %q (%.1f min): %w", topic, minutes, core.ErrNotFound)
		}

		return nil, fmt.Errorf("failed to read episode %q: %w", topic, err)
	}

	var ep core.Episode
	if err := json.Unmarshal(entry.Value(), &ep); err != nil {
		return nil, fmt.Errorf("failed to decode episode %q: %w", topic, err)
	}

	return &ep, nil
}

// List returns saved episodes ordered by lowercased topic then minutes.
func (s *Store) List(_ context.Context, opts core.ListOptions) ([]core.Episode, error) {
	keys, err := s.episodes.Keys()
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return []core.Episode{}, nil
		}

		return nil, fmt.Errorf("failed to list episode keys: %w", err)
	}

	search := strings.ToLower(strings.TrimSpace(opts.Search))
	all := make([]core.Episode, 0, len(keys))

	for _, key := range keys {
		entry, err := s.episodes.Get(key)
		if err != nil {
			if errors.Is(err, nats.ErrKeyNotFound) {
				continue
			}

			return nil, fmt.Errorf("failed to read episode '%s': %w", key, err)
		}

		var ep core.Episode
		if err := json.Unmarshal(entry.Value(), &ep); err != nil {
			s.log.Warn("Skipping unreadable episode record '%s': %v", key, err)

			continue
		}

		if search != "" && !strings.Contains(strings.ToLower(ep.Topic), search) {
			continue
		}

		all = append(all, ep)
	}

	if !opts.CollapseByMinutes {
		all = latestPerTopic(all)
	}

	sort.SliceStable(all, func(i, j int) bool {
		ti, tj := strings.ToLower(all[i].Topic), strings.ToLower(all[j].Topic)
		if ti != tj {
			return ti < tj
		}

		return all[i].Minutes < all[j].Minutes
	})

	return page(all, opts.Offset, opts.Limit), nil
}

func latestPerTopic(eps []core.Episode) []core.Episode {
	latest := make(map[string]int, len(eps))
	out := make([]core.Episode, 0, len(eps))

	for _, ep := range eps {
		topic := NormalizeTopic(ep.Topic)

		idx, seen := latest[topic]
		if !seen {
			latest[topic] = len(out)
			out = append(out, ep)

			continue
		}

		if ep.CreatedAt.After(out[idx].CreatedAt) {
			out[idx] = ep
		}
	}

	return out
}

func page(eps []core.Episode, offset, limit int) []core.Episode {
	if offset < 0 {
		offset = 0
	}

	if offset >= len(eps) {
		return []core.Episode{}
	}

	eps = eps[offset:]
	if limit > 0 && limit < len(eps) {
		eps = eps[:limit]
	}

	return eps
}

// Delete removes the saved episode for (topic, minutes), its history and the
// audio of every kept revision.
func (s *Store) Delete(ctx context.Context, topic string, minutes float64) error {
	if _, err := s.Lookup(ctx, topic, minutes); err != nil {
		return err
	}

	key := Key(topic, minutes)

	revisions, err := s.revisions(key)
	if err != nil {
		return err
	}

	for _, audioKey := range storageKeys(revisions) {
		s.deleteAudio(ctx, audioKey, topic)
	}

	if err := s.episodes.Purge(key); err != nil {
		return fmt.Errorf("failed to delete episode %q: %w", topic, err)
	}

	return nil
}

// PutDraft stores an unrated draft. Drafts expire after the configured TTL.
func (s *Store) PutDraft(_ context.Context, draft core.Draft) error {
	if draft.ID == "" {
		return fmt.Errorf("%w: draft id is empty", core.ErrInputRejected)
	}

	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = s.now().UTC()
	}

	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to encode draft: %w", err)
	}

	if _, err := s.drafts.Put(draft.ID, data); err != nil {
		return fmt.Errorf("failed to store draft '%s': %w", draft.ID, err)
	}

	return nil
}

// GetDraft returns a stored draft.
func (s *Store) GetDraft(_ context.Context, id string) (*core.Draft, error) {
	entry, err := s.drafts.Get(id)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) || errors.Is(err, nats.ErrInvalidKey) {
			return nil, fmt.Errorf("draft '%s': %w", id, core.ErrNotFound)
		}

		return nil, fmt.Errorf("failed to read draft '%s': %w", id, err)
	}

	var draft core.Draft
	if err := json.Unmarshal(entry.Value(), &draft); err != nil {
		return nil, fmt.Errorf("failed to decode draft '%s': %w", id, err)
	}

	return &draft, nil
}

// DeleteDraft removes a draft. Deleting a missing draft is not an error.
func (s *Store) DeleteDraft(_ context.Context, id string) error {
	if err := s.drafts.Purge(id); err != nil {
		return fmt.Errorf("failed to delete draft '%s': %w", id, err)
	}

	return nil
}
