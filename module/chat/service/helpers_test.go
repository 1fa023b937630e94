package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"GreenChat/module/chat/model"
	"GreenChat/service/auth"
	"GreenChat/service/storage"
	"GreenChat/service/store"
	"GreenChat/service/store/storetest"

	"github.com/stretchr/testify/require"
)

type published struct {
	Topic string
	Env   map[string]any
}

type recordingBus struct {
	mu   sync.Mutex
	msgs []published
}

func (b *recordingBus) Publish(_ context.Context, topic string, payload []byte) error {
	var env map[string]any
	if err := json.Unmarshal(payload, &env); err != nil {
		return err
	}
	b.mu.Lock()
	b.msgs = append(b.msgs, published{Topic: topic, Env: env})
	b.mu.Unlock()
	return nil
}

func (b *recordingBus) onTopic(topic string) []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []published
	for _, m := range b.msgs {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (b *recordingBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.msgs)
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Emit(_ context.Context, ev Event) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Kind)
	}
	return out
}

// brokenCache fails every call.
type brokenCache struct{}

var errCacheDown = errors.New("cache down")

func (brokenCache) PushRecent(context.Context, int64, []byte) error   { return errCacheDown }
func (brokenCache) Recent(context.Context, int64) ([][]byte, error)   { return nil, errCacheDown }
func (brokenCache) JoinPresence(context.Context, int64, string) error { return errCacheDown }
func (brokenCache) LeavePresence(context.Context, int64, string) (bool, error) {
	return false, errCacheDown
}
func (brokenCache) PresenceMembers(context.Context, int64) ([]string, error) {
	return nil, errCacheDown
}
func (brokenCache) Close() error { return nil }

// hookStore lets a test fail or stall individual store calls.
type hookStore struct {
	store.Store
	createErr error
	onRecord  func(messageID int64)
}

func (h *hookStore) CreateMessage(ctx context.Context, m *model.Message) error {
	if h.createErr != nil {
		return h.createErr
	}
	return h.Store.CreateMessage(ctx, m)
}

func (h *hookStore) RecordMessage(ctx context.Context, roomID, messageID int64, at time.Time) error {
	if h.onRecord != nil {
		h.onRecord(messageID)
	}
	return h.Store.RecordMessage(ctx, roomID, messageID, at)
}

type fixture struct {
	store    *hookStore
	cache    storage.HotCache
	bus      *recordingBus
	sink     *recordingSink
	pipeline *Pipeline
	presence *Presence
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithCache(t, nil)
}

func newFixtureWithCache(t *testing.T, cache storage.HotCache) *fixture {
	t.Helper()
	st := &hookStore{Store: storetest.New(t)}
	if cache == nil {
		bc, err := storage.NewBuntCache(":memory:", storage.Options{RecentSize: 5})
		require.NoError(t, err)
		t.Cleanup(func() { _ = bc.Close() })
		cache = bc
	}
	f := &fixture{store: st, cache: cache, bus: &recordingBus{}, sink: &recordingSink{}}
	f.pipeline = NewPipeline(st, cache, f.bus, f.sink, PipelineConf{})
	f.presence = NewPresence(f.pipeline)
	return f
}

func member(id string) *auth.Identity {
	return &auth.Identity{SubjectID: id, DisplayName: "name-" + id}
}
