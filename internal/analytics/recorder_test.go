package analytics

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nvoronov/link-manager/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingStore struct {
	mu         sync.Mutex
	linkIncs   []int64
	tempIncs   []int64
	events     []*models.AnalyticsEvent
	failFirst  int
	gotClick   chan struct{}
	signalOnce sync.Once
}

func newCapturingStore() *capturingStore {
	return &capturingStore{gotClick: make(chan struct{})}
}

func (s *capturingStore) IncrementLinkClicks(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFirst > 0 {
		s.failFirst--
		return context.DeadlineExceeded
	}
	s.linkIncs = append(s.linkIncs, id)
	return nil
}

func (s *capturingStore) IncrementTempLinkClicks(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tempIncs = append(s.tempIncs, id)
	return nil
}

func (s *capturingStore) InsertEvent(_ context.Context, ev *models.AnalyticsEvent) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	s.signalOnce.Do(func() { close(s.gotClick) })
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Workers = 1
	cfg.RetryDelay = time.Millisecond
	cfg.ShutdownTimeout = time.Second
	return cfg
}

func waitForClick(t *testing.T, store *capturingStore) {
	t.Helper()
	select {
	case <-store.gotClick:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for click to be recorded")
	}
}

func TestRecorder_SubmitBeforeStart(t *testing.T) {
	r := NewRecorder(newCapturingStore(), testLogger(), testConfig())

	err := r.Submit(&Click{LinkID: 1})

	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestRecorder_RecordsPermanentClick(t *testing.T) {
	store := newCapturingStore()
	r := NewRecorder(store, testLogger(), testConfig())
	require.NoError(t, r.Start())
	defer r.Stop()

	err := r.Submit(&Click{
		LinkID:    42,
		ClientIP:  "203.0.113.7",
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile Safari",
		Referrer:  "https://news.example.com",
		ClickedAt: time.Now(),
	})
	require.NoError(t, err)

	waitForClick(t, store)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, []int64{42}, store.linkIncs)
	require.Len(t, store.events, 1)

	ev := store.events[0]
	assert.Equal(t, int64(42), ev.LinkID)
	assert.False(t, ev.IsTemporary)
	assert.Equal(t, "mobile", ev.DeviceType)
	assert.Equal(t, "https://news.example.com", ev.Referrer)
	assert.NotEqual(t, "203.0.113.7", ev.HashedIP)
	assert.NotEmpty(t, ev.HashedIP)
}

func TestRecorder_RecordsTemporaryClick(t *testing.T) {
	store := newCapturingStore()
	r := NewRecorder(store, testLogger(), testConfig())
	require.NoError(t, r.Start())
	defer r.Stop()

	require.NoError(t, r.Submit(&Click{LinkID: 7, IsTemporary: true, ClickedAt: time.Now()}))

	waitForClick(t, store)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, []int64{7}, store.tempIncs)
	assert.Empty(t, store.linkIncs)
}

func TestRecorder_RetriesTransientFailure(t *testing.T) {
	store := newCapturingStore()
	store.failFirst = 1
	r := NewRecorder(store, testLogger(), testConfig())
	require.NoError(t, r.Start())
	defer r.Stop()

	require.NoError(t, r.Submit(&Click{LinkID: 9, ClickedAt: time.Now()}))

	waitForClick(t, store)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, []int64{9}, store.linkIncs)
}

func TestHashIP(t *testing.T) {
	assert.Empty(t, HashIP(""))
	assert.Equal(t, HashIP("203.0.113.7"), HashIP("203.0.113.7"))
	assert.NotEqual(t, HashIP("203.0.113.7"), HashIP("203.0.113.8"))
	assert.Len(t, HashIP("203.0.113.7"), 16)
}
