package analytics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nvoronov/link-manager/internal/models"
	"github.com/ua-parser/uap-go/uaparser"
)

// ErrQueueFull is returned when a click is submitted while the buffer is at
// capacity. Callers treat it as a logged drop, never a request failure.
var ErrQueueFull = errors.New("analytics queue is full")

// ErrNotStarted is returned when submitting to a recorder that is not running.
var ErrNotStarted = errors.New("recorder not started")

// Click is one resolved access queued for recording.
type Click struct {
	LinkID      int64
	IsTemporary bool
	ClientIP    string
	UserAgent   string
	Referrer    string
	ClickedAt   time.Time
}

// ClickStore increments click counters and appends analytics events.
type ClickStore interface {
	IncrementLinkClicks(ctx context.Context, id int64) error
	IncrementTempLinkClicks(ctx context.Context, id int64) error
	InsertEvent(ctx context.Context, ev *models.AnalyticsEvent) error
}

// Config tunes the recorder's worker pool.
type Config struct {
	Workers         int
	BufferSize      int
	RetryAttempts   int
	RetryDelay      time.Duration
	ShutdownTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Workers:         3,
		BufferSize:      1000,
		RetryAttempts:   3,
		RetryDelay:      time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Recorder processes clicks off the resolution critical path. Each click
// increments the link's counter and appends one analytics event; failures
// are retried with backoff and ultimately only logged.
type Recorder struct {
	cfg     Config
	store   ClickStore
	logger  *slog.Logger
	parser  *uaparser.Parser
	queue   chan *Click
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	mu      sync.RWMutex
}

func NewRecorder(store ClickStore, logger *slog.Logger, cfg Config) *Recorder {
	ctx, cancel := context.WithCancel(context.Background())

	return &Recorder{
		cfg:    cfg,
		store:  store,
		logger: logger,
		parser: uaparser.NewFromSaved(),
		queue:  make(chan *Click, cfg.BufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return errors.New("recorder already started")
	}

	r.logger.Info("starting analytics recorder",
		slog.Int("workers", r.cfg.Workers),
		slog.Int("buffer_size", r.cfg.BufferSize))

	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.started = true
	return nil
}

// Stop drains the workers, waiting up to the configured shutdown timeout.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return ErrNotStarted
	}

	r.cancel()
	close(r.queue)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("analytics recorder stopped")
	case <-time.After(r.cfg.ShutdownTimeout):
		r.logger.Warn("analytics recorder shutdown timeout reached")
		return errors.New("shutdown timeout reached")
	}

	r.started = false
	return nil
}

// Submit queues a click without blocking. A full queue drops the click.
func (r *Recorder) Submit(click *Click) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.started {
		return ErrNotStarted
	}

	select {
	case r.queue <- click:
		return nil
	case <-r.ctx.Done():
		return errors.New("recorder is shutting down")
	default:
		r.logger.Error("analytics queue is full, dropping click",
			slog.Int64("link_id", click.LinkID),
			slog.Int("queue_size", len(r.queue)))
		return ErrQueueFull
	}
}

func (r *Recorder) worker(id int) {
	defer r.wg.Done()

	logger := r.logger.With(slog.Int("worker_id", id))

	for {
		select {
		case click := <-r.queue:
			if click == nil {
				return
			}
			r.processWithRetry(logger, click)
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Recorder) processWithRetry(logger *slog.Logger, click *Click) {
	var lastErr error

	for attempt := 1; attempt <= r.cfg.RetryAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(r.ctx, 30*time.Second)
		err := r.process(ctx, click)
		cancel()

		if err == nil {
			return
		}

		lastErr = err
		logger.Warn("click recording failed",
			slog.Int64("link_id", click.LinkID),
			slog.Int("attempt", attempt),
			slog.Any("error", err))

		if attempt == r.cfg.RetryAttempts {
			break
		}

		delay := r.cfg.RetryDelay * time.Duration(1<<(attempt-1))
		select {
		case <-time.After(delay):
		case <-r.ctx.Done():
			return
		}
	}

	logger.Error("click recording failed after all retries",
		slog.Int64("link_id", click.LinkID),
		slog.Any("error", lastErr))
}

func (r *Recorder) process(ctx context.Context, click *Click) error {
	var err error
	if click.IsTemporary {
		err = r.store.IncrementTempLinkClicks(ctx, click.LinkID)
	} else {
		err = r.store.IncrementLinkClicks(ctx, click.LinkID)
	}
	if err != nil {
		return fmt.Errorf("failed to increment clicks: %w", err)
	}

	ev := &models.AnalyticsEvent{
		LinkID:      click.LinkID,
		IsTemporary: click.IsTemporary,
		HashedIP:    HashIP(click.ClientIP),
		DeviceType:  r.deviceType(click.UserAgent),
		Referrer:    click.Referrer,
		ClickedAt:   click.ClickedAt,
	}

	if err := r.store.InsertEvent(ctx, ev); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	return nil
}

// HashIP returns a truncated hex sha256 of a client IP. Raw addresses are
// never stored.
func HashIP(ip string) string {
	if ip == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])[:16]
}

func (r *Recorder) deviceType(userAgent string) string {
	if userAgent == "" {
		return "unknown"
	}

	client := r.parser.Parse(userAgent)

	device := strings.ToLower(client.Device.Family)
	ua := strings.ToLower(userAgent)

	switch {
	case strings.Contains(device, "spider") || strings.Contains(ua, "bot"):
		return "bot"
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		return "tablet"
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "android") || strings.Contains(ua, "iphone"):
		return "mobile"
	default:
		return "desktop"
	}
}
