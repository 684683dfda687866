package storage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// JanitorConfig controls the concurrency characteristics of the janitor.
type JanitorConfig struct {
	QueueSize int
	Workers   int
	Timeout   time.Duration
}

// Janitor removes replaced or orphaned objects in the background. Removal is
// best effort: failures are logged and dropped.
type Janitor struct {
	store   ObjectStore
	logger  *slog.Logger
	timeout time.Duration

	jobs   chan []string
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

var errJanitorClosed = errors.New("object janitor closed")

// NewJanitor starts cfg.Workers goroutines draining removal jobs.
func NewJanitor(store ObjectStore, cfg JanitorConfig, logger *slog.Logger) *Janitor {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &Janitor{
		store:   store,
		logger:  logger,
		timeout: cfg.Timeout,
		jobs:    make(chan []string, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	j.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go j.worker()
	}
	return j
}

// Enqueue schedules keys for removal. Empty keys are skipped.
func (j *Janitor) Enqueue(ctx context.Context, keys ...string) error {
	var batch []string
	for _, key := range keys {
		if key != "" {
			batch = append(batch, key)
		}
	}
	if len(batch) == 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-j.ctx.Done():
		return errJanitorClosed
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-j.ctx.Done():
		return errJanitorClosed
	case j.jobs <- batch:
		return nil
	}
}

// Shutdown stops accepting work and waits for queued removals to finish.
func (j *Janitor) Shutdown(ctx context.Context) error {
	j.once.Do(func() {
		j.cancel()
		close(j.jobs)
	})

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// queued jobs are still drained after Shutdown closes the channel
func (j *Janitor) worker() {
	defer j.wg.Done()
	for keys := range j.jobs {
		j.remove(keys)
	}
}

func (j *Janitor) remove(keys []string) {
	if j.store == nil {
		j.logger.Error("object janitor missing storage", "keys", keys)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.store.Remove(ctx, keys...); err != nil {
		j.logger.Warn("remove objects", "keys", keys, "error", err)
		return
	}
	j.logger.Debug("removed objects", "keys", keys)
}
