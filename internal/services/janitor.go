package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	applog "tani/internal/log"
)

// JobPruner deletes finished report jobs and returns their file paths.
type JobPruner interface {
	PruneReportJobs(ctx context.Context, cutoff time.Time) ([]string, error)
}

// JanitorConfig holds configuration for the report janitor
type JanitorConfig struct {
	// Interval is how often old reports are removed (default: 1h)
	Interval time.Duration

	// MaxAge is how long a finished report is kept (default: 7 days)
	MaxAge time.Duration
}

// DefaultJanitorConfig returns sensible defaults
func DefaultJanitorConfig() JanitorConfig {
	return JanitorConfig{
		Interval: time.Hour,
		MaxAge:   7 * 24 * time.Hour,
	}
}

// Janitor removes old report jobs and their PDFs from the cache directory.
type Janitor struct {
	store  JobPruner
	config JanitorConfig
	log    *applog.Logger
	now    func() time.Time

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewJanitor(store JobPruner, config JanitorConfig, logger *applog.Logger) *Janitor {
	def := DefaultJanitorConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.MaxAge <= 0 {
		config.MaxAge = def.MaxAge
	}
	if logger == nil {
		logger = applog.Discard()
	}
	return &Janitor{
		store:  store,
		config: config,
		log:    logger.WithComponent(applog.ComponentStorage),
		now:    time.Now,
	}
}

// Start begins the cleanup loop. Returns an error if already running.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return fmt.Errorf("janitor is already running")
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.mu.Unlock()

	go j.runLoop(ctx)

	j.log.InfoContext(ctx, "Report janitor started",
		"interval", j.config.Interval, "max_age", j.config.MaxAge)
	return nil
}

// Stop signals the loop and waits for it to finish.
func (j *Janitor) Stop(ctx context.Context) error {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = false
	close(j.stopCh)
	done := j.doneCh
	j.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		j.log.WarnContext(ctx, "Report janitor stop timed out")
		return ctx.Err()
	}
}

func (j *Janitor) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *Janitor) runLoop(ctx context.Context) {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	j.Sweep(ctx)
	for {
		select {
		case <-j.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep runs one cleanup pass and returns how many files were removed.
func (j *Janitor) Sweep(ctx context.Context) int {
	paths, err := j.store.PruneReportJobs(ctx, j.now().Add(-j.config.MaxAge))
	if err != nil {
		j.log.ErrorContext(ctx, "Failed to prune report jobs", applog.FieldError, err)
		return 0
	}
	removed := 0
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			j.log.WarnContext(ctx, "Failed to remove report file", applog.FieldReportPath, p, applog.FieldError, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		j.log.InfoContext(ctx, "Old reports removed", "count", removed)
	}
	return removed
}
