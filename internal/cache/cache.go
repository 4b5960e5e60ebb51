// Package cache holds the in-memory caches in front of the data backend
// and the sweeper that keeps them small.
package cache

import (
	"log/slog"
	"sync"
	"time"
)

// Cleaner drops expired entries and reports how many it removed.
type Cleaner interface {
	CleanExpired() int
}

// Manager sweeps registered caches on an interval.
type Manager struct {
	log *slog.Logger

	mu       sync.Mutex
	cleaners []Cleaner
	running  bool

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		log:  logger,
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

func (m *Manager) Register(c Cleaner) {
	m.mu.Lock()
	m.cleaners = append(m.cleaners, c)
	m.mu.Unlock()
}

// StartCleanup launches the sweeper. Later calls do nothing.
func (m *Manager) StartCleanup(every time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	go m.loop(every)
}

// CleanNow sweeps every registered cache once.
func (m *Manager) CleanNow() int {
	m.mu.Lock()
	cleaners := append([]Cleaner(nil), m.cleaners...)
	m.mu.Unlock()

	removed := 0
	for _, c := range cleaners {
		removed += c.CleanExpired()
	}
	return removed
}

func (m *Manager) loop(every time.Duration) {
	defer close(m.done)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-m.quit:
			return
		case <-t.C:
			if n := m.CleanNow(); n > 0 {
				m.log.Debug("Swept expired cache entries", "removed", n)
			}
		}
	}
}

// Stop ends the sweeper and waits for it. It is safe to call more than
// once, and before StartCleanup.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.quit)
		m.mu.Lock()
		running := m.running
		m.mu.Unlock()
		if running {
			<-m.done
		}
	})
}
