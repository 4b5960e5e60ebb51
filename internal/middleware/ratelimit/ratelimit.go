// Package ratelimit gives every client a per-minute budget. Requests spend
// from it according to their cost, so one PDF render weighs as much as a
// page of list reads.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"tani/internal/metrics"
)

const (
	window    = time.Minute
	idleAfter = 10 * time.Minute
)

// CostFunc weighs a request. Values below 1 count as 1.
type CostFunc func(*http.Request) int

type Config struct {
	// RequestsPerMinute is the budget of one client per window.
	RequestsPerMinute int
	CleanupInterval   time.Duration
	Cost              CostFunc
	Metrics           *metrics.Metrics
}

func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		CleanupInterval:   5 * time.Minute,
	}
}

// Limiter is safe for concurrent use.
type Limiter struct {
	budget   int
	cost     CostFunc
	interval time.Duration
	metrics  *metrics.Metrics
	now      func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	stop     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	opened time.Time
	seen   time.Time
	spent  int
}

// NewLimiter starts the idle-client sweeper. Call Stop to release it.
func NewLimiter(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.Cost == nil {
		cfg.Cost = func(*http.Request) int { return 1 }
	}
	l := &Limiter{
		budget:   cfg.RequestsPerMinute,
		cost:     cfg.Cost,
		interval: cfg.CleanupInterval,
		metrics:  cfg.Metrics,
		now:      time.Now,
		buckets:  make(map[string]*bucket),
		stop:     make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Take spends cost from client's budget. When the budget cannot cover it
// nothing is spent and wait is how long until the window reopens.
func (l *Limiter) Take(client string, cost int) (ok bool, wait time.Duration) {
	if cost < 1 {
		cost = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, found := l.buckets[client]
	if !found || now.Sub(b.opened) >= window {
		b = &bucket{opened: now}
		l.buckets[client] = b
	}
	b.seen = now
	if b.spent+cost > l.budget {
		return false, b.opened.Add(window).Sub(now)
	}
	b.spent += cost
	return true, 0
}

// Allow is Take with a cost of one.
func (l *Limiter) Allow(client string) bool {
	ok, _ := l.Take(client, 1)
	return ok
}

// Remaining is what client may still spend in the current window.
func (l *Limiter) Remaining(client string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, found := l.buckets[client]
	if !found || l.now().Sub(b.opened) >= window {
		return l.budget
	}
	return l.budget - b.spent
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

// sweep forgets clients that have been quiet for a while.
func (l *Limiter) sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-idleAfter)
	n := 0
	for k, b := range l.buckets {
		if b.seen.Before(cutoff) {
			delete(l.buckets, k)
			n++
		}
	}
	return n
}

// ActiveClients is the number of tracked clients.
func (l *Limiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Stop ends the sweeper. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Middleware charges each request to the client named by clientKey.
// Rejected requests get Retry-After and are answered by onLimit, or by a
// plain 429 when onLimit is nil.
func (l *Limiter) Middleware(clientKey func(*http.Request) string, onLimit http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := l.Take(clientKey(r), l.cost(r))
			if ok {
				next.ServeHTTP(w, r)
				return
			}
			l.metrics.ObserveRejected("rate_limited")
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Max(1, math.Ceil(wait.Seconds())))))
			if onLimit != nil {
				onLimit(w, r)
				return
			}
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		})
	}
}
