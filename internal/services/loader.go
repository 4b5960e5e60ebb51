package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"tani/internal/cache"
	applog "tani/internal/log"
	"tani/internal/metrics"
)

// Lookup results reported to metrics.
const (
	LookupHit    = "hit"
	LookupMiss   = "miss"
	LookupShared = "shared"
	LookupStale  = "stale"
)

// Fetch loads a list from the backend.
type Fetch[T any] func(ctx context.Context) (T, error)

type LoaderOptions struct {
	TTL     time.Duration
	Grace   time.Duration
	MaxKeys int
	Metrics *metrics.Metrics
	Logger  *applog.Logger
}

// Loader serves list reads. Concurrent loads of one key share a single
// fetch, the last good value is kept, and when a fetch fails while an
// older value exists that value is returned without an error.
type Loader[T any] struct {
	name    string
	group   singleflight.Group
	cache   *cache.LRU[T]
	metrics *metrics.Metrics
	log     *applog.Logger

	// Invalidations bump a generation; a fetch that started under an older
	// generation does not store its result.
	mu        sync.Mutex
	seq       uint64
	keyGen    map[string]uint64
	prefixGen map[string]uint64
	inflight  map[string]int
}

func NewLoader[T any](name string, opts LoaderOptions) *Loader[T] {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.Grace <= 0 {
		opts.Grace = 24 * time.Hour
	}
	if opts.MaxKeys <= 0 {
		opts.MaxKeys = 256
	}
	if opts.Logger == nil {
		opts.Logger = applog.Discard()
	}
	return &Loader[T]{
		name:    name,
		cache:   cache.NewLRU[T](opts.MaxKeys, opts.TTL, opts.Grace),
		metrics: opts.Metrics,
		log:     opts.Logger.WithComponent(applog.ComponentServices),

		keyGen:    make(map[string]uint64),
		prefixGen: make(map[string]uint64),
		inflight:  make(map[string]int),
	}
}

// Cache exposes the backing cache so it can be registered for cleanup.
func (l *Loader[T]) Cache() *cache.LRU[T] {
	return l.cache
}

// Load returns the cached value for key while it is fresh, otherwise it
// fetches.
func (l *Loader[T]) Load(ctx context.Context, key string, fetch Fetch[T]) (T, error) {
	if v, ok := l.cache.Get(key); ok {
		l.metrics.ObserveLookup(l.name, LookupHit)
		return v, nil
	}
	return l.fetch(ctx, key, fetch)
}

// Refresh fetches even when the cached value is fresh.
func (l *Loader[T]) Refresh(ctx context.Context, key string, fetch Fetch[T]) (T, error) {
	return l.fetch(ctx, key, fetch)
}

// Invalidate drops key after a write. A fetch of key already in flight
// neither fills the cache nor serves later callers.
func (l *Loader[T]) Invalidate(key string) {
	l.mu.Lock()
	l.seq++
	l.keyGen[key] = l.seq
	l.mu.Unlock()
	l.group.Forget(key)
	l.cache.Delete(key)
}

// InvalidatePrefix is Invalidate for every key starting with prefix.
func (l *Loader[T]) InvalidatePrefix(prefix string) {
	l.mu.Lock()
	l.seq++
	l.prefixGen[prefix] = l.seq
	var flying []string
	for key := range l.inflight {
		if strings.HasPrefix(key, prefix) {
			flying = append(flying, key)
		}
	}
	l.mu.Unlock()
	for _, key := range flying {
		l.group.Forget(key)
	}
	l.cache.DeletePrefix(prefix)
}

func (l *Loader[T]) generationLocked(key string) uint64 {
	g := l.keyGen[key]
	for prefix, pg := range l.prefixGen {
		if pg > g && strings.HasPrefix(key, prefix) {
			g = pg
		}
	}
	return g
}

// begin registers a fetch of key and returns its generation.
func (l *Loader[T]) begin(key string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inflight[key]++
	return l.generationLocked(key)
}

// end unregisters a fetch of key. current is false when key was
// invalidated since begin.
func (l *Loader[T]) end(key string, gen uint64) (current bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inflight[key]--; l.inflight[key] <= 0 {
		delete(l.inflight, key)
	}
	return l.generationLocked(key) == gen
}

func (l *Loader[T]) fetch(ctx context.Context, key string, fetch Fetch[T]) (T, error) {
	var zero T

	// The fetch outlives a caller that gives up; others may be waiting on it.
	ch := l.group.DoChan(key, func() (any, error) {
		gen := l.begin(key)
		v, err := fetch(context.WithoutCancel(ctx))
		current := l.end(key, gen)
		if err != nil {
			return nil, err
		}
		if current {
			l.cache.Set(key, v)
		}
		return v, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res = <-ch:
	}

	if res.Err != nil {
		if stale, _, ok := l.cache.Stale(key); ok {
			l.metrics.ObserveLookup(l.name, LookupStale)
			l.log.WarnContext(ctx, "Serving last loaded list after fetch failure",
				"loader", l.name, "key", key, applog.FieldError, res.Err)
			return stale, nil
		}
		return zero, fmt.Errorf("load %s: %w", l.name, res.Err)
	}

	if res.Shared {
		l.metrics.ObserveLookup(l.name, LookupShared)
	} else {
		l.metrics.ObserveLookup(l.name, LookupMiss)
	}
	return res.Val.(T), nil
}
