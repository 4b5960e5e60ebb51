package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

// LRU holds at most size entries. An entry is fresh for ttl after it was
// set and stays readable through Stale for a further grace period.
type LRU[T any] struct {
	size  int
	ttl   time.Duration
	grace time.Duration
	now   func() time.Time

	mu    sync.Mutex
	index map[string]*list.Element
	order *list.List // front is most recently used
}

type entry[T any] struct {
	key   string
	value T
	until time.Time
}

// NewLRU returns an empty cache. A size below one is raised to one.
func NewLRU[T any](size int, ttl, grace time.Duration) *LRU[T] {
	return &LRU[T]{
		size:  max(size, 1),
		ttl:   ttl,
		grace: grace,
		now:   time.Now,
		index: make(map[string]*list.Element),
		order: list.New(),
	}
}

// entryLocked returns the entry for key, dropping it first when it is past
// its grace period.
func (c *LRU[T]) entryLocked(key string, now time.Time) (*list.Element, *entry[T]) {
	el, ok := c.index[key]
	if !ok {
		return nil, nil
	}
	e := el.Value.(*entry[T])
	if now.After(e.until.Add(c.grace)) {
		c.dropLocked(el)
		return nil, nil
	}
	return el, e
}

func (c *LRU[T]) dropLocked(el *list.Element) {
	delete(c.index, el.Value.(*entry[T]).key)
	c.order.Remove(el)
}

// Get returns the value only while it is fresh.
func (c *LRU[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	now := c.now()
	el, e := c.entryLocked(key, now)
	if e == nil || now.After(e.until) {
		return zero, false
	}
	c.order.MoveToFront(el)
	return e.value, true
}

// Stale returns the value while it is fresh or within grace. fresh reports
// whether Get would have returned it too.
func (c *LRU[T]) Stale(key string) (value T, fresh, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, e := c.entryLocked(key, now); e != nil {
		return e.value, !now.After(e.until), true
	}
	return value, false, false
}

// Set stores value as fresh and evicts the least recently used entry when
// the cache is over size.
func (c *LRU[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry[T]{key: key, value: value, until: c.now().Add(c.ttl)}
	if el, ok := c.index[key]; ok {
		el.Value = e
		c.order.MoveToFront(el)
		return
	}
	c.index[key] = c.order.PushFront(e)
	for c.order.Len() > c.size {
		c.dropLocked(c.order.Back())
	}
}

func (c *LRU[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		c.dropLocked(el)
	}
}

// DeletePrefix drops every key starting with prefix and reports how many
// went.
func (c *LRU[T]) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key, el := range c.index {
		if strings.HasPrefix(key, prefix) {
			c.dropLocked(el)
			n++
		}
	}
	return n
}

// CleanExpired drops entries past their grace period.
func (c *LRU[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if now.After(el.Value.(*entry[T]).until.Add(c.grace)) {
			c.dropLocked(el)
			n++
		}
		el = prev
	}
	return n
}

func (c *LRU[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}
