package cache

import (
	"testing"
	"time"

	"go.uber.org/goleak"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestCache(size int, ttl, grace time.Duration) (*LRU[string], *clock) {
	c := NewLRU[string](size, ttl, grace)
	clk := &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c.now = clk.now
	return c, clk
}

func TestLRUEvictsOldest(t *testing.T) {
	c, _ := newTestCache(2, time.Minute, 0)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Get("a")
	c.Set("c", "3")

	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Fatalf("a = %q, %v", v, ok)
	}
	if c.Size() != 2 {
		t.Fatalf("size = %d", c.Size())
	}
}

func TestLRUExpiry(t *testing.T) {
	c, clk := newTestCache(4, time.Minute, 0)
	c.Set("k", "v")
	clk.t = clk.t.Add(2 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected expired entry")
	}
	if c.Size() != 0 {
		t.Fatal("expired entry should be removed without grace")
	}
}

func TestStaleWithinGrace(t *testing.T) {
	c, clk := newTestCache(4, time.Minute, time.Hour)
	c.Set("k", "v")

	if v, fresh, ok := c.Stale("k"); !ok || !fresh || v != "v" {
		t.Fatalf("Stale = %q fresh=%v ok=%v", v, fresh, ok)
	}

	clk.t = clk.t.Add(5 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Fatal("Get must not return stale data")
	}
	if v, fresh, ok := c.Stale("k"); !ok || fresh || v != "v" {
		t.Fatalf("Stale = %q fresh=%v ok=%v", v, fresh, ok)
	}

	clk.t = clk.t.Add(2 * time.Hour)
	if _, _, ok := c.Stale("k"); ok {
		t.Fatal("entry past grace should be gone")
	}
}

func TestDeletePrefix(t *testing.T) {
	c, _ := newTestCache(10, time.Minute, 0)
	c.Set("u1:seasons", "a")
	c.Set("u1:receipts", "b")
	c.Set("u2:seasons", "c")
	if n := c.DeletePrefix("u1:"); n != 2 {
		t.Fatalf("removed %d, want 2", n)
	}
	if _, ok := c.Get("u2:seasons"); !ok {
		t.Fatal("u2 entry should survive")
	}
}

func TestManagerCleansRegisteredCaches(t *testing.T) {
	defer goleak.VerifyNone(t)

	c, clk := newTestCache(10, time.Minute, 0)
	c.Set("a", "1")
	c.Set("b", "2")
	clk.t = clk.t.Add(time.Hour)

	m := NewManager(nil)
	m.Register(c)
	m.StartCleanup(time.Hour)
	if n := m.CleanNow(); n != 2 {
		t.Fatalf("cleaned %d, want 2", n)
	}
	m.Stop()
	m.Stop()
}
