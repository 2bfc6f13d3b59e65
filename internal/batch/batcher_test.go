package batch

import (
	"sync"
	"testing"
	"time"
)

type collector struct {
	mu      sync.Mutex
	flushes map[string][][]int
	done    chan struct{}
}

func newCollector() *collector {
	return &collector{flushes: make(map[string][][]int), done: make(chan struct{}, 16)}
}

func (c *collector) flush(key string, items []int) {
	c.mu.Lock()
	c.flushes[key] = append(c.flushes[key], items)
	c.mu.Unlock()
	c.done <- struct{}{}
}

func (c *collector) get(key string) [][]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushes[key]
}

func TestBatcher_CoalescesBurst(t *testing.T) {
	c := newCollector()
	b := New(20*time.Millisecond, 200*time.Millisecond, c.flush)
	defer b.Close()

	b.Add("c1", 1)
	b.Add("c1", 2)
	b.Add("c1", 3)

	select {
	case <-c.done:
	case <-time.After(time.Second):
		t.Fatal("flush never fired")
	}

	got := c.get("c1")
	if len(got) != 1 {
		t.Fatalf("got %d flushes, want 1", len(got))
	}
	if len(got[0]) != 3 || got[0][0] != 1 || got[0][2] != 3 {
		t.Errorf("flush items = %v, want [1 2 3] in arrival order", got[0])
	}
}

func TestBatcher_MaxWaitBoundsLatency(t *testing.T) {
	c := newCollector()
	// Debounce longer than the feed interval: only maxWait can fire.
	b := New(50*time.Millisecond, 120*time.Millisecond, c.flush)
	defer b.Close()

	start := time.Now()
	stop := make(chan struct{})
	go func() {
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			case <-time.After(25 * time.Millisecond):
				b.Add("c1", i)
			}
		}
	}()

	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		close(stop)
		t.Fatal("maxWait never forced a flush under continuous traffic")
	}
	close(stop)

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("first flush took %v, maxWait should bound it near 120ms", elapsed)
	}
}

func TestBatcher_KeysAreIndependent(t *testing.T) {
	c := newCollector()
	b := New(20*time.Millisecond, 200*time.Millisecond, c.flush)
	defer b.Close()

	b.Add("c1", 1)
	b.Add("c2", 2)

	for i := 0; i < 2; i++ {
		select {
		case <-c.done:
		case <-time.After(time.Second):
			t.Fatal("expected two independent flushes")
		}
	}

	if len(c.get("c1")) != 1 || len(c.get("c2")) != 1 {
		t.Errorf("flushes = %v", c.flushes)
	}
}

func TestBatcher_CloseDrains(t *testing.T) {
	c := newCollector()
	b := New(time.Hour, time.Hour, c.flush)

	b.Add("c1", 7)
	b.Close()

	got := c.get("c1")
	if len(got) != 1 || len(got[0]) != 1 || got[0][0] != 7 {
		t.Errorf("Close did not drain pending items: %v", got)
	}

	// Adds after Close are dropped.
	b.Add("c1", 8)
	if len(c.get("c1")) != 1 {
		t.Error("Add after Close queued an item")
	}
}
