package ratelimit

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 7, 12, 10, 0, 0, 0, time.UTC)}
}

func TestAllow_Unlimited(t *testing.T) {
	l := New()
	for i := 0; i < 100; i++ {
		if !l.Allow("src-1", 0) {
			t.Fatal("Allow(0) should always return true")
		}
	}
}

func TestAllow_OnePerHour(t *testing.T) {
	clock := newClock()
	l := New(WithClock(clock.Now))

	if !l.Allow("src-1", 1) {
		t.Fatal("first sync should be allowed")
	}
	clock.Advance(20 * time.Minute)
	if l.Allow("src-1", 1) {
		t.Fatal("second sync within the hour should be denied")
	}
	clock.Advance(40 * time.Minute)
	if !l.Allow("src-1", 1) {
		t.Fatal("sync after the hour should be allowed")
	}
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	l := New(WithClock(newClock().Now))
	l.Allow("a", 1)
	if !l.Allow("b", 1) {
		t.Fatal("a different key must have its own bucket")
	}
}

func TestAllow_LimitChangeResetsBucket(t *testing.T) {
	l := New(WithClock(newClock().Now))
	l.Allow("a", 1)
	if !l.Allow("a", 2) {
		t.Fatal("raising the limit should start a fresh bucket")
	}
}

func TestRemaining(t *testing.T) {
	clock := newClock()
	l := New(WithClock(clock.Now))
	if got := l.Remaining("a", 3); got != 3 {
		t.Fatalf("Remaining = %d, want 3", got)
	}
	l.Allow("a", 3)
	if got := l.Remaining("a", 3); got != 2 {
		t.Fatalf("Remaining = %d, want 2", got)
	}
}

func TestReset(t *testing.T) {
	l := New(WithClock(newClock().Now))

	l.Allow("src-reset", 1)
	if l.Allow("src-reset", 1) {
		t.Fatal("should be denied")
	}

	l.Reset("src-reset")

	if !l.Allow("src-reset", 1) {
		t.Fatal("should be allowed after reset")
	}
}

func TestConcurrentAccess(t *testing.T) {
	l := New(WithClock(newClock().Now))

	var wg sync.WaitGroup
	allowed := make(chan bool, 200)

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- l.Allow("src-concurrent", 100)
		}()
	}

	wg.Wait()
	close(allowed)

	trueCount := 0
	for v := range allowed {
		if v {
			trueCount++
		}
	}
	if trueCount != 100 {
		t.Fatalf("expected exactly 100 allowed with a frozen clock, got %d", trueCount)
	}
}
