package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTTLCacheFetchReusesLiveEntry(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))

	var calls int
	compute := func() (any, error) {
		calls++
		return calls, nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.Fetch("k", FetchOptions{TTL: time.Minute}, compute)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if v.(int) != 1 {
			t.Fatalf("Fetch() = %v, want 1", v)
		}
		clock.Advance(10 * time.Second)
	}
	if calls != 1 {
		t.Fatalf("compute calls = %d, want 1", calls)
	}
}

func TestTTLCacheFetchRecomputesAfterExpiry(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))

	var calls int
	compute := func() (any, error) {
		calls++
		return calls, nil
	}

	if _, err := c.Fetch("k", FetchOptions{TTL: time.Minute}, compute); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	clock.Advance(time.Minute)
	if v, _ := c.Fetch("k", FetchOptions{TTL: time.Minute}, compute); v.(int) != 1 {
		t.Fatalf("entry at exact expiry should still be live, got %v", v)
	}

	clock.Advance(time.Millisecond)
	v, err := c.Fetch("k", FetchOptions{TTL: time.Minute}, compute)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if v.(int) != 2 || calls != 2 {
		t.Fatalf("Fetch() = %v after expiry with %d calls, want 2/2", v, calls)
	}
}

func TestTTLCacheFetchForceAlwaysRecomputes(t *testing.T) {
	c := New()

	var calls int
	compute := func() (any, error) {
		calls++
		return calls, nil
	}

	_, _ = c.Fetch("k", FetchOptions{TTL: time.Hour}, compute)
	v, err := c.Fetch("k", FetchOptions{TTL: time.Hour, Force: true}, compute)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if v.(int) != 2 {
		t.Fatalf("forced Fetch() = %v, want 2", v)
	}
	if got, _ := c.Read("k"); got.(int) != 2 {
		t.Fatalf("Read() after force = %v, want 2", got)
	}
}

func TestTTLCacheFetchErrorIsNotStored(t *testing.T) {
	c := New()
	boom := errors.New("boom")

	if _, err := c.Fetch("k", FetchOptions{}, func() (any, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("Fetch() error = %v, want boom", err)
	}
	if c.Exists("k") {
		t.Fatalf("failed compute must not populate the cache")
	}
}

func TestTTLCacheFetchWithoutTTLNeverExpires(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))

	_, _ = c.Fetch("k", FetchOptions{}, func() (any, error) { return "v", nil })
	clock.Advance(24 * 365 * time.Hour)

	if !c.Exists("k") {
		t.Fatalf("entry without ttl expired")
	}
}

func TestTTLCacheConcurrentFetchComputesOnce(t *testing.T) {
	c := New()

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func() (any, error) {
		calls.Add(1)
		<-release
		return "keys", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Fetch("keyset_client", FetchOptions{TTL: time.Minute}, compute); err != nil {
				t.Errorf("Fetch() error = %v", err)
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Fatalf("compute calls = %d, want 1", n)
	}
}

func TestTTLCacheReadWriteDeleteClear(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))

	c.Write("a", 1, 0)
	c.Write("b", 2, time.Second)

	if v, ok := c.Read("a"); !ok || v.(int) != 1 {
		t.Fatalf("Read(a) = %v, %v", v, ok)
	}

	clock.Advance(2 * time.Second)
	if _, ok := c.Read("b"); ok {
		t.Fatalf("Read(b) returned an expired entry")
	}
	if c.Exists("b") {
		t.Fatalf("Exists(b) = true for expired entry")
	}

	c.Delete("a")
	if c.Exists("a") {
		t.Fatalf("Delete(a) left the entry behind")
	}

	c.Write("c", 3, 0)
	c.Clear()
	if c.Exists("c") {
		t.Fatalf("Clear() left entries behind")
	}
}
