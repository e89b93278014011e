package askcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestFingerprintNormalization(t *testing.T) {
	a := Fingerprint("question", "What's   2+2?", "")
	b := Fingerprint("question", "  what's 2+2?  ", "")
	if a != b {
		t.Errorf("whitespace/case variants should share a fingerprint")
	}

	// Punctuation is significant.
	if Fingerprint("question", "2+2?", "") == Fingerprint("question", "22", "") {
		t.Errorf("punctuation-distinct prompts must not collide")
	}

	// Kind and image reference are part of the key.
	if Fingerprint("question", "a cat", "") == Fingerprint("image_generation", "a cat", "") {
		t.Errorf("kind must be part of the fingerprint")
	}
	if Fingerprint("image_analysis", "describe", "https://a/x.png") == Fingerprint("image_analysis", "describe", "https://a/y.png") {
		t.Errorf("image reference must be part of the fingerprint")
	}
}

func TestGetSetAndTTL(t *testing.T) {
	c := New(time.Minute, 10)
	now := time.Unix(1000, 0)
	c.SetClock(func() time.Time { return now })

	fp := Fingerprint("question", "hello", "")
	if _, ok := c.Get(fp); ok {
		t.Fatalf("unexpected hit on empty cache")
	}
	c.Set(fp, "hi there")

	if v, ok := c.Get(fp); !ok || v != "hi there" {
		t.Fatalf("Get = %q, %v", v, ok)
	}

	// One instant before expiry: still served.
	now = time.Unix(1000, 0).Add(time.Minute - time.Nanosecond)
	if _, ok := c.Get(fp); !ok {
		t.Errorf("entry expired early")
	}

	// At exactly TTL the entry must not be served.
	now = time.Unix(1000, 0).Add(time.Minute)
	if _, ok := c.Get(fp); ok {
		t.Errorf("entry served at exactly TTL")
	}
}

func TestLRUEviction(t *testing.T) {
	c := New(time.Hour, 2)
	c.Set("a", "1")
	c.Set("b", "2")
	// Touch a so b becomes the eviction candidate.
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("a missing")
	}
	c.Set("c", "3")

	if _, ok := c.Get("b"); ok {
		t.Errorf("b should have been evicted as least recently used")
	}
	if _, ok := c.Get("a"); !ok {
		t.Errorf("a should survive eviction")
	}
	if _, ok := c.Get("c"); !ok {
		t.Errorf("c should be present")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestDoDeduplicatesConcurrentCalls(t *testing.T) {
	c := New(time.Hour, 10)
	fp := Fingerprint("question", "what is go", "")

	var calls atomic.Int64
	release := make(chan struct{})

	fn := func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "a language", nil
	}

	const workers = 8
	results := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, err := c.Do(context.Background(), fp, fn)
			if err != nil {
				t.Errorf("Do error: %v", err)
			}
			results[i] = v
		}(i)
	}

	// Give the goroutines time to pile onto the single flight.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
	for i, v := range results {
		if v != "a language" {
			t.Errorf("results[%d] = %q", i, v)
		}
	}
	if _, ok := c.Get(fp); !ok {
		t.Errorf("result should be cached after Do")
	}
}

func TestDoFailureNotCached(t *testing.T) {
	c := New(time.Hour, 10)
	fp := Fingerprint("question", "flaky", "")
	boom := errors.New("upstream exploded")

	var calls int
	fn := func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", boom
		}
		return "recovered", nil
	}

	if _, _, err := c.Do(context.Background(), fp, fn); !errors.Is(err, boom) {
		t.Fatalf("first Do err = %v, want %v", err, boom)
	}
	if _, ok := c.Get(fp); ok {
		t.Fatalf("failure must not be cached")
	}

	v, hit, err := c.Do(context.Background(), fp, fn)
	if err != nil || v != "recovered" || hit {
		t.Errorf("second Do = %q, hit=%v, err=%v; want fresh upstream call", v, hit, err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestDoServesCacheHit(t *testing.T) {
	c := New(time.Hour, 10)
	fp := Fingerprint("question", "cached", "")
	c.Set(fp, "from cache")

	v, hit, err := c.Do(context.Background(), fp, func(ctx context.Context) (string, error) {
		t.Fatalf("fn must not run on a cache hit")
		return "", nil
	})
	if err != nil || !hit || v != "from cache" {
		t.Errorf("Do = %q, hit=%v, err=%v", v, hit, err)
	}
}

func TestCapacityStress(t *testing.T) {
	c := New(time.Hour, 16)
	for i := 0; i < 200; i++ {
		c.Set(Fingerprint("question", fmt.Sprintf("q-%d", i), ""), "v")
	}
	if c.Len() > 16 {
		t.Errorf("Len() = %d exceeds capacity", c.Len())
	}
}
