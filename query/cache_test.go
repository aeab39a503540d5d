package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	if got := Key("listing", 3); got != "listing:3" {
		t.Errorf("Expected listing:3, got %s", got)
	}

	// Addresses are normalized so checksummed and lowercase keys collide
	a := Key("allowance", "0xAbC", "0xDEF")
	b := Key("allowance", "0xabc", "0xdef")
	if a != b {
		t.Errorf("Expected case-insensitive keys, got %s and %s", a, b)
	}
}

func TestCache_CheckAndMark_Cached(t *testing.T) {
	cache := NewCache[string](5 * time.Minute)
	key := "tokenURI:1"

	// First call should return NotFound and mark in-flight
	status, result, f := cache.CheckAndMark(key)
	if status != StatusNotFound {
		t.Errorf("Expected StatusNotFound, got %v", status)
	}
	if result != "" {
		t.Error("Expected zero result for NotFound")
	}

	cache.Complete(key, "data:application/json;base64,e30=", f)

	// Second call should return Cached
	status, result, _ = cache.CheckAndMark(key)
	if status != StatusCached {
		t.Errorf("Expected StatusCached, got %v", status)
	}
	if result != "data:application/json;base64,e30=" {
		t.Errorf("Expected cached URI, got %q", result)
	}
}

func TestCache_CheckAndMark_InFlight(t *testing.T) {
	cache := NewCache[int](5 * time.Minute)
	key := "inflight-test"

	status1, _, f1 := cache.CheckAndMark(key)
	if status1 != StatusNotFound {
		t.Errorf("Expected StatusNotFound, got %v", status1)
	}

	status2, _, f2 := cache.CheckAndMark(key)
	if status2 != StatusInFlight {
		t.Errorf("Expected StatusInFlight, got %v", status2)
	}

	if f1 != f2 {
		t.Error("Expected same flight for in-flight requests")
	}
}

func TestCache_Expiry(t *testing.T) {
	cache := NewCache[int](50 * time.Millisecond)
	key := "expiry-test"

	status, _, f := cache.CheckAndMark(key)
	if status != StatusNotFound {
		t.Fatalf("Expected StatusNotFound, got %v", status)
	}
	cache.Complete(key, 7, f)

	status, result, _ := cache.CheckAndMark(key)
	if status != StatusCached {
		t.Error("Expected StatusCached immediately after complete")
	}
	if result != 7 {
		t.Errorf("Expected 7, got %d", result)
	}

	time.Sleep(60 * time.Millisecond)

	status, _, f = cache.CheckAndMark(key)
	if status != StatusNotFound {
		t.Errorf("Expected StatusNotFound after expiry, got %v", status)
	}
	cache.Fail(key, f)
}

func TestCache_Fail(t *testing.T) {
	cache := NewCache[int](5 * time.Minute)
	key := "fail-test"

	status, _, f := cache.CheckAndMark(key)
	if status != StatusNotFound {
		t.Fatalf("Expected StatusNotFound, got %v", status)
	}

	cache.Fail(key, f)

	// Should be able to retry (not cached, not in-flight)
	status, _, f2 := cache.CheckAndMark(key)
	if status != StatusNotFound {
		t.Errorf("Expected StatusNotFound after fail (retry allowed), got %v", status)
	}
	cache.Fail(key, f2)
}

func TestCache_Invalidate(t *testing.T) {
	cache := NewCache[int](5 * time.Minute)
	key := "allowance:0xa:0xb:0xc"

	_, _, f := cache.CheckAndMark(key)
	cache.Complete(key, 50, f)

	cache.Invalidate(key)

	if _, ok := cache.Get(key); ok {
		t.Error("Expected no cached result after invalidate")
	}
	status, _, f := cache.CheckAndMark(key)
	if status != StatusNotFound {
		t.Errorf("Expected StatusNotFound after invalidate, got %v", status)
	}
	cache.Fail(key, f)
}

func TestCache_InvalidateDuringFlight(t *testing.T) {
	cache := NewCache[int](5 * time.Minute)
	key := "listing:1"

	_, _, stale := cache.CheckAndMark(key)
	cache.Invalidate(key)

	// A new request starts its own flight
	status, _, fresh := cache.CheckAndMark(key)
	if status != StatusNotFound {
		t.Fatalf("Expected StatusNotFound after invalidate, got %v", status)
	}

	// The stale flight completes but must not overwrite the cache
	cache.Complete(key, 1, stale)
	if _, ok := cache.Get(key); ok {
		t.Error("Expected stale completion not to be cached")
	}

	cache.Complete(key, 2, fresh)
	if v, ok := cache.Get(key); !ok || v != 2 {
		t.Errorf("Expected fresh value 2, got %d (ok=%v)", v, ok)
	}
}

func TestCache_InvalidatePrefix(t *testing.T) {
	cache := NewCache[int](5 * time.Minute)
	for i, key := range []string{"listing:1", "listing:2", "tokenURI:1"} {
		_, _, f := cache.CheckAndMark(key)
		cache.Complete(key, i, f)
	}

	cache.InvalidatePrefix("listing:")

	if _, ok := cache.Get("listing:1"); ok {
		t.Error("Expected listing:1 to be invalidated")
	}
	if _, ok := cache.Get("listing:2"); ok {
		t.Error("Expected listing:2 to be invalidated")
	}
	if _, ok := cache.Get("tokenURI:1"); !ok {
		t.Error("Expected tokenURI:1 to survive")
	}
}

func TestCache_WaitForResult_Success(t *testing.T) {
	cache := NewCache[string](5 * time.Minute)
	key := "wait-test"

	_, _, f := cache.CheckAndMark(key)

	var wg sync.WaitGroup
	var waitResult string
	var waitOK bool
	var waitErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _, inflight := cache.CheckAndMark(key)
		waitResult, waitOK, waitErr = cache.WaitForResult(context.Background(), inflight)
	}()

	time.Sleep(10 * time.Millisecond)
	cache.Complete(key, "0xwaited", f)

	wg.Wait()

	if waitErr != nil {
		t.Errorf("Unexpected error: %v", waitErr)
	}
	if !waitOK || waitResult != "0xwaited" {
		t.Errorf("Expected waited result, got %q (ok=%v)", waitResult, waitOK)
	}
}

func TestCache_WaitForResult_ContextCancelled(t *testing.T) {
	cache := NewCache[int](5 * time.Minute)
	key := "cancel-test"

	_, _, f := cache.CheckAndMark(key)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ok, err := cache.WaitForResult(ctx, f)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
	if ok {
		t.Error("Expected ok=false on cancellation")
	}
	cache.Fail(key, f)
}

func TestCache_Fetch_Dedupes(t *testing.T) {
	// Zero TTL still shares one in-flight call
	cache := NewCache[int](0)
	var calls int32
	release := make(chan struct{})

	fn := func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := cache.Fetch(context.Background(), "k", fn)
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
			results[i] = v
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("Expected 1 fetch, got %d", n)
	}
	for i, v := range results {
		if v != 42 {
			t.Errorf("Result %d: expected 42, got %d", i, v)
		}
	}
}

func TestCache_Fetch_ErrorNotCached(t *testing.T) {
	cache := NewCache[int](5 * time.Minute)
	boom := errors.New("rpc down")
	calls := 0

	fn := func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, boom
		}
		return 9, nil
	}

	if _, err := cache.Fetch(context.Background(), "k", fn); !errors.Is(err, boom) {
		t.Fatalf("Expected rpc error, got %v", err)
	}
	v, err := cache.Fetch(context.Background(), "k", fn)
	if err != nil || v != 9 {
		t.Errorf("Expected retry to succeed with 9, got %d, %v", v, err)
	}
	if calls != 2 {
		t.Errorf("Expected 2 calls, got %d", calls)
	}
}
