package querycache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/s/lifelessons/internal/logger"
)

func newTestCache(ttl time.Duration) *Cache {
	return New(NewMemory(), ttl, logger.Nop())
}

func TestFetchCachesUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(time.Minute)
	key := Key{"u:1", "lesson", "a"}

	var calls int32
	load := func(context.Context) (string, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return "first", nil
		}
		return "second", nil
	}

	for i := 0; i < 3; i++ {
		v, err := Fetch(ctx, c, key, load)
		if err != nil || v != "first" {
			t.Fatalf("Fetch() = %q, %v; want first", v, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one load, got %d", calls)
	}

	if err := c.Invalidate(ctx, Key{"u:1"}); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	stale, ok, _ := Get[string](ctx, c, key)
	if !ok || stale != "first" {
		t.Fatalf("stale entry should stay readable, got %q %v", stale, ok)
	}
	v, _ := Fetch(ctx, c, key, load)
	if v != "second" || calls != 2 {
		t.Fatalf("expected refetch after invalidation, got %q after %d loads", v, calls)
	}
}

func TestFetchExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	var calls int
	load := func(context.Context) (int, error) { calls++; return calls, nil }
	_, _ = Fetch(ctx, c, Key{"k"}, load)
	now = now.Add(2 * time.Minute)
	v, _ := Fetch(ctx, c, Key{"k"}, load)
	if v != 2 {
		t.Fatalf("expected reload after ttl, got %d", v)
	}
}

func TestFetchErrorIsNotCached(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(time.Minute)
	boom := errors.New("boom")
	if _, err := Fetch(ctx, c, Key{"k"}, func(context.Context) (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected load error, got %v", err)
	}
	if _, ok, _ := c.Raw(ctx, Key{"k"}); ok {
		t.Fatalf("failed load must not create an entry")
	}
}

func TestSupersededLoadIsNotStored(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(time.Minute)
	key := Key{"u:1", "lesson", "a"}

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan string)
	go func() {
		v, _ := Fetch(ctx, c, key, func(context.Context) (string, error) {
			close(started)
			<-release
			return "from-server", nil
		})
		done <- v
	}()

	<-started
	if err := Set(ctx, c, key, "optimistic"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	close(release)
	if got := <-done; got != "from-server" {
		t.Fatalf("caller should still see its own load, got %q", got)
	}
	v, _, _ := Get[string](ctx, c, key)
	if v != "optimistic" {
		t.Fatalf("superseded load overwrote the optimistic value: %q", v)
	}
}

func TestLoadTrackingDoesNotGrow(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(time.Minute)
	boom := errors.New("boom")

	for i := 0; i < 500; i++ {
		key := MyFavoritesKey("u1", fmt.Sprintf("category-%d", i), "")
		_, _ = Fetch(ctx, c, key, func(context.Context) (int, error) { return i, nil })
		_, _ = Fetch(ctx, c, Key{"failing", fmt.Sprint(i)}, func(context.Context) (int, error) { return 0, boom })
		c.Cancel(key)
	}
	if err := c.Remove(ctx, Scope("u1")); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if n := len(c.loading); n != 0 {
		t.Fatalf("%d keys still tracked after every load finished", n)
	}
}

func TestConcurrentFetchesShareOneLoad(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(time.Minute)
	release := make(chan struct{})
	var calls int32

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = Fetch(ctx, c, Key{"shared"}, func(context.Context) (int, error) {
				atomic.AddInt32(&calls, 1)
				<-release
				return 7, nil
			})
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	if calls != 1 {
		t.Fatalf("expected a single shared load, got %d", calls)
	}
}

func TestSnapshotRestoreIsByteIdentical(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(time.Minute)
	present := Key{"u:1", "lesson", "a"}
	absent := Key{"u:1", "favorites"}

	if err := Set(ctx, c, present, map[string]any{"likes": []string{"x"}, "likesCount": 1}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	before, _, _ := c.Raw(ctx, present)

	snap, err := c.Snapshot(ctx, present, absent)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	_ = Set(ctx, c, present, map[string]any{"likes": []string{}, "likesCount": 0})
	_ = Set(ctx, c, absent, []string{"a"})

	if err := c.Restore(ctx, snap); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	after, ok, _ := c.Raw(ctx, present)
	if !ok || !bytes.Equal(before, after) {
		t.Fatalf("restored bytes differ:\n%s\n%s", before, after)
	}
	if _, ok, _ := c.Raw(ctx, absent); ok {
		t.Fatalf("key absent at snapshot time should be deleted on restore")
	}
}

func TestUpdateAndInvalidateScope(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(time.Minute)
	_ = Set(ctx, c, Key{"u:1", "favorites"}, []string{"a"})
	_ = Set(ctx, c, Key{"u:10", "favorites"}, []string{"b"})

	wrote, err := Update(ctx, c, Key{"u:1", "favorites"}, func(old []string, found bool) ([]string, bool) {
		return append(old, "c"), found
	})
	if err != nil || !wrote {
		t.Fatalf("Update() = %v, %v", wrote, err)
	}
	wrote, _ = Update(ctx, c, Key{"u:1", "missing"}, func(old []string, found bool) ([]string, bool) {
		return old, found
	})
	if wrote {
		t.Fatalf("Update must not create an entry when fn declines")
	}

	if err := c.Invalidate(ctx, Key{"u:1"}); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	e, _, _ := c.backend.Get(ctx, Key{"u:10", "favorites"}.String())
	if e.Stale {
		t.Fatalf("invalidating u:1 must not touch u:10")
	}
	e, _, _ = c.backend.Get(ctx, Key{"u:1", "favorites"}.String())
	if !e.Stale {
		t.Fatalf("u:1 favorites should be stale")
	}
}

func TestEscapeGlob(t *testing.T) {
	if got := escapeGlob("u:1|a*b?[c]"); got != `u:1|a\*b\?\[c\]` {
		t.Fatalf("escapeGlob() = %q", got)
	}
}

func TestMemorySweep(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.Set(ctx, "old", Entry{UpdatedAt: time.Now().Add(-time.Hour)})
	_ = m.Set(ctx, "new", Entry{UpdatedAt: time.Now()})
	if n := m.Sweep(time.Minute); n != 1 {
		t.Fatalf("Sweep() removed %d, want 1", n)
	}
	if _, ok, _ := m.Get(ctx, "new"); !ok {
		t.Fatalf("fresh entry removed")
	}
}
