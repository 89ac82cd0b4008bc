// Package storetest holds the behavioural contract every storage.Store
// backend must satisfy. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"pastebox/internal/storage"
)

// Factory opens a fresh, empty store for one subtest.
type Factory func(t *testing.T) storage.Store

// Concurrency is the number of parallel increments issued by the counter test.
const Concurrency = 32

// Run executes the full contract against stores produced by open.
func Run(t *testing.T, open Factory) {
	t.Run("CreateGet", func(t *testing.T) { testCreateGet(t, open(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, open(t)) })
	t.Run("DuplicateID", func(t *testing.T) { testDuplicateID(t, open(t)) })
	t.Run("IncrementSequential", func(t *testing.T) { testIncrementSequential(t, open(t)) })
	t.Run("IncrementMissing", func(t *testing.T) { testIncrementMissing(t, open(t)) })
	t.Run("IncrementConcurrent", func(t *testing.T) { testIncrementConcurrent(t, open(t)) })
	t.Run("DeleteExpired", func(t *testing.T) { testDeleteExpired(t, open(t)) })
	t.Run("Ping", func(t *testing.T) {
		if err := open(t).Ping(context.Background()); err != nil {
			t.Fatalf("ping: %v", err)
		}
	})
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func testCreateGet(t *testing.T, store storage.Store) {
	ctx := context.Background()
	created := now()
	paste := &storage.Paste{
		ID:        "contract-get",
		Content:   "hello <world>\n",
		CreatedAt: created,
		ExpiresAt: created.Add(time.Hour),
		MaxViews:  3,
	}
	if err := store.Create(ctx, paste); err != nil {
		t.Fatalf("create: %v", err)
	}

	out, err := store.Get(ctx, paste.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out.ID != paste.ID || out.Content != paste.Content {
		t.Fatalf("got %q/%q, want %q/%q", out.ID, out.Content, paste.ID, paste.Content)
	}
	if !out.CreatedAt.Equal(created) {
		t.Fatalf("created_at = %v, want %v", out.CreatedAt, created)
	}
	if !out.ExpiresAt.Equal(paste.ExpiresAt) {
		t.Fatalf("expires_at = %v, want %v", out.ExpiresAt, paste.ExpiresAt)
	}
	if out.MaxViews != 3 || out.ViewCount != 0 {
		t.Fatalf("max_views=%d view_count=%d, want 3/0", out.MaxViews, out.ViewCount)
	}

	forever := &storage.Paste{ID: "contract-forever", Content: "x", CreatedAt: created}
	if err := store.Create(ctx, forever); err != nil {
		t.Fatalf("create unlimited: %v", err)
	}
	out, err = store.Get(ctx, forever.ID)
	if err != nil {
		t.Fatalf("get unlimited: %v", err)
	}
	if out.HasExpiration() || out.HasViewLimit() {
		t.Fatalf("expected no limits, got expires=%v max=%d", out.ExpiresAt, out.MaxViews)
	}
}

func testGetMissing(t *testing.T, store storage.Store) {
	if _, err := store.Get(context.Background(), "does-not-exist"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testDuplicateID(t *testing.T, store storage.Store) {
	ctx := context.Background()
	first := &storage.Paste{ID: "contract-dup", Content: "first", CreatedAt: now()}
	if err := store.Create(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	second := &storage.Paste{ID: "contract-dup", Content: "second", CreatedAt: now()}
	err := store.Create(ctx, second)
	if !errors.Is(err, storage.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	out, err := store.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out.Content != "first" {
		t.Fatalf("duplicate create overwrote content: %q", out.Content)
	}
}

func testIncrementSequential(t *testing.T, store storage.Store) {
	ctx := context.Background()
	paste := &storage.Paste{ID: "contract-seq", Content: "x", CreatedAt: now(), ViewCount: 7}
	if err := store.Create(ctx, paste); err != nil {
		t.Fatalf("create: %v", err)
	}
	for want := 1; want <= 3; want++ {
		got, err := store.IncrementViews(ctx, paste.ID)
		if err != nil {
			t.Fatalf("increment %d: %v", want, err)
		}
		if got != want {
			t.Fatalf("increment returned %d, want %d", got, want)
		}
	}
	out, err := store.Get(ctx, paste.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out.ViewCount != 3 {
		t.Fatalf("view_count = %d, want 3", out.ViewCount)
	}
}

func testIncrementMissing(t *testing.T, store storage.Store) {
	_, err := store.IncrementViews(context.Background(), "does-not-exist")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testIncrementConcurrent(t *testing.T, store storage.Store) {
	ctx := context.Background()
	paste := &storage.Paste{ID: "contract-race", Content: "x", CreatedAt: now(), MaxViews: 1}
	if err := store.Create(ctx, paste); err != nil {
		t.Fatalf("create: %v", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make([]int, 0, Concurrency)
		errs    []error
		start   = make(chan struct{})
	)
	for i := 0; i < Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			n, err := store.IncrementViews(ctx, paste.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			results = append(results, n)
		}()
	}
	close(start)
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("increment errors: %v", errs)
	}
	if err := CheckCounterSequence(results, 0); err != nil {
		t.Fatal(err)
	}
	out, err := store.Get(ctx, paste.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out.ViewCount != Concurrency {
		t.Fatalf("view_count = %d, want %d", out.ViewCount, Concurrency)
	}
}

func testDeleteExpired(t *testing.T, store storage.Store) {
	ctx := context.Background()
	ts := now()
	alive := &storage.Paste{ID: "alive", Content: "ok", CreatedAt: ts, ExpiresAt: ts.Add(time.Hour)}
	dead := &storage.Paste{ID: "dead", Content: "bye", CreatedAt: ts.Add(-time.Hour), ExpiresAt: ts.Add(-time.Minute)}
	forever := &storage.Paste{ID: "forever", Content: "always", CreatedAt: ts}
	for _, p := range []*storage.Paste{alive, dead, forever} {
		if err := store.Create(ctx, p); err != nil {
			t.Fatalf("create %s: %v", p.ID, err)
		}
	}

	if _, err := store.DeleteExpired(ctx, ts); err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if _, err := store.Get(ctx, "dead"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected expired paste removed, got %v", err)
	}
	for _, id := range []string{"alive", "forever"} {
		if _, err := store.Get(ctx, id); err != nil {
			t.Fatalf("expected %s to survive: %v", id, err)
		}
	}
}

// CheckCounterSequence verifies that results is exactly {initial+1, ..., initial+len(results)}.
func CheckCounterSequence(results []int, initial int) error {
	sorted := append([]int(nil), results...)
	sort.Ints(sorted)
	for i, n := range sorted {
		if want := initial + i + 1; n != want {
			return fmt.Errorf("counter results %v: position %d is %d, want %d", sorted, i, n, want)
		}
	}
	return nil
}
