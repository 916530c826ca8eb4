package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testBudgets() map[string]Budget {
	return map[string]Budget{
		APIVision:      {PerMinute: 3, PerDay: 10},
		APIImageSearch: {PerMinute: 100, PerDay: 2},
	}
}

func newTestLimiter(store CounterStore) *Limiter {
	return NewLimiter(store, testBudgets(), zerolog.Nop())
}

func TestAllow_ConcurrentAdmissionExact(t *testing.T) {
	l := newTestLimiter(NewMemoryCounterStore())
	ctx := context.Background()

	const callers = 4
	var wg sync.WaitGroup
	results := make([]bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = l.Allow(ctx, APIVision)
		}(i)
	}
	wg.Wait()

	allowed := 0
	for _, ok := range results {
		if ok {
			allowed++
		}
	}
	if allowed != 3 {
		t.Fatalf("allowed = %d, want exactly 3 of %d", allowed, callers)
	}
}

func TestAllow_WindowResets(t *testing.T) {
	store := NewMemoryCounterStore()
	base := time.Date(2025, 6, 1, 12, 0, 30, 0, time.UTC)
	store.now = func() time.Time { return base }

	l := newTestLimiter(store)
	l.now = func() time.Time { return base }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if !l.Allow(ctx, APIVision) {
			t.Fatalf("call %d should be admitted", i)
		}
	}
	if l.Allow(ctx, APIVision) {
		t.Fatalf("fourth call in the same window should be denied")
	}

	// Next minute window: counter starts fresh.
	next := base.Add(time.Minute)
	store.now = func() time.Time { return next }
	l.now = func() time.Time { return next }
	if !l.Allow(ctx, APIVision) {
		t.Fatalf("call in the next window should be admitted")
	}
}

func TestAllow_DailyDenialRollsBackMinute(t *testing.T) {
	store := NewMemoryCounterStore()
	l := newTestLimiter(store)
	ctx := context.Background()

	// PerDay for image search is 2; exhaust it.
	if !l.Allow(ctx, APIImageSearch) || !l.Allow(ctx, APIImageSearch) {
		t.Fatalf("first two calls should be admitted")
	}
	if l.Allow(ctx, APIImageSearch) {
		t.Fatalf("third call should hit the daily budget")
	}

	// The denied call must not have consumed minute budget.
	wKey := l.windowKey(APIImageSearch, l.now())
	if n, _ := store.Get(ctx, wKey); n != 2 {
		t.Fatalf("window count = %d after rollback, want 2", n)
	}
}

func TestAllow_UnknownAPIFailsOpen(t *testing.T) {
	l := newTestLimiter(NewMemoryCounterStore())
	if !l.Allow(context.Background(), "no-such-api") {
		t.Fatalf("unknown API must be admitted")
	}
}

type erroringStore struct{}

func (erroringStore) IncrementIfBelow(context.Context, string, int64, time.Duration) (int64, bool, error) {
	return 0, false, errors.New("store down")
}
func (erroringStore) Decrement(context.Context, string) error { return errors.New("store down") }
func (erroringStore) Get(context.Context, string) (int64, error) {
	return 0, errors.New("store down")
}

func TestAllow_StoreErrorFailsOpen(t *testing.T) {
	l := newTestLimiter(erroringStore{})
	if !l.Allow(context.Background(), APIVision) {
		t.Fatalf("unreachable store must fail open")
	}
}

func TestUsage_ReportsCountsAndLimits(t *testing.T) {
	l := newTestLimiter(NewMemoryCounterStore())
	ctx := context.Background()

	_ = l.Allow(ctx, APIVision)
	_ = l.Allow(ctx, APIVision)

	var vision *APIUsage
	for _, u := range l.Usage(ctx) {
		if u.API == APIVision {
			v := u
			vision = &v
		}
	}
	if vision == nil {
		t.Fatalf("usage missing %s", APIVision)
	}
	if vision.WindowCount != 2 || vision.DayCount != 2 {
		t.Fatalf("counts = %d/%d, want 2/2", vision.WindowCount, vision.DayCount)
	}
	if vision.WindowLimit != 3 || vision.DayLimit != 10 {
		t.Fatalf("limits = %d/%d, want 3/10", vision.WindowLimit, vision.DayLimit)
	}
	if !vision.WithinLimits {
		t.Fatalf("expected within limits")
	}
}
