package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Well-known external API names. Budgets are configured per name; callers
// pass the same name on every check so counters aggregate correctly.
const (
	APIVision      = "vision-llm"
	APIOCR         = "ocr"
	APIImageSearch = "image-search"
	APITextGen     = "text-generation"
)

// defaultWindow is the sliding-window bucket size for the per-minute budget.
const defaultWindow = time.Minute

var (
	// quotaDecisions counts admit/deny outcomes per API.
	quotaDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "external_api_quota_decisions_total",
			Help: "Quota limiter decisions per external API.",
		},
		[]string{"api", "decision"},
	)
)

func init() {
	prometheus.MustRegister(quotaDecisions)
}

// Budget is the per-API limit pair enforced by the Limiter.
type Budget struct {
	PerMinute int64
	PerDay    int64
}

// APIUsage is a point-in-time usage snapshot for one API, returned by Usage.
// Observability only; control flow must go through Allow.
type APIUsage struct {
	API          string `json:"api"`
	WindowCount  int64  `json:"window_count"`
	WindowLimit  int64  `json:"window_limit"`
	DayCount     int64  `json:"day_count"`
	DayLimit     int64  `json:"day_limit"`
	WithinLimits bool   `json:"within_limits"`
}

// Limiter guards external API spend with a sliding minute window plus a UTC
// calendar-day counter per API, both held in a shared CounterStore.
//
// Failure semantics: if the store is unreachable the limiter fails OPEN and
// logs a warning — availability beats strict quota enforcement. Unknown API
// names are also admitted (configuration gap, warned once per name); that is
// a latent bug surface, not a security boundary.
//
// The type is safe for concurrent use.
type Limiter struct {
	store   CounterStore
	budgets map[string]Budget
	window  time.Duration
	log     zerolog.Logger

	// now is a test seam; defaults to time.Now.
	now func() time.Time

	mu            sync.Mutex
	warnedUnknown map[string]struct{}
	// alertTier tracks the highest daily-threshold tier already announced,
	// keyed by api+day, so 80%/90% warnings escalate but do not repeat.
	alertTier map[string]int
}

// NewLimiter constructs a Limiter over store with the given per-API budgets.
func NewLimiter(store CounterStore, budgets map[string]Budget, log zerolog.Logger) *Limiter {
	return &Limiter{
		store:         store,
		budgets:       budgets,
		window:        defaultWindow,
		log:           log,
		now:           time.Now,
		warnedUnknown: make(map[string]struct{}),
		alertTier:     make(map[string]int),
	}
}

// windowKey buckets now into the sliding window: all calls within the same
// floor(unixMillis/window) index share a counter.
func (l *Limiter) windowKey(api string, now time.Time) string {
	idx := now.UnixMilli() / l.window.Milliseconds()
	return fmt.Sprintf("quota:%s:w:%d", api, idx)
}

// dayKey buckets now into a UTC calendar day.
func (l *Limiter) dayKey(api string, now time.Time) string {
	return fmt.Sprintf("quota:%s:d:%s", api, now.UTC().Format("2006-01-02"))
}

// Allow is the check-and-increment entry point. It admits the call only when
// both the minute-window and daily counters are below budget, incrementing
// both on admission. A denial does not consume budget: when the minute bucket
// admits but the day bucket denies, the minute increment is rolled back.
func (l *Limiter) Allow(ctx context.Context, api string) bool {
	b, ok := l.budgets[api]
	if !ok {
		l.warnUnknown(api)
		quotaDecisions.WithLabelValues(api, "allowed").Inc()
		return true
	}
	now := l.now()

	wKey := l.windowKey(api, now)
	_, wAllowed, err := l.store.IncrementIfBelow(ctx, wKey, b.PerMinute, l.window)
	if err != nil {
		l.failOpen(api, err)
		return true
	}
	if !wAllowed {
		l.deny(api, "minute")
		return false
	}

	dKey := l.dayKey(api, now)
	dCount, dAllowed, err := l.store.IncrementIfBelow(ctx, dKey, b.PerDay, 24*time.Hour)
	if err != nil {
		l.failOpen(api, err)
		return true
	}
	if !dAllowed {
		// Roll back the minute admission so the denial leaves no trace.
		_ = l.store.Decrement(ctx, wKey)
		l.deny(api, "day")
		return false
	}

	l.maybeAlert(api, dKey, dCount, b.PerDay)
	quotaDecisions.WithLabelValues(api, "allowed").Inc()
	return true
}

// Usage returns a snapshot of current window/day usage for every configured
// API. Store errors degrade to zero counts rather than failing the call.
func (l *Limiter) Usage(ctx context.Context) []APIUsage {
	now := l.now()
	out := make([]APIUsage, 0, len(l.budgets))
	for api, b := range l.budgets {
		w, _ := l.store.Get(ctx, l.windowKey(api, now))
		d, _ := l.store.Get(ctx, l.dayKey(api, now))
		out = append(out, APIUsage{
			API:          api,
			WindowCount:  w,
			WindowLimit:  b.PerMinute,
			DayCount:     d,
			DayLimit:     b.PerDay,
			WithinLimits: w < b.PerMinute && d < b.PerDay,
		})
	}
	return out
}

// deny records and logs a quota denial.
func (l *Limiter) deny(api, bucket string) {
	quotaDecisions.WithLabelValues(api, "denied").Inc()
	l.log.Warn().
		Str("event", "rate_limit_hit").
		Str("api", api).
		Str("bucket", bucket).
		Msg("external API quota exceeded")
}

// failOpen logs a store failure and admits the request.
func (l *Limiter) failOpen(api string, err error) {
	quotaDecisions.WithLabelValues(api, "allowed").Inc()
	l.log.Warn().
		Err(err).
		Str("api", api).
		Msg("quota counter store unreachable; failing open")
}

// warnUnknown logs a missing-budget warning once per API name.
func (l *Limiter) warnUnknown(api string) {
	l.mu.Lock()
	_, seen := l.warnedUnknown[api]
	if !seen {
		l.warnedUnknown[api] = struct{}{}
	}
	l.mu.Unlock()
	if !seen {
		l.log.Warn().
			Str("api", api).
			Msg("no quota budget configured; allowing by default")
	}
}

// maybeAlert emits escalating warnings when daily usage crosses 80% and 90%
// of budget. Informational only; never blocks a request.
func (l *Limiter) maybeAlert(api, dayKey string, count, limit int64) {
	if limit <= 0 {
		return
	}
	pct := count * 100 / limit
	tier := 0
	switch {
	case pct >= 90:
		tier = 90
	case pct >= 80:
		tier = 80
	default:
		return
	}

	l.mu.Lock()
	prev := l.alertTier[dayKey]
	if tier > prev {
		l.alertTier[dayKey] = tier
	}
	l.mu.Unlock()
	if tier <= prev {
		return
	}

	ev := l.log.Warn()
	if tier >= 90 {
		ev = l.log.Error()
	}
	ev.
		Str("api", api).
		Int64("day_count", count).
		Int64("day_limit", limit).
		Int64("percent", pct).
		Msg("daily API budget threshold crossed")
}
