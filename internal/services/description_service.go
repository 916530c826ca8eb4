// Package services – DescriptionService
//
// This file implements the DescriptionService, which produces short blurbs
// and on-demand detailed descriptions for dishes through the text-generation
// collaborator. Short descriptions are memoized in-process and persisted in
// the dish cache; detailed descriptions are memoized in-process only. The
// memo is a bounded least-recently-used tier in front of the persistent one.
//
// Generation never fails the caller: quota denials and provider errors
// degrade to a fixed placeholder string.
package services

import (
	"container/list"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/tbourn/menuscan-backend/internal/menu"
	"github.com/tbourn/menuscan-backend/internal/providers"
	"github.com/tbourn/menuscan-backend/internal/quota"
	"github.com/tbourn/menuscan-backend/internal/repo"
)

// FallbackDescription is returned whenever a description cannot be generated.
// It is deliberately a fixed string so clients can detect and restyle it.
const FallbackDescription = "Description temporarily unavailable"

const shortSystemPrompt = "You are a food writer for a menu app. " +
	"Answer with the blurb only, no quotes, no preamble."

const detailedSystemPrompt = "You are a food writer for a menu app. " +
	"Answer with the description only, no quotes, no preamble."

// defaultMemoCap bounds the in-process memo map.
const defaultMemoCap = 512

type memoEntry struct {
	key string
	val string
}

// DescriptionService generates and caches dish descriptions.
type DescriptionService struct {
	// DB is the GORM handle backing the dish cache.
	DB *gorm.DB
	// Gen is the text-generation collaborator; nil disables generation.
	Gen providers.TextGenerator
	// Limiter gates generation against the shared quota budgets.
	Limiter *quota.Limiter

	// CacheTTL is how long a persisted short description stays fresh.
	CacheTTL time.Duration
	// MemoCap bounds the in-process memo; the least recently used entry is
	// evicted when full. Zero means defaultMemoCap.
	MemoCap int

	Log zerolog.Logger

	mu    sync.Mutex
	memo  map[string]*list.Element
	order *list.List

	now func() time.Time
}

// NewDescriptionService constructs a DescriptionService.
func NewDescriptionService(db *gorm.DB, gen providers.TextGenerator, limiter *quota.Limiter, ttl time.Duration, log zerolog.Logger) *DescriptionService {
	return &DescriptionService{
		DB:       db,
		Gen:      gen,
		Limiter:  limiter,
		CacheTTL: ttl,
		MemoCap:  defaultMemoCap,
		Log:      log,
		memo:     make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// Short returns a one-line blurb for the dish, from the in-process memo, the
// persistent cache, or fresh generation, in that order.
func (s *DescriptionService) Short(ctx context.Context, dishName string) string {
	ctx, span := otel.Tracer("services/description").Start(ctx, "DescriptionService.Short")
	defer span.End()

	key := menu.Normalize(dishName)
	if key == "" {
		return FallbackDescription
	}
	memoKey := "short|" + key

	if v, ok := s.lookup(memoKey); ok {
		return v
	}
	now := s.now().UTC()
	if e, err := repo.GetDishCache(ctx, s.DB, key, now); err == nil && e.ShortDescription != "" {
		s.remember(memoKey, e.ShortDescription)
		return e.ShortDescription
	}

	prompt := fmt.Sprintf(
		"In 5 to 8 words, evoke the flavor and key ingredients of the dish %q. Do not repeat the dish name.",
		dishName,
	)
	desc, ok := s.generate(ctx, shortSystemPrompt, prompt, key)
	if !ok {
		return FallbackDescription
	}
	s.remember(memoKey, desc)
	if err := repo.UpsertDishDescription(ctx, s.DB, key, menu.DisplayName(key), desc, now.Add(s.CacheTTL)); err != nil {
		s.Log.Warn().Err(err).Str("dish", key).Msg("dish cache write failed")
	}
	return desc
}

// Detailed returns a richer two-sentence description, grounded in the menu's
// own printed description when one was captured. Results are memoized
// per (dish, context) pair but not persisted.
func (s *DescriptionService) Detailed(ctx context.Context, dishName, menuDescription string) string {
	ctx, span := otel.Tracer("services/description").Start(ctx, "DescriptionService.Detailed")
	defer span.End()

	key := menu.Normalize(dishName)
	if key == "" {
		return FallbackDescription
	}
	memoKey := "detailed|" + key + "|" + strings.ToLower(strings.TrimSpace(menuDescription))

	if v, ok := s.lookup(memoKey); ok {
		return v
	}

	prompt := fmt.Sprintf(
		"In one or two sentences, describe the dish %q for a diner who has never had it: main ingredients, preparation, and taste.",
		dishName,
	)
	if d := strings.TrimSpace(menuDescription); d != "" {
		prompt += fmt.Sprintf(" The menu describes it as: %q.", d)
	}
	desc, ok := s.generate(ctx, detailedSystemPrompt, prompt, key)
	if !ok {
		return FallbackDescription
	}
	s.remember(memoKey, desc)
	return desc
}

// generate runs one quota-gated completion, degrading on any failure.
func (s *DescriptionService) generate(ctx context.Context, system, prompt, key string) (string, bool) {
	if s.Gen == nil {
		return "", false
	}
	if s.Limiter != nil && !s.Limiter.Allow(ctx, quota.APITextGen) {
		return "", false
	}
	out, err := s.Gen.Complete(ctx, system, prompt)
	if err != nil {
		s.Log.Warn().Err(err).Str("dish", key).Msg("description generation failed")
		return "", false
	}
	out = strings.TrimSpace(strings.Trim(strings.TrimSpace(out), `"`))
	if out == "" {
		return "", false
	}
	return out, true
}

func (s *DescriptionService) lookup(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.memo[key]
	if !ok {
		return "", false
	}
	s.order.MoveToFront(el)
	return el.Value.(memoEntry).val, true
}

func (s *DescriptionService) remember(key, v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.memo == nil {
		s.memo = make(map[string]*list.Element)
		s.order = list.New()
	}
	if el, ok := s.memo[key]; ok {
		el.Value = memoEntry{key: key, val: v}
		s.order.MoveToFront(el)
		return
	}
	s.memo[key] = s.order.PushFront(memoEntry{key: key, val: v})

	limit := s.MemoCap
	if limit <= 0 {
		limit = defaultMemoCap
	}
	if s.order.Len() > limit {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.memo, oldest.Value.(memoEntry).key)
	}
}
