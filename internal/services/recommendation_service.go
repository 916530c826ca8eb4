// Package services – RecommendationService
//
// This file implements the RecommendationService, which ranks a list of
// candidate dishes against a device's preference profile using the
// text-generation collaborator. The collaborator's reply is strictly
// validated: every suggestion must name a dish from the candidate list
// (case-insensitive, trimmed), scores are clamped to [0,100], and at most
// MaxResults survivors are returned. Allergies are hard exclusions stated in
// the prompt; a suggestion matching an allergen-free rule violation is the
// collaborator's responsibility, but hallucinated names never leak through.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/tbourn/menuscan-backend/internal/domain"
	"github.com/tbourn/menuscan-backend/internal/providers"
	"github.com/tbourn/menuscan-backend/internal/quota"
)

const recommendSystemPrompt = "You are a dining assistant. You rank dishes " +
	"from a menu against a diner's saved preferences. Reply with strict JSON " +
	"only, no markdown, no commentary."

// RecommendationService produces ranked dish suggestions.
type RecommendationService struct {
	// Gen is the text-generation collaborator; nil makes the service
	// unavailable rather than degraded, recommendations have no fallback.
	Gen providers.TextGenerator
	// Limiter gates ranking calls against the shared quota budgets.
	Limiter *quota.Limiter
	// Images optionally backfills missing suggestion images from the cache.
	Images *ImageService

	// MaxResults caps how many suggestions are returned.
	MaxResults int

	Log zerolog.Logger
}

// NewRecommendationService constructs a RecommendationService returning at
// most three suggestions.
func NewRecommendationService(gen providers.TextGenerator, limiter *quota.Limiter, images *ImageService, log zerolog.Logger) *RecommendationService {
	return &RecommendationService{Gen: gen, Limiter: limiter, Images: images, MaxResults: 3, Log: log}
}

// suggestion is the wire shape expected back from the collaborator.
type suggestion struct {
	Name   string `json:"name"`
	Score  int    `json:"score"`
	Reason string `json:"reason"`
}

// Recommend ranks the dishes against the profile. An empty (but non-nil)
// slice means no candidate survived validation; that is a successful outcome,
// not an error.
func (s *RecommendationService) Recommend(ctx context.Context, dishes []domain.Dish, prefs *domain.PreferenceProfile) ([]domain.Recommendation, error) {
	ctx, span := otel.Tracer("services/recommendation").Start(ctx, "RecommendationService.Recommend")
	defer span.End()

	if len(dishes) == 0 {
		return nil, ErrNoDishes
	}
	if prefs == nil {
		return nil, ErrNoPreferences
	}
	if s.Gen == nil {
		return nil, ErrRecommenderUnavailable
	}
	if s.Limiter != nil && !s.Limiter.Allow(ctx, quota.APITextGen) {
		return nil, ErrRateLimited
	}

	reply, err := s.Gen.Complete(ctx, recommendSystemPrompt, buildRecommendPrompt(dishes, prefs, s.MaxResults))
	if err != nil {
		return nil, fmt.Errorf("recommendation completion: %w", err)
	}

	var raw []suggestion
	if err := json.Unmarshal([]byte(stripCodeFences(reply)), &raw); err != nil {
		return nil, fmt.Errorf("recommendation reply not parseable: %w", err)
	}

	byName := make(map[string]*domain.Dish, len(dishes))
	for i := range dishes {
		byName[strings.ToLower(strings.TrimSpace(dishes[i].Name))] = &dishes[i]
	}

	out := make([]domain.Recommendation, 0, s.MaxResults)
	for _, sg := range raw {
		if len(out) == s.MaxResults {
			break
		}
		d, ok := byName[strings.ToLower(strings.TrimSpace(sg.Name))]
		if !ok {
			s.Log.Warn().Str("name", sg.Name).Msg("dropping suggestion not on the menu")
			continue
		}
		score := sg.Score
		if score < 0 {
			score = 0
		}
		if score > 100 {
			score = 100
		}
		out = append(out, domain.Recommendation{
			Name:        d.Name,
			Description: d.Description,
			ImageURL:    d.ImageURL,
			Score:       score,
			Reason:      strings.TrimSpace(sg.Reason),
		})
	}

	s.backfillImages(ctx, out)
	return out, nil
}

// backfillImages fills missing suggestion images from the cache-backed
// resolver. Best effort only.
func (s *RecommendationService) backfillImages(ctx context.Context, recs []domain.Recommendation) {
	if s.Images == nil {
		return
	}
	var names []string
	var idx []int
	for i := range recs {
		if recs[i].ImageURL == "" {
			names = append(names, recs[i].Name)
			idx = append(idx, i)
		}
	}
	if len(names) == 0 {
		return
	}
	for j, res := range s.Images.ResolveBatch(ctx, names) {
		recs[idx[j]].ImageURL = res.ImageURL
	}
}

// buildRecommendPrompt renders the candidate list and the preference profile
// into one ranking request. Allergies are stated as hard exclusions.
func buildRecommendPrompt(dishes []domain.Dish, prefs *domain.PreferenceProfile, maxResults int) string {
	var b strings.Builder
	b.WriteString("Menu dishes:\n")
	for i, d := range dishes {
		fmt.Fprintf(&b, "%d. %s", i+1, d.Name)
		if d.Description != "" {
			fmt.Fprintf(&b, " - %s", d.Description)
		}
		b.WriteByte('\n')
	}

	b.WriteString("\nDiner preferences:\n")
	writeTagLine(&b, "Dietary", prefs.Dietary)
	writeTagLine(&b, "Preferred cuisines", prefs.Cuisine)
	writeTagLine(&b, "Flavor likes", prefs.Flavor)
	writeTagLine(&b, "Dislikes (avoid when possible)", prefs.Dislikes)
	if len(prefs.Allergy) > 0 {
		fmt.Fprintf(&b, "Allergies (NEVER suggest dishes containing these): %s\n", strings.Join(prefs.Allergy, ", "))
	}

	fmt.Fprintf(&b, "\nReturn exactly %d ranked entries, best match first. Use the exact dish names from the list. ", maxResults)
	b.WriteString(`Reply with a JSON array: [{"name": "...", "score": 0-100, "reason": "one short sentence"}]`)
	return b.String()
}

func writeTagLine(b *strings.Builder, label string, tags domain.StringList) {
	if len(tags) == 0 {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, strings.Join(tags, ", "))
}

// stripCodeFences removes a surrounding markdown code fence, if any, so the
// reply can be fed to the JSON decoder.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
