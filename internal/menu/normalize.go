// Package menu contains pure dish-name helpers shared by the cache, the
// resolver services, and the recommendation validator. Normalization is the
// single source of truth for cache keys: every component that reads or writes
// the dish cache must key through Normalize.
package menu

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	// currencyPriceRE matches currency-prefixed price tokens anywhere in the
	// string ("$12.99", "€ 8,50", "£7").
	currencyPriceRE = regexp.MustCompile(`[$€£¥₩₹]\s*\d+(?:[.,]\d{1,2})?`)

	// trailingPriceRE matches the run of bare trailing numbers that read as
	// prices ("Pad Thai 12.99", "Ramen 14", "Combo 1 2"). The whole run must
	// go in one pass so the result is a fixpoint.
	trailingPriceRE = regexp.MustCompile(`(?:\s+\d+(?:[.,]\d{1,2})?)+\s*$`)

	// annotationRE strips parenthesized, bracketed, and braced annotations
	// together with their delimiters ("(vegetarian)", "[v]", "{spicy}").
	annotationRE = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]|\{[^}]*\}`)

	// glyphRE strips decorative and rating glyphs menus like to sprinkle.
	glyphRE = regexp.MustCompile(`[*•·★☆♥♡♦✓✔~†‡№#]`)

	// spaceRE collapses whitespace runs to a single space.
	spaceRE = regexp.MustCompile(`\s+`)
)

// Normalize produces the canonical lowercase cache key for a raw dish name.
// It strips prices, bracketed annotations, and decorative glyphs, collapses
// whitespace, trims, and lowercases. The function is deterministic, does no
// I/O, and is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	s := annotationRE.ReplaceAllString(raw, " ")
	s = currencyPriceRE.ReplaceAllString(s, " ")
	s = glyphRE.ReplaceAllString(s, " ")
	s = trailingPriceRE.ReplaceAllString(s, "")
	s = spaceRE.ReplaceAllString(s, " ")
	return strings.ToLower(strings.TrimSpace(s))
}

// titleCaser is shared; cases.Caser is not safe for concurrent use, so each
// call gets a fresh one from the factory below.
func titleCaser() cases.Caser { return cases.Title(language.English) }

// DisplayName renders a presentable dish title from a raw or normalized name:
// the normalized form, title-cased. Useful when the cache key is all we have.
func DisplayName(raw string) string {
	n := Normalize(raw)
	if n == "" {
		return ""
	}
	return titleCaser().String(n)
}
