// Package dedup narrows scraped candidates down to ones worth acting on.
package dedup

import (
	"math/rand"
	"sort"
	"strings"
	"time"
	"unicode"

	"cadence/internal/models"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RubyDate, // Twitter legacy "Mon Jan 02 15:04:05 -0700 2006"
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
}

// ParseTime parses a scraped timestamp. ok is false when no layout matches.
func ParseTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

type entry struct {
	c      models.Candidate
	at     time.Time
	parsed bool
}

// FilterFresh drops seen ids, repeated ids (first wins) and candidates older
// than now-window. Unparseable timestamps are kept. The result is sorted
// newest first; unparseable entries rank as newest and keep input order.
func FilterFresh(candidates []models.Candidate, seen func(id string) bool, window time.Duration, now time.Time) []models.Candidate {
	cutoff := now.Add(-window)
	kept := make([]entry, 0, len(candidates))
	inBatch := make(map[string]struct{}, len(candidates))

	for _, c := range candidates {
		if c.ID == "" {
			continue
		}
		if seen != nil && seen(c.ID) {
			continue
		}
		if _, dup := inBatch[c.ID]; dup {
			continue
		}
		inBatch[c.ID] = struct{}{}

		at, ok := ParseTime(c.CreatedAt)
		if ok && window > 0 && at.Before(cutoff) {
			continue
		}
		kept = append(kept, entry{c: c, at: at, parsed: ok})
	}

	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		switch {
		case !a.parsed && !b.parsed:
			return false
		case !a.parsed:
			return true
		case !b.parsed:
			return false
		default:
			return a.at.After(b.at)
		}
	})

	out := make([]models.Candidate, len(kept))
	for i, e := range kept {
		out[i] = e.c
	}
	return out
}

// Sample picks min(n, len(candidates)) distinct candidates uniformly at random.
func Sample(candidates []models.Candidate, n int, rng *rand.Rand) []models.Candidate {
	if n <= 0 || len(candidates) == 0 {
		return nil
	}
	if n > len(candidates) {
		n = len(candidates)
	}
	idx := rng.Perm(len(candidates))[:n]
	out := make([]models.Candidate, n)
	for i, j := range idx {
		out[i] = candidates[j]
	}
	return out
}

// QualityRules configures QualityFilter.
type QualityRules struct {
	MinLength   int
	MaxHashtags int
	MaxMentions int
	// MaxCapsRatio is the upper bound on uppercase letters over all letters.
	MaxCapsRatio float64
	SpamWords    []string
	// MinPassing falls back to the unfiltered list when fewer candidates pass.
	MinPassing int
}

func DefaultQualityRules() QualityRules {
	return QualityRules{
		MinLength:    30,
		MaxHashtags:  3,
		MaxMentions:  3,
		MaxCapsRatio: 0.3,
		SpamWords:    []string{"follow for follow", "f4f", "giveaway", "dm me", "click here", "free money", "crypto pump"},
		MinPassing:   3,
	}
}

// Acceptable reports whether text passes the rules.
func (r QualityRules) Acceptable(text string) bool {
	text = strings.TrimSpace(text)
	if len(text) <= r.MinLength {
		return false
	}
	if strings.HasPrefix(text, "RT @") {
		return false
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "http") {
		return false
	}
	for _, w := range r.SpamWords {
		if strings.Contains(lower, w) {
			return false
		}
	}
	if r.MaxHashtags > 0 && strings.Count(text, "#") > r.MaxHashtags {
		return false
	}
	if r.MaxMentions > 0 && strings.Count(text, "@") > r.MaxMentions {
		return false
	}
	if r.MaxCapsRatio > 0 {
		var letters, upper int
		for _, ch := range text {
			if unicode.IsLetter(ch) {
				letters++
				if unicode.IsUpper(ch) {
					upper++
				}
			}
		}
		if letters > 0 && float64(upper)/float64(letters) > r.MaxCapsRatio {
			return false
		}
	}
	return true
}

// QualityFilter keeps acceptable candidates, or returns the input unchanged
// when fewer than MinPassing survive.
func QualityFilter(candidates []models.Candidate, rules QualityRules) []models.Candidate {
	out := make([]models.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if rules.Acceptable(c.Text) {
			out = append(out, c)
		}
	}
	if len(out) < rules.MinPassing {
		return candidates
	}
	return out
}
