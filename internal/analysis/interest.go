package analysis

import (
	"strings"

	"pairchat/backend/internal/config"
	"pairchat/backend/internal/models"
)

// InterestMatcher decides whether two interest tags are compatible.
type InterestMatcher interface {
	Similar(a, b string) bool
}

// FuzzyMatcher treats two tags as similar when one contains the other or
// both share a common prefix of at least MinPrefix runes. Comparison is
// case-insensitive and ignores surrounding whitespace.
type FuzzyMatcher struct {
	MinPrefix int
}

// NewFuzzyMatcher returns a FuzzyMatcher using the configured prefix length.
func NewFuzzyMatcher() FuzzyMatcher {
	return FuzzyMatcher{MinPrefix: config.MinPrefixLength}
}

// Similar implements InterestMatcher.
func (f FuzzyMatcher) Similar(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	if f.MinPrefix <= 0 {
		return false
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) < f.MinPrefix || len(rb) < f.MinPrefix {
		return false
	}
	for i := 0; i < f.MinPrefix; i++ {
		if ra[i] != rb[i] {
			return false
		}
	}
	return true
}

// Similar compares two tags with the default FuzzyMatcher.
func Similar(a, b string) bool {
	return NewFuzzyMatcher().Similar(a, b)
}

// Overlaps reports whether any tag in a is similar to any tag in b. The
// NoInterest sentinel never overlaps with anything.
func Overlaps(m InterestMatcher, a, b []string) bool {
	for _, x := range a {
		if x == models.NoInterest {
			continue
		}
		for _, y := range b {
			if y == models.NoInterest {
				continue
			}
			if m.Similar(x, y) {
				return true
			}
		}
	}
	return false
}

// SharedSummary lists the tags from both sides that took part in a similar
// pair, in first-seen order, joined with ", ". It returns "" when either side
// only carries the NoInterest sentinel.
func SharedSummary(m InterestMatcher, a, b []string) string {
	if onlySentinel(a) || onlySentinel(b) {
		return ""
	}
	var shared []string
	seen := make(map[string]bool)
	add := func(tag string) {
		key := strings.ToLower(strings.TrimSpace(tag))
		if !seen[key] {
			seen[key] = true
			shared = append(shared, tag)
		}
	}
	for _, x := range a {
		for _, y := range b {
			if x == models.NoInterest || y == models.NoInterest {
				continue
			}
			if m.Similar(x, y) {
				add(x)
				add(y)
			}
		}
	}
	return strings.Join(shared, ", ")
}

func onlySentinel(tags []string) bool {
	return len(tags) == 0 || (len(tags) == 1 && tags[0] == models.NoInterest)
}
