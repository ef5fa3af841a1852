package chathub

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"pairchat/backend/internal/config"
	"pairchat/backend/internal/models"
)

var fingerprintPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]+$`)

// ValidateFingerprint checks that fp is a non-empty opaque token.
func ValidateFingerprint(fp string) error {
	if fp == "" {
		return fmt.Errorf("missing fingerprint: %w", models.ErrValidation)
	}
	if len(fp) > config.MaxFingerprintLength || !fingerprintPattern.MatchString(fp) {
		return fmt.Errorf("malformed fingerprint: %w", models.ErrValidation)
	}
	return nil
}

// ResolveFingerprint returns the fingerprint an event from p acts as. An
// empty claim falls back to the profile. A verified profile fingerprint
// cannot be swapped for a different one.
func ResolveFingerprint(p models.Profile, claimed string) (string, error) {
	if claimed == "" {
		return p.Fingerprint, nil
	}
	if p.Verified && claimed != p.Fingerprint {
		return "", fmt.Errorf("fingerprint %q does not match session token: %w", claimed, models.ErrValidation)
	}
	return claimed, nil
}

func verifiedAs(p models.Profile, fingerprint string) bool {
	return p.Verified && p.Fingerprint == fingerprint
}

// NormalizeName trims name and caps its length, falling back to the
// default display name.
func NormalizeName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" || !utf8.ValidString(name) {
		return config.DefaultDisplayName
	}
	if utf8.RuneCountInString(name) > config.MaxDisplayNameLength {
		name = string([]rune(name)[:config.MaxDisplayNameLength])
	}
	return name
}

// NormalizeInterests trims tags, drops empty and duplicate ones (case
// insensitive) and substitutes the "no interest" sentinel for an empty list.
func NormalizeInterests(tags []string) ([]string, error) {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if !utf8.ValidString(t) || utf8.RuneCountInString(t) > config.MaxInterestLength {
			return nil, fmt.Errorf("interest %q too long: %w", t, models.ErrValidation)
		}
		key := strings.ToLower(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	if len(out) > config.MaxInterestTags {
		return nil, fmt.Errorf("more than %d interests: %w", config.MaxInterestTags, models.ErrValidation)
	}
	if len(out) == 0 {
		return []string{models.NoInterest}, nil
	}
	return out, nil
}
