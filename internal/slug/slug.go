package slug

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ErrInvalidSlug is returned when a slug fails the format check.
var ErrInvalidSlug = errors.New("invalid slug format")

const (
	// alphabet is the character set auto-generated slugs draw from.
	alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

	maxLen        = 50
	maxGenRetries = 5
	suffixLen     = 3
)

var slugPattern = regexp.MustCompile(`^[a-z0-9_-]{1,50}$`)

// Normalize lowercases a slug. Slugs are case-insensitive; the lowercase
// form is canonical everywhere (storage, lookup, collision checks).
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Validate reports whether a normalized slug is well formed.
func Validate(s string) error {
	if !slugPattern.MatchString(s) {
		return ErrInvalidSlug
	}
	return nil
}

// ExistsFunc reports whether a candidate slug is taken in either the
// permanent or the temporary collection.
type ExistsFunc func(ctx context.Context, slug string) (bool, error)

// Generator produces unique slug candidates against a shared namespace.
type Generator struct {
	length int
	exists ExistsFunc
}

func NewGenerator(length int, exists ExistsFunc) *Generator {
	return &Generator{
		length: length,
		exists: exists,
	}
}

// Generate returns a free auto-generated slug. Each collision retries with
// one more character; after the retry budget a base-36 timestamp suffix is
// appended, which makes further collisions negligible.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	const op = "slug.Generator.Generate"

	var candidate string
	for i := 0; i < maxGenRetries; i++ {
		s, err := gonanoid.Generate(alphabet, g.length+i)
		if err != nil {
			return "", fmt.Errorf("%s: failed to generate slug: %w", op, err)
		}
		candidate = s

		taken, err := g.exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("%s: failed to check slug: %w", op, err)
		}
		if !taken {
			return candidate, nil
		}
	}

	suffix := strconv.FormatInt(time.Now().UnixMilli(), 36)
	candidate = candidate + suffix
	if len(candidate) > maxLen {
		candidate = candidate[:maxLen]
	}

	return candidate, nil
}

// Suggest proposes up to limit free alternatives for a taken custom slug:
// numeric suffixes slug1..slug5 first, then random-suffix variants.
// Every suggestion is re-checked against the shared namespace.
func (g *Generator) Suggest(ctx context.Context, taken string, limit int) ([]string, error) {
	const op = "slug.Generator.Suggest"

	var suggestions []string

	for i := 1; i <= 5 && len(suggestions) < limit; i++ {
		candidate := fmt.Sprintf("%s%d", taken, i)
		if len(candidate) > maxLen {
			continue
		}

		exists, err := g.exists(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to check suggestion: %w", op, err)
		}
		if !exists {
			suggestions = append(suggestions, candidate)
		}
	}

	for i := 0; i < 5 && len(suggestions) < limit; i++ {
		suffix, err := gonanoid.Generate(alphabet, suffixLen)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to generate suffix: %w", op, err)
		}

		candidate := taken + "-" + suffix
		if len(candidate) > maxLen {
			candidate = candidate[:maxLen]
		}

		exists, err := g.exists(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to check suggestion: %w", op, err)
		}
		if !exists {
			suggestions = append(suggestions, candidate)
		}
	}

	return suggestions, nil
}
