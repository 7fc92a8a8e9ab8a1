package service

import (
	"errors"
	"fmt"

	"github.com/nvoronov/link-manager/internal/lifecycle"
	"github.com/nvoronov/link-manager/internal/ratelimit"
)

var (
	// ErrInvalidDomain is returned when a request arrives via a hostname that
	// is not a verified, active custom domain. Resolution never falls back to
	// the default namespace in that case.
	ErrInvalidDomain = errors.New("invalid custom domain")
	// ErrStoreUnavailable marks a store-level timeout or transport failure on
	// the read path. Distinct from not-found so callers can tell "never
	// existed" from "backend unavailable".
	ErrStoreUnavailable = errors.New("link store unavailable")
	// ErrValidation marks a malformed payload (slug format, inconsistent
	// lifecycle toggles, bad share input).
	ErrValidation = errors.New("validation failed")
	// ErrOwnGrant is returned when a link is shared with its own owner.
	ErrOwnGrant = errors.New("cannot share a link with its owner")
	// ErrMaxRetriesExceeded is returned when slug generation keeps colliding.
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded for generating slug")
)

// SlugTakenError reports a custom-slug collision together with verified-free
// alternatives.
type SlugTakenError struct {
	Slug        string
	Suggestions []string
}

func (e *SlugTakenError) Error() string {
	return fmt.Sprintf("slug %q is already taken", e.Slug)
}

// BlockedError reports a link that exists but is in a non-resolvable
// lifecycle state. The embedded result keeps the internal reason and, for
// expired and click-exhausted links, a message safe to show the caller.
type BlockedError struct {
	Result lifecycle.Result
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("link is blocked: %s", e.Result.State)
}

// Disclosable reports whether the lifecycle reason may be surfaced to the
// caller instead of a generic not-found.
func (e *BlockedError) Disclosable() bool {
	return e.Result.State == lifecycle.StateExpired || e.Result.State == lifecycle.StateClickExhausted
}

// RateLimitError reports a rejected attempt with the window reset instant.
type RateLimitError struct {
	Result ratelimit.Result
}

func (e *RateLimitError) Error() string {
	return "rate limit exceeded"
}

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
