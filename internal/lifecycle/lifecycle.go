package lifecycle

import (
	"fmt"
	"time"

	"github.com/nvoronov/link-manager/internal/models"
)

// State is the effective resolvability of a link at a given instant.
type State int

const (
	// StateResolvable is the only state that permits redirection.
	StateResolvable State = iota
	// StateDisabled covers both the owner toggle and the admin block.
	StateDisabled
	// StateExpired means a temporary link is past its expiry.
	StateExpired
	// StateClickExhausted means a click-limited link has used its budget.
	StateClickExhausted
	// StateOutsideWindow means a time-restricted link is outside its daily window.
	StateOutsideWindow
)

func (s State) String() string {
	switch s {
	case StateResolvable:
		return "resolvable"
	case StateDisabled:
		return "disabled"
	case StateExpired:
		return "expired"
	case StateClickExhausted:
		return "click_exhausted"
	case StateOutsideWindow:
		return "outside_window"
	}
	return "unknown"
}

// Result carries the computed state and, where safe to disclose, a
// human-readable reason (expiry date, click budget).
type Result struct {
	State   State
	Message string
}

// Resolvable reports whether the link may redirect.
func (r Result) Resolvable() bool {
	return r.State == StateResolvable
}

// Evaluate computes the effective state of a link fresh from timestamps and
// counters. Checks run in a fixed order and the first failing one wins.
// Cached flags such as IsExpired are never consulted; only the store-enforced
// temp-link expiry is trusted upstream.
func Evaluate(l *models.Link, now time.Time) Result {
	if !l.IsActive || l.IsDisabledByAdmin {
		return Result{State: StateDisabled}
	}

	if l.IsTemporary && l.ExpiresAt != nil && !l.ExpiresAt.After(now) {
		return Result{
			State:   StateExpired,
			Message: fmt.Sprintf("This link expired on %s.", l.ExpiresAt.UTC().Format("Jan 2, 2006 15:04 MST")),
		}
	}

	if l.IsClickLimited && l.MaxClicks != nil && l.ClickCount >= *l.MaxClicks {
		return Result{
			State:   StateClickExhausted,
			Message: fmt.Sprintf("This link reached its limit of %d clicks.", *l.MaxClicks),
		}
	}

	if l.IsTimeRestricted {
		inside, err := insideWindow(now, l.TimeRestrictionStart, l.TimeRestrictionEnd, l.TimeRestrictionTimezone)
		if err != nil || !inside {
			return Result{State: StateOutsideWindow}
		}
	}

	return Result{State: StateResolvable}
}

// insideWindow reports whether now falls inside [start, end) in the given
// timezone. When start > end the window wraps across midnight.
func insideWindow(now time.Time, start, end, timezone string) (bool, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return false, fmt.Errorf("lifecycle: invalid timezone %q: %w", timezone, err)
	}

	startMin, err := parseClock(start)
	if err != nil {
		return false, err
	}
	endMin, err := parseClock(end)
	if err != nil {
		return false, err
	}

	local := now.In(loc)
	cur := local.Hour()*60 + local.Minute()

	if startMin <= endMin {
		return cur >= startMin && cur < endMin, nil
	}
	// Wrapping window, e.g. 22:00-06:00.
	return cur >= startMin || cur < endMin, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("lifecycle: invalid clock value %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
