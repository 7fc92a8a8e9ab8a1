package lifecycle

import (
	"testing"
	"time"

	"github.com/nvoronov/link-manager/internal/models"
	"github.com/stretchr/testify/assert"
)

func intPtr(v int64) *int64 {
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func activeLink() *models.Link {
	return &models.Link{
		Slug:        "abc123",
		OriginalURL: "https://example.com",
		IsActive:    true,
	}
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

	t.Run("plain active link resolves", func(t *testing.T) {
		got := Evaluate(activeLink(), now)

		assert.Equal(t, StateResolvable, got.State)
		assert.True(t, got.Resolvable())
	})

	t.Run("inactive link is disabled", func(t *testing.T) {
		l := activeLink()
		l.IsActive = false

		assert.Equal(t, StateDisabled, Evaluate(l, now).State)
	})

	t.Run("admin block is disabled", func(t *testing.T) {
		l := activeLink()
		l.IsDisabledByAdmin = true
		l.DisabledReason = "abuse report"

		assert.Equal(t, StateDisabled, Evaluate(l, now).State)
	})

	t.Run("disabled wins over every other state", func(t *testing.T) {
		l := activeLink()
		l.IsActive = false
		l.IsTemporary = true
		l.ExpiresAt = timePtr(now.Add(-time.Hour))
		l.IsClickLimited = true
		l.MaxClicks = intPtr(1)
		l.ClickCount = 5

		assert.Equal(t, StateDisabled, Evaluate(l, now).State)
	})

	t.Run("expired temporary link", func(t *testing.T) {
		l := activeLink()
		l.IsTemporary = true
		l.ExpiresAt = timePtr(now.Add(-time.Minute))

		got := Evaluate(l, now)

		assert.Equal(t, StateExpired, got.State)
		assert.Contains(t, got.Message, "expired")
	})

	t.Run("expiry is time-based, cached flag untrusted", func(t *testing.T) {
		l := activeLink()
		l.IsTemporary = true
		l.ExpiresAt = timePtr(now.Add(time.Hour))
		l.IsExpired = true

		assert.Equal(t, StateResolvable, Evaluate(l, now).State)
	})

	t.Run("expiry boundary is inclusive", func(t *testing.T) {
		l := activeLink()
		l.IsTemporary = true
		l.ExpiresAt = timePtr(now)

		assert.Equal(t, StateExpired, Evaluate(l, now).State)
	})

	t.Run("click limit boundary uses >=", func(t *testing.T) {
		l := activeLink()
		l.IsClickLimited = true
		l.MaxClicks = intPtr(5)
		l.ClickCount = 5

		got := Evaluate(l, now)

		assert.Equal(t, StateClickExhausted, got.State)
		assert.Contains(t, got.Message, "5")
	})

	t.Run("one click left still resolves", func(t *testing.T) {
		l := activeLink()
		l.IsClickLimited = true
		l.MaxClicks = intPtr(5)
		l.ClickCount = 4

		assert.Equal(t, StateResolvable, Evaluate(l, now).State)
	})

	t.Run("expired wins over click-exhausted", func(t *testing.T) {
		l := activeLink()
		l.IsTemporary = true
		l.ExpiresAt = timePtr(now.Add(-time.Hour))
		l.IsClickLimited = true
		l.MaxClicks = intPtr(1)
		l.ClickCount = 3

		assert.Equal(t, StateExpired, Evaluate(l, now).State)
	})
}

func TestEvaluate_TimeWindow(t *testing.T) {
	restricted := func(start, end string) *models.Link {
		l := activeLink()
		l.IsTimeRestricted = true
		l.TimeRestrictionStart = start
		l.TimeRestrictionEnd = end
		l.TimeRestrictionTimezone = "UTC"
		return l
	}

	at := func(hour, minute int) time.Time {
		return time.Date(2025, time.March, 10, hour, minute, 0, 0, time.UTC)
	}

	t.Run("inside plain window", func(t *testing.T) {
		assert.Equal(t, StateResolvable, Evaluate(restricted("09:00", "17:00"), at(12, 0)).State)
	})

	t.Run("outside plain window", func(t *testing.T) {
		assert.Equal(t, StateOutsideWindow, Evaluate(restricted("09:00", "17:00"), at(18, 0)).State)
	})

	t.Run("start is inclusive, end exclusive", func(t *testing.T) {
		assert.Equal(t, StateResolvable, Evaluate(restricted("09:00", "17:00"), at(9, 0)).State)
		assert.Equal(t, StateOutsideWindow, Evaluate(restricted("09:00", "17:00"), at(17, 0)).State)
	})

	t.Run("wrapping window around midnight", func(t *testing.T) {
		l := restricted("22:00", "06:00")

		assert.Equal(t, StateResolvable, Evaluate(l, at(23, 0)).State)
		assert.Equal(t, StateResolvable, Evaluate(l, at(2, 0)).State)
		assert.Equal(t, StateOutsideWindow, Evaluate(l, at(10, 0)).State)
	})

	t.Run("timezone conversion applies", func(t *testing.T) {
		l := restricted("09:00", "17:00")
		l.TimeRestrictionTimezone = "America/New_York"

		// 14:00 UTC is 09:00 or 10:00 in New York depending on DST; either
		// way it is inside the window, while 03:00 UTC is well outside.
		assert.Equal(t, StateResolvable, Evaluate(l, at(14, 0)).State)
		assert.Equal(t, StateOutsideWindow, Evaluate(l, at(3, 0)).State)
	})

	t.Run("bad timezone blocks resolution", func(t *testing.T) {
		l := restricted("09:00", "17:00")
		l.TimeRestrictionTimezone = "Not/AZone"

		assert.Equal(t, StateOutsideWindow, Evaluate(l, at(12, 0)).State)
	})
}
