package models

import "time"

// Link represents an owned, indefinitely-lived short link with its lifecycle controls.
type Link struct {
	// ID is the unique identifier for the link record.
	ID int64
	// Slug is the short, URL-safe identifier the link resolves by.
	Slug string
	// OwnerID references the user who created the link.
	OwnerID int64
	// OriginalURL is the destination the slug redirects to.
	OriginalURL string
	// Title and Description are optional user-facing metadata.
	Title       string
	Description string
	// IsActive disables resolution when false without deleting the record.
	IsActive bool
	// IsDisabledByAdmin blocks resolution regardless of IsActive.
	IsDisabledByAdmin bool
	DisabledReason    string
	IsFavorite        bool
	// IsPublicStats exposes the stats endpoint without any share grant.
	IsPublicStats bool
	// ClickCount tracks how many times the link has been resolved.
	ClickCount int64
	// CustomDomainID scopes the slug to a verified custom domain when set.
	CustomDomainID *int64

	// Temporary lifecycle extension. ExpiresAt is required while IsTemporary
	// is set and must be in the future at write time. IsExpired is a
	// denormalized hint only; resolution always derives expiry from ExpiresAt.
	IsTemporary bool
	ExpiresAt   *time.Time
	IsExpired   bool

	// Click-limited lifecycle extension.
	IsClickLimited bool
	MaxClicks      *int64

	// Time-restricted lifecycle extension. Start/End use HH:MM in the
	// configured timezone and may wrap across midnight.
	IsTimeRestricted        bool
	TimeRestrictionStart    string
	TimeRestrictionEnd      string
	TimeRestrictionTimezone string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TempLink is an ownerless, short-lived link created anonymously.
// The store enforces its expiry; records past ExpiresAt are never returned.
type TempLink struct {
	ID          int64
	Slug        string
	Token       string
	OriginalURL string
	ClickCount  int64
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// CustomDomain is a user-registered hostname links may be scoped to.
// Only verified and active domains participate in resolution.
type CustomDomain struct {
	ID         int64
	Hostname   string
	IsVerified bool
	IsActive   bool
}
