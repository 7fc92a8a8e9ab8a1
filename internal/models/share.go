package models

import "time"

// Capability names a single permission a share grant can carry.
type Capability string

const (
	CapView      Capability = "can_view"
	CapEdit      Capability = "can_edit"
	CapDelete    Capability = "can_delete"
	CapViewStats Capability = "can_view_stats"
	CapShare     Capability = "can_share"
)

// SharedLink grants a non-owner a set of capabilities on a link.
// At most one grant exists per (link, grantee) pair; re-sharing updates it in place.
type SharedLink struct {
	ID               int64
	LinkID           int64
	OwnerID          int64
	SharedWithUserID int64
	SharedWithEmail  string

	CanView      bool
	CanEdit      bool
	CanDelete    bool
	CanViewStats bool
	CanShare     bool

	IsActive  bool
	ExpiresAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Has reports whether the grant carries the given capability.
func (g *SharedLink) Has(cap Capability) bool {
	switch cap {
	case CapView:
		return g.CanView
	case CapEdit:
		return g.CanEdit
	case CapDelete:
		return g.CanDelete
	case CapViewStats:
		return g.CanViewStats
	case CapShare:
		return g.CanShare
	}
	return false
}

// ValidAt reports whether the grant is usable at the given instant.
// An inactive or expired grant behaves as if it does not exist.
func (g *SharedLink) ValidAt(now time.Time) bool {
	if !g.IsActive {
		return false
	}
	if g.ExpiresAt != nil && !g.ExpiresAt.After(now) {
		return false
	}
	return true
}
