package models

import "time"

// AnalyticsEvent is one record per resolved access. Write-only for this
// service; it is appended alongside the click count increment.
type AnalyticsEvent struct {
	ID          int64
	LinkID      int64
	IsTemporary bool
	HashedIP    string
	Country     string
	DeviceType  string
	Referrer    string
	ClickedAt   time.Time
}
