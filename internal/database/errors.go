package database

import "errors"

var (
	// ErrSlugExists is returned when an attempt is made to create a link
	// with a slug that is already taken in either collection.
	ErrSlugExists = errors.New("slug exists")
	// ErrLinkNotFound is returned when no link matches the requested slug.
	ErrLinkNotFound = errors.New("link not found")
	// ErrTempLinkNotFound is returned when no live temporary link matches
	// the requested slug.
	ErrTempLinkNotFound = errors.New("temporary link not found")
	// ErrGrantNotFound is returned when no share grant exists for a
	// (link, user) pair.
	ErrGrantNotFound = errors.New("share grant not found")
	// ErrDomainNotFound is returned when a hostname has no domain record.
	ErrDomainNotFound = errors.New("custom domain not found")
)
