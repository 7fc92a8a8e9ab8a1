package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nvoronov/link-manager/internal/database"
	"github.com/nvoronov/link-manager/internal/models"
	"github.com/nvoronov/link-manager/internal/permission"
	"github.com/nvoronov/link-manager/internal/slug"
)

const (
	maxSlugRetries = 5

	minMaxClicks = 1
	maxMaxClicks = 1_000_000

	minExtendHours = 1
	maxExtendHours = 720

	suggestionLimit = 3
)

// LinkRepository is the permanent-link storage the service depends on.
type LinkRepository interface {
	Create(ctx context.Context, link *models.Link) (*models.Link, error)
	GetBySlug(ctx context.Context, slug string) (*models.Link, error)
	Update(ctx context.Context, link *models.Link) (*models.Link, error)
	Delete(ctx context.Context, id int64) error
	SlugExists(ctx context.Context, slug string) (bool, error)
}

// GrantCounter counts live share grants, for the stats payload.
type GrantCounter interface {
	CountActive(ctx context.Context, linkID int64) (int64, error)
}

// Authorizer gates every mutating or reading operation on a link.
type Authorizer interface {
	Authorize(ctx context.Context, callerID int64, link *models.Link, required models.Capability) (*permission.Decision, error)
}

// CreateLinkInput is the payload for creating a permanent link.
type CreateLinkInput struct {
	CustomSlug    string
	OriginalURL   string
	Title         string
	Description   string
	IsPublicStats bool

	IsTemporary bool
	ExpiresAt   *time.Time

	IsClickLimited bool
	MaxClicks      *int64

	IsTimeRestricted        bool
	TimeRestrictionStart    string
	TimeRestrictionEnd      string
	TimeRestrictionTimezone string
}

// UpdateLinkInput carries the mutable fields of a link. Nil pointers leave
// the current value untouched.
type UpdateLinkInput struct {
	OriginalURL   *string
	Title         *string
	Description   *string
	IsActive      *bool
	IsFavorite    *bool
	IsPublicStats *bool

	IsTemporary *bool
	ExpiresAt   *time.Time

	IsClickLimited *bool
	MaxClicks      *int64

	IsTimeRestricted        *bool
	TimeRestrictionStart    *string
	TimeRestrictionEnd      *string
	TimeRestrictionTimezone *string
}

// LinkStats is the stats payload for a link.
type LinkStats struct {
	Link         *models.Link
	ActiveGrants int64
}

// LinkService manages permanent links: creation with collision handling,
// permission-gated reads and mutations, and the expiry extension operation.
type LinkService struct {
	repo      LinkRepository
	grants    GrantCounter
	perms     Authorizer
	generator *slug.Generator
	now       func() time.Time
}

func NewLinkService(repo LinkRepository, grants GrantCounter, perms Authorizer, generator *slug.Generator) *LinkService {
	return &LinkService{
		repo:      repo,
		grants:    grants,
		perms:     perms,
		generator: generator,
		now:       time.Now,
	}
}

// CreateLink validates the lifecycle toggles, settles the slug (custom with
// collision suggestions, or auto-generated with escalation) and stores the
// link under the calling owner.
func (s *LinkService) CreateLink(ctx context.Context, ownerID int64, in CreateLinkInput) (*models.Link, error) {
	const op = "service.LinkService.CreateLink"

	link := &models.Link{
		OwnerID:                 ownerID,
		OriginalURL:             in.OriginalURL,
		Title:                   in.Title,
		Description:             in.Description,
		IsPublicStats:           in.IsPublicStats,
		IsTemporary:             in.IsTemporary,
		ExpiresAt:               in.ExpiresAt,
		IsClickLimited:          in.IsClickLimited,
		MaxClicks:               in.MaxClicks,
		IsTimeRestricted:        in.IsTimeRestricted,
		TimeRestrictionStart:    in.TimeRestrictionStart,
		TimeRestrictionEnd:      in.TimeRestrictionEnd,
		TimeRestrictionTimezone: in.TimeRestrictionTimezone,
	}

	if err := s.validateLifecycle(link); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if in.CustomSlug != "" {
		candidate := slug.Normalize(in.CustomSlug)
		if err := slug.Validate(candidate); err != nil {
			return nil, fmt.Errorf("%s: %w", op, validationErr("invalid slug %q", in.CustomSlug))
		}

		taken, err := s.repo.SlugExists(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to check slug: %w", op, err)
		}
		if taken {
			return nil, fmt.Errorf("%s: %w", op, s.slugTaken(ctx, candidate))
		}

		link.Slug = candidate

		created, err := s.repo.Create(ctx, link)
		if err != nil {
			// Lost a race for the slug between the check and the insert.
			if errors.Is(err, database.ErrSlugExists) {
				return nil, fmt.Errorf("%s: %w", op, s.slugTaken(ctx, candidate))
			}
			return nil, fmt.Errorf("%s: failed to create link: %w", op, err)
		}

		return created, nil
	}

	for i := 0; i < maxSlugRetries; i++ {
		candidate, err := s.generator.Generate(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		link.Slug = candidate

		created, err := s.repo.Create(ctx, link)
		if err != nil {
			if errors.Is(err, database.ErrSlugExists) {
				continue
			}
			return nil, fmt.Errorf("%s: failed to create link: %w", op, err)
		}

		return created, nil
	}

	return nil, fmt.Errorf("%s: %w", op, ErrMaxRetriesExceeded)
}

// GetLink fetches a link for a caller holding at least view access.
func (s *LinkService) GetLink(ctx context.Context, callerID int64, rawSlug string) (*models.Link, error) {
	const op = "service.LinkService.GetLink"

	link, err := s.fetch(ctx, rawSlug)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.perms.Authorize(ctx, callerID, link, models.CapView); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return link, nil
}

// UpdateLink applies a partial update after a canEdit check, re-validating
// the lifecycle toggle consistency on the merged record. Disabling a
// restriction clears its dependent fields.
func (s *LinkService) UpdateLink(ctx context.Context, callerID int64, rawSlug string, in UpdateLinkInput) (*models.Link, error) {
	const op = "service.LinkService.UpdateLink"

	link, err := s.fetch(ctx, rawSlug)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.perms.Authorize(ctx, callerID, link, models.CapEdit); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	applyUpdate(link, in)

	if err := s.validateLifecycle(link); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	updated, err := s.repo.Update(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to update link: %w", op, err)
	}

	return updated, nil
}

// ExtendExpiry pushes a temporary link's expiry forward by 1..720 hours from
// its current expiry (or from now if already elapsed) and clears the cached
// expired hint.
func (s *LinkService) ExtendExpiry(ctx context.Context, callerID int64, rawSlug string, hours int) (*models.Link, error) {
	const op = "service.LinkService.ExtendExpiry"

	if hours < minExtendHours || hours > maxExtendHours {
		return nil, fmt.Errorf("%s: %w", op, validationErr("hours must be between %d and %d", minExtendHours, maxExtendHours))
	}

	link, err := s.fetch(ctx, rawSlug)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.perms.Authorize(ctx, callerID, link, models.CapEdit); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !link.IsTemporary {
		return nil, fmt.Errorf("%s: %w", op, validationErr("link is not temporary"))
	}

	base := s.now()
	if link.ExpiresAt != nil && link.ExpiresAt.After(base) {
		base = *link.ExpiresAt
	}

	newExpiry := base.Add(time.Duration(hours) * time.Hour)
	link.ExpiresAt = &newExpiry
	link.IsExpired = false

	updated, err := s.repo.Update(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to extend link: %w", op, err)
	}

	return updated, nil
}

// DeleteLink removes a link after a canDelete check. Share grants go with it.
func (s *LinkService) DeleteLink(ctx context.Context, callerID int64, rawSlug string) error {
	const op = "service.LinkService.DeleteLink"

	link, err := s.fetch(ctx, rawSlug)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.perms.Authorize(ctx, callerID, link, models.CapDelete); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.repo.Delete(ctx, link.ID); err != nil {
		return fmt.Errorf("%s: failed to delete link: %w", op, err)
	}

	return nil
}

// GetStats returns the stats payload. Public-stats links bypass the
// relationship lookup entirely; otherwise the caller needs canViewStats.
func (s *LinkService) GetStats(ctx context.Context, callerID int64, rawSlug string) (*LinkStats, error) {
	const op = "service.LinkService.GetStats"

	link, err := s.fetch(ctx, rawSlug)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !link.IsPublicStats {
		if _, err := s.perms.Authorize(ctx, callerID, link, models.CapViewStats); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	grants, err := s.grants.CountActive(ctx, link.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to count grants: %w", op, err)
	}

	return &LinkStats{
		Link:         link,
		ActiveGrants: grants,
	}, nil
}

func (s *LinkService) fetch(ctx context.Context, rawSlug string) (*models.Link, error) {
	normalized := slug.Normalize(rawSlug)
	if err := slug.Validate(normalized); err != nil {
		return nil, database.ErrLinkNotFound
	}

	return s.repo.GetBySlug(ctx, normalized)
}

func (s *LinkService) slugTaken(ctx context.Context, candidate string) error {
	suggestions, err := s.generator.Suggest(ctx, candidate, suggestionLimit)
	if err != nil {
		// Suggestions are best effort; the conflict itself still stands.
		suggestions = nil
	}

	return &SlugTakenError{
		Slug:        candidate,
		Suggestions: suggestions,
	}
}

// validateLifecycle enforces toggle/field consistency: an enabled restriction
// needs its dependent fields valid, a disabled one must not carry them.
func (s *LinkService) validateLifecycle(l *models.Link) error {
	if l.IsTemporary {
		if l.ExpiresAt == nil {
			return validationErr("expires_at is required for temporary links")
		}
		if !l.ExpiresAt.After(s.now()) {
			return validationErr("expires_at must be in the future")
		}
	} else {
		l.ExpiresAt = nil
		l.IsExpired = false
	}

	if l.IsClickLimited {
		if l.MaxClicks == nil {
			return validationErr("max_clicks is required for click-limited links")
		}
		if *l.MaxClicks < minMaxClicks || *l.MaxClicks > maxMaxClicks {
			return validationErr("max_clicks must be between %d and %d", minMaxClicks, maxMaxClicks)
		}
	} else {
		l.MaxClicks = nil
	}

	if l.IsTimeRestricted {
		if l.TimeRestrictionStart == "" || l.TimeRestrictionEnd == "" || l.TimeRestrictionTimezone == "" {
			return validationErr("time restriction requires start, end and timezone")
		}
		if l.TimeRestrictionStart == l.TimeRestrictionEnd {
			return validationErr("time restriction start and end must differ")
		}
		if _, err := time.Parse("15:04", l.TimeRestrictionStart); err != nil {
			return validationErr("invalid time restriction start %q", l.TimeRestrictionStart)
		}
		if _, err := time.Parse("15:04", l.TimeRestrictionEnd); err != nil {
			return validationErr("invalid time restriction end %q", l.TimeRestrictionEnd)
		}
		if _, err := time.LoadLocation(l.TimeRestrictionTimezone); err != nil {
			return validationErr("invalid timezone %q", l.TimeRestrictionTimezone)
		}
	} else {
		l.TimeRestrictionStart = ""
		l.TimeRestrictionEnd = ""
		l.TimeRestrictionTimezone = ""
	}

	return nil
}

func applyUpdate(l *models.Link, in UpdateLinkInput) {
	if in.OriginalURL != nil {
		l.OriginalURL = *in.OriginalURL
	}
	if in.Title != nil {
		l.Title = *in.Title
	}
	if in.Description != nil {
		l.Description = *in.Description
	}
	if in.IsActive != nil {
		l.IsActive = *in.IsActive
	}
	if in.IsFavorite != nil {
		l.IsFavorite = *in.IsFavorite
	}
	if in.IsPublicStats != nil {
		l.IsPublicStats = *in.IsPublicStats
	}

	if in.IsTemporary != nil {
		l.IsTemporary = *in.IsTemporary
	}
	if in.ExpiresAt != nil {
		l.ExpiresAt = in.ExpiresAt
		l.IsExpired = false
	}

	if in.IsClickLimited != nil {
		l.IsClickLimited = *in.IsClickLimited
	}
	if in.MaxClicks != nil {
		l.MaxClicks = in.MaxClicks
	}

	if in.IsTimeRestricted != nil {
		l.IsTimeRestricted = *in.IsTimeRestricted
	}
	if in.TimeRestrictionStart != nil {
		l.TimeRestrictionStart = *in.TimeRestrictionStart
	}
	if in.TimeRestrictionEnd != nil {
		l.TimeRestrictionEnd = *in.TimeRestrictionEnd
	}
	if in.TimeRestrictionTimezone != nil {
		l.TimeRestrictionTimezone = *in.TimeRestrictionTimezone
	}
}
