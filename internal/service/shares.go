package service

import (
	"context"
	"fmt"
	"time"

	"github.com/nvoronov/link-manager/internal/database"
	"github.com/nvoronov/link-manager/internal/models"
	"github.com/nvoronov/link-manager/internal/slug"
)

// ShareRepository stores capability grants.
type ShareRepository interface {
	Upsert(ctx context.Context, grant *models.SharedLink) (*models.SharedLink, error)
	Delete(ctx context.Context, linkID, userID int64) error
}

// ShareInput is the payload for granting or updating share access.
type ShareInput struct {
	SharedWithUserID int64
	SharedWithEmail  string

	CanView      bool
	CanEdit      bool
	CanDelete    bool
	CanViewStats bool
	CanShare     bool

	ExpiresAt *time.Time
}

// ShareService manages share grants. Granting or revoking requires the
// acting caller to be the owner or to hold canShare on the link, which is
// the same permission evaluator applied recursively.
type ShareService struct {
	links  LinkRepository
	shares ShareRepository
	perms  Authorizer
	now    func() time.Time
}

func NewShareService(links LinkRepository, shares ShareRepository, perms Authorizer) *ShareService {
	return &ShareService{
		links:  links,
		shares: shares,
		perms:  perms,
		now:    time.Now,
	}
}

// UpsertGrant creates or replaces the grant for (link, grantee). An existing
// grant for the pair is updated in place, never duplicated.
func (s *ShareService) UpsertGrant(ctx context.Context, callerID int64, rawSlug string, in ShareInput) (*models.SharedLink, error) {
	const op = "service.ShareService.UpsertGrant"

	link, err := s.fetch(ctx, rawSlug)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.perms.Authorize(ctx, callerID, link, models.CapShare); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if in.SharedWithUserID == link.OwnerID {
		return nil, fmt.Errorf("%s: %w", op, ErrOwnGrant)
	}

	if in.ExpiresAt != nil && !in.ExpiresAt.After(s.now()) {
		return nil, fmt.Errorf("%s: %w", op, validationErr("grant expiry must be in the future"))
	}

	grant, err := s.shares.Upsert(ctx, &models.SharedLink{
		LinkID:           link.ID,
		OwnerID:          link.OwnerID,
		SharedWithUserID: in.SharedWithUserID,
		SharedWithEmail:  in.SharedWithEmail,
		CanView:          in.CanView,
		CanEdit:          in.CanEdit,
		CanDelete:        in.CanDelete,
		CanViewStats:     in.CanViewStats,
		CanShare:         in.CanShare,
		IsActive:         true,
		ExpiresAt:        in.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to upsert grant: %w", op, err)
	}

	return grant, nil
}

// RevokeGrant removes the grant for (link, grantee).
func (s *ShareService) RevokeGrant(ctx context.Context, callerID int64, rawSlug string, granteeID int64) error {
	const op = "service.ShareService.RevokeGrant"

	link, err := s.fetch(ctx, rawSlug)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.perms.Authorize(ctx, callerID, link, models.CapShare); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.shares.Delete(ctx, link.ID, granteeID); err != nil {
		return fmt.Errorf("%s: failed to revoke grant: %w", op, err)
	}

	return nil
}

func (s *ShareService) fetch(ctx context.Context, rawSlug string) (*models.Link, error) {
	normalized := slug.Normalize(rawSlug)
	if err := slug.Validate(normalized); err != nil {
		return nil, database.ErrLinkNotFound
	}

	return s.links.GetBySlug(ctx, normalized)
}
