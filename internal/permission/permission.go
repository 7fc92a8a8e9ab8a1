package permission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nvoronov/link-manager/internal/database"
	"github.com/nvoronov/link-manager/internal/models"
)

var (
	// ErrNoRelationship is returned when the caller is neither the owner nor
	// the holder of a live grant. Callers map it to not-found semantics so
	// the link's existence is not leaked.
	ErrNoRelationship = errors.New("no relationship with link")
	// ErrForbidden is returned when a relationship exists but the grant lacks
	// the required capability.
	ErrForbidden = errors.New("capability not granted")
)

// GrantRepository looks up the share grant for a (link, user) pair.
type GrantRepository interface {
	// GetGrant returns the grant for the pair or database.ErrGrantNotFound.
	GetGrant(ctx context.Context, linkID, userID int64) (*models.SharedLink, error)
}

// Decision is the successful outcome of an authorization check.
type Decision struct {
	// IsOwner is set when ownership short-circuited the grant lookup.
	// Ownership implies the full capability set.
	IsOwner bool
	// Grant holds the matched share grant for non-owners, for capability
	// introspection by the caller. Nil for owners.
	Grant *models.SharedLink
}

// Evaluator decides whether a caller may act on a link.
type Evaluator struct {
	grants GrantRepository
	now    func() time.Time
}

func New(grants GrantRepository) *Evaluator {
	return &Evaluator{
		grants: grants,
		now:    time.Now,
	}
}

// Authorize checks the caller against a link. Ownership wins outright;
// otherwise a live grant must exist and, when required is non-empty, carry
// that capability. An expired or inactive grant behaves as if absent.
func (e *Evaluator) Authorize(ctx context.Context, callerID int64, link *models.Link, required models.Capability) (*Decision, error) {
	const op = "permission.Evaluator.Authorize"

	if link.OwnerID == callerID {
		return &Decision{IsOwner: true}, nil
	}

	grant, err := e.grants.GetGrant(ctx, link.ID, callerID)
	if err != nil {
		if errors.Is(err, database.ErrGrantNotFound) {
			return nil, ErrNoRelationship
		}
		return nil, fmt.Errorf("%s: failed to look up grant: %w", op, err)
	}

	if !grant.ValidAt(e.now()) {
		return nil, ErrNoRelationship
	}

	if required != "" && !grant.Has(required) {
		return nil, ErrForbidden
	}

	return &Decision{Grant: grant}, nil
}
