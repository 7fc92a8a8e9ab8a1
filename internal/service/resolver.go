package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nvoronov/link-manager/internal/analytics"
	"github.com/nvoronov/link-manager/internal/database"
	"github.com/nvoronov/link-manager/internal/lifecycle"
	"github.com/nvoronov/link-manager/internal/models"
	"github.com/nvoronov/link-manager/internal/slug"
	"golang.org/x/sync/errgroup"
)

// ResolvableLinkFinder queries the permanent collection for redirect targets.
type ResolvableLinkFinder interface {
	// FindResolvable returns the active, non-admin-disabled link for the slug
	// in the given domain scope, or database.ErrLinkNotFound.
	FindResolvable(ctx context.Context, slug string, domainID *int64) (*models.Link, error)
}

// LiveTempLinkFinder queries the temporary collection; expired rows are
// filtered by the store itself.
type LiveTempLinkFinder interface {
	FindLiveBySlug(ctx context.Context, slug string) (*models.TempLink, error)
}

// DomainVerifier resolves a hostname to its custom-domain record.
type DomainVerifier interface {
	GetByHostname(ctx context.Context, hostname string) (*models.CustomDomain, error)
}

// ClickSubmitter schedules fire-and-forget click recording.
type ClickSubmitter interface {
	Submit(click *analytics.Click) error
}

// ResolutionKind tags which collection a resolution came from.
type ResolutionKind int

const (
	KindPermanent ResolutionKind = iota
	KindTemporary
)

// Resolution is a successful slug lookup.
type Resolution struct {
	Kind           ResolutionKind
	DestinationURL string
	Link           *models.Link     // set when Kind == KindPermanent
	TempLink       *models.TempLink // set when Kind == KindTemporary
}

// AccessMeta carries request attributes recorded with a resolved access.
type AccessMeta struct {
	ClientIP  string
	UserAgent string
	Referrer  string
}

// Resolver turns a slug plus optional custom-domain context into a redirect
// target, applying the permanent-over-temporary precedence rule.
type Resolver struct {
	links    ResolvableLinkFinder
	temps    LiveTempLinkFinder
	domains  DomainVerifier
	recorder ClickSubmitter
	logger   *slog.Logger
	timeout  time.Duration
	now      func() time.Time
}

func NewResolver(
	links ResolvableLinkFinder,
	temps LiveTempLinkFinder,
	domains DomainVerifier,
	recorder ClickSubmitter,
	logger *slog.Logger,
	timeout time.Duration,
) *Resolver {
	return &Resolver{
		links:    links,
		temps:    temps,
		domains:  domains,
		recorder: recorder,
		logger:   logger,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Resolve looks up a slug. hostname is empty for the default namespace; a
// non-empty hostname must belong to a verified, active custom domain.
//
// Both collections are queried concurrently and joined before the precedence
// rule is applied: a permanent match always wins over a temporary one. The
// surviving record is re-validated by the lifecycle evaluator. On success a
// click is handed to the recorder; that side effect never blocks or fails
// the resolution.
func (r *Resolver) Resolve(ctx context.Context, rawSlug, hostname string, meta AccessMeta) (*Resolution, error) {
	const op = "service.Resolver.Resolve"

	s := slug.Normalize(rawSlug)
	if err := slug.Validate(s); err != nil {
		return nil, fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
	}

	var domainID *int64
	if hostname != "" {
		domain, err := r.domains.GetByHostname(ctx, hostname)
		if err != nil {
			if errors.Is(err, database.ErrDomainNotFound) {
				return nil, fmt.Errorf("%s: %w", op, ErrInvalidDomain)
			}
			return nil, fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
		}
		if !domain.IsVerified || !domain.IsActive {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidDomain)
		}
		domainID = &domain.ID
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		permanent *models.Link
		temporary *models.TempLink
	)

	g, gctx := errgroup.WithContext(lookupCtx)

	g.Go(func() error {
		link, err := r.links.FindResolvable(gctx, s, domainID)
		if err != nil {
			if errors.Is(err, database.ErrLinkNotFound) {
				return nil
			}
			return err
		}
		permanent = link
		return nil
	})

	g.Go(func() error {
		link, err := r.temps.FindLiveBySlug(gctx, s)
		if err != nil {
			if errors.Is(err, database.ErrTempLinkNotFound) {
				return nil
			}
			return err
		}
		temporary = link
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
	}

	switch {
	case permanent != nil:
		result := lifecycle.Evaluate(permanent, r.now())
		if !result.Resolvable() {
			return nil, fmt.Errorf("%s: %w", op, &BlockedError{Result: result})
		}

		r.submitClick(&analytics.Click{
			LinkID:    permanent.ID,
			ClientIP:  meta.ClientIP,
			UserAgent: meta.UserAgent,
			Referrer:  meta.Referrer,
			ClickedAt: r.now(),
		})

		return &Resolution{
			Kind:           KindPermanent,
			DestinationURL: permanent.OriginalURL,
			Link:           permanent,
		}, nil

	case temporary != nil:
		r.submitClick(&analytics.Click{
			LinkID:      temporary.ID,
			IsTemporary: true,
			ClientIP:    meta.ClientIP,
			UserAgent:   meta.UserAgent,
			Referrer:    meta.Referrer,
			ClickedAt:   r.now(),
		})

		return &Resolution{
			Kind:           KindTemporary,
			DestinationURL: temporary.OriginalURL,
			TempLink:       temporary,
		}, nil

	default:
		return nil, fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
	}
}

func (r *Resolver) submitClick(click *analytics.Click) {
	if err := r.recorder.Submit(click); err != nil {
		r.logger.Warn("failed to submit click for recording",
			slog.Int64("link_id", click.LinkID),
			slog.Any("error", err))
	}
}
