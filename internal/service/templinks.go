package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nvoronov/link-manager/internal/database"
	"github.com/nvoronov/link-manager/internal/models"
	"github.com/nvoronov/link-manager/internal/ratelimit"
	"github.com/nvoronov/link-manager/internal/slug"
)

const tempCreateAction = "temp_link_create"

// TempLinkRepository stores anonymous short-lived links.
type TempLinkRepository interface {
	Create(ctx context.Context, link *models.TempLink) (*models.TempLink, error)
}

// TempLinkConfig bounds anonymous creation.
type TempLinkConfig struct {
	// CreateLimit / CreateWindow cap creations per identifier.
	CreateLimit  int64
	CreateWindow time.Duration
	// DefaultTTL applies when the request does not name one; MaxTTL caps it.
	DefaultTTL time.Duration
	MaxTTL     time.Duration
}

func DefaultTempLinkConfig() TempLinkConfig {
	return TempLinkConfig{
		CreateLimit:  5,
		CreateWindow: time.Hour,
		DefaultTTL:   24 * time.Hour,
		MaxTTL:       7 * 24 * time.Hour,
	}
}

// TempLinkService creates anonymous links behind the rate limiter. Temp
// links are never mutated after creation; the store expires them itself.
type TempLinkService struct {
	repo      TempLinkRepository
	generator *slug.Generator
	limiter   *ratelimit.Limiter
	cfg       TempLinkConfig
	now       func() time.Time
}

func NewTempLinkService(repo TempLinkRepository, generator *slug.Generator, limiter *ratelimit.Limiter, cfg TempLinkConfig) *TempLinkService {
	return &TempLinkService{
		repo:      repo,
		generator: generator,
		limiter:   limiter,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Create makes a temporary link for an unauthenticated caller. identifier is
// the rate-limit key material (hashed client IP or token prefix); the limiter
// is consulted before any store write.
func (s *TempLinkService) Create(ctx context.Context, identifier, originalURL string, ttl time.Duration) (*models.TempLink, error) {
	const op = "service.TempLinkService.Create"

	res := s.limiter.Check(tempCreateAction+":"+identifier, s.cfg.CreateLimit, s.cfg.CreateWindow)
	if !res.Allowed {
		return nil, fmt.Errorf("%s: %w", op, &RateLimitError{Result: res})
	}

	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}
	if ttl > s.cfg.MaxTTL {
		ttl = s.cfg.MaxTTL
	}

	for i := 0; i < maxSlugRetries; i++ {
		candidate, err := s.generator.Generate(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		link, err := s.repo.Create(ctx, &models.TempLink{
			Slug:        candidate,
			Token:       uuid.NewString(),
			OriginalURL: originalURL,
			ExpiresAt:   s.now().Add(ttl),
		})
		if err != nil {
			if errors.Is(err, database.ErrSlugExists) {
				continue
			}
			return nil, fmt.Errorf("%s: failed to create temp link: %w", op, err)
		}

		return link, nil
	}

	return nil, fmt.Errorf("%s: %w", op, ErrMaxRetriesExceeded)
}
