package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nvoronov/link-manager/internal/database"
	"github.com/nvoronov/link-manager/internal/models"
	"github.com/nvoronov/link-manager/internal/permission"
	"github.com/nvoronov/link-manager/internal/slug"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockLinkRepository struct {
	mock.Mock
}

func (m *MockLinkRepository) Create(ctx context.Context, link *models.Link) (*models.Link, error) {
	args := m.Called(ctx, link)
	created, _ := args.Get(0).(*models.Link)
	return created, args.Error(1)
}

func (m *MockLinkRepository) GetBySlug(ctx context.Context, s string) (*models.Link, error) {
	args := m.Called(ctx, s)
	link, _ := args.Get(0).(*models.Link)
	return link, args.Error(1)
}

func (m *MockLinkRepository) Update(ctx context.Context, link *models.Link) (*models.Link, error) {
	args := m.Called(ctx, link)
	updated, _ := args.Get(0).(*models.Link)
	return updated, args.Error(1)
}

func (m *MockLinkRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockLinkRepository) SlugExists(ctx context.Context, s string) (bool, error) {
	args := m.Called(ctx, s)
	return args.Bool(0), args.Error(1)
}

type MockGrantCounter struct {
	mock.Mock
}

func (m *MockGrantCounter) CountActive(ctx context.Context, linkID int64) (int64, error) {
	args := m.Called(ctx, linkID)
	return args.Get(0).(int64), args.Error(1)
}

type MockAuthorizer struct {
	mock.Mock
}

func (m *MockAuthorizer) Authorize(ctx context.Context, callerID int64, link *models.Link, required models.Capability) (*permission.Decision, error) {
	args := m.Called(ctx, callerID, link, required)
	decision, _ := args.Get(0).(*permission.Decision)
	return decision, args.Error(1)
}

type linkServiceMocks struct {
	repo   *MockLinkRepository
	grants *MockGrantCounter
	perms  *MockAuthorizer
}

func newLinkService() (*LinkService, linkServiceMocks) {
	m := linkServiceMocks{
		repo:   new(MockLinkRepository),
		grants: new(MockGrantCounter),
		perms:  new(MockAuthorizer),
	}

	gen := slug.NewGenerator(6, func(ctx context.Context, s string) (bool, error) {
		return m.repo.SlugExists(ctx, s)
	})

	return NewLinkService(m.repo, m.grants, m.perms, gen), m
}

func ownedLink() *models.Link {
	return &models.Link{
		ID:          1,
		Slug:        "promo",
		OwnerID:     7,
		OriginalURL: "https://example.com",
		IsActive:    true,
	}
}

func ownerDecision() *permission.Decision {
	return &permission.Decision{IsOwner: true}
}

func TestLinkService_CreateLink(t *testing.T) {
	ctx := context.Background()

	t.Run("custom slug created", func(t *testing.T) {
		svc, m := newLinkService()
		m.repo.On("SlugExists", mock.Anything, "promo").Return(false, nil)
		m.repo.On("Create", mock.Anything, mock.MatchedBy(func(l *models.Link) bool {
			return l.Slug == "promo" && l.OwnerID == 7
		})).Return(ownedLink(), nil)

		link, err := svc.CreateLink(ctx, 7, CreateLinkInput{
			CustomSlug:  "Promo",
			OriginalURL: "https://example.com",
		})

		require.NoError(t, err)
		assert.Equal(t, "promo", link.Slug)
		m.repo.AssertExpectations(t)
	})

	t.Run("malformed custom slug rejected", func(t *testing.T) {
		svc, m := newLinkService()

		_, err := svc.CreateLink(ctx, 7, CreateLinkInput{
			CustomSlug:  "has spaces",
			OriginalURL: "https://example.com",
		})

		assert.ErrorIs(t, err, ErrValidation)
		m.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("taken slug yields suggestions", func(t *testing.T) {
		svc, m := newLinkService()
		m.repo.On("SlugExists", mock.Anything, "promo").Return(true, nil)
		m.repo.On("SlugExists", mock.Anything, "promo1").Return(false, nil)
		m.repo.On("SlugExists", mock.Anything, "promo2").Return(false, nil)
		m.repo.On("SlugExists", mock.Anything, "promo3").Return(false, nil)

		_, err := svc.CreateLink(ctx, 7, CreateLinkInput{
			CustomSlug:  "promo",
			OriginalURL: "https://example.com",
		})

		var taken *SlugTakenError
		require.ErrorAs(t, err, &taken)
		assert.Equal(t, "promo", taken.Slug)
		assert.Equal(t, []string{"promo1", "promo2", "promo3"}, taken.Suggestions)
	})

	t.Run("lost insert race still reports conflict", func(t *testing.T) {
		svc, m := newLinkService()
		m.repo.On("SlugExists", mock.Anything, "promo").Return(false, nil).Once()
		m.repo.On("Create", mock.Anything, mock.Anything).Return(nil, database.ErrSlugExists)
		m.repo.On("SlugExists", mock.Anything, mock.Anything).Return(false, nil)

		_, err := svc.CreateLink(ctx, 7, CreateLinkInput{
			CustomSlug:  "promo",
			OriginalURL: "https://example.com",
		})

		var taken *SlugTakenError
		assert.ErrorAs(t, err, &taken)
	})

	t.Run("auto slug generated when none given", func(t *testing.T) {
		svc, m := newLinkService()
		m.repo.On("SlugExists", mock.Anything, mock.Anything).Return(false, nil)
		m.repo.On("Create", mock.Anything, mock.MatchedBy(func(l *models.Link) bool {
			return len(l.Slug) == 6
		})).Return(ownedLink(), nil)

		_, err := svc.CreateLink(ctx, 7, CreateLinkInput{
			OriginalURL: "https://example.com",
		})

		require.NoError(t, err)
		m.repo.AssertExpectations(t)
	})

	t.Run("temporary link requires future expiry", func(t *testing.T) {
		svc, _ := newLinkService()
		past := time.Now().Add(-time.Hour)

		_, err := svc.CreateLink(ctx, 7, CreateLinkInput{
			OriginalURL: "https://example.com",
			IsTemporary: true,
			ExpiresAt:   &past,
		})

		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("click limit bounds enforced", func(t *testing.T) {
		svc, _ := newLinkService()
		zero := int64(0)

		_, err := svc.CreateLink(ctx, 7, CreateLinkInput{
			OriginalURL:    "https://example.com",
			IsClickLimited: true,
			MaxClicks:      &zero,
		})

		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("time restriction requires a real timezone", func(t *testing.T) {
		svc, _ := newLinkService()

		_, err := svc.CreateLink(ctx, 7, CreateLinkInput{
			OriginalURL:             "https://example.com",
			IsTimeRestricted:        true,
			TimeRestrictionStart:    "09:00",
			TimeRestrictionEnd:      "17:00",
			TimeRestrictionTimezone: "Mars/Olympus",
		})

		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestLinkService_GetLink(t *testing.T) {
	ctx := context.Background()

	t.Run("caller with view access", func(t *testing.T) {
		svc, m := newLinkService()
		link := ownedLink()
		m.repo.On("GetBySlug", mock.Anything, "promo").Return(link, nil)
		m.perms.On("Authorize", mock.Anything, int64(7), link, models.CapView).
			Return(ownerDecision(), nil)

		got, err := svc.GetLink(ctx, 7, "promo")

		require.NoError(t, err)
		assert.Equal(t, link, got)
	})

	t.Run("stranger gets no relationship", func(t *testing.T) {
		svc, m := newLinkService()
		link := ownedLink()
		m.repo.On("GetBySlug", mock.Anything, "promo").Return(link, nil)
		m.perms.On("Authorize", mock.Anything, int64(99), link, models.CapView).
			Return(nil, permission.ErrNoRelationship)

		_, err := svc.GetLink(ctx, 99, "promo")

		assert.ErrorIs(t, err, permission.ErrNoRelationship)
	})

	t.Run("unknown slug", func(t *testing.T) {
		svc, m := newLinkService()
		m.repo.On("GetBySlug", mock.Anything, "ghost").Return(nil, database.ErrLinkNotFound)

		_, err := svc.GetLink(ctx, 7, "ghost")

		assert.ErrorIs(t, err, database.ErrLinkNotFound)
	})
}

func TestLinkService_UpdateLink(t *testing.T) {
	ctx := context.Background()

	t.Run("partial update merges fields", func(t *testing.T) {
		svc, m := newLinkService()
		link := ownedLink()
		m.repo.On("GetBySlug", mock.Anything, "promo").Return(link, nil)
		m.perms.On("Authorize", mock.Anything, int64(7), link, models.CapEdit).
			Return(ownerDecision(), nil)
		m.repo.On("Update", mock.Anything, mock.MatchedBy(func(l *models.Link) bool {
			return l.Title == "Renamed" && l.OriginalURL == "https://example.com"
		})).Return(link, nil)

		title := "Renamed"
		_, err := svc.UpdateLink(ctx, 7, "promo", UpdateLinkInput{Title: &title})

		require.NoError(t, err)
		m.repo.AssertExpectations(t)
	})

	t.Run("disabling click limit clears max clicks", func(t *testing.T) {
		svc, m := newLinkService()
		link := ownedLink()
		maxClicks := int64(10)
		link.IsClickLimited = true
		link.MaxClicks = &maxClicks

		m.repo.On("GetBySlug", mock.Anything, "promo").Return(link, nil)
		m.perms.On("Authorize", mock.Anything, int64(7), link, models.CapEdit).
			Return(ownerDecision(), nil)
		m.repo.On("Update", mock.Anything, mock.MatchedBy(func(l *models.Link) bool {
			return !l.IsClickLimited && l.MaxClicks == nil
		})).Return(link, nil)

		disabled := false
		_, err := svc.UpdateLink(ctx, 7, "promo", UpdateLinkInput{IsClickLimited: &disabled})

		require.NoError(t, err)
		m.repo.AssertExpectations(t)
	})

	t.Run("viewer cannot edit", func(t *testing.T) {
		svc, m := newLinkService()
		link := ownedLink()
		m.repo.On("GetBySlug", mock.Anything, "promo").Return(link, nil)
		m.perms.On("Authorize", mock.Anything, int64(42), link, models.CapEdit).
			Return(nil, permission.ErrForbidden)

		title := "nope"
		_, err := svc.UpdateLink(ctx, 42, "promo", UpdateLinkInput{Title: &title})

		assert.ErrorIs(t, err, permission.ErrForbidden)
		m.repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})
}

func TestLinkService_ExtendExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	t.Run("extends from current expiry when still live", func(t *testing.T) {
		svc, m := newLinkService()
		svc.now = func() time.Time { return now }

		link := ownedLink()
		link.IsTemporary = true
		expiry := now.Add(2 * time.Hour)
		link.ExpiresAt = &expiry

		m.repo.On("GetBySlug", mock.Anything, "promo").Return(link, nil)
		m.perms.On("Authorize", mock.Anything, int64(7), link, models.CapEdit).
			Return(ownerDecision(), nil)
		m.repo.On("Update", mock.Anything, mock.MatchedBy(func(l *models.Link) bool {
			return l.ExpiresAt.Equal(expiry.Add(24*time.Hour)) && !l.IsExpired
		})).Return(link, nil)

		_, err := svc.ExtendExpiry(ctx, 7, "promo", 24)

		require.NoError(t, err)
		m.repo.AssertExpectations(t)
	})

	t.Run("extends from now when already elapsed", func(t *testing.T) {
		svc, m := newLinkService()
		svc.now = func() time.Time { return now }

		link := ownedLink()
		link.IsTemporary = true
		link.IsExpired = true
		expiry := now.Add(-3 * time.Hour)
		link.ExpiresAt = &expiry

		m.repo.On("GetBySlug", mock.Anything, "promo").Return(link, nil)
		m.perms.On("Authorize", mock.Anything, int64(7), link, models.CapEdit).
			Return(ownerDecision(), nil)
		m.repo.On("Update", mock.Anything, mock.MatchedBy(func(l *models.Link) bool {
			return l.ExpiresAt.Equal(now.Add(48*time.Hour)) && !l.IsExpired
		})).Return(link, nil)

		_, err := svc.ExtendExpiry(ctx, 7, "promo", 48)

		require.NoError(t, err)
		m.repo.AssertExpectations(t)
	})

	t.Run("hours out of range", func(t *testing.T) {
		svc, _ := newLinkService()

		_, err := svc.ExtendExpiry(ctx, 7, "promo", 0)
		assert.ErrorIs(t, err, ErrValidation)

		_, err = svc.ExtendExpiry(ctx, 7, "promo", 721)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("permanent link cannot be extended", func(t *testing.T) {
		svc, m := newLinkService()
		link := ownedLink()
		m.repo.On("GetBySlug", mock.Anything, "promo").Return(link, nil)
		m.perms.On("Authorize", mock.Anything, int64(7), link, models.CapEdit).
			Return(ownerDecision(), nil)

		_, err := svc.ExtendExpiry(ctx, 7, "promo", 24)

		assert.ErrorIs(t, err, ErrValidation)
		m.repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})
}

func TestLinkService_DeleteLink(t *testing.T) {
	ctx := context.Background()

	t.Run("owner deletes", func(t *testing.T) {
		svc, m := newLinkService()
		link := ownedLink()
		m.repo.On("GetBySlug", mock.Anything, "promo").Return(link, nil)
		m.perms.On("Authorize", mock.Anything, int64(7), link, models.CapDelete).
			Return(ownerDecision(), nil)
		m.repo.On("Delete", mock.Anything, int64(1)).Return(nil)

		err := svc.DeleteLink(ctx, 7, "promo")

		require.NoError(t, err)
		m.repo.AssertExpectations(t)
	})

	t.Run("editor without delete grant is forbidden", func(t *testing.T) {
		svc, m := newLinkService()
		link := ownedLink()
		m.repo.On("GetBySlug", mock.Anything, "promo").Return(link, nil)
		m.perms.On("Authorize", mock.Anything, int64(42), link, models.CapDelete).
			Return(nil, permission.ErrForbidden)

		err := svc.DeleteLink(ctx, 42, "promo")

		assert.ErrorIs(t, err, permission.ErrForbidden)
		m.repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})
}

func TestLinkService_GetStats(t *testing.T) {
	ctx := context.Background()

	t.Run("public stats skip the permission check", func(t *testing.T) {
		svc, m := newLinkService()
		link := ownedLink()
		link.IsPublicStats = true
		link.ClickCount = 12

		m.repo.On("GetBySlug", mock.Anything, "promo").Return(link, nil)
		m.grants.On("CountActive", mock.Anything, int64(1)).Return(int64(2), nil)

		stats, err := svc.GetStats(ctx, 99, "promo")

		require.NoError(t, err)
		assert.Equal(t, int64(12), stats.Link.ClickCount)
		assert.Equal(t, int64(2), stats.ActiveGrants)
		m.perms.AssertNotCalled(t, "Authorize", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("private stats need canViewStats", func(t *testing.T) {
		svc, m := newLinkService()
		link := ownedLink()
		m.repo.On("GetBySlug", mock.Anything, "promo").Return(link, nil)
		m.perms.On("Authorize", mock.Anything, int64(42), link, models.CapViewStats).
			Return(nil, permission.ErrForbidden)

		_, err := svc.GetStats(ctx, 42, "promo")

		assert.ErrorIs(t, err, permission.ErrForbidden)
	})

	t.Run("grant count failure surfaces", func(t *testing.T) {
		svc, m := newLinkService()
		link := ownedLink()
		m.repo.On("GetBySlug", mock.Anything, "promo").Return(link, nil)
		m.perms.On("Authorize", mock.Anything, int64(7), link, models.CapViewStats).
			Return(ownerDecision(), nil)
		m.grants.On("CountActive", mock.Anything, int64(1)).
			Return(int64(0), errors.New("connection reset"))

		_, err := svc.GetStats(ctx, 7, "promo")

		assert.Error(t, err)
	})
}
