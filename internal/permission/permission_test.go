package permission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nvoronov/link-manager/internal/database"
	"github.com/nvoronov/link-manager/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockGrantRepository struct {
	mock.Mock
}

func (r *MockGrantRepository) GetGrant(ctx context.Context, linkID, userID int64) (*models.SharedLink, error) {
	args := r.Called(ctx, linkID, userID)
	grant, _ := args.Get(0).(*models.SharedLink)
	return grant, args.Error(1)
}

func testLink() *models.Link {
	return &models.Link{
		ID:      42,
		Slug:    "abc123",
		OwnerID: 1,
	}
}

func viewOnlyGrant() *models.SharedLink {
	return &models.SharedLink{
		LinkID:           42,
		OwnerID:          1,
		SharedWithUserID: 2,
		CanView:          true,
		IsActive:         true,
	}
}

func TestEvaluator_Authorize(t *testing.T) {
	ctx := context.Background()

	t.Run("owner passes regardless of grants", func(t *testing.T) {
		grants := new(MockGrantRepository)
		e := New(grants)

		dec, err := e.Authorize(ctx, 1, testLink(), models.CapDelete)

		require.NoError(t, err)
		assert.True(t, dec.IsOwner)
		assert.Nil(t, dec.Grant)
		grants.AssertNotCalled(t, "GetGrant", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("no grant means no relationship", func(t *testing.T) {
		grants := new(MockGrantRepository)
		grants.
			On("GetGrant", ctx, int64(42), int64(2)).
			Once().
			Return(nil, database.ErrGrantNotFound)
		e := New(grants)

		dec, err := e.Authorize(ctx, 2, testLink(), models.CapView)

		assert.ErrorIs(t, err, ErrNoRelationship)
		assert.Nil(t, dec)
		grants.AssertExpectations(t)
	})

	t.Run("grant without capability is forbidden", func(t *testing.T) {
		grants := new(MockGrantRepository)
		grants.
			On("GetGrant", ctx, int64(42), int64(2)).
			Once().
			Return(viewOnlyGrant(), nil)
		e := New(grants)

		dec, err := e.Authorize(ctx, 2, testLink(), models.CapEdit)

		assert.ErrorIs(t, err, ErrForbidden)
		assert.Nil(t, dec)
	})

	t.Run("grant with capability passes", func(t *testing.T) {
		grants := new(MockGrantRepository)
		grants.
			On("GetGrant", ctx, int64(42), int64(2)).
			Once().
			Return(viewOnlyGrant(), nil)
		e := New(grants)

		dec, err := e.Authorize(ctx, 2, testLink(), models.CapView)

		require.NoError(t, err)
		assert.False(t, dec.IsOwner)
		require.NotNil(t, dec.Grant)
		assert.True(t, dec.Grant.CanView)
	})

	t.Run("no required capability only needs a live grant", func(t *testing.T) {
		grants := new(MockGrantRepository)
		grants.
			On("GetGrant", ctx, int64(42), int64(2)).
			Once().
			Return(viewOnlyGrant(), nil)
		e := New(grants)

		dec, err := e.Authorize(ctx, 2, testLink(), "")

		require.NoError(t, err)
		assert.NotNil(t, dec.Grant)
	})

	t.Run("expired grant behaves as absent", func(t *testing.T) {
		grant := viewOnlyGrant()
		past := time.Now().Add(-time.Hour)
		grant.ExpiresAt = &past

		grants := new(MockGrantRepository)
		grants.
			On("GetGrant", ctx, int64(42), int64(2)).
			Once().
			Return(grant, nil)
		e := New(grants)

		_, err := e.Authorize(ctx, 2, testLink(), models.CapView)

		assert.ErrorIs(t, err, ErrNoRelationship)
		assert.NotErrorIs(t, err, ErrForbidden)
	})

	t.Run("inactive grant behaves as absent", func(t *testing.T) {
		grant := viewOnlyGrant()
		grant.IsActive = false

		grants := new(MockGrantRepository)
		grants.
			On("GetGrant", ctx, int64(42), int64(2)).
			Once().
			Return(grant, nil)
		e := New(grants)

		_, err := e.Authorize(ctx, 2, testLink(), models.CapView)

		assert.ErrorIs(t, err, ErrNoRelationship)
	})

	t.Run("repository failure propagates", func(t *testing.T) {
		errUnknown := errors.New("unknown error")
		grants := new(MockGrantRepository)
		grants.
			On("GetGrant", ctx, int64(42), int64(2)).
			Once().
			Return(nil, errUnknown)
		e := New(grants)

		_, err := e.Authorize(ctx, 2, testLink(), models.CapView)

		assert.ErrorIs(t, err, errUnknown)
		assert.NotErrorIs(t, err, ErrNoRelationship)
	})
}
