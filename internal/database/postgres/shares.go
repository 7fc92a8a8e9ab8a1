package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nvoronov/link-manager/internal/database"
	"github.com/nvoronov/link-manager/internal/models"
)

type sharedLinkRecord struct {
	ID               int64        `db:"id"`
	LinkID           int64        `db:"link_id"`
	OwnerID          int64        `db:"owner_id"`
	SharedWithUserID int64        `db:"shared_with_user_id"`
	SharedWithEmail  string       `db:"shared_with_email"`
	CanView          bool         `db:"can_view"`
	CanEdit          bool         `db:"can_edit"`
	CanDelete        bool         `db:"can_delete"`
	CanViewStats     bool         `db:"can_view_stats"`
	CanShare         bool         `db:"can_share"`
	IsActive         bool         `db:"is_active"`
	ExpiresAt        sql.NullTime `db:"expires_at"`
	CreatedAt        time.Time    `db:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at"`
}

func (r *sharedLinkRecord) ToSharedLink() *models.SharedLink {
	g := &models.SharedLink{
		ID:               r.ID,
		LinkID:           r.LinkID,
		OwnerID:          r.OwnerID,
		SharedWithUserID: r.SharedWithUserID,
		SharedWithEmail:  r.SharedWithEmail,
		CanView:          r.CanView,
		CanEdit:          r.CanEdit,
		CanDelete:        r.CanDelete,
		CanViewStats:     r.CanViewStats,
		CanShare:         r.CanShare,
		IsActive:         r.IsActive,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}

	if r.ExpiresAt.Valid {
		t := r.ExpiresAt.Time
		g.ExpiresAt = &t
	}

	return g
}

// ShareRepository stores capability grants, one per (link, grantee) pair.
type ShareRepository struct {
	db *sqlx.DB
}

func NewShareRepository(db *sqlx.DB) *ShareRepository {
	return &ShareRepository{
		db: db,
	}
}

func (r *ShareRepository) GetGrant(ctx context.Context, linkID, userID int64) (*models.SharedLink, error) {
	const op = "database.postgres.ShareRepository.GetGrant"

	rec := new(sharedLinkRecord)
	query := `SELECT * FROM shared_links WHERE link_id = $1 AND shared_with_user_id = $2`

	err := r.db.GetContext(ctx, rec, query, linkID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrGrantNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get grant record: %w", op, err)
	}

	return rec.ToSharedLink(), nil
}

// Upsert inserts a grant or, when the (link, grantee) pair already exists,
// replaces its permission set and validity in place.
func (r *ShareRepository) Upsert(ctx context.Context, grant *models.SharedLink) (*models.SharedLink, error) {
	const op = "database.postgres.ShareRepository.Upsert"

	rec := new(sharedLinkRecord)
	query := `INSERT INTO shared_links(
			link_id, owner_id, shared_with_user_id, shared_with_email,
			can_view, can_edit, can_delete, can_view_stats, can_share,
			is_active, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (link_id, shared_with_user_id) DO UPDATE SET
			shared_with_email = EXCLUDED.shared_with_email,
			can_view = EXCLUDED.can_view,
			can_edit = EXCLUDED.can_edit,
			can_delete = EXCLUDED.can_delete,
			can_view_stats = EXCLUDED.can_view_stats,
			can_share = EXCLUDED.can_share,
			is_active = EXCLUDED.is_active,
			expires_at = EXCLUDED.expires_at,
			updated_at = now()
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query,
		grant.LinkID, grant.OwnerID, grant.SharedWithUserID, grant.SharedWithEmail,
		grant.CanView, grant.CanEdit, grant.CanDelete, grant.CanViewStats, grant.CanShare,
		grant.IsActive, nullTime(grant.ExpiresAt),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to upsert grant record: %w", op, err)
	}

	return rec.ToSharedLink(), nil
}

func (r *ShareRepository) Delete(ctx context.Context, linkID, userID int64) error {
	const op = "database.postgres.ShareRepository.Delete"

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM shared_links WHERE link_id = $1 AND shared_with_user_id = $2`, linkID, userID)
	if err != nil {
		return fmt.Errorf("%s: failed to delete grant record: %w", op, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to check deleted rows: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, database.ErrGrantNotFound)
	}

	return nil
}

// CountActive returns the number of live grants on a link.
func (r *ShareRepository) CountActive(ctx context.Context, linkID int64) (int64, error) {
	const op = "database.postgres.ShareRepository.CountActive"

	var count int64
	query := `SELECT count(*) FROM shared_links
		WHERE link_id = $1 AND is_active AND (expires_at IS NULL OR expires_at > now())`

	if err := r.db.GetContext(ctx, &count, query, linkID); err != nil {
		return 0, fmt.Errorf("%s: failed to count grants: %w", op, err)
	}

	return count, nil
}
