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

type linkRecord struct {
	ID                      int64          `db:"id"`
	Slug                    string         `db:"slug"`
	OwnerID                 int64          `db:"owner_id"`
	OriginalURL             string         `db:"original_url"`
	Title                   sql.NullString `db:"title"`
	Description             sql.NullString `db:"description"`
	IsActive                bool           `db:"is_active"`
	IsDisabledByAdmin       bool           `db:"is_disabled_by_admin"`
	DisabledReason          sql.NullString `db:"disabled_reason"`
	IsFavorite              bool           `db:"is_favorite"`
	IsPublicStats           bool           `db:"is_public_stats"`
	ClickCount              int64          `db:"click_count"`
	CustomDomainID          sql.NullInt64  `db:"custom_domain_id"`
	IsTemporary             bool           `db:"is_temporary"`
	ExpiresAt               sql.NullTime   `db:"expires_at"`
	IsExpired               bool           `db:"is_expired"`
	IsClickLimited          bool           `db:"is_click_limited"`
	MaxClicks               sql.NullInt64  `db:"max_clicks"`
	IsTimeRestricted        bool           `db:"is_time_restricted"`
	TimeRestrictionStart    sql.NullString `db:"time_restriction_start"`
	TimeRestrictionEnd      sql.NullString `db:"time_restriction_end"`
	TimeRestrictionTimezone sql.NullString `db:"time_restriction_timezone"`
	CreatedAt               time.Time      `db:"created_at"`
	UpdatedAt               time.Time      `db:"updated_at"`
}

func (r *linkRecord) ToLink() *models.Link {
	l := &models.Link{
		ID:                      r.ID,
		Slug:                    r.Slug,
		OwnerID:                 r.OwnerID,
		OriginalURL:             r.OriginalURL,
		Title:                   r.Title.String,
		Description:             r.Description.String,
		IsActive:                r.IsActive,
		IsDisabledByAdmin:       r.IsDisabledByAdmin,
		DisabledReason:          r.DisabledReason.String,
		IsFavorite:              r.IsFavorite,
		IsPublicStats:           r.IsPublicStats,
		ClickCount:              r.ClickCount,
		IsTemporary:             r.IsTemporary,
		IsExpired:               r.IsExpired,
		IsClickLimited:          r.IsClickLimited,
		IsTimeRestricted:        r.IsTimeRestricted,
		TimeRestrictionStart:    r.TimeRestrictionStart.String,
		TimeRestrictionEnd:      r.TimeRestrictionEnd.String,
		TimeRestrictionTimezone: r.TimeRestrictionTimezone.String,
		CreatedAt:               r.CreatedAt,
		UpdatedAt:               r.UpdatedAt,
	}

	if r.CustomDomainID.Valid {
		id := r.CustomDomainID.Int64
		l.CustomDomainID = &id
	}
	if r.ExpiresAt.Valid {
		t := r.ExpiresAt.Time
		l.ExpiresAt = &t
	}
	if r.MaxClicks.Valid {
		n := r.MaxClicks.Int64
		l.MaxClicks = &n
	}

	return l
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// LinkRepository stores permanent links.
type LinkRepository struct {
	db *sqlx.DB
}

func NewLinkRepository(db *sqlx.DB) *LinkRepository {
	return &LinkRepository{
		db: db,
	}
}

func (r *LinkRepository) Create(ctx context.Context, link *models.Link) (*models.Link, error) {
	const op = "database.postgres.LinkRepository.Create"

	rec := new(linkRecord)
	query := `INSERT INTO links(
			slug, owner_id, original_url, title, description,
			is_public_stats, custom_domain_id,
			is_temporary, expires_at,
			is_click_limited, max_clicks,
			is_time_restricted, time_restriction_start, time_restriction_end, time_restriction_timezone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query,
		link.Slug, link.OwnerID, link.OriginalURL,
		nullString(link.Title), nullString(link.Description),
		link.IsPublicStats, nullInt64(link.CustomDomainID),
		link.IsTemporary, nullTime(link.ExpiresAt),
		link.IsClickLimited, nullInt64(link.MaxClicks),
		link.IsTimeRestricted,
		nullString(link.TimeRestrictionStart), nullString(link.TimeRestrictionEnd),
		nullString(link.TimeRestrictionTimezone),
	)
	if err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrSlugExists)
		}

		return nil, fmt.Errorf("%s: failed to create link record: %w", op, err)
	}

	return rec.ToLink(), nil
}

func (r *LinkRepository) GetBySlug(ctx context.Context, slug string) (*models.Link, error) {
	const op = "database.postgres.LinkRepository.GetBySlug"

	rec := new(linkRecord)
	query := `SELECT * FROM links WHERE slug = $1`

	err := r.db.GetContext(ctx, rec, query, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get link record: %w", op, err)
	}

	return rec.ToLink(), nil
}

// FindResolvable returns the link a redirect should target: active, not
// admin-disabled, and scoped to the given custom domain or to none.
func (r *LinkRepository) FindResolvable(ctx context.Context, slug string, domainID *int64) (*models.Link, error) {
	const op = "database.postgres.LinkRepository.FindResolvable"

	rec := new(linkRecord)

	var err error
	if domainID != nil {
		query := `SELECT * FROM links
			WHERE slug = $1 AND is_active AND NOT is_disabled_by_admin AND custom_domain_id = $2`
		err = r.db.GetContext(ctx, rec, query, slug, *domainID)
	} else {
		query := `SELECT * FROM links
			WHERE slug = $1 AND is_active AND NOT is_disabled_by_admin AND custom_domain_id IS NULL`
		err = r.db.GetContext(ctx, rec, query, slug)
	}

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
		}

		return nil, fmt.Errorf("%s: failed to find link record: %w", op, err)
	}

	return rec.ToLink(), nil
}

func (r *LinkRepository) Update(ctx context.Context, link *models.Link) (*models.Link, error) {
	const op = "database.postgres.LinkRepository.Update"

	rec := new(linkRecord)
	query := `UPDATE links SET
			original_url = $1, title = $2, description = $3,
			is_active = $4, is_favorite = $5, is_public_stats = $6,
			is_temporary = $7, expires_at = $8, is_expired = $9,
			is_click_limited = $10, max_clicks = $11,
			is_time_restricted = $12, time_restriction_start = $13,
			time_restriction_end = $14, time_restriction_timezone = $15,
			updated_at = now()
		WHERE id = $16
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query,
		link.OriginalURL, nullString(link.Title), nullString(link.Description),
		link.IsActive, link.IsFavorite, link.IsPublicStats,
		link.IsTemporary, nullTime(link.ExpiresAt), link.IsExpired,
		link.IsClickLimited, nullInt64(link.MaxClicks),
		link.IsTimeRestricted,
		nullString(link.TimeRestrictionStart), nullString(link.TimeRestrictionEnd),
		nullString(link.TimeRestrictionTimezone),
		link.ID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
		}

		return nil, fmt.Errorf("%s: failed to update link record: %w", op, err)
	}

	return rec.ToLink(), nil
}

func (r *LinkRepository) Delete(ctx context.Context, id int64) error {
	const op = "database.postgres.LinkRepository.Delete"

	res, err := r.db.ExecContext(ctx, `DELETE FROM links WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: failed to delete link record: %w", op, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to check deleted rows: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
	}

	return nil
}

func (r *LinkRepository) IncrementClicks(ctx context.Context, id int64) error {
	const op = "database.postgres.LinkRepository.IncrementClicks"

	_, err := r.db.ExecContext(ctx,
		`UPDATE links SET click_count = click_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: failed to increment clicks: %w", op, err)
	}

	return nil
}

// SlugExists checks the shared namespace: a slug is taken if either a
// permanent link or a live temporary link holds it.
func (r *LinkRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	const op = "database.postgres.LinkRepository.SlugExists"

	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM links WHERE slug = $1)
		OR EXISTS(SELECT 1 FROM temp_links WHERE slug = $1 AND expires_at > now())`

	if err := r.db.GetContext(ctx, &exists, query, slug); err != nil {
		return false, fmt.Errorf("%s: failed to check slug: %w", op, err)
	}

	return exists, nil
}
