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

type tempLinkRecord struct {
	ID          int64     `db:"id"`
	Slug        string    `db:"slug"`
	Token       string    `db:"token"`
	OriginalURL string    `db:"original_url"`
	ClickCount  int64     `db:"click_count"`
	ExpiresAt   time.Time `db:"expires_at"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r *tempLinkRecord) ToTempLink() *models.TempLink {
	return &models.TempLink{
		ID:          r.ID,
		Slug:        r.Slug,
		Token:       r.Token,
		OriginalURL: r.OriginalURL,
		ClickCount:  r.ClickCount,
		ExpiresAt:   r.ExpiresAt,
		CreatedAt:   r.CreatedAt,
	}
}

// TempLinkRepository stores anonymous short-lived links. Expiry is enforced
// at the store boundary: every read filters out elapsed rows and the sweeper
// physically removes them.
type TempLinkRepository struct {
	db *sqlx.DB
}

func NewTempLinkRepository(db *sqlx.DB) *TempLinkRepository {
	return &TempLinkRepository{
		db: db,
	}
}

func (r *TempLinkRepository) Create(ctx context.Context, link *models.TempLink) (*models.TempLink, error) {
	const op = "database.postgres.TempLinkRepository.Create"

	rec := new(tempLinkRecord)
	query := `INSERT INTO temp_links(slug, token, original_url, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query, link.Slug, link.Token, link.OriginalURL, link.ExpiresAt)
	if err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrSlugExists)
		}

		return nil, fmt.Errorf("%s: failed to create temp link record: %w", op, err)
	}

	return rec.ToTempLink(), nil
}

// FindLiveBySlug returns the temporary link for a slug if it has not expired.
func (r *TempLinkRepository) FindLiveBySlug(ctx context.Context, slug string) (*models.TempLink, error) {
	const op = "database.postgres.TempLinkRepository.FindLiveBySlug"

	rec := new(tempLinkRecord)
	query := `SELECT * FROM temp_links WHERE slug = $1 AND expires_at > now()`

	err := r.db.GetContext(ctx, rec, query, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrTempLinkNotFound)
		}

		return nil, fmt.Errorf("%s: failed to find temp link record: %w", op, err)
	}

	return rec.ToTempLink(), nil
}

func (r *TempLinkRepository) IncrementClicks(ctx context.Context, id int64) error {
	const op = "database.postgres.TempLinkRepository.IncrementClicks"

	_, err := r.db.ExecContext(ctx,
		`UPDATE temp_links SET click_count = click_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: failed to increment clicks: %w", op, err)
	}

	return nil
}

// DeleteExpired removes elapsed rows and returns how many were swept.
func (r *TempLinkRepository) DeleteExpired(ctx context.Context) (int64, error) {
	const op = "database.postgres.TempLinkRepository.DeleteExpired"

	res, err := r.db.ExecContext(ctx, `DELETE FROM temp_links WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to delete expired temp links: %w", op, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: failed to count deleted rows: %w", op, err)
	}

	return rows, nil
}
