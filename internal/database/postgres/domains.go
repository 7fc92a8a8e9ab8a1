package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/nvoronov/link-manager/internal/database"
	"github.com/nvoronov/link-manager/internal/models"
)

type domainRecord struct {
	ID         int64  `db:"id"`
	Hostname   string `db:"hostname"`
	IsVerified bool   `db:"is_verified"`
	IsActive   bool   `db:"is_active"`
}

// DomainRepository resolves hostnames to custom-domain records.
type DomainRepository struct {
	db *sqlx.DB
}

func NewDomainRepository(db *sqlx.DB) *DomainRepository {
	return &DomainRepository{
		db: db,
	}
}

func (r *DomainRepository) GetByHostname(ctx context.Context, hostname string) (*models.CustomDomain, error) {
	const op = "database.postgres.DomainRepository.GetByHostname"

	rec := new(domainRecord)
	query := `SELECT id, hostname, is_verified, is_active FROM custom_domains WHERE hostname = $1`

	err := r.db.GetContext(ctx, rec, query, hostname)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrDomainNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get domain record: %w", op, err)
	}

	return &models.CustomDomain{
		ID:         rec.ID,
		Hostname:   rec.Hostname,
		IsVerified: rec.IsVerified,
		IsActive:   rec.IsActive,
	}, nil
}
