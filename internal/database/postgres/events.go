package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/nvoronov/link-manager/internal/models"
)

// EventRepository appends analytics events. This service never reads them back.
type EventRepository struct {
	db *sqlx.DB
}

func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{
		db: db,
	}
}

func (r *EventRepository) Insert(ctx context.Context, ev *models.AnalyticsEvent) error {
	const op = "database.postgres.EventRepository.Insert"

	query := `INSERT INTO analytics_events(
			link_id, is_temporary, hashed_ip, country, device_type, referrer, clicked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		ev.LinkID, ev.IsTemporary, ev.HashedIP, ev.Country, ev.DeviceType, ev.Referrer, ev.ClickedAt)
	if err != nil {
		return fmt.Errorf("%s: failed to insert analytics event: %w", op, err)
	}

	return nil
}
