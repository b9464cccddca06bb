package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/cart/internal/domain"
)

type timelineRepository struct {
	db *sql.DB
}

// NewTimelineRepository создаёт PostgreSQL-реализацию TimelineRepository.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{db: store.DB()}
}

func (r *timelineRepository) Append(event domain.TimelineEvent) error {
	if event.Identity == "" {
		return domain.ErrCartIdentityRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO cart_timeline_events (identity_key, type, detail, occurred)
		VALUES ($1,$2,$3,$4)
	`, string(event.Identity), event.Type, event.Detail, event.Occurred); err != nil {
		return fmt.Errorf("append cart timeline event: %w", err)
	}

	return nil
}

func (r *timelineRepository) List(identity domain.IdentityKey) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT identity_key, type, detail, occurred
		FROM cart_timeline_events
		WHERE identity_key = $1
		ORDER BY occurred ASC, id ASC
	`, string(identity))
	if err != nil {
		return nil, fmt.Errorf("list cart timeline events: %w", err)
	}
	defer rows.Close()

	var result []domain.TimelineEvent
	for rows.Next() {
		var (
			event domain.TimelineEvent
			key   string
		)
		if err := rows.Scan(&key, &event.Type, &event.Detail, &event.Occurred); err != nil {
			return nil, fmt.Errorf("scan cart timeline event: %w", err)
		}
		event.Identity = domain.IdentityKey(key)
		event.Occurred = event.Occurred.UTC()
		result = append(result, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart timeline rows: %w", err)
	}

	return result, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
