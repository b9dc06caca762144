package db

import (
	"context"
	"time"

	"donation-service/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const eventColumns = `id, donation_id, status, payment_id, amount, currency, donor_id, created_at, updated_at,
	scheduled_at, published_at, delivered_at, publish_attempts, delivery_attempts, error`

type EventRepository struct {
	pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

func scanEvent(row pgx.Row) (*DonationEventEntity, error) {
	var e DonationEventEntity
	err := row.Scan(&e.ID, &e.DonationID, &e.Status, &e.PaymentID, &e.Amount, &e.Currency, &e.DonorID,
		&e.CreatedAt, &e.UpdatedAt, &e.ScheduledAt, &e.PublishedAt, &e.DeliveredAt,
		&e.PublishAttempts, &e.DeliveryAttempts, &e.Error)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *EventRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// GetDueEvents locks up to limit events whose scheduled_at has passed. Concurrent
// producers skip each other's rows.
func (r *EventRepository) GetDueEvents(ctx context.Context, tx pgx.Tx, limit int) ([]*DonationEventEntity, error) {
	query := `SELECT ` + eventColumns + ` FROM donation_event
	          WHERE scheduled_at IS NOT NULL AND scheduled_at <= now()
	          ORDER BY scheduled_at
	          LIMIT $1
	          FOR UPDATE SKIP LOCKED`
	rows, err := tx.Query(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due events")
	}
	defer rows.Close()

	var events []*DonationEventEntity
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *EventRepository) SelectForUpdateByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*DonationEventEntity, error) {
	query := `SELECT ` + eventColumns + ` FROM donation_event WHERE id = $1 FOR UPDATE`
	return scanEvent(tx.QueryRow(ctx, query, id))
}

func (r *EventRepository) Update(ctx context.Context, tx pgx.Tx, e *DonationEventEntity) error {
	query := `UPDATE donation_event
	          SET scheduled_at = $2, published_at = $3, delivered_at = $4,
	              publish_attempts = $5, delivery_attempts = $6, error = $7, updated_at = $8
	          WHERE id = $1`
	e.UpdatedAt = time.Now()
	_, err := tx.Exec(ctx, query, e.ID, e.ScheduledAt, e.PublishedAt, e.DeliveredAt,
		e.PublishAttempts, e.DeliveryAttempts, e.Error, e.UpdatedAt)
	return errors.Wrap(err, "update donation event")
}
