package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"donation-service/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const donationColumns = `d.id, d.order_id, d.payment_id, d.payment_session_id, d.amount, d.currency, d.purpose,
	d.status, d.donor_id, d.verified_at, d.created_at, d.updated_at`

type DonationRepository struct {
	pool *pgxpool.Pool
}

func NewDonationRepository(pool *pgxpool.Pool) *DonationRepository {
	return &DonationRepository{pool: pool}
}

func scanDonation(row pgx.Row, extra ...any) (*model.Donation, error) {
	var d model.Donation
	dest := append(extra,
		&d.ID, &d.OrderID, &d.PaymentID, &d.PaymentSessionID, &d.Amount, &d.Currency, &d.Purpose,
		&d.Status, &d.DonorID, &d.VerifiedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *DonationRepository) findOne(ctx context.Context, where string, arg any) (*model.Donation, error) {
	query := `SELECT ` + donationColumns + ` FROM donation d WHERE ` + where + ` LIMIT 1`
	d, err := scanDonation(r.pool.QueryRow(ctx, query, arg))
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, errors.Wrapf(err, "select donation where %s", where)
	}
	return d, err
}

func (r *DonationRepository) FindByOrderID(ctx context.Context, orderID string) (*model.Donation, error) {
	return r.findOne(ctx, "d.order_id = $1", orderID)
}

func (r *DonationRepository) FindByPaymentID(ctx context.Context, paymentID string) (*model.Donation, error) {
	return r.findOne(ctx, "d.payment_id = $1", paymentID)
}

func (r *DonationRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Donation, error) {
	return r.findOne(ctx, "d.id = $1", id)
}

// The self-join reads the status the row had when the statement started, so the
// caller learns whether this write moved the donation. COALESCE keeps a recorded
// payment id.
const applyStatusQuery = `
UPDATE donation d
SET status      = $2,
    payment_id  = COALESCE(d.payment_id, NULLIF($3, '')),
    verified_at = $4,
    updated_at  = $4
FROM (SELECT id, status FROM donation WHERE id = $1) prev
WHERE d.id = prev.id
RETURNING prev.status, ` + donationColumns

// A racing duplicate may also see the old status; the unique key keeps a single event.
const insertEventQuery = `
INSERT INTO donation_event (id, donation_id, status, payment_id, amount, currency, donor_id, scheduled_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (donation_id, status) DO NOTHING
RETURNING id`

func (r *DonationRepository) ApplyStatus(ctx context.Context, update model.StatusUpdate) (*model.StatusChange, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback(ctx)

	var oldStatus model.Status
	donation, err := scanDonation(tx.QueryRow(ctx, applyStatusQuery,
		update.DonationID, update.Status, update.PaymentID, update.VerifiedAt), &oldStatus)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "update donation status")
	}

	change := &model.StatusChange{OldStatus: oldStatus, Donation: donation}

	if oldStatus != donation.Status {
		eventID := uuid.New()
		err := tx.QueryRow(ctx, insertEventQuery,
			eventID, donation.ID, donation.Status, donation.PaymentID, donation.Amount, donation.Currency,
			donation.DonorID, update.VerifiedAt,
		).Scan(&eventID)
		switch {
		case err == nil:
			change.EventID = &eventID
		case errors.Is(err, pgx.ErrNoRows):
			// already recorded by a concurrent delivery
		default:
			return nil, errors.Wrap(err, "insert donation event")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit status update")
	}
	return change, nil
}

const upsertDonorQuery = `
INSERT INTO donor (id, name, email, phone, pan)
VALUES ($1, $2, $3, $4, NULLIF($5, ''))
ON CONFLICT ((lower(email))) DO UPDATE
SET name       = EXCLUDED.name,
    phone      = EXCLUDED.phone,
    pan        = COALESCE(EXCLUDED.pan, donor.pan),
    updated_at = now()
RETURNING id`

// CreateDonation inserts a pending donation, upserting its donor by email first.
func (r *DonationRepository) CreateDonation(ctx context.Context, donation *model.Donation, donor *model.Donor) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback(ctx)

	if donor != nil {
		var donorID uuid.UUID
		err := tx.QueryRow(ctx, upsertDonorQuery, donor.ID, donor.Name, donor.Email, donor.Phone, donor.PAN).Scan(&donorID)
		if err != nil {
			return errors.Wrap(err, "upsert donor")
		}
		donation.DonorID = &donorID
	}

	query := `INSERT INTO donation (id, order_id, amount, currency, purpose, status, donor_id)
	          VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at, updated_at`
	err = tx.QueryRow(ctx, query,
		donation.ID, donation.OrderID, donation.Amount, donation.Currency, donation.Purpose, donation.Status, donation.DonorID,
	).Scan(&donation.CreatedAt, &donation.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "insert donation")
	}

	return errors.Wrap(tx.Commit(ctx), "commit donation")
}

func (r *DonationRepository) SetOrder(ctx context.Context, id uuid.UUID, orderID, sessionID string) error {
	query := `UPDATE donation SET order_id = $2, payment_session_id = $3, updated_at = now() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, orderID, sessionID)
	if err != nil {
		return errors.Wrap(err, "set donation order")
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (r *DonationRepository) ListDonations(ctx context.Context, filter model.DonationFilter) ([]model.Donation, int, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("d.status = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("d.created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("d.created_at <= $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM donation d`+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count donations")
	}

	query := `SELECT ` + donationColumns + ` FROM donation d` + where + ` ORDER BY d.created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset())
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list donations")
	}
	defer rows.Close()

	var donations []model.Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "scan donation")
		}
		donations = append(donations, *d)
	}
	return donations, total, errors.Wrap(rows.Err(), "iterate donations")
}

// Ping is used by the readiness probe.
func (r *DonationRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.pool.Ping(ctx)
}
