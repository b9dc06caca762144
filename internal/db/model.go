package db

import (
	"time"

	"donation-service/internal/model"
	"github.com/google/uuid"
)

// DonationEventEntity is an outbox row: one per donation and status reached.
type DonationEventEntity struct {
	ID               uuid.UUID
	DonationID       uuid.UUID
	Status           model.Status
	PaymentID        *string
	Amount           int64
	Currency         string
	DonorID          *uuid.UUID
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ScheduledAt      *time.Time
	PublishedAt      *time.Time
	DeliveredAt      *time.Time
	PublishAttempts  int
	DeliveryAttempts int
	Error            *string
}
