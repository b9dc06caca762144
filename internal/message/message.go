package message

import (
	"time"

	"donation-service/internal/model"
	"github.com/google/uuid"
)

// DonationEvent is published to Kafka whenever a donation reaches a new status.
type DonationEvent struct {
	ID         uuid.UUID    `json:"id"`
	DonationID uuid.UUID    `json:"donationId"`
	Status     model.Status `json:"status"`
	PaymentID  string       `json:"paymentId,omitempty"`
	Amount     int64        `json:"amount"`
	Currency   string       `json:"currency"`
	DonorID    *uuid.UUID   `json:"donorId,omitempty"`
	OccurredAt time.Time    `json:"occurredAt"`
	Attempts   int          `json:"attempts"`
}
