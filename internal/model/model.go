package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

var validStatuses = map[Status]bool{
	StatusPending:   true,
	StatusCompleted: true,
	StatusFailed:    true,
	StatusRefunded:  true,
}

func (s Status) Valid() bool {
	return validStatuses[s]
}

func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.Valid() {
		return "", fmt.Errorf("invalid donation status: %q", s)
	}
	return status, nil
}

// IsRegression reports whether moving from s to next walks back a settled outcome,
// e.g. a late failure webhook replayed after completion.
func (s Status) IsRegression(next Status) bool {
	switch s {
	case StatusCompleted:
		return next == StatusFailed || next == StatusPending
	case StatusRefunded:
		return next != StatusRefunded
	}
	return false
}

type Donor struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	PAN       string    `json:"pan,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Donation struct {
	ID               uuid.UUID  `json:"id"`
	OrderID          *string    `json:"orderId,omitempty"`
	PaymentID        *string    `json:"paymentId,omitempty"`
	PaymentSessionID *string    `json:"-"`
	Amount           int64      `json:"amount"`
	Currency         string     `json:"currency"`
	Purpose          string     `json:"purpose,omitempty"`
	Status           Status     `json:"status"`
	DonorID          *uuid.UUID `json:"donorId,omitempty"`
	VerifiedAt       *time.Time `json:"verifiedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

func (d *Donation) HasPaymentID() bool {
	return d.PaymentID != nil && *d.PaymentID != ""
}

// StatusUpdate is the single-row write applied by reconciliation.
// PaymentID is only persisted when the row has none recorded yet.
type StatusUpdate struct {
	DonationID uuid.UUID
	Status     Status
	PaymentID  string
	VerifiedAt time.Time
}

// StatusChange is what the datastore reports back after applying a StatusUpdate.
type StatusChange struct {
	OldStatus Status
	Donation  *Donation
	// EventID is set when the update moved the donation to a new status and a
	// donation event was recorded for downstream consumers.
	EventID *uuid.UUID
}

// ErrNotFound is returned by stores when no row matches a lookup.
var ErrNotFound = errors.New("not found")

type DonationFilter struct {
	Status Status
	From   *time.Time
	To     *time.Time
	Page   int
	Limit  int
}

func (f DonationFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}
