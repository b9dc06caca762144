// Package reconciletest provides an in-memory donation store for tests.
package reconciletest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"donation-service/internal/model"
	"github.com/google/uuid"
)

type Store struct {
	mu        sync.Mutex
	donations map[uuid.UUID]*model.Donation
	donors    map[string]*model.Donor
	events    map[string]uuid.UUID

	// Calls lists every store method invoked, in order, e.g. "FindByOrderID:ORD-1".
	Calls []string

	// Err, when set for a method name, is returned by that method instead of touching state.
	Err map[string]error
}

func NewStore() *Store {
	return &Store{
		donations: make(map[uuid.UUID]*model.Donation),
		donors:    make(map[string]*model.Donor),
		events:    make(map[string]uuid.UUID),
		Err:       make(map[string]error),
	}
}

func Ptr(s string) *string {
	return &s
}

// Put stores a copy of d.
func (s *Store) Put(d model.Donation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.Currency == "" {
		d.Currency = "INR"
	}
	s.donations[d.ID] = &d
}

// Get returns a copy of the stored donation.
func (s *Store) Get(id uuid.UUID) (model.Donation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.donations[id]
	if !ok {
		return model.Donation{}, false
	}
	return *d, true
}

func (s *Store) EventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *Store) CallsWithPrefix(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var calls []string
	for _, c := range s.Calls {
		if strings.HasPrefix(c, prefix) {
			calls = append(calls, c)
		}
	}
	return calls
}

func (s *Store) record(method, arg string) error {
	s.Calls = append(s.Calls, method+":"+arg)
	return s.Err[method]
}

func (s *Store) findBy(match func(d *model.Donation) bool) (*model.Donation, error) {
	for _, d := range s.donations {
		if match(d) {
			cp := *d
			return &cp, nil
		}
	}
	return nil, model.ErrNotFound
}

func (s *Store) FindByOrderID(_ context.Context, orderID string) (*model.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("FindByOrderID", orderID); err != nil {
		return nil, err
	}
	return s.findBy(func(d *model.Donation) bool { return d.OrderID != nil && *d.OrderID == orderID })
}

func (s *Store) FindByPaymentID(_ context.Context, paymentID string) (*model.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("FindByPaymentID", paymentID); err != nil {
		return nil, err
	}
	return s.findBy(func(d *model.Donation) bool { return d.PaymentID != nil && *d.PaymentID == paymentID })
}

func (s *Store) FindByID(_ context.Context, id uuid.UUID) (*model.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("FindByID", id.String()); err != nil {
		return nil, err
	}
	d, ok := s.donations[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

// ApplyStatus mirrors the SQL update: status and verified_at always change, the
// payment id only fills an empty slot, and one event is kept per donation and status.
func (s *Store) ApplyStatus(_ context.Context, update model.StatusUpdate) (*model.StatusChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("ApplyStatus", update.DonationID.String()); err != nil {
		return nil, err
	}

	d, ok := s.donations[update.DonationID]
	if !ok {
		return nil, model.ErrNotFound
	}

	old := d.Status
	d.Status = update.Status
	if !d.HasPaymentID() && update.PaymentID != "" {
		d.PaymentID = Ptr(update.PaymentID)
	}
	verifiedAt := update.VerifiedAt
	d.VerifiedAt = &verifiedAt
	d.UpdatedAt = verifiedAt

	change := &model.StatusChange{OldStatus: old}
	if old != update.Status {
		key := d.ID.String() + "/" + string(update.Status)
		if _, exists := s.events[key]; !exists {
			id := uuid.New()
			s.events[key] = id
			change.EventID = &id
		}
	}

	cp := *d
	change.Donation = &cp
	return change, nil
}

func (s *Store) CreateDonation(_ context.Context, donation *model.Donation, donor *model.Donor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("CreateDonation", donation.ID.String()); err != nil {
		return err
	}

	if donor != nil {
		existing, ok := s.donors[strings.ToLower(donor.Email)]
		if !ok {
			cp := *donor
			s.donors[strings.ToLower(donor.Email)] = &cp
			existing = &cp
		}
		donation.DonorID = &existing.ID
	}

	now := time.Now().UTC()
	donation.CreatedAt = now
	donation.UpdatedAt = now
	cp := *donation
	s.donations[donation.ID] = &cp
	return nil
}

func (s *Store) SetOrder(_ context.Context, id uuid.UUID, orderID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("SetOrder", id.String()); err != nil {
		return err
	}
	d, ok := s.donations[id]
	if !ok {
		return model.ErrNotFound
	}
	d.OrderID = Ptr(orderID)
	d.PaymentSessionID = Ptr(sessionID)
	return nil
}

func (s *Store) ListDonations(_ context.Context, filter model.DonationFilter) ([]model.Donation, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("ListDonations", string(filter.Status)); err != nil {
		return nil, 0, err
	}

	var matched []model.Donation
	for _, d := range s.donations {
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		if filter.From != nil && d.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && d.CreatedAt.After(*filter.To) {
			continue
		}
		matched = append(matched, *d)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	start := filter.Offset()
	if start > total {
		start = total
	}
	end := total
	if filter.Limit > 0 && start+filter.Limit < total {
		end = start + filter.Limit
	}
	return matched[start:end], total, nil
}
