package receipt

import (
	"context"
	"sync"

	"donation-service/internal/db"
	"donation-service/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"
)

// fakeTx only supports Commit and Rollback; any other call panics on the nil embed.
type fakeTx struct {
	pgx.Tx
	store     *fakeStore
	committed bool
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.commits++
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	return nil
}

type fakeStore struct {
	mu      sync.Mutex
	events  map[uuid.UUID]*db.DonationEventEntity
	order   []uuid.UUID
	commits int
	updates int
}

func newFakeStore(events ...*db.DonationEventEntity) *fakeStore {
	s := &fakeStore{events: map[uuid.UUID]*db.DonationEventEntity{}}
	for _, e := range events {
		s.events[e.ID] = e
		s.order = append(s.order, e.ID)
	}
	return s
}

func (s *fakeStore) BeginTx(context.Context) (pgx.Tx, error) {
	return &fakeTx{store: s}, nil
}

func (s *fakeStore) GetDueEvents(_ context.Context, _ pgx.Tx, limit int) ([]*db.DonationEventEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*db.DonationEventEntity
	for _, id := range s.order {
		if len(out) == limit {
			break
		}
		// due regardless of time, so retries can be driven without waiting
		if s.events[id].ScheduledAt == nil {
			continue
		}
		copied := *s.events[id]
		out = append(out, &copied)
	}
	return out, nil
}

func (s *fakeStore) SelectForUpdateByID(_ context.Context, _ pgx.Tx, id uuid.UUID) (*db.DonationEventEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	copied := *e
	return &copied, nil
}

func (s *fakeStore) Update(_ context.Context, _ pgx.Tx, e *db.DonationEventEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *e
	s.events[e.ID] = &copied
	s.updates++
	return nil
}

func (s *fakeStore) get(id uuid.UUID) db.DonationEventEntity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.events[id]
}

type fakeWriter struct {
	err      error
	messages []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

type fakeSender struct {
	mu    sync.Mutex
	err   error
	calls []sentReceipt
}

type sentReceipt struct {
	url            string
	payload        []byte
	idempotencyKey string
}

func (s *fakeSender) Send(_ context.Context, url string, payload []byte, idempotencyKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sentReceipt{url: url, payload: payload, idempotencyKey: idempotencyKey})
	return s.err
}
