package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"donation-service/internal/auth"
	"donation-service/internal/config"
	"donation-service/internal/gateway"
	"donation-service/internal/model"
	"donation-service/internal/reconcile"
	"github.com/google/uuid"
)

type DonationStore interface {
	CreateDonation(ctx context.Context, donation *model.Donation, donor *model.Donor) error
	SetOrder(ctx context.Context, id uuid.UUID, orderID, sessionID string) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Donation, error)
	ListDonations(ctx context.Context, filter model.DonationFilter) ([]model.Donation, int, error)
}

type PaymentGateway interface {
	CreateOrder(ctx context.Context, req gateway.CreateOrderRequest) (*gateway.Order, error)
	GetOrder(ctx context.Context, orderID string) (*gateway.Order, error)
	GetOrderPayments(ctx context.Context, orderID string) ([]gateway.Payment, error)
}

type DonationReconciler interface {
	Reconcile(ctx context.Context, donation *model.Donation, status model.Status, paymentID string) (*reconcile.Result, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	store      DonationStore
	gateway    PaymentGateway
	reconciler DonationReconciler
	tokens     *auth.Tokens
	pinger     Pinger
	returnURL  string
	logger     *slog.Logger
}

type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Response{Error: msg})
}

// parseTime accepts RFC 3339 or a bare date. With endOfDay a bare date covers
// the whole day, so it can serve as an inclusive upper bound.
func parseTime(s string, endOfDay bool) (*time.Time, bool) {
	if s == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return &t, true
	}
	t, err = time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, false
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Microsecond)
	}
	return &t, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

func newHandlers(deps Dependencies, gatewayCfg config.Gateway) *Handlers {
	return &Handlers{
		store:      deps.Store,
		gateway:    deps.Gateway,
		reconciler: deps.Reconciler,
		tokens:     deps.Tokens,
		pinger:     deps.Pinger,
		returnURL:  gatewayCfg.ReturnURL,
		logger:     deps.Logger,
	}
}
