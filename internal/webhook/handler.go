// Package webhook receives Cashfree payment notifications and reconciles them
// against stored donations.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"donation-service/internal/config"
	"donation-service/internal/gateway"
	"donation-service/internal/logcontext"
	"donation-service/internal/model"
	"donation-service/internal/reconcile"
	"github.com/VictoriaMetrics/metrics"
)

// maxBodyBytes bounds the raw body read; real gateway events are a few KB.
const maxBodyBytes = 1 << 20

const (
	resultProbe            = "probe"
	resultInvalidSignature = "invalid_signature"
	resultMalformed        = "malformed"
	resultIgnored          = "ignored"
	resultNotFound         = "not_found"
	resultReconciled       = "reconciled"
	resultError            = "error"
)

type DonationLocator interface {
	Locate(ctx context.Context, orderID string) (*model.Donation, error)
}

type DonationReconciler interface {
	Reconcile(ctx context.Context, donation *model.Donation, status model.Status, paymentID string) (*reconcile.Result, error)
}

// Response is the JSON body of every webhook reply.
type Response struct {
	Success    bool         `json:"success"`
	Status     string       `json:"status,omitempty"`
	Error      string       `json:"error,omitempty"`
	DonationID string       `json:"donation_id,omitempty"`
	OldStatus  model.Status `json:"old_status,omitempty"`
	NewStatus  model.Status `json:"new_status,omitempty"`
}

type Handler struct {
	locator       DonationLocator
	reconciler    DonationReconciler
	secret        string
	allowInsecure bool
	logger        *slog.Logger
}

func NewHandler(locator DonationLocator, reconciler DonationReconciler, cfg config.Gateway, logger *slog.Logger) *Handler {
	if cfg.AllowInsecure {
		logger.Warn("Webhook signature verification is disabled")
	}
	return &Handler{
		locator:       locator,
		reconciler:    reconciler,
		secret:        cfg.WebhookSecret,
		allowInsecure: cfg.AllowInsecure,
		logger:        logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.receive(w, r)
	case http.MethodGet, http.MethodHead:
		writeJSON(w, http.StatusOK, Response{Success: true, Status: "endpoint active"})
	case http.MethodOptions:
		// preflights carrying an Origin are answered by the CORS layer
		w.Header().Set("Allow", "GET, HEAD, POST, OPTIONS")
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, HEAD, POST, OPTIONS")
		writeJSON(w, http.StatusMethodNotAllowed, Response{Error: "method not allowed"})
	}
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rawBody, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.logger.WarnContext(ctx, "Error reading webhook body", "error", err)
		h.reply(w, resultMalformed, http.StatusBadRequest, Response{Error: "unreadable body"})
		return
	}

	signature := r.Header.Get(gateway.SignatureHeader)
	h.logger.InfoContext(ctx, "Webhook received",
		"bytes", len(rawBody),
		"hasSignature", signature != "",
		"version", r.Header.Get(gateway.VersionHeader),
		"userAgent", r.UserAgent())

	if reason, ok := gateway.DetectProbe(gateway.ProbeRequest{
		Body:             rawBody,
		Signature:        signature,
		UserAgent:        r.UserAgent(),
		SecretConfigured: h.secret != "",
		AllowInsecure:    h.allowInsecure,
	}); ok {
		h.logger.InfoContext(ctx, "Webhook treated as connectivity probe", "reason", reason)
		h.reply(w, resultProbe, http.StatusOK, Response{Success: true, Status: "endpoint active"})
		return
	}

	if !h.allowInsecure {
		if !gateway.Verify(rawBody, signature, h.secret) {
			h.logger.WarnContext(ctx, "Webhook signature verification failed",
				"signatureLength", len(signature),
				"timestamp", r.Header.Get(gateway.TimestampHeader))
			h.reply(w, resultInvalidSignature, http.StatusUnauthorized, Response{Error: "invalid signature"})
			return
		}
		h.logger.DebugContext(ctx, "Webhook signature verified")
	}

	event, err := gateway.ParseEvent(rawBody)
	if err != nil {
		h.logger.WarnContext(ctx, "Malformed webhook payload", "error", err)
		h.reply(w, resultMalformed, http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	ctx = logcontext.AppendCtx(ctx,
		slog.String("eventType", event.Type),
		slog.String("orderId", event.OrderID))

	status, ok := event.Kind.Status()
	if !ok {
		h.logger.InfoContext(ctx, "Webhook event ignored", "kind", event.Kind)
		h.reply(w, resultIgnored, http.StatusOK, Response{Success: true, Status: resultIgnored})
		return
	}
	h.logger.InfoContext(ctx, "Webhook event classified", "kind", event.Kind, "status", status)

	donation, err := h.locator.Locate(ctx, event.OrderID)
	if errors.Is(err, reconcile.ErrDonationNotFound) {
		h.logger.WarnContext(ctx, "No donation matches webhook order")
		h.reply(w, resultNotFound, http.StatusOK, Response{Success: true, Status: resultNotFound})
		return
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "Error locating donation", "error", err)
		h.reply(w, resultError, http.StatusInternalServerError, Response{Error: "internal error"})
		return
	}

	ctx = logcontext.AppendCtx(ctx, slog.String("donationId", donation.ID.String()))

	result, err := h.reconciler.Reconcile(ctx, donation, status, event.PaymentID)
	if err != nil {
		h.logger.ErrorContext(ctx, "Error reconciling donation", "error", err)
		h.reply(w, resultError, http.StatusInternalServerError, Response{Error: "internal error"})
		return
	}

	h.logger.InfoContext(ctx, "Donation reconciled",
		"oldStatus", result.OldStatus,
		"newStatus", result.NewStatus,
		"changed", result.Changed)

	h.reply(w, resultReconciled, http.StatusOK, Response{
		Success:    true,
		DonationID: result.DonationID.String(),
		OldStatus:  result.OldStatus,
		NewStatus:  result.NewStatus,
	})
}

func (h *Handler) reply(w http.ResponseWriter, result string, status int, body Response) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`webhook_requests_total{result=%q}`, result)).Inc()
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
