package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"regexp"
	"strings"

	"donation-service/internal/auth"
	"donation-service/internal/gateway"
	"donation-service/internal/logcontext"
	"donation-service/internal/model"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	minAmount = 1
	maxAmount = 10_000_000

	currencyINR = "INR"

	// Cashfree requires a phone number even for anonymous checkouts.
	anonymousPhone = "9999999999"
)

var (
	phonePattern = regexp.MustCompile(`^\+?[0-9]{10,15}$`)
	panPattern   = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
)

type DonorInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	PAN   string `json:"pan"`
}

type CreateDonationRequest struct {
	Amount    int64       `json:"amount"`
	Purpose   string      `json:"purpose"`
	Anonymous bool        `json:"anonymous"`
	Donor     *DonorInput `json:"donor"`
}

func (r *CreateDonationRequest) validate() error {
	if r.Amount < minAmount || r.Amount > maxAmount {
		return errors.New("amount must be between 1 and 10000000")
	}
	if r.Anonymous {
		return nil
	}
	if r.Donor == nil {
		return errors.New("donor details are required")
	}
	r.Donor.Name = strings.TrimSpace(r.Donor.Name)
	r.Donor.Email = strings.TrimSpace(r.Donor.Email)
	r.Donor.Phone = strings.TrimSpace(r.Donor.Phone)
	r.Donor.PAN = strings.ToUpper(strings.TrimSpace(r.Donor.PAN))

	if r.Donor.Name == "" {
		return errors.New("donor name is required")
	}
	if _, err := mail.ParseAddress(r.Donor.Email); err != nil {
		return errors.New("donor email is invalid")
	}
	if !phonePattern.MatchString(r.Donor.Phone) {
		return errors.New("donor phone is invalid")
	}
	if r.Donor.PAN != "" && !panPattern.MatchString(r.Donor.PAN) {
		return errors.New("donor PAN is invalid")
	}
	return nil
}

type CreateDonationResponse struct {
	Success          bool   `json:"success"`
	DonationID       string `json:"donation_id"`
	OrderID          string `json:"order_id"`
	PaymentSessionID string `json:"payment_session_id"`
	CheckoutToken    string `json:"checkout_token"`
}

// CreateDonation records a pending donation and opens a Cashfree order for it.
func (h *Handlers) CreateDonation(w http.ResponseWriter, r *http.Request) {
	var req CreateDonationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	donation := &model.Donation{
		ID:       uuid.New(),
		Amount:   req.Amount,
		Currency: currencyINR,
		Purpose:  strings.TrimSpace(req.Purpose),
		Status:   model.StatusPending,
	}
	ctx := logcontext.AppendCtx(r.Context(), slog.String("donationId", donation.ID.String()))

	var donor *model.Donor
	if !req.Anonymous {
		donor = &model.Donor{
			ID:    uuid.New(),
			Name:  req.Donor.Name,
			Email: req.Donor.Email,
			Phone: req.Donor.Phone,
			PAN:   req.Donor.PAN,
		}
	}

	if err := h.store.CreateDonation(ctx, donation, donor); err != nil {
		h.logger.ErrorContext(ctx, "Error creating donation", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	order, err := h.gateway.CreateOrder(ctx, h.orderRequest(donation, donor))
	if err != nil {
		h.logger.ErrorContext(ctx, "Error creating Cashfree order", "error", err)
		writeError(w, http.StatusBadGateway, "payment gateway unavailable")
		return
	}

	if err := h.store.SetOrder(ctx, donation.ID, order.OrderID, order.PaymentSessionID); err != nil {
		h.logger.ErrorContext(ctx, "Error storing Cashfree order", "orderId", order.OrderID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	token, err := h.tokens.CheckoutToken(donation.ID)
	if err != nil {
		h.logger.ErrorContext(ctx, "Error issuing checkout token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.logger.InfoContext(ctx, "Donation created", "orderId", order.OrderID, "amount", donation.Amount)

	writeJSON(w, http.StatusCreated, CreateDonationResponse{
		Success:          true,
		DonationID:       donation.ID.String(),
		OrderID:          order.OrderID,
		PaymentSessionID: order.PaymentSessionID,
		CheckoutToken:    token,
	})
}

func (h *Handlers) orderRequest(donation *model.Donation, donor *model.Donor) gateway.CreateOrderRequest {
	customer := gateway.CustomerDetails{
		CustomerID:    "anon-" + donation.ID.String()[:8],
		CustomerPhone: anonymousPhone,
	}
	if donor != nil {
		customer = gateway.CustomerDetails{
			CustomerID:    donor.ID.String(),
			CustomerName:  donor.Name,
			CustomerEmail: donor.Email,
			CustomerPhone: donor.Phone,
		}
		if donation.DonorID != nil {
			customer.CustomerID = donation.DonorID.String()
		}
	}

	req := gateway.CreateOrderRequest{
		OrderID:         donation.ID.String(),
		OrderAmount:     float64(donation.Amount),
		OrderCurrency:   donation.Currency,
		CustomerDetails: customer,
		OrderNote:       donation.Purpose,
	}
	if h.returnURL != "" {
		req.OrderMeta = &gateway.OrderMeta{ReturnURL: h.returnURL}
	}
	return req
}

type VerifyResponse struct {
	Success    bool         `json:"success"`
	Status     string       `json:"status,omitempty"`
	DonationID string       `json:"donation_id,omitempty"`
	OldStatus  model.Status `json:"old_status,omitempty"`
	NewStatus  model.Status `json:"new_status,omitempty"`
}

// VerifyPayment asks Cashfree for the order outcome and applies it, for donors
// returning from checkout before the webhook has arrived.
func (h *Handlers) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid donation id")
		return
	}
	ctx := logcontext.AppendCtx(r.Context(), slog.String("donationId", id.String()))

	token, ok := auth.BearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authorization header required")
		return
	}
	if err := h.tokens.ValidateCheckout(token, id); err != nil {
		h.logger.WarnContext(ctx, "Checkout token rejected", "error", err)
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	donation, err := h.store.FindByID(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		writeError(w, http.StatusNotFound, "donation not found")
		return
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "Error loading donation", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if donation.OrderID == nil {
		writeError(w, http.StatusConflict, "donation has no payment order")
		return
	}

	orderID := *donation.OrderID
	order, err := h.gateway.GetOrder(ctx, orderID)
	if err != nil {
		h.logger.ErrorContext(ctx, "Error fetching Cashfree order", "orderId", orderID, "error", err)
		writeError(w, http.StatusBadGateway, "payment gateway unavailable")
		return
	}
	payments, err := h.gateway.GetOrderPayments(ctx, orderID)
	if err != nil {
		h.logger.ErrorContext(ctx, "Error fetching Cashfree payments", "orderId", orderID, "error", err)
		writeError(w, http.StatusBadGateway, "payment gateway unavailable")
		return
	}

	kind, paymentID := gateway.PaymentOutcome(*order, payments)
	status, ok := kind.Status()
	if !ok {
		h.logger.InfoContext(ctx, "Payment not settled yet", "orderStatus", order.OrderStatus, "payments", len(payments))
		writeJSON(w, http.StatusOK, VerifyResponse{Success: true, Status: string(model.StatusPending)})
		return
	}

	result, err := h.reconciler.Reconcile(ctx, donation, status, paymentID)
	if err != nil {
		h.logger.ErrorContext(ctx, "Error reconciling donation", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.logger.InfoContext(ctx, "Payment verified", "kind", kind, "oldStatus", result.OldStatus, "newStatus", result.NewStatus)

	writeJSON(w, http.StatusOK, VerifyResponse{
		Success:    true,
		DonationID: result.DonationID.String(),
		OldStatus:  result.OldStatus,
		NewStatus:  result.NewStatus,
	})
}
