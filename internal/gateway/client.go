package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"donation-service/internal/config"
	"github.com/VictoriaMetrics/metrics"
)

var ErrAPI = errors.New("cashfree api error")

const (
	OrderStatusActive = "ACTIVE"
	OrderStatusPaid   = "PAID"
)

// ID accepts both the numeric and string forms Cashfree has used for cf_* identifiers.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

type CustomerDetails struct {
	CustomerID    string `json:"customer_id"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
	CustomerPhone string `json:"customer_phone"`
}

type OrderMeta struct {
	ReturnURL string `json:"return_url,omitempty"`
	NotifyURL string `json:"notify_url,omitempty"`
}

type CreateOrderRequest struct {
	OrderID         string          `json:"order_id"`
	OrderAmount     float64         `json:"order_amount"`
	OrderCurrency   string          `json:"order_currency"`
	CustomerDetails CustomerDetails `json:"customer_details"`
	OrderMeta       *OrderMeta      `json:"order_meta,omitempty"`
	OrderNote       string          `json:"order_note,omitempty"`
}

type Order struct {
	CFOrderID        ID      `json:"cf_order_id"`
	OrderID          string  `json:"order_id"`
	OrderAmount      float64 `json:"order_amount"`
	OrderCurrency    string  `json:"order_currency"`
	OrderStatus      string  `json:"order_status"`
	PaymentSessionID string  `json:"payment_session_id"`
}

type Payment struct {
	CFPaymentID           ID      `json:"cf_payment_id"`
	OrderID               string  `json:"order_id"`
	PaymentStatus         string  `json:"payment_status"`
	PaymentAmount         float64 `json:"payment_amount"`
	PaymentTime           string  `json:"payment_time"`
	PaymentCompletionTime string  `json:"payment_completion_time"`
}

func (p Payment) completedAt() time.Time {
	for _, s := range []string{p.PaymentCompletionTime, p.PaymentTime} {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Type    string `json:"type"`
}

var requestErrorCounter = metrics.GetOrCreateCounter(`cashfree_requests_total{result="error"}`)

type Client struct {
	httpClient *http.Client
	baseURL    string
	appID      string
	secretKey  string
	apiVersion string
	logger     *slog.Logger
}

func NewClient(cfg config.Gateway, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		appID:      cfg.AppID,
		secretKey:  cfg.SecretKey,
		apiVersion: cfg.APIVersion,
		logger:     logger,
	}
}

func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	var order Order
	if err := c.do(ctx, "create_order", http.MethodPost, "/pg/orders", req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	if err := c.do(ctx, "get_order", http.MethodGet, "/pg/orders/"+url.PathEscape(orderID), nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) GetOrderPayments(ctx context.Context, orderID string) ([]Payment, error) {
	var payments []Payment
	path := "/pg/orders/" + url.PathEscape(orderID) + "/payments"
	if err := c.do(ctx, "get_order_payments", http.MethodGet, path, nil, &payments); err != nil {
		return nil, err
	}
	return payments, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	startTime := time.Now()
	defer func() {
		metrics.GetOrCreateHistogram(fmt.Sprintf(`cashfree_request_duration_milliseconds{op=%q}`, op)).
			Update(float64(time.Since(startTime).Milliseconds()))
	}()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-client-id", c.appID)
	req.Header.Set("x-client-secret", c.secretKey)
	req.Header.Set("x-api-version", c.apiVersion)

	c.logger.DebugContext(ctx, "Calling Cashfree", "op", op, "method", method, "path", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		requestErrorCounter.Inc()
		return fmt.Errorf("cashfree %s: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		requestErrorCounter.Inc()
		return fmt.Errorf("cashfree %s: read body: %w", op, err)
	}

	if resp.StatusCode >= 400 {
		requestErrorCounter.Inc()
		var apiErr apiError
		_ = json.Unmarshal(respBody, &apiErr)
		c.logger.WarnContext(ctx, "Cashfree returned an error", "op", op, "status", resp.StatusCode, "code", apiErr.Code)
		return fmt.Errorf("%w: %s: %d %s %s", ErrAPI, op, resp.StatusCode, apiErr.Code, apiErr.Message)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		requestErrorCounter.Inc()
		return fmt.Errorf("cashfree %s: decode response: %w", op, err)
	}
	return nil
}

var paymentStatusKinds = map[string]Kind{
	"SUCCESS":      KindPaymentSuccess,
	"FAILED":       KindPaymentFailed,
	"USER_DROPPED": KindPaymentUserDropped,
}

// PaymentOutcome reduces an order and its payment attempts to the event kind the
// webhook would have delivered, plus the payment id to record.
func PaymentOutcome(order Order, payments []Payment) (Kind, string) {
	for _, p := range payments {
		if strings.EqualFold(p.PaymentStatus, "SUCCESS") {
			return KindPaymentSuccess, string(p.CFPaymentID)
		}
	}

	if len(payments) == 0 {
		if strings.EqualFold(order.OrderStatus, OrderStatusPaid) {
			return KindPaymentSuccess, ""
		}
		return KindUnrecognized, ""
	}

	latest := payments[len(payments)-1]
	for _, p := range payments {
		if p.completedAt().After(latest.completedAt()) {
			latest = p
		}
	}
	return paymentStatusKinds[strings.ToUpper(latest.PaymentStatus)], string(latest.CFPaymentID)
}
