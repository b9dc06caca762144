package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"donation-service/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookBody_ParsesAsGatewayEvent(t *testing.T) {
	for eventType, kind := range map[string]gateway.Kind{
		"PAYMENT_SUCCESS_WEBHOOK":      gateway.KindPaymentSuccess,
		"PAYMENT_FAILED_WEBHOOK":       gateway.KindPaymentFailed,
		"PAYMENT_USER_DROPPED_WEBHOOK": gateway.KindPaymentUserDropped,
	} {
		body, err := webhookBody(sendOptions{eventType: eventType, orderID: "ORD-1", paymentID: "PAY-99", amount: 501}, time.Now())
		require.NoError(t, err)

		event, err := gateway.ParseEvent(body)
		require.NoError(t, err)
		assert.Equal(t, kind, event.Kind)
		assert.Equal(t, "ORD-1", event.OrderID)
		assert.Equal(t, "PAY-99", event.PaymentID)
	}
}

func TestDeliver_SignsRawBody(t *testing.T) {
	var received struct {
		body      []byte
		signature string
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.signature = r.Header.Get(gateway.SignatureHeader)
		received.body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	for _, hexSig := range []bool{false, true} {
		opts := sendOptions{url: server.URL, secret: "whsec_test", hexSig: hexSig}
		body := []byte(`{"type":"PAYMENT_SUCCESS_WEBHOOK"}`)

		status, _, err := deliver(context.Background(), server.Client(), opts, body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, status)
		assert.True(t, gateway.Verify(received.body, received.signature, "whsec_test"))
	}
}

func TestReceiptMux_FlagsDuplicateIdempotencyKeys(t *testing.T) {
	mux := newReceiptMux(slog.Default())

	send := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/always-success", strings.NewReader(`{"donationId":"d-1"}`))
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusBadRequest, send("").Code)

	first := send("evt-1")
	require.Equal(t, http.StatusOK, first.Code)
	var resp ReceiptResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &resp))
	assert.False(t, resp.Duplicate)

	second := send("evt-1")
	require.Equal(t, http.StatusOK, second.Code)
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	assert.True(t, resp.Duplicate)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/duplicates", nil))
	assert.JSONEq(t, `{"duplicates":["evt-1"]}`, rec.Body.String())
}
