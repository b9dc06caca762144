package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"donation-service/internal/gateway"
)

type sendOptions struct {
	url       string
	secret    string
	eventType string
	orderID   string
	paymentID string
	amount    float64
	repeat    int
	hexSig    bool
}

func runSend(args []string, logger *slog.Logger) error {
	var opts sendOptions
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.StringVar(&opts.url, "url", "http://localhost:8080/api/webhooks/cashfree", "webhook endpoint")
	fs.StringVar(&opts.secret, "secret", "", "webhook signing secret")
	fs.StringVar(&opts.eventType, "type", "PAYMENT_SUCCESS_WEBHOOK", "gateway event type")
	fs.StringVar(&opts.orderID, "order", "", "order id")
	fs.StringVar(&opts.paymentID, "payment", "", "cf payment id")
	fs.Float64Var(&opts.amount, "amount", 501, "order amount")
	fs.IntVar(&opts.repeat, "repeat", 1, "number of identical deliveries")
	fs.BoolVar(&opts.hexSig, "hex", false, "sign with hex instead of base64")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if opts.orderID == "" {
		return fmt.Errorf("-order is required")
	}
	if opts.paymentID == "" {
		opts.paymentID = strconv.FormatInt(time.Now().UnixNano()%1_000_000_000, 10)
	}

	body, err := webhookBody(opts, time.Now())
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	for i := 1; i <= opts.repeat; i++ {
		status, respBody, err := deliver(context.Background(), client, opts, body)
		if err != nil {
			return err
		}
		logger.Info("Webhook delivered", "attempt", i, "status", status, "response", respBody)
	}
	return nil
}

// webhookBody builds a body in the shape of Cashfree's 2023-08-01 webhooks.
func webhookBody(opts sendOptions, now time.Time) ([]byte, error) {
	paymentStatus := "SUCCESS"
	switch opts.eventType {
	case "PAYMENT_FAILED_WEBHOOK":
		paymentStatus = "FAILED"
	case "PAYMENT_USER_DROPPED_WEBHOOK":
		paymentStatus = "USER_DROPPED"
	}

	return json.Marshal(map[string]any{
		"type":       opts.eventType,
		"event_time": now.Format(time.RFC3339),
		"data": map[string]any{
			"order": map[string]any{
				"order_id":       opts.orderID,
				"order_amount":   opts.amount,
				"order_currency": "INR",
			},
			"payment": map[string]any{
				"cf_payment_id":  opts.paymentID,
				"payment_status": paymentStatus,
				"payment_amount": opts.amount,
				"payment_time":   now.Format(time.RFC3339),
			},
		},
	})
}

func deliver(ctx context.Context, client *http.Client, opts sendOptions, body []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.url, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(gateway.VersionHeader, "2023-08-01")
	req.Header.Set(gateway.TimestampHeader, strconv.FormatInt(time.Now().UnixMilli(), 10))
	if opts.secret != "" {
		signature := gateway.Sign(body, opts.secret)
		if opts.hexSig {
			signature = gateway.SignHex(body, opts.secret)
		}
		req.Header.Set(gateway.SignatureHeader, signature)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", err
	}
	return resp.StatusCode, string(respBody), nil
}
