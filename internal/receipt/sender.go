package receipt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"donation-service/internal/config"
)

// Sender posts receipt requests to the external receipt service, which renders the
// PDF and emails the donor.
type Sender struct {
	client *http.Client
	logger *slog.Logger
}

func NewSender(cfg config.ReceiptSender, logger *slog.Logger) *Sender {
	return &Sender{
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond},
		logger: logger,
	}
}

func (s *Sender) Send(ctx context.Context, url string, payload []byte, idempotencyKey string) error {
	s.logger.InfoContext(ctx, "Sending receipt request", "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error sending receipt request", "error", err)
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Receipt service responded", "status", resp.StatusCode, "body", string(respBody))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("error response: %s", resp.Status)
	}
	return nil
}
