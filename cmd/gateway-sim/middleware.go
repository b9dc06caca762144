package main

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"sync"
)

type loggingResponseWriter struct {
	http.ResponseWriter
	body *bytes.Buffer
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	lrw.body.Write(b)
	return lrw.ResponseWriter.Write(b)
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var requestBody bytes.Buffer
		body, err := io.ReadAll(io.TeeReader(r.Body, &requestBody))
		if err != nil {
			logger.Error("Error reading request body", "error", err)
		}
		r.Body = io.NopCloser(&requestBody)

		lrw := &loggingResponseWriter{ResponseWriter: w, body: &bytes.Buffer{}}
		next.ServeHTTP(lrw, r)

		logger.Info("Receipt request",
			"path", r.URL.Path,
			"idempotencyKey", r.Header.Get("Idempotency-Key"),
			"request", string(body),
			"response", lrw.body.String())
	})
}

// idempotencyTracker records every Idempotency-Key seen and flags repeats.
type idempotencyTracker struct {
	mu         sync.Mutex
	seen       map[string]int
	duplicates map[string]bool
	logger     *slog.Logger
}

func newIdempotencyTracker(logger *slog.Logger) *idempotencyTracker {
	return &idempotencyTracker{
		seen:       make(map[string]int),
		duplicates: make(map[string]bool),
		logger:     logger,
	}
}

func (t *idempotencyTracker) record(key string) (count int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen[key]++
	if t.seen[key] > 1 {
		t.duplicates[key] = true
	}
	return t.seen[key]
}

func (t *idempotencyTracker) duplicateKeys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.duplicates))
	for k := range t.duplicates {
		keys = append(keys, k)
	}
	return keys
}

func (t *idempotencyTracker) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Idempotency-Key")
		if key == "" {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "missing Idempotency-Key"})
			return
		}

		if count := t.record(key); count > 1 {
			t.logger.Warn("Duplicate receipt request", "idempotencyKey", key, "count", count)
			// a real receipt service replays the original outcome
			writeJSON(w, http.StatusOK, ReceiptResponse{Success: true, Duplicate: true})
			return
		}
		next.ServeHTTP(w, r)
	})
}
