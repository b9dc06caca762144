package main

import (
	"encoding/json"
	"flag"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"
)

const (
	errorRate   = 0.5
	contentType = "application/json"
)

type ReceiptResponse struct {
	Success   bool `json:"success"`
	Duplicate bool `json:"duplicate,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func runServe(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", ":8085", "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger.Info("Mock receipt service listening", "addr", *addr)
	return http.ListenAndServe(*addr, newReceiptMux(logger))
}

func newReceiptMux(logger *slog.Logger) http.Handler {
	tracker := newIdempotencyTracker(logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /always-success", alwaysSuccessHandler)
	mux.HandleFunc("POST /success-delayed", successDelayedHandler)
	mux.HandleFunc("POST /always-fail", alwaysFailHandler)
	mux.HandleFunc("POST /random-fail", randomFailHandler)

	root := http.NewServeMux()
	root.HandleFunc("GET /duplicates", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string][]string{"duplicates": tracker.duplicateKeys()})
	})
	root.Handle("/", tracker.middleware(mux))

	return loggingMiddleware(logger, root)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func alwaysSuccessHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ReceiptResponse{Success: true})
}

func successDelayedHandler(w http.ResponseWriter, _ *http.Request) {
	time.Sleep(time.Duration(3+rand.IntN(6)) * time.Second)
	writeJSON(w, http.StatusOK, ReceiptResponse{Success: true})
}

func alwaysFailHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal Server Error"})
}

func randomFailHandler(w http.ResponseWriter, _ *http.Request) {
	if rand.Float64() < errorRate {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal Server Error"})
		return
	}
	writeJSON(w, http.StatusOK, ReceiptResponse{Success: true})
}
