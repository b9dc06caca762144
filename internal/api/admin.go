package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"donation-service/internal/model"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

func parseFilter(r *http.Request) (model.DonationFilter, error) {
	q := r.URL.Query()
	filter := model.DonationFilter{
		Page:  parseIntDefault(q.Get("page"), 1),
		Limit: min(parseIntDefault(q.Get("limit"), defaultPageSize), maxPageSize),
	}

	if s := q.Get("status"); s != "" {
		status, err := model.ParseStatus(s)
		if err != nil {
			return filter, err
		}
		filter.Status = status
	}

	var ok bool
	if filter.From, ok = parseTime(q.Get("from"), false); !ok {
		return filter, fmt.Errorf("invalid from date %q", q.Get("from"))
	}
	if filter.To, ok = parseTime(q.Get("to"), true); !ok {
		return filter, fmt.Errorf("invalid to date %q", q.Get("to"))
	}
	return filter, nil
}

// --- ListDonations ---

func (h *Handlers) ListDonations(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	donations, total, err := h.store.ListDonations(r.Context(), filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Error listing donations", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if donations == nil {
		donations = []model.Donation{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"donations": donations,
		"total":     total,
		"page":      filter.Page,
		"limit":     filter.Limit,
	})
}

// --- ExportDonations ---

var exportHeader = []string{
	"donation_id", "order_id", "payment_id", "amount", "currency", "purpose",
	"status", "donor_id", "verified_at", "created_at",
}

// ExportDonations writes every donation matching the filter as CSV, ignoring pagination.
func (h *Handlers) ExportDonations(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.Page, filter.Limit = 0, 0

	donations, _, err := h.store.ListDonations(r.Context(), filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Error exporting donations", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	filename := fmt.Sprintf("donations-%s.csv", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write(exportHeader)
	for _, d := range donations {
		_ = cw.Write([]string{
			d.ID.String(),
			deref(d.OrderID),
			deref(d.PaymentID),
			strconv.FormatInt(d.Amount, 10),
			d.Currency,
			d.Purpose,
			string(d.Status),
			optionalUUID(d.DonorID),
			optionalTime(d.VerifiedAt),
			d.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.logger.ErrorContext(r.Context(), "Error writing donations export", "error", err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optionalUUID(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func optionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
