package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hisab/internal/core"
	applog "hisab/internal/log"
	"hisab/internal/middleware/trace"
)

// ownerHeader carries the caller identity, set by the reverse proxy in
// front of the service. Requests without it are rejected.
const ownerHeader = "X-Owner-ID"

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: ve.Reason, Field: ve.Field})
	case errors.Is(err, core.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, core.ErrConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "concurrent update, retry"})
	case errors.Is(err, core.ErrStoreUnavailable):
		slog.ErrorContext(r.Context(), "Store unavailable",
			applog.FieldRequestID, trace.GetRequestID(r.Context()),
			applog.FieldPath, r.URL.Path,
			applog.FieldError, err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "storage unavailable"})
	default:
		slog.ErrorContext(r.Context(), "Unhandled error",
			applog.FieldRequestID, trace.GetRequestID(r.Context()),
			applog.FieldPath, r.URL.Path,
			applog.FieldError, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func ownerID(r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(ownerHeader))
	return id, id != ""
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, core.Invalid("id", "must be a positive integer")
	}
	return id, nil
}

// parseDate accepts YYYY-MM-DD.
func parseDate(s string) (core.Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return core.Date{}, core.Invalid("date", "must be YYYY-MM-DD")
	}
	return core.Date{Time: t}, nil
}

// parseAmount accepts a decimal string like "12.34" and returns cents.
func parseAmount(field, s string) (int64, error) {
	cents, err := core.ParseDecimalToCents(s)
	if err != nil {
		return 0, core.Invalid(field, err.Error())
	}
	return cents, nil
}

// dateRange reads optional from/to query parameters, defaulting to a wide
// open interval.
func dateRange(r *http.Request) (time.Time, time.Time, error) {
	from := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2999, 12, 31, 0, 0, 0, 0, time.UTC)

	if s := r.URL.Query().Get("from"); s != "" {
		d, err := parseDate(s)
		if err != nil {
			return time.Time{}, time.Time{}, core.Invalid("from", "must be YYYY-MM-DD")
		}
		from = d.Time
	}
	if s := r.URL.Query().Get("to"); s != "" {
		d, err := parseDate(s)
		if err != nil {
			return time.Time{}, time.Time{}, core.Invalid("to", "must be YYYY-MM-DD")
		}
		to = d.Time
	}
	return from, to, nil
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}
