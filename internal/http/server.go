// Package http exposes the ledger as a JSON API. Identity comes from the
// X-Owner-ID header set by the proxy in front of the service.
package http

import (
	"net/http"
	"time"

	"hisab/internal/middleware/trace"
)

// NewServer wires the routes and wraps them with request tracing and a
// per-request timeout.
func NewServer(addr string, h *Handlers, requestTimeout time.Duration) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Health)

	mux.HandleFunc("POST /api/accounts", h.CreateAccount)
	mux.HandleFunc("GET /api/accounts", h.ListAccounts)
	mux.HandleFunc("GET /api/accounts/{id}", h.GetAccount)
	mux.HandleFunc("GET /api/accounts/{id}/transactions", h.ListAccountTransactions)
	mux.HandleFunc("POST /api/accounts/{id}/pause", h.PauseBudget)
	mux.HandleFunc("POST /api/accounts/{id}/resume", h.ResumeBudget)
	mux.HandleFunc("POST /api/accounts/{id}/reconcile", h.ReconcileAccount)

	mux.HandleFunc("POST /api/transactions", h.CreateTransaction)
	mux.HandleFunc("GET /api/transactions", h.ListTransactions)
	mux.HandleFunc("GET /api/transactions/{id}", h.GetTransaction)
	mux.HandleFunc("PATCH /api/transactions/{id}", h.UpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", h.DeleteTransaction)

	mux.HandleFunc("GET /api/reports/aggregate", h.AggregateReport)
	mux.HandleFunc("GET /api/reports/categories", h.CategoryReport)

	mux.HandleFunc("POST /api/reconcile", h.ReconcileOwner)
	mux.HandleFunc("POST /api/budgets/auto-complete", h.AutoCompleteBudgets)

	tracer := trace.NewMiddleware(clientIP)
	handler := tracer.Middleware(mux)

	return &http.Server{
		Addr:              addr,
		Handler:           http.TimeoutHandler(handler, requestTimeout, `{"error":"request timed out"}`),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       requestTimeout + 5*time.Second,
		WriteTimeout:      requestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
