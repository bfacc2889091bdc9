package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"hisab/internal/cache"
	"hisab/internal/core"
	"hisab/internal/ledger"
	"hisab/internal/report"
)

// Handlers owns the JSON API surface. Reads of report endpoints go through
// a per-owner cache; every ledger mutation invalidates the owner's entries.
type Handlers struct {
	coordinator *ledger.Coordinator
	reconciler  *ledger.Reconciler
	reporter    *report.Reporter
	store       ledger.Store
	reports     *cache.OwnerCache[[]byte]
}

func NewHandlers(coordinator *ledger.Coordinator, reconciler *ledger.Reconciler, reporter *report.Reporter, store ledger.Store) *Handlers {
	return &Handlers{
		coordinator: coordinator,
		reconciler:  reconciler,
		reporter:    reporter,
		store:       store,
		reports:     cache.NewOwnerCache[[]byte](256, 5*time.Minute),
	}
}

// ReportCache exposes the report cache for periodic expiry cleanup.
func (h *Handlers) ReportCache() cache.Cleaner {
	return h.reports
}

type accountResponse struct {
	ID         int64   `json:"id"`
	Kind       string  `json:"kind"`
	Name       string  `json:"name"`
	Amount     string  `json:"amount"`
	Aggregate  string  `json:"aggregate"`
	Remaining  string  `json:"remaining"`
	Percentage float64 `json:"percentage"`
	Status     string  `json:"status,omitempty"`
	StartDate  string  `json:"start_date,omitempty"`
	EndDate    string  `json:"end_date,omitempty"`
	Savings    string  `json:"savings,omitempty"`
}

type transactionResponse struct {
	ID             int64  `json:"id"`
	AccountID      int64  `json:"account_id,omitempty"`
	Kind           string `json:"kind"`
	Amount         string `json:"amount"`
	Paid           string `json:"paid,omitempty"`
	AffectsBalance bool   `json:"affects_balance"`
	Category       string `json:"category,omitempty"`
	Description    string `json:"description"`
	Date           string `json:"date"`
}

func toAccountResponse(a core.Account) accountResponse {
	resp := accountResponse{
		ID:         a.ID,
		Kind:       string(a.Kind),
		Name:       a.Name,
		Amount:     a.Amount.String(),
		Aggregate:  a.Aggregate.String(),
		Remaining:  a.Remaining().String(),
		Percentage: a.Percentage(),
		Status:     string(a.Status),
	}
	if !a.StartDate.IsEmpty() {
		resp.StartDate = a.StartDate.Format("2006-01-02")
	}
	if !a.EndDate.IsEmpty() {
		resp.EndDate = a.EndDate.Format("2006-01-02")
	}
	if a.Savings.Cents != 0 {
		resp.Savings = a.Savings.String()
	}
	return resp
}

func toTransactionResponse(t core.Transaction) transactionResponse {
	resp := transactionResponse{
		ID:             t.ID,
		AccountID:      t.AccountID,
		Kind:           string(t.Kind),
		Amount:         t.Amount.String(),
		AffectsBalance: t.AffectsBalance,
		Category:       t.Category,
		Description:    t.Description,
		Date:           t.Date.Format("2006-01-02"),
	}
	if t.PaidAmount.Cents != 0 {
		resp.Paid = t.PaidAmount.String()
	}
	return resp
}

type createAccountRequest struct {
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	Amount    string `json:"amount"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func (h *Handlers) CreateAccount(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing owner"})
		return
	}

	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, core.Invalid("body", "malformed JSON"))
		return
	}

	in := ledger.AccountInput{
		Kind: core.AccountKind(req.Kind),
		Name: req.Name,
	}
	if req.Amount != "" {
		cents, err := parseAmount("amount", req.Amount)
		if err != nil {
			writeError(w, r, err)
			return
		}
		in.AmountCents = cents
	}
	if req.StartDate != "" {
		d, err := parseDate(req.StartDate)
		if err != nil {
			writeError(w, r, err)
			return
		}
		in.StartDate = d
	}
	if req.EndDate != "" {
		d, err := parseDate(req.EndDate)
		if err != nil {
			writeError(w, r, err)
			return
		}
		in.EndDate = d
	}

	created, err := h.coordinator.CreateAccount(r.Context(), owner, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.reports.Invalidate(owner)
	writeJSON(w, http.StatusCreated, toAccountResponse(created))
}

func (h *Handlers) ListAccounts(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing owner"})
		return
	}

	kind := core.AccountKind(r.URL.Query().Get("kind"))
	if kind != "" && !kind.Valid() {
		writeError(w, r, core.Invalid("kind", "unknown account kind"))
		return
	}

	accounts, err := h.store.ListAccounts(r.Context(), owner, kind)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) GetAccount(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing owner"})
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	snap, err := h.coordinator.AccountSnapshot(r.Context(), owner, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(snap.Account))
}

func (h *Handlers) ListAccountTransactions(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing owner"})
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// ownership check before listing
	if _, err := h.store.GetAccount(r.Context(), owner, id); err != nil {
		writeError(w, r, err)
		return
	}
	txs, err := h.store.ListAccountTransactions(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) PauseBudget(w http.ResponseWriter, r *http.Request) {
	h.budgetTransition(w, r, h.coordinator.PauseBudget)
}

func (h *Handlers) ResumeBudget(w http.ResponseWriter, r *http.Request) {
	h.budgetTransition(w, r, h.coordinator.ResumeBudget)
}

func (h *Handlers) budgetTransition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, ownerID string, id int64) error) {
	owner, ok := ownerID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing owner"})
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := op(r.Context(), owner, id); err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := h.coordinator.AccountSnapshot(r.Context(), owner, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(snap.Account))
}

type createTransactionRequest struct {
	AccountID      int64  `json:"account_id"`
	Kind           string `json:"kind"`
	Amount         string `json:"amount"`
	Paid           string `json:"paid"`
	AffectsBalance bool   `json:"affects_balance"`
	Category       string `json:"category"`
	Description    string `json:"description"`
	Date           string `json:"date"`
}

func (h *Handlers) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing owner"})
		return
	}

	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, core.Invalid("body", "malformed JSON"))
		return
	}

	in := ledger.CreateInput{
		AccountID:      req.AccountID,
		Kind:           core.TransactionKind(req.Kind),
		AffectsBalance: req.AffectsBalance,
		Category:       req.Category,
		Description:    req.Description,
	}
	cents, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in.AmountCents = cents
	if req.Paid != "" {
		paid, err := parseAmount("paid", req.Paid)
		if err != nil {
			writeError(w, r, err)
			return
		}
		in.PaidCents = paid
	}
	d, err := parseDate(req.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in.Date = d

	created, err := h.coordinator.CreateTransaction(r.Context(), owner, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.reports.Invalidate(owner)
	writeJSON(w, http.StatusCreated, toTransactionResponse(created))
}

func (h *Handlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing owner"})
		return
	}

	kind := core.TransactionKind(r.URL.Query().Get("kind"))
	if kind != "" && !kind.Valid() {
		writeError(w, r, core.Invalid("kind", "unknown transaction kind"))
		return
	}
	from, to, err := dateRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	txs, err := h.store.ListTransactions(r.Context(), owner, kind, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) GetTransaction(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing owner"})
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	t, err := h.store.GetTransaction(r.Context(), owner, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(t))
}

type updateTransactionRequest struct {
	AccountID      *int64  `json:"account_id"`
	Amount         *string `json:"amount"`
	Paid           *string `json:"paid"`
	AffectsBalance *bool   `json:"affects_balance"`
	Category       *string `json:"category"`
	Description    *string `json:"description"`
	Date           *string `json:"date"`
}

func (h *Handlers) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing owner"})
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req updateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, core.Invalid("body", "malformed JSON"))
		return
	}

	patch := ledger.Patch{
		AccountID:      req.AccountID,
		AffectsBalance: req.AffectsBalance,
		Category:       req.Category,
		Description:    req.Description,
	}
	if req.Amount != nil {
		cents, err := parseAmount("amount", *req.Amount)
		if err != nil {
			writeError(w, r, err)
			return
		}
		patch.AmountCents = &cents
	}
	if req.Paid != nil {
		paid, err := parseAmount("paid", *req.Paid)
		if err != nil {
			writeError(w, r, err)
			return
		}
		patch.PaidCents = &paid
	}
	if req.Date != nil {
		d, err := parseDate(*req.Date)
		if err != nil {
			writeError(w, r, err)
			return
		}
		patch.Date = &d
	}

	updated, err := h.coordinator.UpdateTransaction(r.Context(), owner, id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.reports.Invalidate(owner)
	writeJSON(w, http.StatusOK, toTransactionResponse(updated))
}

func (h *Handlers) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing owner"})
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.coordinator.DeleteTransaction(r.Context(), owner, id); err != nil {
		writeError(w, r, err)
		return
	}
	h.reports.Invalidate(owner)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) AggregateReport(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing owner"})
		return
	}

	period := core.Period(r.URL.Query().Get("period"))
	kind := core.TransactionKind(r.URL.Query().Get("kind"))

	key := fmt.Sprintf("aggregate:%s:%s", period, kind)
	if body, ok := h.reports.Get(owner, key); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
		return
	}

	rows, err := h.reporter.Aggregate(r.Context(), owner, period, kind)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, err := json.Marshal(rows)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.reports.Set(owner, key, body)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (h *Handlers) CategoryReport(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing owner"})
		return
	}

	kind := core.TransactionKind(r.URL.Query().Get("kind"))
	from, to, err := dateRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	key := fmt.Sprintf("categories:%s:%s:%s", kind, from.Format("2006-01-02"), to.Format("2006-01-02"))
	if body, ok := h.reports.Get(owner, key); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
		return
	}

	rows, err := h.reporter.CategoryBreakdown(r.Context(), owner, kind, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, err := json.Marshal(rows)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.reports.Set(owner, key, body)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (h *Handlers) ReconcileAccount(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing owner"})
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.reconciler.ReconcileAccount(r.Context(), owner, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.reports.Invalidate(owner)
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) ReconcileOwner(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing owner"})
		return
	}

	results, err := h.reconciler.ReconcileOwner(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.reports.Invalidate(owner)
	writeJSON(w, http.StatusOK, results)
}

func (h *Handlers) AutoCompleteBudgets(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing owner"})
		return
	}

	completions, err := h.reconciler.AutoCompleteDueBudgets(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.reports.Invalidate(owner)
	writeJSON(w, http.StatusOK, completions)
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
