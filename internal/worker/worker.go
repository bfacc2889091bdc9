// Package worker runs the background half of the ledger: it re-checks
// accounts touched by committed writes, serves explicit reconcile requests,
// sweeps all aggregates on a timer, auto-completes budgets past their end
// date and pushes per-owner reports to the export sink.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"hisab/internal/amqp"
	"hisab/internal/core"
	"hisab/internal/ledger"
	"hisab/internal/report"
)

// Exporter pushes budget completions and report rows to an external sheet.
// Optional.
type Exporter interface {
	ExportBudgetCompletions(ctx context.Context, completions []ledger.BudgetCompletion) error
	ExportReport(ctx context.Context, ownerID string, period core.Period, kind core.TransactionKind, rows []report.Row) error
}

// Worker drives reconciliation, budget completion and report export.
type Worker struct {
	reconciler *ledger.Reconciler
	reporter   *report.Reporter
	store      ledger.Store
	exporter   Exporter
}

func New(reconciler *ledger.Reconciler, reporter *report.Reporter, store ledger.Store, exporter Exporter) *Worker {
	return &Worker{
		reconciler: reconciler,
		reporter:   reporter,
		store:      store,
		exporter:   exporter,
	}
}

// HandleLedgerEvent re-reconciles every account a committed write touched.
// The write itself already moved the aggregates; this catches the partial
// failure case where the record landed but an increment did not.
func (w *Worker) HandleLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	slog.InfoContext(ctx, "Processing ledger event",
		"action", msg.Action,
		"transaction_id", msg.TransactionID,
		"accounts", msg.Accounts)

	for _, accountID := range msg.Accounts {
		if accountID == 0 {
			continue
		}
		result, err := w.reconciler.ReconcileAccount(ctx, msg.OwnerID, accountID)
		if err != nil {
			return fmt.Errorf("reconcile account %d: %w", accountID, err)
		}
		if result.Corrected {
			slog.WarnContext(ctx, "Event-driven reconciliation corrected drift",
				"account_id", accountID,
				"before", result.Before,
				"after", result.After)
		}
	}
	return nil
}

// HandleReconcileRequest serves an explicit reconciliation request for one
// account, or for every account of the owner when AccountID is zero.
func (w *Worker) HandleReconcileRequest(ctx context.Context, msg *amqp.ReconcileRequestMessage) error {
	slog.InfoContext(ctx, "Processing reconcile request",
		"account_id", msg.AccountID,
		"reason", msg.Reason)

	if msg.AccountID != 0 {
		if _, err := w.reconciler.ReconcileAccount(ctx, msg.OwnerID, msg.AccountID); err != nil {
			return fmt.Errorf("reconcile account %d: %w", msg.AccountID, err)
		}
		return nil
	}
	if _, err := w.reconciler.ReconcileOwner(ctx, msg.OwnerID); err != nil {
		return fmt.Errorf("reconcile owner %s: %w", msg.OwnerID, err)
	}
	return nil
}

// RunSweep periodically replays every account's history against its stored
// aggregate until ctx is cancelled.
func (w *Worker) RunSweep(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "Starting reconciliation sweep loop", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping reconciliation sweep loop", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			corrected, err := w.reconciler.Sweep(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "Reconciliation sweep failed", "error", err)
				continue
			}
			if len(corrected) > 0 {
				slog.WarnContext(ctx, "Reconciliation sweep corrected drift", "accounts", len(corrected))
			}
		}
	}
}

// RunBudgetCompletion periodically completes budgets past their end date
// and exports the realized savings when an exporter is configured.
func (w *Worker) RunBudgetCompletion(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "Starting budget completion loop", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping budget completion loop", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			if err := w.completeDueBudgets(ctx); err != nil {
				slog.ErrorContext(ctx, "Budget completion pass failed", "error", err)
			}
		}
	}
}

func (w *Worker) completeDueBudgets(ctx context.Context) error {
	// empty owner means every owner
	completions, err := w.reconciler.AutoCompleteDueBudgets(ctx, "")
	if err != nil {
		return fmt.Errorf("auto-complete due budgets: %w", err)
	}
	if len(completions) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Completed due budgets", "count", len(completions))

	if w.exporter == nil {
		return nil
	}
	if err := w.exporter.ExportBudgetCompletions(ctx, completions); err != nil {
		// the completion is committed; export is best-effort
		slog.ErrorContext(ctx, "Failed to export budget completions", "error", err)
	}
	return nil
}

// RunReportExport periodically appends each owner's monthly expense report
// to the export sink until ctx is cancelled.
func (w *Worker) RunReportExport(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "Starting report export loop", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping report export loop", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			if err := w.exportReports(ctx); err != nil {
				slog.ErrorContext(ctx, "Report export pass failed", "error", err)
			}
		}
	}
}

func (w *Worker) exportReports(ctx context.Context) error {
	if w.exporter == nil || w.reporter == nil {
		return nil
	}

	accounts, err := w.store.ListAllAccounts(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	owners := distinctOwners(accounts)

	for _, ownerID := range owners {
		rows, err := w.reporter.Aggregate(ctx, ownerID, core.Monthly, core.KindExpense)
		if err != nil {
			return fmt.Errorf("aggregate report for %s: %w", ownerID, err)
		}
		if len(rows) == 0 {
			continue
		}
		if err := w.exporter.ExportReport(ctx, ownerID, core.Monthly, core.KindExpense, rows); err != nil {
			return fmt.Errorf("export report for %s: %w", ownerID, err)
		}
	}
	return nil
}

func distinctOwners(accounts []core.Account) []string {
	seen := map[string]bool{}
	var owners []string
	for _, a := range accounts {
		if !seen[a.OwnerID] {
			seen[a.OwnerID] = true
			owners = append(owners, a.OwnerID)
		}
	}
	sort.Strings(owners)
	return owners
}
