package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hisab/internal/core"
)

// Reconciler heals drift: it replays an account's live transaction history,
// compares the result to the stored aggregate and corrects the difference.
// It also runs the time-driven budget state machine.
type Reconciler struct {
	store       Store
	maxAttempts int
	now         func() time.Time
}

func NewReconciler(store Store) *Reconciler {
	return &Reconciler{
		store:       store,
		maxAttempts: defaultMaxAttempts,
		now:         time.Now,
	}
}

// ReconcileResult reports one reconciliation pass over an account.
type ReconcileResult struct {
	AccountID int64      `json:"account_id"`
	Before    core.Money `json:"before"`
	After     core.Money `json:"after"`
	Corrected bool       `json:"corrected"`
}

// BudgetCompletion reports one budget transitioned to completed, with the
// unspent remainder realized as savings.
type BudgetCompletion struct {
	BudgetID  int64      `json:"budget_id"`
	Name      string     `json:"name"`
	Spent     core.Money `json:"spent"`
	Remaining core.Money `json:"remaining"`
}

// ReconcileAccount recomputes one aggregate from scratch and corrects it
// when it drifted. Detected drift is a consistency fault: logged and fixed,
// never returned as a user-facing error. Correction is a compare-and-swap
// so a concurrent legitimate write is never clobbered; on contention the
// whole pass reruns against fresh state.
func (r *Reconciler) ReconcileAccount(ctx context.Context, ownerID string, id int64) (ReconcileResult, error) {
	var lastErr error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		account, err := r.store.GetAccount(ctx, ownerID, id)
		if err != nil {
			return ReconcileResult{}, fmt.Errorf("load account %d: %w", id, err)
		}

		history, err := r.store.ListAccountTransactions(ctx, account.ID)
		if err != nil {
			return ReconcileResult{}, fmt.Errorf("load history for account %d: %w", id, err)
		}

		computed := core.ComputeAggregate(account, history)
		if computed == account.Aggregate {
			return ReconcileResult{AccountID: id, Before: account.Aggregate, After: computed}, nil
		}

		fault := &core.ConsistencyFault{AccountID: id, Stored: account.Aggregate, Computed: computed}
		slog.WarnContext(ctx, "Drift detected, correcting aggregate",
			"account_id", id,
			"stored_cents", account.Aggregate.Cents,
			"computed_cents", computed.Cents,
			"fault", fault.Error())

		err = r.store.CorrectAggregate(ctx, account.ID, account.Aggregate.Cents, computed.Cents)
		if err == nil {
			return ReconcileResult{AccountID: id, Before: account.Aggregate, After: computed, Corrected: true}, nil
		}
		if !errors.Is(err, core.ErrConflict) {
			return ReconcileResult{}, fmt.Errorf("correct aggregate for account %d: %w", id, err)
		}
		lastErr = err
	}
	return ReconcileResult{}, fmt.Errorf("reconcile account %d: %w", id, lastErr)
}

// ReconcileOwner runs a drift pass over every account of one owner.
func (r *Reconciler) ReconcileOwner(ctx context.Context, ownerID string) ([]ReconcileResult, error) {
	accounts, err := r.store.ListAccounts(ctx, ownerID, "")
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return r.reconcileAll(ctx, accounts)
}

// Sweep runs a drift pass over every account in the store. Used by the
// periodic worker job.
func (r *Reconciler) Sweep(ctx context.Context) ([]ReconcileResult, error) {
	accounts, err := r.store.ListAllAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return r.reconcileAll(ctx, accounts)
}

func (r *Reconciler) reconcileAll(ctx context.Context, accounts []core.Account) ([]ReconcileResult, error) {
	results := make([]ReconcileResult, 0, len(accounts))
	for _, a := range accounts {
		res, err := r.ReconcileAccount(ctx, a.OwnerID, a.ID)
		if err != nil {
			return results, err
		}
		if res.Corrected {
			results = append(results, res)
		}
	}
	return results, nil
}

// AutoCompleteDueBudgets transitions every running budget whose end date
// has passed to completed. Spent is recomputed from the full transaction
// history (not trusted from the stored aggregate) and the unspent part is
// recorded as savings, floored at zero for overspent budgets. The guarded
// status transition makes a second run a no-op.
func (r *Reconciler) AutoCompleteDueBudgets(ctx context.Context, ownerID string) ([]BudgetCompletion, error) {
	due, err := r.store.DueBudgets(ctx, ownerID, r.now())
	if err != nil {
		return nil, fmt.Errorf("list due budgets: %w", err)
	}

	completions := make([]BudgetCompletion, 0, len(due))
	for _, b := range due {
		history, err := r.store.ListAccountTransactions(ctx, b.ID)
		if err != nil {
			return completions, fmt.Errorf("load history for budget %d: %w", b.ID, err)
		}
		spent := core.ComputeAggregate(b, history)
		remaining := b.Amount.Cents - spent.Cents
		if remaining < 0 {
			remaining = 0
		}

		ok, err := r.store.CompleteBudget(ctx, b.ID, spent.Cents, remaining)
		if err != nil {
			return completions, fmt.Errorf("complete budget %d: %w", b.ID, err)
		}
		if !ok {
			// Raced with another worker pass; already completed.
			continue
		}

		slog.InfoContext(ctx, "Budget auto-completed",
			"budget_id", b.ID,
			"name", b.Name,
			"spent_cents", spent.Cents,
			"savings_cents", remaining)

		completions = append(completions, BudgetCompletion{
			BudgetID:  b.ID,
			Name:      b.Name,
			Spent:     spent,
			Remaining: core.Money{Cents: remaining},
		})
	}
	return completions, nil
}
