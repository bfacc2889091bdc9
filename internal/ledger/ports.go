package ledger

import (
	"context"
	"time"

	"hisab/internal/core"
)

// Store is the outbound port the engine writes through. Every mutating
// method that takes effects must persist the record change and apply the
// aggregate increments as one atomic unit; a partially applied call is the
// failure class reconciliation exists to heal, not an accepted outcome.
type Store interface {
	CreateAccount(ctx context.Context, a core.Account) (core.Account, error)
	GetAccount(ctx context.Context, ownerID string, id int64) (core.Account, error)
	ListAccounts(ctx context.Context, ownerID string, kind core.AccountKind) ([]core.Account, error)
	ListAllAccounts(ctx context.Context) ([]core.Account, error)
	SetBudgetStatus(ctx context.Context, ownerID string, id int64, from, to core.BudgetStatus) (bool, error)

	GetTransaction(ctx context.Context, ownerID string, id int64) (core.Transaction, error)
	// ListAccountTransactions returns every live transaction linked to one
	// account, the input for aggregate recomputation.
	ListAccountTransactions(ctx context.Context, accountID int64) ([]core.Transaction, error)
	// ListTransactions returns an owner's live transactions of one kind
	// (empty kind means all) dated within [from, to].
	ListTransactions(ctx context.Context, ownerID string, kind core.TransactionKind, from, to time.Time) ([]core.Transaction, error)

	// RecordTransaction persists a new record and applies its effects.
	RecordTransaction(ctx context.Context, t core.Transaction, effects []core.Effect) (core.Transaction, error)
	// RewriteTransaction persists edited fields and applies the combined
	// reversal-plus-reapply effects of the edit.
	RewriteTransaction(ctx context.Context, t core.Transaction, effects []core.Effect) (core.Transaction, error)
	// RemoveTransaction applies the inverse effects and deletes the record.
	RemoveTransaction(ctx context.Context, ownerID string, id int64, effects []core.Effect) error

	// CorrectAggregate compare-and-swaps an account aggregate; returns
	// core.ErrConflict when the stored value moved since it was read.
	CorrectAggregate(ctx context.Context, accountID int64, expect, corrected int64) error

	// DueBudgets returns running budgets whose end date has passed.
	// Empty ownerID means every owner.
	DueBudgets(ctx context.Context, ownerID string, now time.Time) ([]core.Account, error)
	// CompleteBudget transitions one budget running -> completed, recording
	// the recomputed spent and realized savings. Returns false when the
	// budget was not running, which makes completion idempotent.
	CompleteBudget(ctx context.Context, id int64, spent, savings int64) (bool, error)
}

// Events is the outbound port for post-commit ledger notifications. A nil
// publisher is fine; events are best-effort and never fail an operation.
type Events interface {
	PublishLedgerEvent(ctx context.Context, action, ownerID string, transactionID int64, accounts []int64) error
}
