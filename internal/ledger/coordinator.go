// Package ledger keeps derived account aggregates consistent with the
// transactions that justify them. The Coordinator is the only entry point
// allowed to create, edit or delete a transaction, because every such
// operation carries a signed effect on one or two account aggregates.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hisab/internal/core"
)

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = 50 * time.Millisecond
)

const (
	EventRecorded = "ledger.recorded"
	EventUpdated  = "ledger.updated"
	EventRemoved  = "ledger.removed"
)

// Coordinator orchestrates "persist record + mutate aggregate" as one
// logical unit and retries the whole sequence on aggregate contention.
type Coordinator struct {
	store       Store
	events      Events
	maxAttempts int
	retryDelay  time.Duration
}

func NewCoordinator(store Store, events Events) *Coordinator {
	return &Coordinator{
		store:       store,
		events:      events,
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
	}
}

// CreateInput carries the fields of a new transaction. Amounts are cents,
// already parsed at the boundary.
type CreateInput struct {
	AccountID      int64
	Kind           core.TransactionKind
	AmountCents    int64
	PaidCents      int64
	AffectsBalance bool
	Category       string
	Description    string
	Date           core.Date
}

// AccountInput carries the fields of a new ledger account.
type AccountInput struct {
	Kind        core.AccountKind
	Name        string
	AmountCents int64
	StartDate   core.Date
	EndDate     core.Date
}

// Snapshot is an account's aggregate plus its derived fields.
type Snapshot struct {
	Account    core.Account
	Remaining  core.Money
	Percentage float64
}

// Patch holds the editable transaction fields; nil means unchanged.
// A non-nil AccountID re-links the transaction, which the update algorithm
// models as reverse-on-old plus reapply-on-new.
type Patch struct {
	AccountID      *int64
	AmountCents    *int64
	PaidCents      *int64
	AffectsBalance *bool
	Category       *string
	Description    *string
	Date           *core.Date
}

// CreateAccount registers a new balance holder. Incomes start with their
// full amount remaining; every other kind starts at zero.
func (c *Coordinator) CreateAccount(ctx context.Context, ownerID string, in AccountInput) (core.Account, error) {
	a := core.Account{
		OwnerID:   ownerID,
		Kind:      in.Kind,
		Name:      in.Name,
		Amount:    core.Money{Cents: in.AmountCents},
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
	}
	if a.Kind == core.AccountBudget {
		a.Status = core.BudgetRunning
	}
	if err := a.Validate(); err != nil {
		return core.Account{}, core.Invalid("account", err.Error())
	}
	a.Aggregate = core.Money{Cents: core.BaseAggregate(a)}

	created, err := c.store.CreateAccount(ctx, a)
	if err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", err)
	}
	return created, nil
}

// CreateTransaction validates the input, persists the record and applies
// its signed effects to the linked account in one store transaction.
func (c *Coordinator) CreateTransaction(ctx context.Context, ownerID string, in CreateInput) (core.Transaction, error) {
	tx := core.Transaction{
		OwnerID:        ownerID,
		AccountID:      in.AccountID,
		Kind:           in.Kind,
		Amount:         core.Money{Cents: in.AmountCents},
		PaidAmount:     core.Money{Cents: in.PaidCents},
		AffectsBalance: in.AffectsBalance,
		Category:       in.Category,
		Description:    in.Description,
		Date:           in.Date,
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, core.Invalid("transaction", err.Error())
	}

	effects := core.EffectsOf(tx)
	if tx.AccountID != 0 {
		account, err := c.store.GetAccount(ctx, ownerID, tx.AccountID)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("resolve account %d: %w", tx.AccountID, err)
		}
		if err := checkAccountFit(tx, account, effects); err != nil {
			return core.Transaction{}, err
		}
	}

	created, err := c.store.RecordTransaction(ctx, tx, effects)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("record transaction: %w", err)
	}

	c.publish(ctx, EventRecorded, created, effects)
	return created, nil
}

// UpdateTransaction edits a record without drifting any aggregate. The
// reverse-then-reapply sequence runs as one store transaction: the old
// effects are inverted, the new field values persisted and the new effects
// applied, all or nothing. On aggregate contention the whole sequence is
// retried against fresh state.
func (c *Coordinator) UpdateTransaction(ctx context.Context, ownerID string, id int64, patch Patch) (core.Transaction, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return core.Transaction{}, ctx.Err()
			case <-time.After(c.retryDelay << attempt):
			}
		}

		existing, err := c.store.GetTransaction(ctx, ownerID, id)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("load transaction %d: %w", id, err)
		}

		updated := applyPatch(existing, patch)
		if err := updated.Validate(); err != nil {
			return core.Transaction{}, core.Invalid("transaction", err.Error())
		}

		reversals := core.ReverseEffects(existing)
		newEffects := core.EffectsOf(updated)
		combined := append(reversals, newEffects...)

		if updated.AccountID != 0 {
			account, err := c.store.GetAccount(ctx, ownerID, updated.AccountID)
			if err != nil {
				return core.Transaction{}, fmt.Errorf("resolve account %d: %w", updated.AccountID, err)
			}
			if err := checkAccountFit(updated, account, combined); err != nil {
				return core.Transaction{}, err
			}
		}

		rewritten, err := c.store.RewriteTransaction(ctx, updated, combined)
		if err == nil {
			c.publish(ctx, EventUpdated, rewritten, combined)
			return rewritten, nil
		}
		if !errors.Is(err, core.ErrConflict) {
			return core.Transaction{}, fmt.Errorf("rewrite transaction %d: %w", id, err)
		}
		lastErr = err
		slog.WarnContext(ctx, "Transaction update hit aggregate contention, retrying",
			"transaction_id", id, "attempt", attempt+1)
	}
	return core.Transaction{}, fmt.Errorf("update transaction %d: %w", id, lastErr)
}

// DeleteTransaction reverses the record's effects and removes it, as one
// store transaction. Reversal first: a crash in between is healed by
// reconciliation instead of silently losing the correction.
func (c *Coordinator) DeleteTransaction(ctx context.Context, ownerID string, id int64) error {
	existing, err := c.store.GetTransaction(ctx, ownerID, id)
	if err != nil {
		return fmt.Errorf("load transaction %d: %w", id, err)
	}

	reversals := core.ReverseEffects(existing)
	if err := c.store.RemoveTransaction(ctx, ownerID, id, reversals); err != nil {
		return fmt.Errorf("remove transaction %d: %w", id, err)
	}

	c.publish(ctx, EventRemoved, existing, reversals)
	return nil
}

// AccountSnapshot returns the stored aggregate with derived fields.
func (c *Coordinator) AccountSnapshot(ctx context.Context, ownerID string, id int64) (Snapshot, error) {
	account, err := c.store.GetAccount(ctx, ownerID, id)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load account %d: %w", id, err)
	}
	return Snapshot{
		Account:    account,
		Remaining:  account.Remaining(),
		Percentage: account.Percentage(),
	}, nil
}

// PauseBudget suspends a running budget.
func (c *Coordinator) PauseBudget(ctx context.Context, ownerID string, id int64) error {
	return c.transition(ctx, ownerID, id, core.BudgetRunning, core.BudgetPaused)
}

// ResumeBudget puts a paused budget back in the running state.
func (c *Coordinator) ResumeBudget(ctx context.Context, ownerID string, id int64) error {
	return c.transition(ctx, ownerID, id, core.BudgetPaused, core.BudgetRunning)
}

func (c *Coordinator) transition(ctx context.Context, ownerID string, id int64, from, to core.BudgetStatus) error {
	ok, err := c.store.SetBudgetStatus(ctx, ownerID, id, from, to)
	if err != nil {
		return fmt.Errorf("set budget %d status: %w", id, err)
	}
	if !ok {
		return core.Invalid("status", fmt.Sprintf("budget is not %s", from))
	}
	return nil
}

// checkAccountFit rejects a transaction whose kind does not match the
// linked account and pre-checks the payment bound: a payment may not push
// the counterpart aggregate below zero. The projected aggregate accounts
// for reversals in flight, so the same check covers create and update.
// The store enforces the same bound again inside the mutating transaction,
// so a concurrent payment that slips past this read is still rejected.
func checkAccountFit(t core.Transaction, account core.Account, effects []core.Effect) error {
	if want := core.AccountKindFor(t.Kind); account.Kind != want {
		return core.Invalid("account", fmt.Sprintf("%s requires a %s account, got %s", t.Kind, want, account.Kind))
	}
	switch t.Kind {
	case core.KindUdharPayment, core.KindVendorPayment:
		projected := account.Aggregate.Cents
		for _, e := range effects {
			if e.AccountID == account.ID {
				projected += e.Delta
			}
		}
		if projected < 0 {
			return core.Invalid("amount", fmt.Sprintf("payment exceeds outstanding balance of %s", account.Aggregate))
		}
	}
	return nil
}

func applyPatch(t core.Transaction, p Patch) core.Transaction {
	if p.AccountID != nil {
		t.AccountID = *p.AccountID
	}
	if p.AmountCents != nil {
		t.Amount = core.Money{Cents: *p.AmountCents}
	}
	if p.PaidCents != nil {
		t.PaidAmount = core.Money{Cents: *p.PaidCents}
	}
	if p.AffectsBalance != nil {
		t.AffectsBalance = *p.AffectsBalance
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	return t
}

// publish emits a post-commit event. Failures are logged, never returned;
// the ledger write already happened.
func (c *Coordinator) publish(ctx context.Context, action string, t core.Transaction, effects []core.Effect) {
	if c.events == nil {
		return
	}
	accounts := make([]int64, 0, len(effects))
	seen := map[int64]bool{}
	for _, e := range effects {
		if !seen[e.AccountID] {
			seen[e.AccountID] = true
			accounts = append(accounts, e.AccountID)
		}
	}
	if err := c.events.PublishLedgerEvent(ctx, action, t.OwnerID, t.ID, accounts); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"action", action, "transaction_id", t.ID, "error", err)
	}
}
