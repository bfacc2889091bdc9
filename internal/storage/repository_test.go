package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"hisab/internal/core"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "hisab.db"))
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedCustomer(t *testing.T, repo *Repository) core.Account {
	t.Helper()
	a, err := repo.CreateAccount(context.Background(), core.Account{
		OwnerID: "u1",
		Kind:    core.AccountCustomerCredit,
		Name:    "Sharma ji",
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return a
}

func TestRecordTransactionAppliesEffectsAtomically(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	customer := seedCustomer(t, repo)

	tx := core.Transaction{
		OwnerID:     "u1",
		AccountID:   customer.ID,
		Kind:        core.KindUdharPurchase,
		Amount:      core.Money{Cents: 50000},
		PaidAmount:  core.Money{Cents: 20000},
		Description: "rice bags",
		Date:        core.NewDate(2024, 3, 1),
	}
	created, err := repo.RecordTransaction(ctx, tx, core.EffectsOf(tx))
	if err != nil {
		t.Fatalf("RecordTransaction: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("expected assigned id")
	}

	got, err := repo.GetAccount(ctx, "u1", customer.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if got.Aggregate.Cents != 30000 {
		t.Errorf("aggregate = %d, want 30000", got.Aggregate.Cents)
	}
}

func TestRecordTransactionMissingAccountRollsBack(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	tx := core.Transaction{
		OwnerID:     "u1",
		AccountID:   99,
		Kind:        core.KindUdharPurchase,
		Amount:      core.Money{Cents: 1000},
		Description: "ghost",
		Date:        core.NewDate(2024, 3, 1),
	}
	if _, err := repo.RecordTransaction(ctx, tx, core.EffectsOf(tx)); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("RecordTransaction = %v, want ErrNotFound", err)
	}

	// the record must not survive the failed effect application
	txs, err := repo.ListAccountTransactions(ctx, 99)
	if err != nil {
		t.Fatalf("ListAccountTransactions: %v", err)
	}
	if len(txs) != 0 {
		t.Errorf("found %d orphan transactions, want 0", len(txs))
	}
}

func TestGuardedPaymentCannotOverdraw(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	customer := seedCustomer(t, repo)

	purchase := core.Transaction{
		OwnerID:     "u1",
		AccountID:   customer.ID,
		Kind:        core.KindUdharPurchase,
		Amount:      core.Money{Cents: 20000},
		Description: "purchase",
		Date:        core.NewDate(2024, 3, 1),
	}
	if _, err := repo.RecordTransaction(ctx, purchase, core.EffectsOf(purchase)); err != nil {
		t.Fatalf("RecordTransaction: %v", err)
	}

	// the bound lives in the UPDATE itself, so even a payment that passed a
	// stale application-level check is rejected here
	overdraw := core.Transaction{
		OwnerID:     "u1",
		AccountID:   customer.ID,
		Kind:        core.KindUdharPayment,
		Amount:      core.Money{Cents: 25000},
		Description: "overpayment",
		Date:        core.NewDate(2024, 3, 2),
	}
	if _, err := repo.RecordTransaction(ctx, overdraw, core.EffectsOf(overdraw)); !core.IsValidation(err) {
		t.Fatalf("overdraw = %v, want validation error", err)
	}

	// the rejected payment leaves neither a record nor a dent in the aggregate
	got, _ := repo.GetAccount(ctx, "u1", customer.ID)
	if got.Aggregate.Cents != 20000 {
		t.Errorf("aggregate after rejected payment = %d, want 20000", got.Aggregate.Cents)
	}
	txs, err := repo.ListAccountTransactions(ctx, customer.ID)
	if err != nil {
		t.Fatalf("ListAccountTransactions: %v", err)
	}
	if len(txs) != 1 {
		t.Errorf("found %d transactions, want 1", len(txs))
	}

	// an exact payoff is the boundary case and must land
	payoff := core.Transaction{
		OwnerID:     "u1",
		AccountID:   customer.ID,
		Kind:        core.KindUdharPayment,
		Amount:      core.Money{Cents: 20000},
		Description: "full payment",
		Date:        core.NewDate(2024, 3, 3),
	}
	if _, err := repo.RecordTransaction(ctx, payoff, core.EffectsOf(payoff)); err != nil {
		t.Fatalf("exact payoff: %v", err)
	}
	got, _ = repo.GetAccount(ctx, "u1", customer.ID)
	if got.Aggregate.Cents != 0 {
		t.Errorf("aggregate after payoff = %d, want 0", got.Aggregate.Cents)
	}
}

func TestRemoveTransactionSoftDeletesAndReverses(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	customer := seedCustomer(t, repo)

	tx := core.Transaction{
		OwnerID:     "u1",
		AccountID:   customer.ID,
		Kind:        core.KindUdharPurchase,
		Amount:      core.Money{Cents: 10000},
		Description: "purchase",
		Date:        core.NewDate(2024, 3, 1),
	}
	created, err := repo.RecordTransaction(ctx, tx, core.EffectsOf(tx))
	if err != nil {
		t.Fatalf("RecordTransaction: %v", err)
	}

	if err := repo.RemoveTransaction(ctx, "u1", created.ID, core.ReverseEffects(created)); err != nil {
		t.Fatalf("RemoveTransaction: %v", err)
	}

	if _, err := repo.GetTransaction(ctx, "u1", created.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetTransaction after delete = %v, want ErrNotFound", err)
	}
	got, _ := repo.GetAccount(ctx, "u1", customer.ID)
	if got.Aggregate.Cents != 0 {
		t.Errorf("aggregate after delete = %d, want 0", got.Aggregate.Cents)
	}

	// deleting twice is a not-found, not a double reversal
	if err := repo.RemoveTransaction(ctx, "u1", created.ID, core.ReverseEffects(created)); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
}

func TestCorrectAggregateCAS(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	customer := seedCustomer(t, repo)

	if err := repo.CorrectAggregate(ctx, customer.ID, 0, 4200); err != nil {
		t.Fatalf("CorrectAggregate: %v", err)
	}
	if err := repo.CorrectAggregate(ctx, customer.ID, 0, 9999); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("stale CAS = %v, want ErrConflict", err)
	}
	if err := repo.CorrectAggregate(ctx, 1234, 0, 1); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("missing account CAS = %v, want ErrNotFound", err)
	}
}

func TestDueBudgetsAndCompletion(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	budget, err := repo.CreateAccount(ctx, core.Account{
		OwnerID: "u1",
		Kind:    core.AccountBudget,
		Name:    "Festival",
		Amount:  core.Money{Cents: 50000},
		Status:  core.BudgetRunning,
		EndDate: core.NewDate(2020, 1, 31),
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	due, err := repo.DueBudgets(ctx, "u1", time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("DueBudgets: %v", err)
	}
	if len(due) != 1 || due[0].ID != budget.ID {
		t.Fatalf("due = %+v, want budget %d", due, budget.ID)
	}

	// before the end date nothing is due
	early, err := repo.DueBudgets(ctx, "u1", time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("DueBudgets: %v", err)
	}
	if len(early) != 0 {
		t.Fatalf("early due = %+v, want none", early)
	}

	ok, err := repo.CompleteBudget(ctx, budget.ID, 30000, 20000)
	if err != nil || !ok {
		t.Fatalf("CompleteBudget = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = repo.CompleteBudget(ctx, budget.ID, 30000, 20000)
	if err != nil || ok {
		t.Fatalf("second CompleteBudget = (%v, %v), want (false, nil)", ok, err)
	}

	got, _ := repo.GetAccount(ctx, "u1", budget.ID)
	if got.Status != core.BudgetCompleted || got.Savings.Cents != 20000 || got.Aggregate.Cents != 30000 {
		t.Errorf("completed budget = %+v", got)
	}
}

func TestListTransactionsFiltersKindAndRange(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	customer := seedCustomer(t, repo)

	dates := []core.Date{core.NewDate(2024, 1, 5), core.NewDate(2024, 2, 5), core.NewDate(2024, 3, 5)}
	for _, d := range dates {
		tx := core.Transaction{
			OwnerID:     "u1",
			AccountID:   customer.ID,
			Kind:        core.KindUdharPurchase,
			Amount:      core.Money{Cents: 1000},
			Description: "purchase",
			Date:        d,
		}
		if _, err := repo.RecordTransaction(ctx, tx, core.EffectsOf(tx)); err != nil {
			t.Fatalf("RecordTransaction: %v", err)
		}
	}

	from := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	got, err := repo.ListTransactions(ctx, "u1", core.KindUdharPurchase, from, to)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d transactions, want 2", len(got))
	}
	if got[0].Date.After(got[1].Date.Time) {
		t.Error("transactions should be ordered ascending by date")
	}

	none, err := repo.ListTransactions(ctx, "u2", "", from, to)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("foreign owner sees %d transactions, want 0", len(none))
	}
}
