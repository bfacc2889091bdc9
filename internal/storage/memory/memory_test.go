package memory

import (
	"context"
	"testing"

	"hisab/internal/core"
)

func seedCustomer(t *testing.T, s *Store) core.Account {
	t.Helper()
	a, err := s.CreateAccount(context.Background(), core.Account{
		OwnerID: "u1",
		Kind:    core.AccountCustomerCredit,
		Name:    "Sharma ji",
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return a
}

func TestGuardedPaymentCannotOverdraw(t *testing.T) {
	ctx := context.Background()
	s := New()
	customer := seedCustomer(t, s)

	purchase := core.Transaction{
		OwnerID:     "u1",
		AccountID:   customer.ID,
		Kind:        core.KindUdharPurchase,
		Amount:      core.Money{Cents: 20000},
		Description: "purchase",
		Date:        core.NewDate(2024, 3, 1),
	}
	if _, err := s.RecordTransaction(ctx, purchase, core.EffectsOf(purchase)); err != nil {
		t.Fatalf("RecordTransaction: %v", err)
	}

	overdraw := core.Transaction{
		OwnerID:     "u1",
		AccountID:   customer.ID,
		Kind:        core.KindUdharPayment,
		Amount:      core.Money{Cents: 25000},
		Description: "overpayment",
		Date:        core.NewDate(2024, 3, 2),
	}
	if _, err := s.RecordTransaction(ctx, overdraw, core.EffectsOf(overdraw)); !core.IsValidation(err) {
		t.Fatalf("overdraw = %v, want validation error", err)
	}

	// the rejected payment leaves neither a record nor a dent in the aggregate
	got, _ := s.GetAccount(ctx, "u1", customer.ID)
	if got.Aggregate.Cents != 20000 {
		t.Errorf("aggregate after rejected payment = %d, want 20000", got.Aggregate.Cents)
	}
	txs, _ := s.ListAccountTransactions(ctx, customer.ID)
	if len(txs) != 1 {
		t.Errorf("found %d transactions, want 1", len(txs))
	}
}

func TestGuardedRewriteStagesAllEffects(t *testing.T) {
	ctx := context.Background()
	s := New()
	customer := seedCustomer(t, s)

	purchase := core.Transaction{
		OwnerID:     "u1",
		AccountID:   customer.ID,
		Kind:        core.KindUdharPurchase,
		Amount:      core.Money{Cents: 20000},
		Description: "purchase",
		Date:        core.NewDate(2024, 3, 1),
	}
	if _, err := s.RecordTransaction(ctx, purchase, core.EffectsOf(purchase)); err != nil {
		t.Fatalf("RecordTransaction: %v", err)
	}

	payment := core.Transaction{
		OwnerID:     "u1",
		AccountID:   customer.ID,
		Kind:        core.KindUdharPayment,
		Amount:      core.Money{Cents: 15000},
		Description: "payment",
		Date:        core.NewDate(2024, 3, 5),
	}
	recorded, err := s.RecordTransaction(ctx, payment, core.EffectsOf(payment))
	if err != nil {
		t.Fatalf("RecordTransaction: %v", err)
	}

	// growing the payment past the outstanding balance fails as a whole:
	// the reversal is staged together with the new guarded effect, so the
	// aggregate never moves and the record keeps its old amount
	grown := recorded
	grown.Amount = core.Money{Cents: 30000}
	reversals := core.ReverseEffects(recorded)
	combined := append(reversals, core.EffectsOf(grown)...)
	if _, err := s.RewriteTransaction(ctx, grown, combined); !core.IsValidation(err) {
		t.Fatalf("oversized rewrite = %v, want validation error", err)
	}
	got, _ := s.GetAccount(ctx, "u1", customer.ID)
	if got.Aggregate.Cents != 5000 {
		t.Errorf("aggregate after rejected rewrite = %d, want 5000", got.Aggregate.Cents)
	}
	kept, _ := s.GetTransaction(ctx, "u1", recorded.ID)
	if kept.Amount.Cents != 15000 {
		t.Errorf("amount after rejected rewrite = %d, want 15000", kept.Amount.Cents)
	}

	// a rewrite within the bound lands, and the reversal is applied before
	// the new effect so the full 20000 is available to it
	full := recorded
	full.Amount = core.Money{Cents: 20000}
	reversals = core.ReverseEffects(recorded)
	combined = append(reversals, core.EffectsOf(full)...)
	if _, err := s.RewriteTransaction(ctx, full, combined); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	got, _ = s.GetAccount(ctx, "u1", customer.ID)
	if got.Aggregate.Cents != 0 {
		t.Errorf("aggregate after rewrite = %d, want 0", got.Aggregate.Cents)
	}
}
