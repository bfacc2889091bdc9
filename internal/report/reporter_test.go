package report

import (
	"context"
	"testing"
	"time"

	"hisab/internal/core"
)

type stubSource struct {
	txs []core.Transaction

	gotKind core.TransactionKind
	gotFrom time.Time
	gotTo   time.Time
}

func (s *stubSource) ListTransactions(_ context.Context, _ string, kind core.TransactionKind, from, to time.Time) ([]core.Transaction, error) {
	s.gotKind, s.gotFrom, s.gotTo = kind, from, to

	var out []core.Transaction
	for _, t := range s.txs {
		if kind != "" && t.Kind != kind {
			continue
		}
		if t.Date.Before(from) || t.Date.After(to) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func tx(kind core.TransactionKind, cents int64, category string, y, m, d int) core.Transaction {
	return core.Transaction{
		OwnerID:  "u1",
		Kind:     kind,
		Amount:   core.Money{Cents: cents},
		Category: category,
		Date:     core.NewDate(y, m, d),
	}
}

func fixedReporter(source TransactionSource, now time.Time) *Reporter {
	r := NewReporter(source)
	r.now = func() time.Time { return now }
	return r
}

func TestAggregateDailyBuckets(t *testing.T) {
	now := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
	source := &stubSource{txs: []core.Transaction{
		tx(core.KindExpense, 1000, "", 2024, 3, 18),
		tx(core.KindExpense, 2500, "", 2024, 3, 18),
		tx(core.KindExpense, 500, "", 2024, 3, 19),
		tx(core.KindExpense, 700, "", 2024, 1, 1), // outside the 30-day window
	}}
	r := fixedReporter(source, now)

	rows, err := r.Aggregate(context.Background(), "u1", core.Daily, core.KindExpense)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	want := []Row{
		{PeriodKey: "2024-03-18", Amount: core.Money{Cents: 3500}, Count: 2},
		{PeriodKey: "2024-03-19", Amount: core.Money{Cents: 500}, Count: 1},
	}
	if len(rows) != len(want) {
		t.Fatalf("rows = %+v, want %+v", rows, want)
	}
	for i := range rows {
		if rows[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, rows[i], want[i])
		}
	}
}

func TestAggregateMonthlyOrderedAscending(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	source := &stubSource{txs: []core.Transaction{
		tx(core.KindBudgetExpense, 100, "", 2024, 5, 2),
		tx(core.KindBudgetExpense, 100, "", 2024, 2, 2),
		tx(core.KindBudgetExpense, 100, "", 2024, 4, 2),
	}}
	r := fixedReporter(source, now)

	rows, err := r.Aggregate(context.Background(), "u1", core.Monthly, core.KindBudgetExpense)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	keys := []string{"2024-02", "2024-04", "2024-05"}
	if len(rows) != len(keys) {
		t.Fatalf("got %d rows, want %d", len(rows), len(keys))
	}
	for i, k := range keys {
		if rows[i].PeriodKey != k {
			t.Errorf("row %d key = %q, want %q", i, rows[i].PeriodKey, k)
		}
	}
}

func TestAggregateUsesLookbackWindow(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	source := &stubSource{}
	r := fixedReporter(source, now)

	if _, err := r.Aggregate(context.Background(), "u1", core.Yearly, ""); err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	wantFrom := now.AddDate(-5, 0, 0)
	if !source.gotFrom.Equal(wantFrom) || !source.gotTo.Equal(now) {
		t.Errorf("window = [%v, %v], want [%v, %v]", source.gotFrom, source.gotTo, wantFrom, now)
	}
}

func TestAggregateRejectsBadInput(t *testing.T) {
	r := NewReporter(&stubSource{})

	if _, err := r.Aggregate(context.Background(), "u1", "hourly", ""); !core.IsValidation(err) {
		t.Errorf("bad period should fail validation, got %v", err)
	}
	if _, err := r.Aggregate(context.Background(), "u1", core.Daily, "barter"); !core.IsValidation(err) {
		t.Errorf("bad kind should fail validation, got %v", err)
	}
}

func TestCategoryBreakdown(t *testing.T) {
	source := &stubSource{txs: []core.Transaction{
		tx(core.KindExpense, 1000, "food", 2024, 3, 1),
		tx(core.KindExpense, 2000, "food", 2024, 3, 2),
		tx(core.KindExpense, 500, "travel", 2024, 3, 3),
		tx(core.KindExpense, 300, "", 2024, 3, 4),
	}}
	r := NewReporter(source)

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	rows, err := r.CategoryBreakdown(context.Background(), "u1", core.KindExpense, from, to)
	if err != nil {
		t.Fatalf("CategoryBreakdown: %v", err)
	}
	want := []CategoryRow{
		{Category: "food", Amount: core.Money{Cents: 3000}, Count: 2},
		{Category: "travel", Amount: core.Money{Cents: 500}, Count: 1},
		{Category: "uncategorized", Amount: core.Money{Cents: 300}, Count: 1},
	}
	if len(rows) != len(want) {
		t.Fatalf("rows = %+v, want %+v", rows, want)
	}
	for i := range rows {
		if rows[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, rows[i], want[i])
		}
	}
}

func TestCategoryBreakdownRejectsInvertedRange(t *testing.T) {
	r := NewReporter(&stubSource{})
	from := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if _, err := r.CategoryBreakdown(context.Background(), "u1", "", from, to); !core.IsValidation(err) {
		t.Errorf("inverted range should fail validation, got %v", err)
	}
}
