package worker

import (
	"context"
	"testing"
	"time"

	"hisab/internal/amqp"
	"hisab/internal/core"
	"hisab/internal/ledger"
	"hisab/internal/report"
	"hisab/internal/storage/memory"
)

type exportedReport struct {
	ownerID string
	period  core.Period
	kind    core.TransactionKind
	rows    []report.Row
}

type recordingExporter struct {
	exported []ledger.BudgetCompletion
	reports  []exportedReport
	err      error
}

func (e *recordingExporter) ExportBudgetCompletions(ctx context.Context, completions []ledger.BudgetCompletion) error {
	e.exported = append(e.exported, completions...)
	return e.err
}

func (e *recordingExporter) ExportReport(ctx context.Context, ownerID string, period core.Period, kind core.TransactionKind, rows []report.Row) error {
	e.reports = append(e.reports, exportedReport{ownerID: ownerID, period: period, kind: kind, rows: rows})
	return e.err
}

func seedAccount(t *testing.T, store *memory.Store, a core.Account) core.Account {
	t.Helper()
	created, err := store.CreateAccount(context.Background(), a)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return created
}

func record(t *testing.T, store *memory.Store, tx core.Transaction) core.Transaction {
	t.Helper()
	created, err := store.RecordTransaction(context.Background(), tx, core.EffectsOf(tx))
	if err != nil {
		t.Fatalf("RecordTransaction: %v", err)
	}
	return created
}

func TestHandleLedgerEventCorrectsDrift(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	w := New(ledger.NewReconciler(store), nil, store, nil)

	customer := seedAccount(t, store, core.Account{
		OwnerID: "u1", Kind: core.AccountCustomerCredit, Name: "Sharma ji",
	})
	tx := record(t, store, core.Transaction{
		OwnerID: "u1", AccountID: customer.ID, Kind: core.KindUdharPurchase,
		Amount: core.Money{Cents: 10000}, Description: "purchase", Date: core.NewDate(2024, 3, 1),
	})

	// inject drift as if an increment had been lost
	if err := store.CorrectAggregate(ctx, customer.ID, 10000, 7000); err != nil {
		t.Fatalf("inject drift: %v", err)
	}

	msg := amqp.NewLedgerEventMessage(ledger.EventRecorded, "u1", tx.ID, []int64{customer.ID})
	if err := w.HandleLedgerEvent(ctx, msg); err != nil {
		t.Fatalf("HandleLedgerEvent: %v", err)
	}

	got, _ := store.GetAccount(ctx, "u1", customer.ID)
	if got.Aggregate.Cents != 10000 {
		t.Errorf("aggregate = %d, want 10000", got.Aggregate.Cents)
	}
}

func TestHandleLedgerEventSkipsFloatingTransactions(t *testing.T) {
	store := memory.New()
	w := New(ledger.NewReconciler(store), nil, store, nil)

	// a plain expense touches no account; the event carries id 0
	msg := amqp.NewLedgerEventMessage(ledger.EventRecorded, "u1", 1, []int64{0})
	if err := w.HandleLedgerEvent(context.Background(), msg); err != nil {
		t.Fatalf("HandleLedgerEvent: %v", err)
	}
}

func TestHandleReconcileRequestOwnerWide(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	w := New(ledger.NewReconciler(store), nil, store, nil)

	customer := seedAccount(t, store, core.Account{
		OwnerID: "u1", Kind: core.AccountCustomerCredit, Name: "Gupta",
	})
	record(t, store, core.Transaction{
		OwnerID: "u1", AccountID: customer.ID, Kind: core.KindUdharPurchase,
		Amount: core.Money{Cents: 5000}, Description: "purchase", Date: core.NewDate(2024, 3, 1),
	})
	if err := store.CorrectAggregate(ctx, customer.ID, 5000, 1); err != nil {
		t.Fatalf("inject drift: %v", err)
	}

	// zero account id means the whole owner
	msg := amqp.NewReconcileRequestMessage("u1", 0, "manual")
	if err := w.HandleReconcileRequest(ctx, msg); err != nil {
		t.Fatalf("HandleReconcileRequest: %v", err)
	}

	got, _ := store.GetAccount(ctx, "u1", customer.ID)
	if got.Aggregate.Cents != 5000 {
		t.Errorf("aggregate = %d, want 5000", got.Aggregate.Cents)
	}
}

func TestCompleteDueBudgetsExportsSavings(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	exporter := &recordingExporter{}
	w := New(ledger.NewReconciler(store), nil, store, exporter)

	budget := seedAccount(t, store, core.Account{
		OwnerID: "u1", Kind: core.AccountBudget, Name: "Festival",
		Amount: core.Money{Cents: 50000}, Status: core.BudgetRunning,
		EndDate: core.NewDate(2020, 1, 31),
	})
	record(t, store, core.Transaction{
		OwnerID: "u1", AccountID: budget.ID, Kind: core.KindBudgetExpense,
		Amount: core.Money{Cents: 30000}, Description: "sweets", Date: core.NewDate(2020, 1, 10),
	})

	if err := w.completeDueBudgets(ctx); err != nil {
		t.Fatalf("completeDueBudgets: %v", err)
	}

	if len(exporter.exported) != 1 {
		t.Fatalf("exported %d completions, want 1", len(exporter.exported))
	}
	got := exporter.exported[0]
	if got.BudgetID != budget.ID || got.Spent.Cents != 30000 || got.Remaining.Cents != 20000 {
		t.Errorf("exported completion = %+v", got)
	}

	// second pass finds nothing due and exports nothing
	if err := w.completeDueBudgets(ctx); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if len(exporter.exported) != 1 {
		t.Errorf("exported grew to %d after idempotent pass", len(exporter.exported))
	}
}

func TestExportReportsPerOwner(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	exporter := &recordingExporter{}
	w := New(ledger.NewReconciler(store), report.NewReporter(store), store, exporter)

	now := core.Date{Time: time.Now()}
	for _, ownerID := range []string{"u1", "u2"} {
		income := seedAccount(t, store, core.Account{
			OwnerID: ownerID, Kind: core.AccountIncome, Name: "Salary",
			Amount: core.Money{Cents: 200000},
		})
		record(t, store, core.Transaction{
			OwnerID: ownerID, AccountID: income.ID, Kind: core.KindExpense,
			AffectsBalance: true, Amount: core.Money{Cents: 15000},
			Description: "bill", Date: now,
		})
	}
	// an owner with no expenses in the window exports nothing
	seedAccount(t, store, core.Account{
		OwnerID: "u3", Kind: core.AccountCustomerCredit, Name: "Sharma ji",
	})

	if err := w.exportReports(ctx); err != nil {
		t.Fatalf("exportReports: %v", err)
	}

	if len(exporter.reports) != 2 {
		t.Fatalf("exported %d reports, want 2", len(exporter.reports))
	}
	for i, ownerID := range []string{"u1", "u2"} {
		got := exporter.reports[i]
		if got.ownerID != ownerID {
			t.Errorf("report %d owner = %s, want %s", i, got.ownerID, ownerID)
		}
		if got.period != core.Monthly || got.kind != core.KindExpense {
			t.Errorf("report %d identity = %s/%s", i, got.period, got.kind)
		}
		if len(got.rows) != 1 || got.rows[0].Amount.Cents != 15000 {
			t.Errorf("report %d rows = %+v", i, got.rows)
		}
	}
}
