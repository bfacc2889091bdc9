// Package report is the read-side projection of the ledger: transactions
// grouped into time or category buckets. It holds no invariant; it only
// shapes queries.
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"hisab/internal/core"
)

// TransactionSource is the slice of the store the reporter reads from.
type TransactionSource interface {
	ListTransactions(ctx context.Context, ownerID string, kind core.TransactionKind, from, to time.Time) ([]core.Transaction, error)
}

// Row is one time bucket of an aggregate report.
type Row struct {
	PeriodKey string     `json:"period"`
	Amount    core.Money `json:"amount"`
	Count     int        `json:"count"`
}

// CategoryRow is one category bucket of a breakdown report.
type CategoryRow struct {
	Category string     `json:"category"`
	Amount   core.Money `json:"amount"`
	Count    int        `json:"count"`
}

type Reporter struct {
	source TransactionSource
	now    func() time.Time
}

func NewReporter(source TransactionSource) *Reporter {
	return &Reporter{source: source, now: time.Now}
}

// Aggregate groups an owner's transactions of one kind into period buckets
// within the period's lookback window, sorted ascending by period key.
func (r *Reporter) Aggregate(ctx context.Context, ownerID string, period core.Period, kind core.TransactionKind) ([]Row, error) {
	if !period.Valid() {
		return nil, core.Invalid("period", fmt.Sprintf("unknown period %q", period))
	}
	if kind != "" && !kind.Valid() {
		return nil, core.Invalid("kind", fmt.Sprintf("unknown transaction kind %q", kind))
	}

	now := r.now()
	txs, err := r.source.ListTransactions(ctx, ownerID, kind, period.LookbackStart(now), now)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	buckets := make(map[string]*Row)
	for _, t := range txs {
		key := period.Key(t.Date.Time)
		row, ok := buckets[key]
		if !ok {
			row = &Row{PeriodKey: key}
			buckets[key] = row
		}
		row.Amount.Cents += t.Amount.Cents
		row.Count++
	}

	rows := make([]Row, 0, len(buckets))
	for _, row := range buckets {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].PeriodKey < rows[j].PeriodKey })
	return rows, nil
}

// CategoryBreakdown is the same grouping primitive keyed by category
// instead of time, over an explicit date range.
func (r *Reporter) CategoryBreakdown(ctx context.Context, ownerID string, kind core.TransactionKind, from, to time.Time) ([]CategoryRow, error) {
	if kind != "" && !kind.Valid() {
		return nil, core.Invalid("kind", fmt.Sprintf("unknown transaction kind %q", kind))
	}
	if to.Before(from) {
		return nil, core.Invalid("range", "end before start")
	}

	txs, err := r.source.ListTransactions(ctx, ownerID, kind, from, to)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	buckets := make(map[string]*CategoryRow)
	for _, t := range txs {
		category := t.Category
		if category == "" {
			category = "uncategorized"
		}
		row, ok := buckets[category]
		if !ok {
			row = &CategoryRow{Category: category}
			buckets[category] = row
		}
		row.Amount.Cents += t.Amount.Cents
		row.Count++
	}

	rows := make([]CategoryRow, 0, len(buckets))
	for _, row := range buckets {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Category < rows[j].Category })
	return rows, nil
}
