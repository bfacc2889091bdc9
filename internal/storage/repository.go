// Package storage is the SQLite persistence layer. Every mutating ledger
// operation runs inside one SQL transaction so the record write and the
// aggregate increments commit or roll back together; the increments
// themselves are relative (aggregate = aggregate + delta), never a
// read-modify-write in application code.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"hisab/internal/core"
	"hisab/internal/ledger"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

// Ensure interface conformance
var _ ledger.Store = (*Repository)(nil)

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// SQLite allows one writer; a single pooled connection avoids
	// SQLITE_BUSY churn between concurrent coordinator calls.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) CreateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (owner_id, kind, name, amount_cents, aggregate_cents, status, start_date, end_date, savings_cents, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.OwnerID, string(a.Kind), a.Name, a.Amount.Cents, a.Aggregate.Cents, string(a.Status),
		dateString(a.StartDate), dateString(a.EndDate), a.Savings.Cents, now, now)
	if err != nil {
		return core.Account{}, storeErr("insert account", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Account{}, storeErr("account id", err)
	}
	a.ID = id
	a.CreatedAt = now
	a.UpdatedAt = now
	return a, nil
}

const accountColumns = `id, owner_id, kind, name, amount_cents, aggregate_cents, status, start_date, end_date, savings_cents, created_at, updated_at`

func (r *Repository) GetAccount(ctx context.Context, ownerID string, id int64) (core.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ? AND owner_id = ?`, id, ownerID)
	return scanAccount(row)
}

func (r *Repository) ListAccounts(ctx context.Context, ownerID string, kind core.AccountKind) ([]core.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE owner_id = ?`
	args := []any{ownerID}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list accounts", err)
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func (r *Repository) ListAllAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, storeErr("list all accounts", err)
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func (r *Repository) SetBudgetStatus(ctx context.Context, ownerID string, id int64, from, to core.BudgetStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET status = ?, updated_at = ?
		WHERE id = ? AND owner_id = ? AND kind = ? AND status = ?`,
		string(to), time.Now().UTC(), id, ownerID, string(core.AccountBudget), string(from))
	if err != nil {
		return false, storeErr("set budget status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("set budget status", err)
	}
	if n > 0 {
		return true, nil
	}
	// Distinguish "wrong state" from "no such budget".
	if _, err := r.GetAccount(ctx, ownerID, id); err != nil {
		return false, err
	}
	return false, nil
}

const transactionColumns = `id, owner_id, account_id, kind, amount_cents, paid_cents, affects_balance, category, description, tx_date, created_at, updated_at`

func (r *Repository) GetTransaction(ctx context.Context, ownerID string, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE id = ? AND owner_id = ? AND deleted_at IS NULL`, id, ownerID)
	return scanTransaction(row)
}

func (r *Repository) ListAccountTransactions(ctx context.Context, accountID int64) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE account_id = ? AND deleted_at IS NULL ORDER BY id`, accountID)
	if err != nil {
		return nil, storeErr("list account transactions", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (r *Repository) ListTransactions(ctx context.Context, ownerID string, kind core.TransactionKind, from, to time.Time) ([]core.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + ` FROM transactions
		WHERE owner_id = ? AND deleted_at IS NULL AND tx_date >= ? AND tx_date <= ?`
	args := []any{ownerID, from.Format(dateLayout), to.Format(dateLayout)}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY tx_date, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list transactions", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (r *Repository) RecordTransaction(ctx context.Context, t core.Transaction, effects []core.Effect) (core.Transaction, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, storeErr("begin", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (owner_id, account_id, kind, amount_cents, paid_cents, affects_balance, category, description, tx_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.OwnerID, t.AccountID, string(t.Kind), t.Amount.Cents, t.PaidAmount.Cents,
		boolInt(t.AffectsBalance), t.Category, t.Description, dateString(t.Date), now, now)
	if err != nil {
		return core.Transaction{}, storeErr("insert transaction", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Transaction{}, storeErr("transaction id", err)
	}

	if err := applyEffects(ctx, tx, effects); err != nil {
		return core.Transaction{}, err
	}
	if err := tx.Commit(); err != nil {
		return core.Transaction{}, storeErr("commit", err)
	}

	t.ID = id
	t.CreatedAt = now
	t.UpdatedAt = now
	return t, nil
}

func (r *Repository) RewriteTransaction(ctx context.Context, t core.Transaction, effects []core.Effect) (core.Transaction, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, storeErr("begin", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET account_id = ?, amount_cents = ?, paid_cents = ?, affects_balance = ?, category = ?, description = ?, tx_date = ?, updated_at = ?
		WHERE id = ? AND owner_id = ? AND deleted_at IS NULL`,
		t.AccountID, t.Amount.Cents, t.PaidAmount.Cents, boolInt(t.AffectsBalance),
		t.Category, t.Description, dateString(t.Date), now, t.ID, t.OwnerID)
	if err != nil {
		return core.Transaction{}, storeErr("update transaction", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Transaction{}, core.ErrNotFound
	}

	if err := applyEffects(ctx, tx, effects); err != nil {
		return core.Transaction{}, err
	}
	if err := tx.Commit(); err != nil {
		return core.Transaction{}, storeErr("commit", err)
	}

	t.UpdatedAt = now
	return t, nil
}

func (r *Repository) RemoveTransaction(ctx context.Context, ownerID string, id int64, effects []core.Effect) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE transactions SET deleted_at = ? WHERE id = ? AND owner_id = ? AND deleted_at IS NULL`,
		time.Now().UTC(), id, ownerID)
	if err != nil {
		return storeErr("delete transaction", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}

	if err := applyEffects(ctx, tx, effects); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit", err)
	}
	return nil
}

func (r *Repository) CorrectAggregate(ctx context.Context, accountID int64, expect, corrected int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET aggregate_cents = ?, updated_at = ?
		WHERE id = ? AND aggregate_cents = ?`,
		corrected, time.Now().UTC(), accountID, expect)
	if err != nil {
		return storeErr("correct aggregate", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("correct aggregate", err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE id = ?`, accountID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	if err != nil {
		return storeErr("correct aggregate", err)
	}
	return core.ErrConflict
}

func (r *Repository) DueBudgets(ctx context.Context, ownerID string, now time.Time) ([]core.Account, error) {
	query := `
		SELECT ` + accountColumns + ` FROM accounts
		WHERE kind = ? AND status = ? AND end_date != '' AND end_date <= ?`
	args := []any{string(core.AccountBudget), string(core.BudgetRunning), now.Format(dateLayout)}
	if ownerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list due budgets", err)
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func (r *Repository) CompleteBudget(ctx context.Context, id int64, spent, savings int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET status = ?, aggregate_cents = ?, savings_cents = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(core.BudgetCompleted), spent, savings, time.Now().UTC(), id, string(core.BudgetRunning))
	if err != nil {
		return false, storeErr("complete budget", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("complete budget", err)
	}
	return n > 0, nil
}

// applyEffects runs the aggregate increments inside the caller's SQL
// transaction. A missing target account aborts the whole operation, and a
// guarded effect only lands when the resulting aggregate stays at or above
// zero. Because the bound is part of the UPDATE itself, two concurrent
// payments cannot both slip past it.
func applyEffects(ctx context.Context, tx *sql.Tx, effects []core.Effect) error {
	for _, e := range effects {
		query := `UPDATE accounts SET aggregate_cents = aggregate_cents + ?, updated_at = ? WHERE id = ?`
		args := []any{e.Delta, time.Now().UTC(), e.AccountID}
		if e.Guarded {
			query += ` AND aggregate_cents + ? >= 0`
			args = append(args, e.Delta)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return storeErr("apply effect", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			if !e.Guarded {
				return core.ErrNotFound
			}
			var exists int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE id = ?`, e.AccountID).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				return core.ErrNotFound
			}
			if err != nil {
				return storeErr("apply effect", err)
			}
			return core.Invalid("amount", "payment exceeds outstanding balance")
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (core.Account, error) {
	var (
		a          core.Account
		kind       string
		status     string
		start, end string
	)
	err := row.Scan(&a.ID, &a.OwnerID, &kind, &a.Name, &a.Amount.Cents, &a.Aggregate.Cents,
		&status, &start, &end, &a.Savings.Cents, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, core.ErrNotFound
	}
	if err != nil {
		return core.Account{}, storeErr("scan account", err)
	}
	a.Kind = core.AccountKind(kind)
	a.Status = core.BudgetStatus(status)
	a.StartDate = parseDate(start)
	a.EndDate = parseDate(end)
	return a, nil
}

func collectAccounts(rows *sql.Rows) ([]core.Account, error) {
	var out []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate accounts", err)
	}
	return out, nil
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t       core.Transaction
		kind    string
		affects int64
		date    string
	)
	err := row.Scan(&t.ID, &t.OwnerID, &t.AccountID, &kind, &t.Amount.Cents, &t.PaidAmount.Cents,
		&affects, &t.Category, &t.Description, &date, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, storeErr("scan transaction", err)
	}
	t.Kind = core.TransactionKind(kind)
	t.AffectsBalance = affects != 0
	t.Date = parseDate(date)
	return t, nil
}

func collectTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate transactions", err)
	}
	return out, nil
}

func dateString(d core.Date) string {
	if d.IsEmpty() {
		return ""
	}
	return d.Format(dateLayout)
}

func parseDate(s string) core.Date {
	if s == "" {
		return core.Date{}
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return core.Date{}
	}
	return core.Date{Time: t}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// storeErr tags low-level database failures as transient store errors so
// callers can tell them apart from domain errors.
func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, core.ErrStoreUnavailable, err)
}
