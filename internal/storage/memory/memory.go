// Package memory is an in-process Store used by tests and by the server's
// ephemeral mode. It mirrors the SQLite repository's semantics, including
// atomic effect application and compare-and-swap correction, behind one
// mutex.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"hisab/internal/core"
	"hisab/internal/ledger"
)

// Ensure interface conformance
var _ ledger.Store = (*Store)(nil)

type Store struct {
	mu            sync.Mutex
	accounts      map[int64]core.Account
	transactions  map[int64]core.Transaction
	nextAccountID int64
	nextTxID      int64
}

func New() *Store {
	return &Store{
		accounts:     make(map[int64]core.Account),
		transactions: make(map[int64]core.Transaction),
	}
}

func (s *Store) CreateAccount(_ context.Context, a core.Account) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextAccountID++
	a.ID = s.nextAccountID
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	s.accounts[a.ID] = a
	return a, nil
}

func (s *Store) GetAccount(_ context.Context, ownerID string, id int64) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getAccountLocked(ownerID, id)
}

func (s *Store) getAccountLocked(ownerID string, id int64) (core.Account, error) {
	a, ok := s.accounts[id]
	if !ok || a.OwnerID != ownerID {
		return core.Account{}, core.ErrNotFound
	}
	return a, nil
}

func (s *Store) ListAccounts(_ context.Context, ownerID string, kind core.AccountKind) ([]core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Account
	for _, a := range s.accounts {
		if a.OwnerID != ownerID {
			continue
		}
		if kind != "" && a.Kind != kind {
			continue
		}
		out = append(out, a)
	}
	sortAccounts(out)
	return out, nil
}

func (s *Store) ListAllAccounts(_ context.Context) ([]core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sortAccounts(out)
	return out, nil
}

func (s *Store) SetBudgetStatus(_ context.Context, ownerID string, id int64, from, to core.BudgetStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.getAccountLocked(ownerID, id)
	if err != nil {
		return false, err
	}
	if a.Kind != core.AccountBudget || a.Status != from {
		return false, nil
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	s.accounts[id] = a
	return true, nil
}

func (s *Store) GetTransaction(_ context.Context, ownerID string, id int64) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[id]
	if !ok || t.OwnerID != ownerID {
		return core.Transaction{}, core.ErrNotFound
	}
	return t, nil
}

func (s *Store) ListAccountTransactions(_ context.Context, accountID int64) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Transaction
	for _, t := range s.transactions {
		if t.AccountID == accountID {
			out = append(out, t)
		}
	}
	sortTransactions(out)
	return out, nil
}

func (s *Store) ListTransactions(_ context.Context, ownerID string, kind core.TransactionKind, from, to time.Time) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Transaction
	for _, t := range s.transactions {
		if t.OwnerID != ownerID {
			continue
		}
		if kind != "" && t.Kind != kind {
			continue
		}
		if t.Date.Before(from) || t.Date.After(to) {
			continue
		}
		out = append(out, t)
	}
	sortTransactions(out)
	return out, nil
}

func (s *Store) RecordTransaction(_ context.Context, t core.Transaction, effects []core.Effect) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.applyEffectsLocked(effects); err != nil {
		return core.Transaction{}, err
	}

	s.nextTxID++
	t.ID = s.nextTxID
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	s.transactions[t.ID] = t
	return t, nil
}

func (s *Store) RewriteTransaction(_ context.Context, t core.Transaction, effects []core.Effect) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.transactions[t.ID]
	if !ok || existing.OwnerID != t.OwnerID {
		return core.Transaction{}, core.ErrNotFound
	}
	if err := s.applyEffectsLocked(effects); err != nil {
		return core.Transaction{}, err
	}

	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = time.Now()
	s.transactions[t.ID] = t
	return t, nil
}

func (s *Store) RemoveTransaction(_ context.Context, ownerID string, id int64, effects []core.Effect) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[id]
	if !ok || t.OwnerID != ownerID {
		return core.ErrNotFound
	}
	if err := s.applyEffectsLocked(effects); err != nil {
		return err
	}

	delete(s.transactions, id)
	return nil
}

func (s *Store) CorrectAggregate(_ context.Context, accountID int64, expect, corrected int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok {
		return core.ErrNotFound
	}
	if a.Aggregate.Cents != expect {
		return core.ErrConflict
	}
	a.Aggregate = core.Money{Cents: corrected}
	a.UpdatedAt = time.Now()
	s.accounts[accountID] = a
	return nil
}

func (s *Store) DueBudgets(_ context.Context, ownerID string, now time.Time) ([]core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Account
	for _, a := range s.accounts {
		if a.Kind != core.AccountBudget || a.Status != core.BudgetRunning {
			continue
		}
		if ownerID != "" && a.OwnerID != ownerID {
			continue
		}
		if a.EndDate.After(now) {
			continue
		}
		out = append(out, a)
	}
	sortAccounts(out)
	return out, nil
}

func (s *Store) CompleteBudget(_ context.Context, id int64, spent, savings int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return false, core.ErrNotFound
	}
	if a.Status != core.BudgetRunning {
		return false, nil
	}
	a.Status = core.BudgetCompleted
	a.Aggregate = core.Money{Cents: spent}
	a.Savings = core.Money{Cents: savings}
	a.UpdatedAt = time.Now()
	s.accounts[id] = a
	return true, nil
}

// applyEffectsLocked stages every increment first and commits only when all
// of them pass, so a guard failure mid-list leaves no partial update. Guards
// are checked against the staged value in application order, matching the
// SQL path where each guarded UPDATE sees the previous effects of the same
// transaction.
func (s *Store) applyEffectsLocked(effects []core.Effect) error {
	staged := make(map[int64]int64, len(effects))
	for _, e := range effects {
		next, ok := staged[e.AccountID]
		if !ok {
			a, exists := s.accounts[e.AccountID]
			if !exists {
				return core.ErrNotFound
			}
			next = a.Aggregate.Cents
		}
		next += e.Delta
		if e.Guarded && next < 0 {
			return core.Invalid("amount", "payment exceeds outstanding balance")
		}
		staged[e.AccountID] = next
	}
	for id, cents := range staged {
		a := s.accounts[id]
		a.Aggregate.Cents = cents
		a.UpdatedAt = time.Now()
		s.accounts[id] = a
	}
	return nil
}

func sortAccounts(accounts []core.Account) {
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
}

func sortTransactions(txs []core.Transaction) {
	sort.Slice(txs, func(i, j int) bool { return txs[i].ID < txs[j].ID })
}
