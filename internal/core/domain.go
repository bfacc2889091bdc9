package core

import (
	"errors"
	"strings"
	"time"
)

const (
	AccountIncome         AccountKind = "income"
	AccountBudget         AccountKind = "budget"
	AccountCustomerCredit AccountKind = "customer_credit"
	AccountVendorPayable  AccountKind = "vendor_payable"
)

const (
	BudgetRunning   BudgetStatus = "running"
	BudgetCompleted BudgetStatus = "completed"
	BudgetExpired   BudgetStatus = "expired"
	BudgetPaused    BudgetStatus = "paused"
)

const (
	KindExpense          TransactionKind = "expense"
	KindIncomeAdjustment TransactionKind = "income_adjustment"
	KindBudgetExpense    TransactionKind = "budget_expense"
	KindUdharPurchase    TransactionKind = "udhar_purchase"
	KindUdharPayment     TransactionKind = "udhar_payment"
	KindVendorPurchase   TransactionKind = "vendor_purchase"
	KindVendorPayment    TransactionKind = "vendor_payment"
)

type (
	AccountKind     string
	BudgetStatus    string
	TransactionKind string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Account is the single balance holder behind all four ledger variants.
	// Aggregate means remaining for incomes, spent for budgets, outstanding
	// for customer credit and owed for vendor payables.
	Account struct {
		ID        int64
		OwnerID   string
		Kind      AccountKind
		Name      string
		Amount    Money // original income amount / budget envelope
		Aggregate Money
		Status    BudgetStatus // budgets only
		StartDate Date         // budgets only
		EndDate   Date         // budgets only
		Savings   Money        // realized on budget completion
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// Transaction is a ledger entry linked to at most one account. An
	// expense with AffectsBalance draws from a connected income account;
	// a plain expense carries AccountID == 0 and touches no aggregate.
	Transaction struct {
		ID             int64
		OwnerID        string
		AccountID      int64
		Kind           TransactionKind
		Amount         Money
		PaidAmount     Money // partial settlement of a purchase
		AffectsBalance bool  // expenses only
		Category       string
		Description    string
		Date           Date
		CreatedAt      time.Time
		UpdatedAt      time.Time
	}
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidDate       = errors.New("invalid date")
	ErrEmptyName         = errors.New("empty account name")
	ErrEmptyDescription  = errors.New("empty description")
	ErrUnknownKind       = errors.New("unknown kind")
	ErrAccountMismatch   = errors.New("transaction kind does not match account kind")
	ErrMissingAccount    = errors.New("transaction kind requires a linked account")
	ErrPaidExceedsAmount = errors.New("paid amount exceeds purchase amount")
)

func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// IsEmpty reports whether the date was never set (optional dates).
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (k AccountKind) Valid() bool {
	switch k {
	case AccountIncome, AccountBudget, AccountCustomerCredit, AccountVendorPayable:
		return true
	}
	return false
}

func (s BudgetStatus) Valid() bool {
	switch s {
	case BudgetRunning, BudgetCompleted, BudgetExpired, BudgetPaused:
		return true
	}
	return false
}

func (k TransactionKind) Valid() bool {
	switch k {
	case KindExpense, KindIncomeAdjustment, KindBudgetExpense,
		KindUdharPurchase, KindUdharPayment, KindVendorPurchase, KindVendorPayment:
		return true
	}
	return false
}

// AccountKindFor returns the account kind a transaction kind must link to.
func AccountKindFor(k TransactionKind) AccountKind {
	switch k {
	case KindExpense, KindIncomeAdjustment:
		return AccountIncome
	case KindBudgetExpense:
		return AccountBudget
	case KindUdharPurchase, KindUdharPayment:
		return AccountCustomerCredit
	case KindVendorPurchase, KindVendorPayment:
		return AccountVendorPayable
	}
	return ""
}

func (a Account) Validate() error {
	if !a.Kind.Valid() {
		return ErrUnknownKind
	}
	if len(strings.TrimSpace(a.Name)) == 0 {
		return ErrEmptyName
	}
	switch a.Kind {
	case AccountIncome:
		if a.Amount.Cents <= 0 {
			return ErrInvalidAmount
		}
	case AccountBudget:
		if a.Amount.Cents <= 0 {
			return ErrInvalidAmount
		}
		if !a.Status.Valid() {
			return errors.New("invalid budget status")
		}
		if err := a.EndDate.Validate(); err != nil {
			return errors.New("budget requires an end date")
		}
		if !a.StartDate.IsEmpty() && a.EndDate.Before(a.StartDate.Time) {
			return errors.New("budget end date before start date")
		}
	}
	return nil
}

// Remaining returns what is left of a budget envelope. Zero for the other
// account kinds, whose aggregate already is the figure of interest.
func (a Account) Remaining() Money {
	if a.Kind != AccountBudget {
		return Money{}
	}
	return Money{Cents: a.Amount.Cents - a.Aggregate.Cents}
}

// Percentage returns how much of a budget envelope has been spent.
func (a Account) Percentage() float64 {
	if a.Kind != AccountBudget || a.Amount.Cents == 0 {
		return 0
	}
	return float64(a.Aggregate.Cents) / float64(a.Amount.Cents) * 100
}

func (t Transaction) Validate() error {
	if !t.Kind.Valid() {
		return ErrUnknownKind
	}
	if t.Amount.Cents <= 0 {
		return ErrInvalidAmount
	}
	if t.PaidAmount.Cents < 0 {
		return ErrInvalidAmount
	}
	if t.PaidAmount.Cents > t.Amount.Cents {
		return ErrPaidExceedsAmount
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	// Only a plain expense may float without a linked account.
	if t.AccountID == 0 && t.Kind != KindExpense {
		return ErrMissingAccount
	}
	return nil
}
