package core

// Effect is the signed delta a transaction contributes to one account's
// aggregate. Applying every effect of every live transaction to a fresh
// account must reproduce its stored aggregate; that is the one invariant
// the whole engine defends.
type Effect struct {
	AccountID int64
	Delta     int64 // cents, may be negative
	// Guarded effects must not push the aggregate below zero; the store
	// enforces this inside the same transaction that applies the delta,
	// so concurrent payments cannot both slip past the bound.
	Guarded bool
}

// Reverse returns the inverse effect, used to undo a transaction before an
// edit or delete. Reversals are never guarded: undoing a payment adds the
// amount back, and undoing a purchase may legitimately dip below zero when
// later payments already consumed it.
func (e Effect) Reverse() Effect {
	return Effect{AccountID: e.AccountID, Delta: -e.Delta}
}

// EffectsOf computes the signed effects of a transaction:
//
//	expense (affects balance)  -A   on the connected income's remaining
//	income_adjustment          +A   on the income's remaining
//	budget_expense             +A   on the budget's spent
//	udhar_purchase             +A-P on the customer's outstanding
//	udhar_payment              -A   on the customer's outstanding
//	vendor_purchase            +A-P on the vendor's owed
//	vendor_payment             -A   on the vendor's owed
//
// A plain expense without a linked income has no effect at all.
func EffectsOf(t Transaction) []Effect {
	switch t.Kind {
	case KindExpense:
		if !t.AffectsBalance || t.AccountID == 0 {
			return nil
		}
		return []Effect{{AccountID: t.AccountID, Delta: -t.Amount.Cents}}
	case KindIncomeAdjustment:
		return []Effect{{AccountID: t.AccountID, Delta: t.Amount.Cents}}
	case KindBudgetExpense:
		return []Effect{{AccountID: t.AccountID, Delta: t.Amount.Cents}}
	case KindUdharPurchase, KindVendorPurchase:
		return []Effect{{AccountID: t.AccountID, Delta: t.Amount.Cents - t.PaidAmount.Cents}}
	case KindUdharPayment, KindVendorPayment:
		return []Effect{{AccountID: t.AccountID, Delta: -t.Amount.Cents, Guarded: true}}
	}
	return nil
}

// ReverseEffects returns the inverse of every effect of t.
func ReverseEffects(t Transaction) []Effect {
	effects := EffectsOf(t)
	for i := range effects {
		effects[i] = effects[i].Reverse()
	}
	return effects
}

// BaseAggregate is the aggregate an account holds before any transaction
// touches it: incomes start with their full amount remaining, everything
// else starts at zero.
func BaseAggregate(a Account) int64 {
	if a.Kind == AccountIncome {
		return a.Amount.Cents
	}
	return 0
}

// ComputeAggregate replays the full transaction history of one account and
// returns the aggregate it should hold. Transactions linked to other
// accounts are ignored.
func ComputeAggregate(a Account, history []Transaction) Money {
	total := BaseAggregate(a)
	for _, t := range history {
		for _, e := range EffectsOf(t) {
			if e.AccountID == a.ID {
				total += e.Delta
			}
		}
	}
	return Money{Cents: total}
}
