package amqp

import (
	"encoding/json"
	"time"
)

// LedgerEventMessage is published after every committed ledger write. It is
// intentionally light: just enough for a consumer to know which accounts
// were touched and re-check them.
type LedgerEventMessage struct {
	Action        string    `json:"action"` // ledger.recorded | ledger.updated | ledger.removed
	OwnerID       string    `json:"owner_id"`
	TransactionID int64     `json:"transaction_id"`
	Accounts      []int64   `json:"accounts"`
	Timestamp     time.Time `json:"timestamp"`
}

// ReconcileRequestMessage asks the worker to run a reconciliation pass over
// one account.
type ReconcileRequestMessage struct {
	OwnerID   string    `json:"owner_id"`
	AccountID int64     `json:"account_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerEventMessage(action, ownerID string, transactionID int64, accounts []int64) *LedgerEventMessage {
	return &LedgerEventMessage{
		Action:        action,
		OwnerID:       ownerID,
		TransactionID: transactionID,
		Accounts:      accounts,
		Timestamp:     time.Now(),
	}
}

func NewReconcileRequestMessage(ownerID string, accountID int64, reason string) *ReconcileRequestMessage {
	return &ReconcileRequestMessage{
		OwnerID:   ownerID,
		AccountID: accountID,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (m *ReconcileRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ReconcileRequestMessageFromJSON(data []byte) (*ReconcileRequestMessage, error) {
	var msg ReconcileRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
