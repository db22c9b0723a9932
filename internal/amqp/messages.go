package amqp

import (
	"encoding/json"
	"time"
)

// TransactionEventMessage tells the export worker that a transaction changed.
// It carries only identifiers; the worker fetches the current record from the
// store, so stale deliveries resolve to the latest state.
type TransactionEventMessage struct {
	Event     string    `json:"event"` // created, updated or deleted
	ID        string    `json:"id"`
	LedgerID  string    `json:"ledger_id"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTransactionEventMessage(event, id, ledgerID string, version int64) *TransactionEventMessage {
	return &TransactionEventMessage{
		Event:     event,
		ID:        id,
		LedgerID:  ledgerID,
		Version:   version,
		Timestamp: time.Now(),
	}
}

func (m *TransactionEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransactionEventMessageFromJSON(data []byte) (*TransactionEventMessage, error) {
	var msg TransactionEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
