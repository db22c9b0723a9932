// Package services orchestrates ledger operations on top of the storage
// layer. Services compute what must change; the store applies it atomically.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tally/internal/core"
	"tally/internal/storage"
)

// EventPublisher publishes committed-change events for the export pipeline.
// Publishing is best-effort: a failed publish never fails the operation, the
// pending-export rescan picks the record up later.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, event string, id, ledgerID string, version int64) error
}

// Event kinds carried on the export queue.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// TransactionPatch carries the new field values for an update. Nil fields
// stay unchanged. Amount, Type and LedgerID feed the totals adjustment.
type TransactionPatch struct {
	Title    *string
	Note     *string
	Amount   *core.Money
	Date     *time.Time
	Type     *core.TransactionType
	TagID    *string
	LedgerID *string
	Version  *int64
}

// TransactionService keeps each ledger's running totals exactly consistent
// with its transaction records. Every write pairs the record change with the
// totals adjustment in one storage unit; updates and deletes always reverse
// the old contribution rather than overwriting, so repeated or concurrent
// edits cannot drift the totals and a type change moves the amount between
// buckets.
type TransactionService struct {
	store  storage.Store
	events EventPublisher
}

func NewTransactionService(store storage.Store, events EventPublisher) *TransactionService {
	return &TransactionService{store: store, events: events}
}

// contribution is the totals effect of one live transaction, with sign.
func contribution(t core.Transaction, sign int64) storage.TotalsAdjustment {
	adj := storage.TotalsAdjustment{LedgerID: t.LedgerID}
	if t.Type == core.Income {
		adj.Income = sign * t.Amount.Cents
	} else {
		adj.Expense = sign * t.Amount.Cents
	}
	return adj
}

// mergeAdjustments folds per-ledger adjustments together so a same-ledger
// reverse+apply becomes a single relative update.
func mergeAdjustments(adj ...storage.TotalsAdjustment) []storage.TotalsAdjustment {
	var out []storage.TotalsAdjustment
	for _, a := range adj {
		merged := false
		for i := range out {
			if out[i].LedgerID == a.LedgerID {
				out[i].Income += a.Income
				out[i].Expense += a.Expense
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, a)
		}
	}
	return out
}

// Create persists the transaction and increments the owning ledger's
// income or expense total by its amount, atomically.
func (s *TransactionService) Create(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Version == 0 {
		t.Version = 1
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, core.CreateFailed("create transaction", err)
	}

	adj := []storage.TotalsAdjustment{contribution(t, +1)}
	if err := s.store.InsertTransaction(ctx, t, adj); err != nil {
		return core.Transaction{}, core.CreateFailed("create transaction", err)
	}

	s.publish(ctx, EventCreated, t.ID, t.LedgerID, t.Version)
	return t, nil
}

// Get returns a transaction by id.
func (s *TransactionService) Get(ctx context.Context, id string) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

// Update applies the patch and adjusts totals by reversing the old
// contribution and applying the new one in the same unit. A type change
// therefore moves the amount between buckets, and a ledger change moves it
// between ledgers.
func (s *TransactionService) Update(ctx context.Context, id string, p TransactionPatch) (core.Transaction, error) {
	old, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}

	updated := old
	if p.Title != nil {
		updated.Title = *p.Title
	}
	if p.Note != nil {
		updated.Note = *p.Note
	}
	if p.Amount != nil {
		updated.Amount = *p.Amount
	}
	if p.Date != nil {
		updated.Date = *p.Date
	}
	if p.Type != nil {
		updated.Type = *p.Type
	}
	if p.TagID != nil {
		updated.TagID = *p.TagID
	}
	if p.LedgerID != nil {
		updated.LedgerID = *p.LedgerID
	}
	if p.Version != nil {
		updated.Version = *p.Version
	}
	if err := updated.Validate(); err != nil {
		return core.Transaction{}, core.UpdateFailed("update transaction", err)
	}

	adj := mergeAdjustments(contribution(old, -1), contribution(updated, +1))
	if err := s.store.UpdateTransaction(ctx, updated, adj); err != nil {
		return core.Transaction{}, core.UpdateFailed("update transaction", err)
	}

	s.publish(ctx, EventUpdated, updated.ID, updated.LedgerID, updated.Version)
	return updated, nil
}

// Delete removes the transaction and decrements its ledger bucket by its
// amount, atomically.
func (s *TransactionService) Delete(ctx context.Context, id string) error {
	t, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return err
	}

	adj := []storage.TotalsAdjustment{contribution(t, -1)}
	if err := s.store.DeleteTransaction(ctx, id, adj); err != nil {
		return core.DeleteFailed("delete transaction", err)
	}

	s.publish(ctx, EventDeleted, t.ID, t.LedgerID, t.Version)
	return nil
}

// ListByLedger is the read path: title search, tag/type/owner filters,
// inclusive date range, date sort, page/limit pagination (page <= 0 returns
// the full match set).
func (s *TransactionService) ListByLedger(ctx context.Context, f storage.TransactionFilter) ([]core.Transaction, error) {
	if f.LedgerID == "" {
		return nil, fmt.Errorf("list transactions: %w", core.ErrInvalidQuery)
	}
	if f.Type != "" && !f.Type.Valid() {
		return nil, fmt.Errorf("list transactions: %w", core.ErrInvalidQuery)
	}
	return s.store.ListTransactions(ctx, f)
}

func (s *TransactionService) publish(ctx context.Context, event, id, ledgerID string, version int64) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishTransactionEvent(ctx, event, id, ledgerID, version); err != nil {
		// The operation already committed; the rescan will catch up.
		slog.ErrorContext(ctx, "Failed to publish transaction event",
			"event", event, "id", id, "error", err)
	}
}

// notFound reports whether err is (or wraps) the missing-entity outcome.
func notFound(err error) bool { return errors.Is(err, core.ErrNotFound) }
