// Package worker drives the transaction export pipeline: queued change
// events are the fast path, a periodic rescan of pending records is the
// safety net for lost messages and downtime.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/export"
	applog "tally/internal/log"
	"tally/internal/storage"
)

type ExportWorker struct {
	store     storage.Store
	appender  export.RowAppender
	batchSize int
}

func NewExportWorker(store storage.Store, appender export.RowAppender, batchSize int) *ExportWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &ExportWorker{
		store:     store,
		appender:  appender,
		batchSize: batchSize,
	}
}

// HandleEvent processes one queued change event. The event carries only
// identifiers; the current record is always fetched from the store, so a
// stale delivery exports the latest state. A record that no longer exists
// needs no work.
func (w *ExportWorker) HandleEvent(ctx context.Context, msg *amqp.TransactionEventMessage) error {
	slog.InfoContext(ctx, "Processing transaction event",
		"event", msg.Event,
		"id", msg.ID,
		"version", msg.Version)

	t, err := w.store.GetTransaction(ctx, msg.ID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			slog.InfoContext(ctx, "Transaction gone, nothing to export", "id", msg.ID)
			return nil
		}
		return fmt.Errorf("get transaction: %w", err)
	}

	return w.exportTransaction(ctx, t)
}

// ProcessPending exports records still marked pending. This is the backup
// mechanism for lost queue messages.
func (w *ExportWorker) ProcessPending(ctx context.Context) error {
	pending, err := w.store.ListPendingExport(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list pending export: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending exports", "count", len(pending))
	for _, t := range pending {
		if err := w.exportTransaction(ctx, t); err != nil {
			slog.ErrorContext(ctx, "Failed to export transaction", "id", t.ID, "error", err)
		}
	}
	return nil
}

// StartupCheck drains a larger pending backlog once at worker start, to
// recover from downtime.
func (w *ExportWorker) StartupCheck(ctx context.Context) error {
	pending, err := w.store.ListPendingExport(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("list pending export for startup check: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending exports found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending exports on startup", "count", len(pending))

	var exported, failed int
	for _, t := range pending {
		if err := w.exportTransaction(ctx, t); err != nil {
			slog.ErrorContext(ctx, "Failed to export transaction during startup",
				"id", t.ID, "error", err)
			failed++
			continue
		}
		exported++
	}

	slog.InfoContext(ctx, "Startup export check completed",
		"total", len(pending),
		"exported", exported,
		"errors", failed)
	return nil
}

// RunRescan runs ProcessPending on a fixed interval until ctx ends.
func (w *ExportWorker) RunRescan(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.ProcessPending(ctx); err != nil {
				slog.ErrorContext(ctx, "Pending export rescan failed", "error", err)
			}
		}
	}
}

func (w *ExportWorker) exportTransaction(ctx context.Context, t core.Transaction) error {
	ref, err := w.appender.AppendTransaction(ctx, t)
	if err != nil {
		if markErr := w.store.MarkExportError(ctx, t.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark export error", "id", t.ID, "error", markErr)
		}
		return fmt.Errorf("append to sheet: %w", err)
	}

	if err := w.store.MarkExported(ctx, t.ID); err != nil {
		// The row was written; leave the state for the rescan to settle.
		slog.ErrorContext(ctx, "Failed to mark as exported", "id", t.ID, "error", err)
	}

	fields := applog.NewFields().
		WithComponent(applog.ComponentExport).
		WithOperation(applog.OpExport).
		WithTransaction(t.ID, t.LedgerID, t.Amount.Cents)
	fields[applog.FieldRowRef] = ref
	slog.InfoContext(ctx, "Exported transaction", fields.ToSlice()...)
	return nil
}
