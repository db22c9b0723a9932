// Package storage owns persistent ledger state and the atomic units that
// mutate it. Every write that touches both a record and its ledger's running
// totals commits as one unit: all steps visible together or not at all.
package storage

import (
	"context"
	"time"

	"tally/internal/core"
)

// TotalsAdjustment is a relative change to one ledger's running totals,
// in cents. Values may be negative (reversals). Implementations must apply
// it as a store-level read-modify-write, never a read-then-write pair.
type TotalsAdjustment struct {
	LedgerID string
	Income   int64
	Expense  int64
}

// IsZero reports whether the adjustment changes nothing.
func (a TotalsAdjustment) IsZero() bool { return a.Income == 0 && a.Expense == 0 }

// TransactionFilter selects transactions for the list path.
// Zero values mean "no constraint" except LedgerID, which is required.
type TransactionFilter struct {
	LedgerID string
	Search   string // case-insensitive substring match on title
	TagID    string
	Type     core.TransactionType
	OwnerID  string
	From     time.Time // inclusive lower bound on date
	To       time.Time // inclusive upper bound on date
	SortDesc bool      // sort by date; ascending unless set

	// Page <= 0 disables pagination and returns the full match set.
	Page  int
	Limit int
}

// ExportState tracks whether a transaction has been mirrored by the export
// worker.
type ExportState string

const (
	ExportPending ExportState = "pending"
	ExportDone    ExportState = "done"
	ExportError   ExportState = "error"
)

// Store is the persistence boundary. Implementations guarantee that each
// method is atomic on its own; missing ids surface as core.ErrNotFound and
// pending-invite duplicates as core.ErrDuplicateInvite.
type Store interface {
	// Ledgers.
	CreateLedger(ctx context.Context, l core.Ledger) error
	GetLedger(ctx context.Context, id string) (core.Ledger, error)
	// UpdateLedger persists title, member set and version. Totals are
	// deliberately not writable here; they change only through the
	// transaction units below.
	UpdateLedger(ctx context.Context, l core.Ledger) error
	// DeleteLedger removes the ledger and cascades over its transactions,
	// tags, memberships and pending invites in the same unit.
	DeleteLedger(ctx context.Context, id string) error

	// Transactions. The adjustments are applied in the same atomic unit as
	// the record change; an adjustment against a missing ledger fails the
	// whole unit.
	InsertTransaction(ctx context.Context, t core.Transaction, adj []TotalsAdjustment) error
	GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, t core.Transaction, adj []TotalsAdjustment) error
	DeleteTransaction(ctx context.Context, id string, adj []TotalsAdjustment) error
	ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error)
	// CountTransactionsByTag stops counting at limit (limit 1 answers "any?").
	CountTransactionsByTag(ctx context.Context, tagID string, limit int) (int, error)

	// Tags.
	CreateTag(ctx context.Context, t core.Tag) error
	GetTag(ctx context.Context, id string) (core.Tag, error)
	ListTags(ctx context.Context, ledgerID string) ([]core.Tag, error)
	UpdateTag(ctx context.Context, t core.Tag) error
	DeleteTag(ctx context.Context, id string) error
	// DeleteTagsForLedger removes every tag of the ledger without any
	// referential check. Reserved for ledger teardown.
	DeleteTagsForLedger(ctx context.Context, ledgerID string) error

	// Invites.
	CreateInvite(ctx context.Context, inv core.Invite) error
	GetInvite(ctx context.Context, id string) (core.Invite, error)
	// ListInvites filters by whichever of ledgerID/receiverID are non-empty;
	// validating that at least one is present is the caller's job.
	ListInvites(ctx context.Context, ledgerID, receiverID string) ([]core.Invite, error)
	DeleteInvite(ctx context.Context, id string) error
	// AcceptInvite merges the receiver into the ledger's member set
	// (idempotently) and deletes the invite, as one unit.
	AcceptInvite(ctx context.Context, inv core.Invite) error

	// Export bookkeeping for the spreadsheet mirror worker.
	ListPendingExport(ctx context.Context, limit int) ([]core.Transaction, error)
	MarkExported(ctx context.Context, id string) error
	MarkExportError(ctx context.Context, id string) error

	Close() error
}
