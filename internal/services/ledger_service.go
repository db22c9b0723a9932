package services

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"tally/internal/core"
	"tally/internal/storage"
)

// LedgerPatch carries ledger field edits. Totals are deliberately absent:
// they change only through the transaction write paths.
type LedgerPatch struct {
	Title   *string
	Members []string // nil = unchanged; non-nil replaces the member set
	Version *int64
}

// LedgerService owns the ledger lifecycle: creation with the owner as sole
// member and zero totals, title/membership edits, and teardown with its
// dependent records removed in the same unit.
type LedgerService struct {
	store storage.Store
}

func NewLedgerService(store storage.Store) *LedgerService {
	return &LedgerService{store: store}
}

func (s *LedgerService) Create(ctx context.Context, title, ownerID string, version int64) (core.Ledger, error) {
	if version == 0 {
		version = 1
	}
	l := core.Ledger{
		ID:        uuid.NewString(),
		Title:     title,
		MemberIDs: []string{ownerID},
		Version:   version,
	}
	if err := l.Validate(); err != nil {
		return core.Ledger{}, core.CreateFailed("create ledger", err)
	}
	if err := s.store.CreateLedger(ctx, l); err != nil {
		return core.Ledger{}, core.CreateFailed("create ledger", err)
	}
	slog.InfoContext(ctx, "Ledger created", "ledger_id", l.ID, "owner_id", ownerID)
	return l, nil
}

func (s *LedgerService) Get(ctx context.Context, id string) (core.Ledger, error) {
	return s.store.GetLedger(ctx, id)
}

func (s *LedgerService) Update(ctx context.Context, id string, p LedgerPatch) (core.Ledger, error) {
	l, err := s.store.GetLedger(ctx, id)
	if err != nil {
		return core.Ledger{}, err
	}
	if p.Title != nil {
		l.Title = *p.Title
	}
	if p.Members != nil {
		l.MemberIDs = p.Members
	}
	if p.Version != nil {
		l.Version = *p.Version
	}
	if err := l.Validate(); err != nil {
		return core.Ledger{}, core.UpdateFailed("update ledger", err)
	}
	if err := s.store.UpdateLedger(ctx, l); err != nil {
		return core.Ledger{}, core.UpdateFailed("update ledger", err)
	}
	return l, nil
}

// Delete tears the ledger down. The store removes its transactions, tags,
// memberships and pending invites with the ledger row in one unit; the
// per-tag referential guard is intentionally bypassed on this path.
func (s *LedgerService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteLedger(ctx, id); err != nil {
		if notFound(err) {
			return err
		}
		return core.DeleteFailed("delete ledger", err)
	}
	slog.InfoContext(ctx, "Ledger deleted with dependents", "ledger_id", id)
	return nil
}
