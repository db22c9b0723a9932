package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"tally/internal/core"
	"tally/internal/storage"
)

// InviteService runs the collaboration-invite lifecycle. An invite exists
// until it is resolved; accepting merges the receiver into the ledger's
// member set idempotently and removes the invite in the same storage unit,
// so accepting twice changes nothing and the second call reports not-found.
type InviteService struct {
	store storage.Store
}

func NewInviteService(store storage.Store) *InviteService {
	return &InviteService{store: store}
}

// Create persists a new pending invite. At most one pending invite may
// exist per (ledger, receiver) pair.
func (s *InviteService) Create(ctx context.Context, ledgerID, senderID, receiverID string, version int64) (core.Invite, error) {
	if version == 0 {
		version = 1
	}
	inv := core.Invite{
		ID:         uuid.NewString(),
		LedgerID:   ledgerID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Version:    version,
	}
	if err := inv.Validate(); err != nil {
		return core.Invite{}, core.CreateFailed("create invite", err)
	}
	// The target ledger must resolve before a pending invite can point at it.
	if _, err := s.store.GetLedger(ctx, ledgerID); err != nil {
		return core.Invite{}, err
	}
	if err := s.store.CreateInvite(ctx, inv); err != nil {
		if errors.Is(err, core.ErrDuplicateInvite) {
			return core.Invite{}, err
		}
		return core.Invite{}, core.CreateFailed("create invite", err)
	}
	return inv, nil
}

// Get returns an invite by id.
func (s *InviteService) Get(ctx context.Context, id string) (core.Invite, error) {
	return s.store.GetInvite(ctx, id)
}

// List returns invites filtered by ledger and/or receiver. At least one
// filter must be present.
func (s *InviteService) List(ctx context.Context, ledgerID, receiverID string) ([]core.Invite, error) {
	if ledgerID == "" && receiverID == "" {
		return nil, fmt.Errorf("list invites: %w", core.ErrInvalidQuery)
	}
	return s.store.ListInvites(ctx, ledgerID, receiverID)
}

// Resolve accepts or rejects a pending invite. Acceptance merges the
// receiver into the member set (a no-op if already present) and deletes the
// invite atomically; rejection just deletes the invite.
func (s *InviteService) Resolve(ctx context.Context, id string, accept bool) error {
	inv, err := s.store.GetInvite(ctx, id)
	if err != nil {
		return err
	}

	if !accept {
		if err := s.store.DeleteInvite(ctx, id); err != nil {
			if notFound(err) {
				return err
			}
			return core.DeleteFailed("reject invite", err)
		}
		slog.InfoContext(ctx, "Invite rejected", "invite_id", id, "ledger_id", inv.LedgerID)
		return nil
	}

	if err := s.store.AcceptInvite(ctx, inv); err != nil {
		if notFound(err) {
			return err
		}
		return core.UpdateFailed("accept invite", err)
	}
	slog.InfoContext(ctx, "Invite accepted",
		"invite_id", id, "ledger_id", inv.LedgerID, "receiver_id", inv.ReceiverID)
	return nil
}
