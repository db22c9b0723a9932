package services

import (
	"context"
	"errors"
	"testing"

	"tally/internal/core"
)

func TestLedgerCreateStartsEmpty(t *testing.T) {
	_, _, ledger, _ := newTestEnv(t)

	if ledger.TotalIncome.Cents != 0 || ledger.TotalExpense.Cents != 0 {
		t.Errorf("new ledger totals = (%d, %d), want (0, 0)",
			ledger.TotalIncome.Cents, ledger.TotalExpense.Cents)
	}
	if len(ledger.MemberIDs) != 1 || ledger.MemberIDs[0] != "user-1" {
		t.Errorf("members = %v, want [user-1]", ledger.MemberIDs)
	}
}

func TestLedgerUpdateNeverTouchesTotals(t *testing.T) {
	store, txns, ledger, tag := newTestEnv(t)
	ledgers := NewLedgerService(store)
	ctx := context.Background()

	if _, err := txns.Create(ctx, newTransaction(ledger.ID, tag.ID, core.Income, 3000)); err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	title := "Renamed"
	if _, err := ledgers.Update(ctx, ledger.ID, LedgerPatch{
		Title:   &title,
		Members: []string{"user-1", "user-2"},
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := ledgers.Get(ctx, ledger.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != title {
		t.Errorf("title = %q, want %q", got.Title, title)
	}
	if !got.IsMember("user-2") {
		t.Errorf("members = %v, want user-2 included", got.MemberIDs)
	}
	mustTotals(t, store, ledger.ID, 3000, 0)
}

func TestLedgerDeleteRemovesDependents(t *testing.T) {
	store, txns, ledger, tag := newTestEnv(t)
	ledgers := NewLedgerService(store)
	invites := NewInviteService(store)
	ctx := context.Background()

	created, err := txns.Create(ctx, newTransaction(ledger.ID, tag.ID, core.Expense, 500))
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	inv, err := invites.Create(ctx, ledger.ID, "user-1", "user-2", 0)
	if err != nil {
		t.Fatalf("create invite: %v", err)
	}

	if err := ledgers.Delete(ctx, ledger.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := ledgers.Get(ctx, ledger.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("ledger: error = %v, want ErrNotFound", err)
	}
	if _, err := txns.Get(ctx, created.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("transaction: error = %v, want ErrNotFound", err)
	}
	if _, err := store.GetTag(ctx, tag.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("tag: error = %v, want ErrNotFound", err)
	}
	if _, err := store.GetInvite(ctx, inv.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("invite: error = %v, want ErrNotFound", err)
	}
}

func TestLedgerValidationAndMissing(t *testing.T) {
	store, _, _, _ := newTestEnv(t)
	ledgers := NewLedgerService(store)
	ctx := context.Background()

	if _, err := ledgers.Create(ctx, "  ", "user-1", 0); !errors.Is(err, core.ErrEmptyTitle) {
		t.Errorf("empty title: error = %v, want ErrEmptyTitle", err)
	}
	if _, err := ledgers.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("get missing: error = %v, want ErrNotFound", err)
	}
	if err := ledgers.Delete(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("delete missing: error = %v, want ErrNotFound", err)
	}
	title := "x"
	if _, err := ledgers.Update(ctx, "missing", LedgerPatch{Title: &title}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("update missing: error = %v, want ErrNotFound", err)
	}
}
