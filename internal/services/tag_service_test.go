package services

import (
	"context"
	"errors"
	"testing"

	"tally/internal/core"
)

func TestTagDeleteBlockedWhileReferenced(t *testing.T) {
	store, txns, ledger, tag := newTestEnv(t)
	tags := NewTagService(store)
	ctx := context.Background()

	created, err := txns.Create(ctx, newTransaction(ledger.ID, tag.ID, core.Expense, 1500))
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	ok, err := tags.CanDelete(ctx, tag.ID)
	if err != nil {
		t.Fatalf("can delete: %v", err)
	}
	if ok {
		t.Error("CanDelete = true for referenced tag")
	}
	if err := tags.Delete(ctx, tag.ID); !errors.Is(err, core.ErrTagInUse) {
		t.Fatalf("delete error = %v, want ErrTagInUse", err)
	}
	if _, err := tags.Get(ctx, tag.ID); err != nil {
		t.Fatalf("tag gone after blocked delete: %v", err)
	}

	if err := txns.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete transaction: %v", err)
	}
	if err := tags.Delete(ctx, tag.ID); err != nil {
		t.Fatalf("delete unreferenced tag: %v", err)
	}
	if _, err := tags.Get(ctx, tag.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("get deleted tag: error = %v, want ErrNotFound", err)
	}
}

func TestTagValidationAndQueries(t *testing.T) {
	store, _, ledger, _ := newTestEnv(t)
	tags := NewTagService(store)
	ctx := context.Background()

	t.Run("empty label rejected", func(t *testing.T) {
		_, err := tags.Create(ctx, core.Tag{Label: " ", Color: "#000000", LedgerID: ledger.ID})
		if !errors.Is(err, core.ErrEmptyLabel) || !errors.Is(err, core.ErrCreateFailed) {
			t.Errorf("error = %v, want ErrEmptyLabel under ErrCreateFailed", err)
		}
	})

	t.Run("empty color rejected", func(t *testing.T) {
		_, err := tags.Create(ctx, core.Tag{Label: "Bills", Color: "", LedgerID: ledger.ID})
		if !errors.Is(err, core.ErrEmptyColor) {
			t.Errorf("error = %v, want ErrEmptyColor", err)
		}
	})

	t.Run("list requires ledger id", func(t *testing.T) {
		if _, err := tags.ListByLedger(ctx, ""); !errors.Is(err, core.ErrInvalidQuery) {
			t.Errorf("error = %v, want ErrInvalidQuery", err)
		}
	})

	t.Run("update missing tag", func(t *testing.T) {
		label := "x"
		if _, err := tags.Update(ctx, "missing", TagPatch{Label: &label}); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})
}

func TestTagUpdate(t *testing.T) {
	store, _, _, tag := newTestEnv(t)
	tags := NewTagService(store)
	ctx := context.Background()

	label, color := "Food", "#ABCDEF"
	updated, err := tags.Update(ctx, tag.ID, TagPatch{Label: &label, Color: &color})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Label != label || updated.Color != color {
		t.Errorf("updated = %+v, want label %q color %q", updated, label, color)
	}
	got, err := tags.Get(ctx, tag.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Label != label {
		t.Errorf("persisted label = %q, want %q", got.Label, label)
	}
}

func TestDeleteForLedgerBypassesReferentialGuard(t *testing.T) {
	store, txns, ledger, tag := newTestEnv(t)
	tags := NewTagService(store)
	ctx := context.Background()

	if _, err := txns.Create(ctx, newTransaction(ledger.ID, tag.ID, core.Expense, 900)); err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if err := tags.DeleteForLedger(ctx, ledger.ID); err != nil {
		t.Fatalf("delete for ledger: %v", err)
	}
	got, err := tags.ListByLedger(ctx, ledger.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("tags remaining = %d, want 0", len(got))
	}
}
