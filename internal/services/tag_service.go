package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"tally/internal/core"
	"tally/internal/storage"
)

// TagPatch carries tag field edits; nil fields stay unchanged.
type TagPatch struct {
	Label   *string
	Color   *string
	Version *int64
}

// TagService manages per-ledger categories and guards their referential
// integrity: a tag cannot be deleted while any transaction references it.
type TagService struct {
	store storage.Store
}

func NewTagService(store storage.Store) *TagService {
	return &TagService{store: store}
}

func (s *TagService) Create(ctx context.Context, t core.Tag) (core.Tag, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Version == 0 {
		t.Version = 1
	}
	if err := t.Validate(); err != nil {
		return core.Tag{}, core.CreateFailed("create tag", err)
	}
	if err := s.store.CreateTag(ctx, t); err != nil {
		return core.Tag{}, core.CreateFailed("create tag", err)
	}
	return t, nil
}

func (s *TagService) Get(ctx context.Context, id string) (core.Tag, error) {
	return s.store.GetTag(ctx, id)
}

func (s *TagService) ListByLedger(ctx context.Context, ledgerID string) ([]core.Tag, error) {
	if ledgerID == "" {
		return nil, fmt.Errorf("list tags: %w", core.ErrInvalidQuery)
	}
	return s.store.ListTags(ctx, ledgerID)
}

func (s *TagService) Update(ctx context.Context, id string, p TagPatch) (core.Tag, error) {
	t, err := s.store.GetTag(ctx, id)
	if err != nil {
		return core.Tag{}, err
	}
	if p.Label != nil {
		t.Label = *p.Label
	}
	if p.Color != nil {
		t.Color = *p.Color
	}
	if p.Version != nil {
		t.Version = *p.Version
	}
	if err := t.Validate(); err != nil {
		return core.Tag{}, core.UpdateFailed("update tag", err)
	}
	if err := s.store.UpdateTag(ctx, t); err != nil {
		return core.Tag{}, core.UpdateFailed("update tag", err)
	}
	return t, nil
}

// CanDelete reports whether no transaction references the tag. A limit-1
// probe is enough to answer.
func (s *TagService) CanDelete(ctx context.Context, id string) (bool, error) {
	if _, err := s.store.GetTag(ctx, id); err != nil {
		return false, err
	}
	n, err := s.store.CountTransactionsByTag(ctx, id, 1)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// Delete removes the tag unless a transaction still references it.
func (s *TagService) Delete(ctx context.Context, id string) error {
	ok, err := s.CanDelete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("tag %s: %w", id, core.ErrTagInUse)
	}
	if err := s.store.DeleteTag(ctx, id); err != nil {
		if notFound(err) {
			return err
		}
		return core.DeleteFailed("delete tag", err)
	}
	return nil
}

// DeleteForLedger removes every tag of the ledger with no referential
// check. This is the deliberate teardown bypass, distinct from the guarded
// single-tag path; it must only run when the ledger itself is going away.
func (s *TagService) DeleteForLedger(ctx context.Context, ledgerID string) error {
	if err := s.store.DeleteTagsForLedger(ctx, ledgerID); err != nil {
		return core.DeleteFailed("delete tags for ledger", err)
	}
	return nil
}
