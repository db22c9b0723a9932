// Package memory provides an in-process Store used by tests and the dev
// backend. A single mutex spans each operation, so every unit is atomic by
// construction; semantics mirror the SQLite store, including failure
// ordering (validate everything, then mutate).
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"tally/internal/core"
	"tally/internal/storage"
)

type Store struct {
	mu           sync.Mutex
	ledgers      map[string]*core.Ledger
	transactions map[string]*core.Transaction
	tags         map[string]*core.Tag
	invites      map[string]*core.Invite
	inviteOrder  []string // creation order for stable listing
	txnOrder     []string
	exportState  map[string]storage.ExportState
}

func NewStore() *Store {
	return &Store{
		ledgers:      make(map[string]*core.Ledger),
		transactions: make(map[string]*core.Transaction),
		tags:         make(map[string]*core.Tag),
		invites:      make(map[string]*core.Invite),
		exportState:  make(map[string]storage.ExportState),
	}
}

func (s *Store) Close() error { return nil }

// checkAdjustments verifies every adjustment can apply without mutating
// anything, so a failing unit leaves no partial effect.
func (s *Store) checkAdjustments(adj []storage.TotalsAdjustment) error {
	for _, a := range adj {
		if a.IsZero() {
			continue
		}
		l, ok := s.ledgers[a.LedgerID]
		if !ok {
			return fmt.Errorf("ledger %s: %w", a.LedgerID, core.ErrNotFound)
		}
		if l.TotalIncome.Cents+a.Income < 0 || l.TotalExpense.Cents+a.Expense < 0 {
			return fmt.Errorf("ledger %s: totals would go negative", a.LedgerID)
		}
	}
	return nil
}

func (s *Store) applyAdjustments(adj []storage.TotalsAdjustment) {
	for _, a := range adj {
		if a.IsZero() {
			continue
		}
		l := s.ledgers[a.LedgerID]
		l.TotalIncome.Cents += a.Income
		l.TotalExpense.Cents += a.Expense
	}
}

// --- Ledgers ---

func (s *Store) CreateLedger(ctx context.Context, l core.Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ledgers[l.ID]; ok {
		return fmt.Errorf("ledger %s already exists", l.ID)
	}
	cp := l
	cp.MemberIDs = dedupe(l.MemberIDs)
	s.ledgers[l.ID] = &cp
	return nil
}

func (s *Store) GetLedger(ctx context.Context, id string) (core.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.ledgers[id]
	if !ok {
		return core.Ledger{}, fmt.Errorf("ledger %s: %w", id, core.ErrNotFound)
	}
	return copyLedger(l), nil
}

func (s *Store) UpdateLedger(ctx context.Context, l core.Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.ledgers[l.ID]
	if !ok {
		return fmt.Errorf("ledger %s: %w", l.ID, core.ErrNotFound)
	}
	cur.Title = l.Title
	cur.Version = l.Version
	cur.MemberIDs = dedupe(l.MemberIDs)
	return nil
}

func (s *Store) DeleteLedger(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ledgers[id]; !ok {
		return fmt.Errorf("ledger %s: %w", id, core.ErrNotFound)
	}
	delete(s.ledgers, id)
	for txnID, t := range s.transactions {
		if t.LedgerID == id {
			delete(s.transactions, txnID)
			delete(s.exportState, txnID)
			s.txnOrder = remove(s.txnOrder, txnID)
		}
	}
	for tagID, t := range s.tags {
		if t.LedgerID == id {
			delete(s.tags, tagID)
		}
	}
	for invID, inv := range s.invites {
		if inv.LedgerID == id {
			delete(s.invites, invID)
			s.inviteOrder = remove(s.inviteOrder, invID)
		}
	}
	return nil
}

// --- Transactions ---

func (s *Store) InsertTransaction(ctx context.Context, t core.Transaction, adj []storage.TotalsAdjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[t.ID]; ok {
		return fmt.Errorf("transaction %s already exists", t.ID)
	}
	if err := s.checkAdjustments(adj); err != nil {
		return err
	}
	cp := t
	s.transactions[t.ID] = &cp
	s.txnOrder = append(s.txnOrder, t.ID)
	s.exportState[t.ID] = storage.ExportPending
	s.applyAdjustments(adj)
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	if !ok {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return *t, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, t core.Transaction, adj []storage.TotalsAdjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[t.ID]; !ok {
		return fmt.Errorf("transaction %s: %w", t.ID, core.ErrNotFound)
	}
	if err := s.checkAdjustments(adj); err != nil {
		return err
	}
	cp := t
	s.transactions[t.ID] = &cp
	s.exportState[t.ID] = storage.ExportPending
	s.applyAdjustments(adj)
	return nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id string, adj []storage.TotalsAdjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[id]; !ok {
		return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	if err := s.checkAdjustments(adj); err != nil {
		return err
	}
	delete(s.transactions, id)
	delete(s.exportState, id)
	s.txnOrder = remove(s.txnOrder, id)
	s.applyAdjustments(adj)
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, f storage.TransactionFilter) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Transaction
	for _, t := range s.transactions {
		if t.LedgerID != f.LedgerID {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(t.Title), strings.ToLower(f.Search)) {
			continue
		}
		if f.TagID != "" && t.TagID != f.TagID {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.OwnerID != "" && t.OwnerID != f.OwnerID {
			continue
		}
		if !f.From.IsZero() && t.Date.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && t.Date.After(f.To) {
			continue
		}
		out = append(out, *t)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			if f.SortDesc {
				return out[i].ID > out[j].ID
			}
			return out[i].ID < out[j].ID
		}
		if f.SortDesc {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].Date.Before(out[j].Date)
	})

	if f.Page > 0 {
		limit := f.Limit
		if limit <= 0 {
			limit = 100
		}
		start := (f.Page - 1) * limit
		if start >= len(out) {
			return nil, nil
		}
		end := start + limit
		if end > len(out) {
			end = len(out)
		}
		out = out[start:end]
	}
	return out, nil
}

func (s *Store) CountTransactionsByTag(ctx context.Context, tagID string, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 1
	}
	count := 0
	for _, t := range s.transactions {
		if t.TagID == tagID {
			count++
			if count >= limit {
				break
			}
		}
	}
	return count, nil
}

// --- Tags ---

func (s *Store) CreateTag(ctx context.Context, t core.Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tags[t.ID]; ok {
		return fmt.Errorf("tag %s already exists", t.ID)
	}
	cp := t
	s.tags[t.ID] = &cp
	return nil
}

func (s *Store) GetTag(ctx context.Context, id string) (core.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tags[id]
	if !ok {
		return core.Tag{}, fmt.Errorf("tag %s: %w", id, core.ErrNotFound)
	}
	return *t, nil
}

func (s *Store) ListTags(ctx context.Context, ledgerID string) ([]core.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Tag
	for _, t := range s.tags {
		if t.LedgerID == ledgerID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}

func (s *Store) UpdateTag(ctx context.Context, t core.Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.tags[t.ID]
	if !ok {
		return fmt.Errorf("tag %s: %w", t.ID, core.ErrNotFound)
	}
	cur.Label = t.Label
	cur.Color = t.Color
	cur.Version = t.Version
	return nil
}

func (s *Store) DeleteTag(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tags[id]; !ok {
		return fmt.Errorf("tag %s: %w", id, core.ErrNotFound)
	}
	delete(s.tags, id)
	return nil
}

func (s *Store) DeleteTagsForLedger(ctx context.Context, ledgerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.tags {
		if t.LedgerID == ledgerID {
			delete(s.tags, id)
		}
	}
	return nil
}

// --- Invites ---

func (s *Store) CreateInvite(ctx context.Context, inv core.Invite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.invites {
		if cur.LedgerID == inv.LedgerID && cur.ReceiverID == inv.ReceiverID {
			return fmt.Errorf("invite for ledger %s to %s: %w",
				inv.LedgerID, inv.ReceiverID, core.ErrDuplicateInvite)
		}
	}
	cp := inv
	s.invites[inv.ID] = &cp
	s.inviteOrder = append(s.inviteOrder, inv.ID)
	return nil
}

func (s *Store) GetInvite(ctx context.Context, id string) (core.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invites[id]
	if !ok {
		return core.Invite{}, fmt.Errorf("invite %s: %w", id, core.ErrNotFound)
	}
	return *inv, nil
}

func (s *Store) ListInvites(ctx context.Context, ledgerID, receiverID string) ([]core.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Invite
	for _, id := range s.inviteOrder {
		inv, ok := s.invites[id]
		if !ok {
			continue
		}
		if ledgerID != "" && inv.LedgerID != ledgerID {
			continue
		}
		if receiverID != "" && inv.ReceiverID != receiverID {
			continue
		}
		out = append(out, *inv)
	}
	return out, nil
}

func (s *Store) DeleteInvite(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invites[id]; !ok {
		return fmt.Errorf("invite %s: %w", id, core.ErrNotFound)
	}
	delete(s.invites, id)
	s.inviteOrder = remove(s.inviteOrder, id)
	return nil
}

func (s *Store) AcceptInvite(ctx context.Context, inv core.Invite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.ledgers[inv.LedgerID]
	if !ok {
		return fmt.Errorf("ledger %s: %w", inv.LedgerID, core.ErrNotFound)
	}
	if _, ok := s.invites[inv.ID]; !ok {
		return fmt.Errorf("invite %s: %w", inv.ID, core.ErrNotFound)
	}
	if !l.IsMember(inv.ReceiverID) {
		l.MemberIDs = append(l.MemberIDs, inv.ReceiverID)
	}
	delete(s.invites, inv.ID)
	s.inviteOrder = remove(s.inviteOrder, inv.ID)
	return nil
}

// --- Export bookkeeping ---

func (s *Store) ListPendingExport(ctx context.Context, limit int) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 10
	}
	var out []core.Transaction
	for _, id := range s.txnOrder {
		if s.exportState[id] != storage.ExportPending {
			continue
		}
		if t, ok := s.transactions[id]; ok {
			out = append(out, *t)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) MarkExported(ctx context.Context, id string) error {
	return s.setExportState(id, storage.ExportDone)
}

func (s *Store) MarkExportError(ctx context.Context, id string) error {
	return s.setExportState(id, storage.ExportError)
}

func (s *Store) setExportState(id string, state storage.ExportState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[id]; !ok {
		return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	s.exportState[id] = state
	return nil
}

func copyLedger(l *core.Ledger) core.Ledger {
	cp := *l
	cp.MemberIDs = append([]string(nil), l.MemberIDs...)
	return cp
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func remove(list []string, id string) []string {
	for i, v := range list {
		if v == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

var _ storage.Store = (*Store)(nil)
