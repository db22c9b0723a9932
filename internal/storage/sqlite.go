package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tally/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a single SQLite database. Atomic units are
// SQL transactions; totals adjustments are relative in-SQL updates so
// concurrent units never lose an increment.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// withTx runs fn inside one SQL transaction, rolling back on any error.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}
	return tx.Commit()
}

// applyAdjustments applies each totals change as a relative UPDATE inside tx.
// A missing ledger fails the unit; CHECK constraints on the totals columns
// reject any adjustment that would drive an accumulator negative.
func applyAdjustments(ctx context.Context, tx *sql.Tx, adj []TotalsAdjustment) error {
	for _, a := range adj {
		if a.IsZero() {
			continue
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE ledgers
			 SET total_income = total_income + ?, total_expense = total_expense + ?
			 WHERE id = ?`,
			a.Income, a.Expense, a.LedgerID)
		if err != nil {
			return fmt.Errorf("adjust totals for ledger %s: %w", a.LedgerID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("adjust totals for ledger %s: %w", a.LedgerID, err)
		}
		if n == 0 {
			return fmt.Errorf("ledger %s: %w", a.LedgerID, core.ErrNotFound)
		}
	}
	return nil
}

// --- Ledgers ---

func (s *SQLiteStore) CreateLedger(ctx context.Context, l core.Ledger) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO ledgers (id, title, total_income, total_expense, version)
			 VALUES (?, ?, ?, ?, ?)`,
			l.ID, l.Title, l.TotalIncome.Cents, l.TotalExpense.Cents, l.Version)
		if err != nil {
			return fmt.Errorf("insert ledger: %w", err)
		}
		for _, member := range l.MemberIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO ledger_members (ledger_id, user_id) VALUES (?, ?)`,
				l.ID, member); err != nil {
				return fmt.Errorf("insert ledger member: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) GetLedger(ctx context.Context, id string) (core.Ledger, error) {
	var l core.Ledger
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT id, title, total_income, total_expense, version FROM ledgers WHERE id = ?`, id)
		if err := row.Scan(&l.ID, &l.Title, &l.TotalIncome.Cents, &l.TotalExpense.Cents, &l.Version); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("ledger %s: %w", id, core.ErrNotFound)
			}
			return fmt.Errorf("select ledger: %w", err)
		}
		rows, err := tx.QueryContext(ctx,
			`SELECT user_id FROM ledger_members WHERE ledger_id = ? ORDER BY user_id`, id)
		if err != nil {
			return fmt.Errorf("select ledger members: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var userID string
			if err := rows.Scan(&userID); err != nil {
				return fmt.Errorf("scan ledger member: %w", err)
			}
			l.MemberIDs = append(l.MemberIDs, userID)
		}
		return rows.Err()
	})
	if err != nil {
		return core.Ledger{}, err
	}
	return l, nil
}

func (s *SQLiteStore) UpdateLedger(ctx context.Context, l core.Ledger) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE ledgers SET title = ?, version = ? WHERE id = ?`,
			l.Title, l.Version, l.ID)
		if err != nil {
			return fmt.Errorf("update ledger: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("ledger %s: %w", l.ID, core.ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM ledger_members WHERE ledger_id = ?`, l.ID); err != nil {
			return fmt.Errorf("clear ledger members: %w", err)
		}
		for _, member := range l.MemberIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO ledger_members (ledger_id, user_id) VALUES (?, ?)`,
				l.ID, member); err != nil {
				return fmt.Errorf("insert ledger member: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) DeleteLedger(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM ledgers WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete ledger: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("ledger %s: %w", id, core.ErrNotFound)
		}
		// Cascade in the same unit: nothing may observe dangling children.
		for _, q := range []string{
			`DELETE FROM ledger_members WHERE ledger_id = ?`,
			`DELETE FROM transactions WHERE ledger_id = ?`,
			`DELETE FROM tags WHERE ledger_id = ?`,
			`DELETE FROM ledger_invites WHERE ledger_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return fmt.Errorf("cascade ledger delete: %w", err)
			}
		}
		return nil
	})
}

// --- Transactions ---

func (s *SQLiteStore) InsertTransaction(ctx context.Context, t core.Transaction, adj []TotalsAdjustment) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO transactions
			 (id, title, note, amount_cents, date, type, owner_id, tag_id, ledger_id, version, export_state)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.Title, t.Note, t.Amount.Cents, t.Date.UTC().Unix(), string(t.Type),
			t.OwnerID, t.TagID, t.LedgerID, t.Version, string(ExportPending))
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		return applyAdjustments(ctx, tx, adj)
	})
}

func (s *SQLiteStore) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, note, amount_cents, date, type, owner_id, tag_id, ledger_id, version
		 FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
		}
		return core.Transaction{}, fmt.Errorf("select transaction: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) UpdateTransaction(ctx context.Context, t core.Transaction, adj []TotalsAdjustment) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE transactions
			 SET title = ?, note = ?, amount_cents = ?, date = ?, type = ?,
			     tag_id = ?, ledger_id = ?, version = ?, export_state = ?
			 WHERE id = ?`,
			t.Title, t.Note, t.Amount.Cents, t.Date.UTC().Unix(), string(t.Type),
			t.TagID, t.LedgerID, t.Version, string(ExportPending), t.ID)
		if err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("transaction %s: %w", t.ID, core.ErrNotFound)
		}
		return applyAdjustments(ctx, tx, adj)
	})
}

func (s *SQLiteStore) DeleteTransaction(ctx context.Context, id string, adj []TotalsAdjustment) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
		}
		return applyAdjustments(ctx, tx, adj)
	})
}

func (s *SQLiteStore) ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(
		`SELECT id, title, note, amount_cents, date, type, owner_id, tag_id, ledger_id, version
		 FROM transactions WHERE ledger_id = ?`)
	args = append(args, f.LedgerID)

	if f.Search != "" {
		sb.WriteString(` AND lower(title) LIKE '%' || lower(?) || '%'`)
		args = append(args, f.Search)
	}
	if f.TagID != "" {
		sb.WriteString(` AND tag_id = ?`)
		args = append(args, f.TagID)
	}
	if f.Type != "" {
		sb.WriteString(` AND type = ?`)
		args = append(args, string(f.Type))
	}
	if f.OwnerID != "" {
		sb.WriteString(` AND owner_id = ?`)
		args = append(args, f.OwnerID)
	}
	if !f.From.IsZero() {
		sb.WriteString(` AND date >= ?`)
		args = append(args, f.From.UTC().Unix())
	}
	if !f.To.IsZero() {
		sb.WriteString(` AND date <= ?`)
		args = append(args, f.To.UTC().Unix())
	}

	if f.SortDesc {
		sb.WriteString(` ORDER BY date DESC, id DESC`)
	} else {
		sb.WriteString(` ORDER BY date ASC, id ASC`)
	}

	// Page <= 0 is the explicit escape hatch: full match set, no pagination.
	if f.Page > 0 {
		limit := f.Limit
		if limit <= 0 {
			limit = 100
		}
		sb.WriteString(` LIMIT ? OFFSET ?`)
		args = append(args, limit, (f.Page-1)*limit)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountTransactionsByTag(ctx context.Context, tagID string, limit int) (int, error) {
	if limit <= 0 {
		limit = 1
	}
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM (SELECT 1 FROM transactions WHERE tag_id = ? LIMIT ?)`,
		tagID, limit).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count transactions by tag: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(r rowScanner) (core.Transaction, error) {
	var (
		t       core.Transaction
		unix    int64
		txnType string
	)
	if err := r.Scan(&t.ID, &t.Title, &t.Note, &t.Amount.Cents, &unix, &txnType,
		&t.OwnerID, &t.TagID, &t.LedgerID, &t.Version); err != nil {
		return core.Transaction{}, err
	}
	t.Date = time.Unix(unix, 0).UTC()
	t.Type = core.TransactionType(txnType)
	return t, nil
}

// --- Tags ---

func (s *SQLiteStore) CreateTag(ctx context.Context, t core.Tag) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tags (id, label, color, ledger_id, version) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Label, t.Color, t.LedgerID, t.Version)
	if err != nil {
		return fmt.Errorf("insert tag: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetTag(ctx context.Context, id string) (core.Tag, error) {
	var t core.Tag
	err := s.db.QueryRowContext(ctx,
		`SELECT id, label, color, ledger_id, version FROM tags WHERE id = ?`, id).
		Scan(&t.ID, &t.Label, &t.Color, &t.LedgerID, &t.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Tag{}, fmt.Errorf("tag %s: %w", id, core.ErrNotFound)
		}
		return core.Tag{}, fmt.Errorf("select tag: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) ListTags(ctx context.Context, ledgerID string) ([]core.Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, color, ledger_id, version FROM tags WHERE ledger_id = ? ORDER BY label`,
		ledgerID)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var out []core.Tag
	for rows.Next() {
		var t core.Tag
		if err := rows.Scan(&t.ID, &t.Label, &t.Color, &t.LedgerID, &t.Version); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateTag(ctx context.Context, t core.Tag) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tags SET label = ?, color = ?, version = ? WHERE id = ?`,
		t.Label, t.Color, t.Version, t.ID)
	if err != nil {
		return fmt.Errorf("update tag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("tag %s: %w", t.ID, core.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) DeleteTag(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("tag %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) DeleteTagsForLedger(ctx context.Context, ledgerID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tags WHERE ledger_id = ?`, ledgerID); err != nil {
		return fmt.Errorf("delete tags for ledger: %w", err)
	}
	return nil
}

// --- Invites ---

func (s *SQLiteStore) CreateInvite(ctx context.Context, inv core.Invite) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM ledger_invites WHERE ledger_id = ? AND receiver_id = ? LIMIT 1`,
			inv.LedgerID, inv.ReceiverID).Scan(&exists)
		switch {
		case err == nil:
			return fmt.Errorf("invite for ledger %s to %s: %w",
				inv.LedgerID, inv.ReceiverID, core.ErrDuplicateInvite)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("check pending invite: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_invites (id, ledger_id, sender_id, receiver_id, version)
			 VALUES (?, ?, ?, ?, ?)`,
			inv.ID, inv.LedgerID, inv.SenderID, inv.ReceiverID, inv.Version); err != nil {
			return fmt.Errorf("insert invite: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) GetInvite(ctx context.Context, id string) (core.Invite, error) {
	var inv core.Invite
	err := s.db.QueryRowContext(ctx,
		`SELECT id, ledger_id, sender_id, receiver_id, version FROM ledger_invites WHERE id = ?`, id).
		Scan(&inv.ID, &inv.LedgerID, &inv.SenderID, &inv.ReceiverID, &inv.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Invite{}, fmt.Errorf("invite %s: %w", id, core.ErrNotFound)
		}
		return core.Invite{}, fmt.Errorf("select invite: %w", err)
	}
	return inv, nil
}

func (s *SQLiteStore) ListInvites(ctx context.Context, ledgerID, receiverID string) ([]core.Invite, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT id, ledger_id, sender_id, receiver_id, version FROM ledger_invites WHERE 1=1`)
	if ledgerID != "" {
		sb.WriteString(` AND ledger_id = ?`)
		args = append(args, ledgerID)
	}
	if receiverID != "" {
		sb.WriteString(` AND receiver_id = ?`)
		args = append(args, receiverID)
	}
	sb.WriteString(` ORDER BY created_at`)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	defer rows.Close()

	var out []core.Invite
	for rows.Next() {
		var inv core.Invite
		if err := rows.Scan(&inv.ID, &inv.LedgerID, &inv.SenderID, &inv.ReceiverID, &inv.Version); err != nil {
			return nil, fmt.Errorf("scan invite: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteInvite(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ledger_invites WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete invite: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("invite %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) AcceptInvite(ctx context.Context, inv core.Invite) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM ledgers WHERE id = ?`, inv.LedgerID).Scan(&exists)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("ledger %s: %w", inv.LedgerID, core.ErrNotFound)
			}
			return fmt.Errorf("select ledger: %w", err)
		}
		// Set semantics: accepting twice is a no-op on membership.
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO ledger_members (ledger_id, user_id) VALUES (?, ?)`,
			inv.LedgerID, inv.ReceiverID); err != nil {
			return fmt.Errorf("insert ledger member: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM ledger_invites WHERE id = ?`, inv.ID)
		if err != nil {
			return fmt.Errorf("delete invite: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// Lost a race with another resolve; the merge above is idempotent,
			// so reporting not-found here leaves a correct net state.
			return fmt.Errorf("invite %s: %w", inv.ID, core.ErrNotFound)
		}
		return nil
	})
}

// --- Export bookkeeping ---

func (s *SQLiteStore) ListPendingExport(ctx context.Context, limit int) ([]core.Transaction, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, note, amount_cents, date, type, owner_id, tag_id, ledger_id, version
		 FROM transactions WHERE export_state = ? ORDER BY created_at LIMIT ?`,
		string(ExportPending), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending export: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) MarkExported(ctx context.Context, id string) error {
	return s.setExportState(ctx, id, ExportDone)
}

func (s *SQLiteStore) MarkExportError(ctx context.Context, id string) error {
	return s.setExportState(ctx, id, ExportError)
}

func (s *SQLiteStore) setExportState(ctx context.Context, id string, state ExportState) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET export_state = ? WHERE id = ?`, string(state), id)
	if err != nil {
		return fmt.Errorf("set export state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
