package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

type (
	// TransactionType is the aggregate bucket a transaction contributes to.
	TransactionType string

	Money struct {
		Cents int64
	}

	// Ledger groups transactions shared by a set of members and carries the
	// running totals derived from them. Totals change only through the
	// transaction write paths; title and membership edits never touch them.
	Ledger struct {
		ID           string
		Title        string
		MemberIDs    []string
		TotalIncome  Money
		TotalExpense Money
		Version      int64
	}

	// Transaction is a single money movement belonging to one ledger.
	Transaction struct {
		ID       string
		Title    string
		Note     string
		Amount   Money
		Date     time.Time
		Type     TransactionType
		OwnerID  string
		TagID    string
		LedgerID string
		Version  int64
	}

	// Tag is a user-defined category scoped to one ledger.
	Tag struct {
		ID       string
		Label    string
		Color    string
		LedgerID string
		Version  int64
	}

	// Invite is a pending request for ReceiverID to join LedgerID. It exists
	// from creation until it is accepted or rejected, then it is gone.
	Invite struct {
		ID         string
		LedgerID   string
		SenderID   string
		ReceiverID string
		Version    int64
	}
)

var (
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidType   = errors.New("invalid transaction type")
	ErrEmptyTitle    = errors.New("empty title")
	ErrEmptyLabel    = errors.New("empty label")
	ErrEmptyColor    = errors.New("empty color")
	ErrMissingOwner  = errors.New("missing owner id")
	ErrMissingTag    = errors.New("missing tag id")
	ErrMissingLedger = errors.New("missing ledger id")
	ErrMissingUser   = errors.New("missing user id")
)

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) Validate() error {
	if len(strings.TrimSpace(t.Title)) == 0 {
		return ErrEmptyTitle
	}
	if len(t.Title) > 200 {
		return errors.New("title too long (max 200 characters)")
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if t.Date.IsZero() {
		return ErrInvalidDate
	}
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if strings.TrimSpace(t.OwnerID) == "" {
		return ErrMissingOwner
	}
	if strings.TrimSpace(t.TagID) == "" {
		return ErrMissingTag
	}
	if strings.TrimSpace(t.LedgerID) == "" {
		return ErrMissingLedger
	}
	return nil
}

func (l Ledger) Validate() error {
	if len(strings.TrimSpace(l.Title)) == 0 {
		return ErrEmptyTitle
	}
	if len(l.Title) > 200 {
		return errors.New("title too long (max 200 characters)")
	}
	if len(l.MemberIDs) == 0 {
		return ErrMissingUser
	}
	return nil
}

// IsMember reports whether userID is in the ledger's member set.
func (l Ledger) IsMember(userID string) bool {
	for _, id := range l.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (t Tag) Validate() error {
	if len(strings.TrimSpace(t.Label)) == 0 {
		return ErrEmptyLabel
	}
	if len(strings.TrimSpace(t.Color)) == 0 {
		return ErrEmptyColor
	}
	if strings.TrimSpace(t.LedgerID) == "" {
		return ErrMissingLedger
	}
	return nil
}

func (i Invite) Validate() error {
	if strings.TrimSpace(i.LedgerID) == "" {
		return ErrMissingLedger
	}
	if strings.TrimSpace(i.SenderID) == "" || strings.TrimSpace(i.ReceiverID) == "" {
		return ErrMissingUser
	}
	if i.SenderID == i.ReceiverID {
		return errors.New("sender and receiver are the same user")
	}
	return nil
}
