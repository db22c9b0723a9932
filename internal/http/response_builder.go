package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"tally/internal/core"
	applog "tally/internal/log"
)

type errorResponse struct {
	Error string `json:"error"`
}

type ledgerResponse struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	MemberIDs    []string `json:"member_ids"`
	TotalIncome  int64    `json:"total_income_cents"`
	TotalExpense int64    `json:"total_expense_cents"`
	Version      int64    `json:"version"`
}

type transactionResponse struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Note     string `json:"note,omitempty"`
	Amount   int64  `json:"amount_cents"`
	Date     string `json:"date"`
	Type     string `json:"type"`
	OwnerID  string `json:"owner_id"`
	TagID    string `json:"tag_id"`
	LedgerID string `json:"ledger_id"`
	Version  int64  `json:"version"`
}

type tagResponse struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Color    string `json:"color"`
	LedgerID string `json:"ledger_id"`
	Version  int64  `json:"version"`
}

type inviteResponse struct {
	ID         string `json:"id"`
	LedgerID   string `json:"ledger_id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Version    int64  `json:"version"`
}

func toLedgerResponse(l core.Ledger) ledgerResponse {
	return ledgerResponse{
		ID:           l.ID,
		Title:        l.Title,
		MemberIDs:    l.MemberIDs,
		TotalIncome:  l.TotalIncome.Cents,
		TotalExpense: l.TotalExpense.Cents,
		Version:      l.Version,
	}
}

func toTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:       t.ID,
		Title:    t.Title,
		Note:     t.Note,
		Amount:   t.Amount.Cents,
		Date:     t.Date.UTC().Format(time.RFC3339),
		Type:     string(t.Type),
		OwnerID:  t.OwnerID,
		TagID:    t.TagID,
		LedgerID: t.LedgerID,
		Version:  t.Version,
	}
}

func toTransactionResponses(ts []core.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(ts))
	for _, t := range ts {
		out = append(out, toTransactionResponse(t))
	}
	return out
}

func toTagResponse(t core.Tag) tagResponse {
	return tagResponse{
		ID:       t.ID,
		Label:    t.Label,
		Color:    t.Color,
		LedgerID: t.LedgerID,
		Version:  t.Version,
	}
}

func toInviteResponse(i core.Invite) inviteResponse {
	return inviteResponse{
		ID:         i.ID,
		LedgerID:   i.LedgerID,
		SenderID:   i.SenderID,
		ReceiverID: i.ReceiverID,
		Version:    i.Version,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// validationCauses are the field-level rejections surfaced as 422.
var validationCauses = []error{
	core.ErrEmptyTitle,
	core.ErrEmptyLabel,
	core.ErrEmptyColor,
	core.ErrInvalidAmount,
	core.ErrInvalidDate,
	core.ErrInvalidType,
	core.ErrMissingOwner,
	core.ErrMissingTag,
	core.ErrMissingLedger,
	core.ErrMissingUser,
}

func isValidationError(err error) bool {
	for _, cause := range validationCauses {
		if errors.Is(err, cause) {
			return true
		}
	}
	return false
}

// writeError maps the service error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrTagInUse), errors.Is(err, core.ErrDuplicateInvite):
		status = http.StatusConflict
	case errors.Is(err, core.ErrInvalidQuery):
		status = http.StatusBadRequest
	case isValidationError(err):
		status = http.StatusUnprocessableEntity
	default:
		status = http.StatusInternalServerError
	}

	if status == http.StatusInternalServerError {
		structured := applog.NewStructuredLogger(applog.FromContext(r.Context()))
		fields := applog.NewFields().
			WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "")
		structured.LogError(r.Context(), "Request failed", err,
			applog.ComponentHTTP, methodOperation(r.Method), fields)
		writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// methodOperation names the domain operation a method implies, for logging.
func methodOperation(method string) string {
	switch method {
	case http.MethodPost:
		return applog.OpCreate
	case http.MethodPatch, http.MethodPut:
		return applog.OpUpdate
	case http.MethodDelete:
		return applog.OpDelete
	default:
		return applog.OpRead
	}
}
