package http

import (
	"net/http"

	"tally/internal/core"
	"tally/internal/services"
)

type createTransactionRequest struct {
	Title    string `json:"title"`
	Note     string `json:"note,omitempty"`
	Amount   string `json:"amount"` // decimal string, e.g. "12.50"
	Date     string `json:"date"`
	Type     string `json:"type"`
	TagID    string `json:"tag_id"`
	LedgerID string `json:"ledger_id"`
	Version  int64  `json:"version,omitempty"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, err := requestUser(r)
	if err != nil {
		s.writeAccessError(w, r, err)
		return
	}

	var req createTransactionRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if err := s.requireMember(r, req.LedgerID); err != nil {
		s.writeAccessError(w, r, err)
		return
	}

	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}

	t, err := s.transactions.Create(r.Context(), core.Transaction{
		Title:    sanitizeInput(req.Title),
		Note:     sanitizeInput(req.Note),
		Amount:   core.Money{Cents: cents},
		Date:     date,
		Type:     core.TransactionType(req.Type),
		OwnerID:  userID,
		TagID:    req.TagID,
		LedgerID: req.LedgerID,
		Version:  req.Version,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateLedger(t.LedgerID)
	writeJSON(w, http.StatusCreated, toTransactionResponse(t))
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := s.transactions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.requireMember(r, t.LedgerID); err != nil {
		s.writeAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(t))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	f, err := parseTransactionFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if f.LedgerID != "" {
		if err := s.requireMember(r, f.LedgerID); err != nil {
			s.writeAccessError(w, r, err)
			return
		}
	}

	ts, err := s.transactions.ListByLedger(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponses(ts))
}

type updateTransactionRequest struct {
	Title    *string `json:"title,omitempty"`
	Note     *string `json:"note,omitempty"`
	Amount   *string `json:"amount,omitempty"`
	Date     *string `json:"date,omitempty"`
	Type     *string `json:"type,omitempty"`
	TagID    *string `json:"tag_id,omitempty"`
	LedgerID *string `json:"ledger_id,omitempty"`
	Version  *int64  `json:"version,omitempty"`
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	old, err := s.transactions.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.requireMember(r, old.LedgerID); err != nil {
		s.writeAccessError(w, r, err)
		return
	}

	var req updateTransactionRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	patch := services.TransactionPatch{
		TagID:    req.TagID,
		LedgerID: req.LedgerID,
		Version:  req.Version,
	}
	if req.Title != nil {
		title := sanitizeInput(*req.Title)
		patch.Title = &title
	}
	if req.Note != nil {
		note := sanitizeInput(*req.Note)
		patch.Note = &note
	}
	if req.Amount != nil {
		cents, err := core.ParseDecimalToCents(*req.Amount)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
			return
		}
		patch.Amount = &core.Money{Cents: cents}
	}
	if req.Date != nil {
		date, err := parseDate(*req.Date)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
			return
		}
		patch.Date = &date
	}
	if req.Type != nil {
		typ := core.TransactionType(*req.Type)
		patch.Type = &typ
	}
	// A move to another ledger needs membership there too.
	if req.LedgerID != nil && *req.LedgerID != old.LedgerID {
		if err := s.requireMember(r, *req.LedgerID); err != nil {
			s.writeAccessError(w, r, err)
			return
		}
	}

	t, err := s.transactions.Update(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateLedger(old.LedgerID)
	s.invalidateLedger(t.LedgerID)
	writeJSON(w, http.StatusOK, toTransactionResponse(t))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	t, err := s.transactions.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.requireMember(r, t.LedgerID); err != nil {
		s.writeAccessError(w, r, err)
		return
	}

	if err := s.transactions.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateLedger(t.LedgerID)
	writeJSON(w, http.StatusNoContent, nil)
}
