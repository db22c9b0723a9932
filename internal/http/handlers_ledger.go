package http

import (
	"errors"
	"net/http"

	"tally/internal/services"
)

var errNotMember = errors.New("user is not a member of this ledger")

// requireMember resolves the ledger and checks the caller belongs to it.
func (s *Server) requireMember(r *http.Request, ledgerID string) error {
	userID, err := requestUser(r)
	if err != nil {
		return err
	}
	l, err := s.cachedLedger(r.Context(), ledgerID)
	if err != nil {
		return err
	}
	if !l.IsMember(userID) {
		return errNotMember
	}
	return nil
}

// writeAccessError handles the two failures requireMember can add on top of
// the service taxonomy.
func (s *Server) writeAccessError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errMissingUserHeader):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
	case errors.Is(err, errNotMember):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	default:
		writeError(w, r, err)
	}
}

type createLedgerRequest struct {
	Title   string `json:"title"`
	Version int64  `json:"version,omitempty"`
}

func (s *Server) handleCreateLedger(w http.ResponseWriter, r *http.Request) {
	userID, err := requestUser(r)
	if err != nil {
		s.writeAccessError(w, r, err)
		return
	}

	var req createLedgerRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	l, err := s.ledgers.Create(r.Context(), sanitizeInput(req.Title), userID, req.Version)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLedgerResponse(l))
}

func (s *Server) handleGetLedger(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.requireMember(r, id); err != nil {
		s.writeAccessError(w, r, err)
		return
	}
	l, err := s.cachedLedger(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLedgerResponse(l))
}

type updateLedgerRequest struct {
	Title     *string  `json:"title,omitempty"`
	MemberIDs []string `json:"member_ids,omitempty"`
	Version   *int64   `json:"version,omitempty"`
}

func (s *Server) handleUpdateLedger(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.requireMember(r, id); err != nil {
		s.writeAccessError(w, r, err)
		return
	}

	var req updateLedgerRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	patch := services.LedgerPatch{
		Members: req.MemberIDs,
		Version: req.Version,
	}
	if req.Title != nil {
		title := sanitizeInput(*req.Title)
		patch.Title = &title
	}

	l, err := s.ledgers.Update(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateLedger(id)
	writeJSON(w, http.StatusOK, toLedgerResponse(l))
}

func (s *Server) handleDeleteLedger(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.requireMember(r, id); err != nil {
		s.writeAccessError(w, r, err)
		return
	}
	if err := s.ledgers.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateLedger(id)
	writeJSON(w, http.StatusNoContent, nil)
}
