package http

import (
	"net/http"

	"tally/internal/core"
	"tally/internal/services"
)

type createTagRequest struct {
	Label    string `json:"label"`
	Color    string `json:"color"`
	LedgerID string `json:"ledger_id"`
	Version  int64  `json:"version,omitempty"`
}

func (s *Server) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	var req createTagRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := s.requireMember(r, req.LedgerID); err != nil {
		s.writeAccessError(w, r, err)
		return
	}

	t, err := s.tags.Create(r.Context(), core.Tag{
		Label:    sanitizeInput(req.Label),
		Color:    sanitizeInput(req.Color),
		LedgerID: req.LedgerID,
		Version:  req.Version,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTagResponse(t))
}

func (s *Server) handleGetTag(w http.ResponseWriter, r *http.Request) {
	t, err := s.tags.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.requireMember(r, t.LedgerID); err != nil {
		s.writeAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTagResponse(t))
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	ledgerID := r.URL.Query().Get("ledger_id")
	if ledgerID != "" {
		if err := s.requireMember(r, ledgerID); err != nil {
			s.writeAccessError(w, r, err)
			return
		}
	}

	ts, err := s.tags.ListByLedger(r.Context(), ledgerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]tagResponse, 0, len(ts))
	for _, t := range ts {
		out = append(out, toTagResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

type updateTagRequest struct {
	Label   *string `json:"label,omitempty"`
	Color   *string `json:"color,omitempty"`
	Version *int64  `json:"version,omitempty"`
}

func (s *Server) handleUpdateTag(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	existing, err := s.tags.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.requireMember(r, existing.LedgerID); err != nil {
		s.writeAccessError(w, r, err)
		return
	}

	var req updateTagRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	patch := services.TagPatch{Version: req.Version}
	if req.Label != nil {
		label := sanitizeInput(*req.Label)
		patch.Label = &label
	}
	if req.Color != nil {
		color := sanitizeInput(*req.Color)
		patch.Color = &color
	}

	t, err := s.tags.Update(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTagResponse(t))
}

func (s *Server) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	existing, err := s.tags.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.requireMember(r, existing.LedgerID); err != nil {
		s.writeAccessError(w, r, err)
		return
	}

	if err := s.tags.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
