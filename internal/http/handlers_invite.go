package http

import (
	"net/http"
)

type createInviteRequest struct {
	LedgerID   string `json:"ledger_id"`
	ReceiverID string `json:"receiver_id"`
	Version    int64  `json:"version,omitempty"`
}

func (s *Server) handleCreateInvite(w http.ResponseWriter, r *http.Request) {
	userID, err := requestUser(r)
	if err != nil {
		s.writeAccessError(w, r, err)
		return
	}

	var req createInviteRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	// Only members may invite others into a ledger.
	if err := s.requireMember(r, req.LedgerID); err != nil {
		s.writeAccessError(w, r, err)
		return
	}

	inv, err := s.invites.Create(r.Context(), req.LedgerID, userID, req.ReceiverID, req.Version)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toInviteResponse(inv))
}

func (s *Server) handleListInvites(w http.ResponseWriter, r *http.Request) {
	userID, err := requestUser(r)
	if err != nil {
		s.writeAccessError(w, r, err)
		return
	}

	q := r.URL.Query()
	ledgerID := q.Get("ledger_id")
	receiverID := q.Get("receiver_id")

	// Without explicit filters, show the caller's own inbox.
	if ledgerID == "" && receiverID == "" {
		receiverID = userID
	}
	if ledgerID != "" {
		if err := s.requireMember(r, ledgerID); err != nil {
			s.writeAccessError(w, r, err)
			return
		}
	}

	invs, err := s.invites.List(r.Context(), ledgerID, receiverID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]inviteResponse, 0, len(invs))
	for _, inv := range invs {
		out = append(out, toInviteResponse(inv))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleResolveInvite accepts or rejects a pending invite. Only the invited
// user may resolve it.
func (s *Server) handleResolveInvite(accept bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requestUser(r)
		if err != nil {
			s.writeAccessError(w, r, err)
			return
		}

		id := r.PathValue("id")
		inv, err := s.invites.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if inv.ReceiverID != userID {
			writeJSON(w, http.StatusForbidden, errorResponse{Error: "only the invited user may resolve this invite"})
			return
		}

		if err := s.invites.Resolve(r.Context(), id, accept); err != nil {
			writeError(w, r, err)
			return
		}
		s.invalidateLedger(inv.LedgerID)
		writeJSON(w, http.StatusNoContent, nil)
	}
}
