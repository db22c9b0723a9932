package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tally/internal/services"
	"tally/internal/storage/memory"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := memory.NewStore()
	srv := NewServer(":0",
		services.NewLedgerService(store),
		services.NewTransactionService(store, nil),
		services.NewTagService(store),
		services.NewInviteService(store),
		Options{CacheTTL: time.Minute, RequestsPerMinute: 10000},
	)
	t.Cleanup(func() {
		srv.cacheManager.Stop()
		srv.rateLimiter.Stop()
	})
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set(userIDHeader, userID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func setupLedgerAndTag(t *testing.T, srv *Server) (ledgerResponse, tagResponse) {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/ledgers", "alice", map[string]any{"title": "Household"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create ledger: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var ledger ledgerResponse
	decodeInto(t, rec, &ledger)

	rec = doJSON(t, srv, http.MethodPost, "/tags", "alice", map[string]any{
		"label": "Groceries", "color": "#00FF00", "ledger_id": ledger.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create tag: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var tag tagResponse
	decodeInto(t, rec, &tag)
	return ledger, tag
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doJSON(t, srv, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, rec.Code)
		}
	}
}

func TestMissingUserHeaderIsUnauthorized(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/ledgers", "", map[string]any{"title": "X"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestTransactionFlowUpdatesTotals(t *testing.T) {
	srv := newTestServer(t)
	ledger, tag := setupLedgerAndTag(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/transactions", "alice", map[string]any{
		"title":     "Salary",
		"amount":    "100.00",
		"date":      "2026-03-01",
		"type":      "income",
		"tag_id":    tag.ID,
		"ledger_id": ledger.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create transaction: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var txn transactionResponse
	decodeInto(t, rec, &txn)
	if txn.Amount != 10000 {
		t.Errorf("amount = %d, want 10000", txn.Amount)
	}

	rec = doJSON(t, srv, http.MethodGet, "/ledgers/"+ledger.ID, "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get ledger: status = %d", rec.Code)
	}
	var got ledgerResponse
	decodeInto(t, rec, &got)
	if got.TotalIncome != 10000 || got.TotalExpense != 0 {
		t.Errorf("totals = (%d, %d), want (10000, 0)", got.TotalIncome, got.TotalExpense)
	}

	// Flip to expense; the amount must move between buckets.
	rec = doJSON(t, srv, http.MethodPatch, "/transactions/"+txn.ID, "alice", map[string]any{
		"type": "expense", "amount": "60.00",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update transaction: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/ledgers/"+ledger.ID, "alice", nil)
	decodeInto(t, rec, &got)
	if got.TotalIncome != 0 || got.TotalExpense != 6000 {
		t.Errorf("totals = (%d, %d), want (0, 6000)", got.TotalIncome, got.TotalExpense)
	}

	rec = doJSON(t, srv, http.MethodDelete, "/transactions/"+txn.ID, "alice", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete transaction: status = %d", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodGet, "/ledgers/"+ledger.ID, "alice", nil)
	decodeInto(t, rec, &got)
	if got.TotalIncome != 0 || got.TotalExpense != 0 {
		t.Errorf("totals after delete = (%d, %d), want (0, 0)", got.TotalIncome, got.TotalExpense)
	}
}

func TestNonMemberIsForbidden(t *testing.T) {
	srv := newTestServer(t)
	ledger, tag := setupLedgerAndTag(t, srv)

	rec := doJSON(t, srv, http.MethodGet, "/ledgers/"+ledger.ID, "mallory", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("get ledger: status = %d, want 403", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/transactions", "mallory", map[string]any{
		"title": "Sneaky", "amount": "1.00", "date": "2026-03-01",
		"type": "expense", "tag_id": tag.ID, "ledger_id": ledger.ID,
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("create transaction: status = %d, want 403", rec.Code)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	srv := newTestServer(t)
	ledger, tag := setupLedgerAndTag(t, srv)

	t.Run("missing entity is 404", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/transactions/nope", "alice", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("bad amount is 422", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/transactions", "alice", map[string]any{
			"title": "X", "amount": "-5", "date": "2026-03-01",
			"type": "expense", "tag_id": tag.ID, "ledger_id": ledger.ID,
		})
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422", rec.Code)
		}
	})

	t.Run("empty title is 422", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/transactions", "alice", map[string]any{
			"title": "  ", "amount": "5.00", "date": "2026-03-01",
			"type": "expense", "tag_id": tag.ID, "ledger_id": ledger.ID,
		})
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422", rec.Code)
		}
	})

	t.Run("underspecified list is 400", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/transactions", "alice", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("unknown body field is 400", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/ledgers", "alice", map[string]any{
			"title": "X", "bogus": true,
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestTagDeletionConflict(t *testing.T) {
	srv := newTestServer(t)
	ledger, tag := setupLedgerAndTag(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/transactions", "alice", map[string]any{
		"title": "Lunch", "amount": "9.50", "date": "2026-03-02",
		"type": "expense", "tag_id": tag.ID, "ledger_id": ledger.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create transaction: status = %d", rec.Code)
	}
	var txn transactionResponse
	decodeInto(t, rec, &txn)

	rec = doJSON(t, srv, http.MethodDelete, "/tags/"+tag.ID, "alice", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("delete referenced tag: status = %d, want 409", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodDelete, "/transactions/"+txn.ID, "alice", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete transaction: status = %d", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodDelete, "/tags/"+tag.ID, "alice", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete unreferenced tag: status = %d, want 204", rec.Code)
	}
}

func TestInviteFlow(t *testing.T) {
	srv := newTestServer(t)
	ledger, _ := setupLedgerAndTag(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/invites", "alice", map[string]any{
		"ledger_id": ledger.ID, "receiver_id": "bob",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create invite: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var inv inviteResponse
	decodeInto(t, rec, &inv)

	t.Run("duplicate pending invite is 409", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/invites", "alice", map[string]any{
			"ledger_id": ledger.ID, "receiver_id": "bob",
		})
		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", rec.Code)
		}
	})

	t.Run("receiver sees the invite in the inbox", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/invites", "bob", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var got []inviteResponse
		decodeInto(t, rec, &got)
		if len(got) != 1 || got[0].ID != inv.ID {
			t.Errorf("inbox = %+v, want the created invite", got)
		}
	})

	t.Run("only the receiver may resolve", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/invites/%s/accept", inv.ID), "alice", nil)
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("accept merges membership and consumes the invite", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/invites/%s/accept", inv.ID), "bob", nil)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("accept: status = %d, body = %s", rec.Code, rec.Body.String())
		}

		rec = doJSON(t, srv, http.MethodGet, "/ledgers/"+ledger.ID, "bob", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("bob reads ledger: status = %d", rec.Code)
		}

		rec = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/invites/%s/accept", inv.ID), "bob", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("second accept: status = %d, want 404", rec.Code)
		}
	})
}

func TestListTransactionsPagination(t *testing.T) {
	srv := newTestServer(t)
	ledger, tag := setupLedgerAndTag(t, srv)

	for i := 0; i < 15; i++ {
		rec := doJSON(t, srv, http.MethodPost, "/transactions", "alice", map[string]any{
			"title":     fmt.Sprintf("Entry %02d", i),
			"amount":    "1.00",
			"date":      fmt.Sprintf("2026-03-%02d", i+1),
			"type":      "expense",
			"tag_id":    tag.ID,
			"ledger_id": ledger.ID,
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("create %d: status = %d", i, rec.Code)
		}
	}

	rec := doJSON(t, srv, http.MethodGet, "/transactions?ledger_id="+ledger.ID+"&page=2&limit=10", "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	var page []transactionResponse
	decodeInto(t, rec, &page)
	if len(page) != 5 {
		t.Errorf("page 2 len = %d, want 5", len(page))
	}

	rec = doJSON(t, srv, http.MethodGet, "/transactions?ledger_id="+ledger.ID, "alice", nil)
	decodeInto(t, rec, &page)
	if len(page) != 15 {
		t.Errorf("unpaginated len = %d, want 15", len(page))
	}
}

func TestLedgerCacheInvalidatedOnWrite(t *testing.T) {
	srv := newTestServer(t)
	ledger, _ := setupLedgerAndTag(t, srv)

	// Prime the cache.
	rec := doJSON(t, srv, http.MethodGet, "/ledgers/"+ledger.ID, "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPatch, "/ledgers/"+ledger.ID, "alice", map[string]any{
		"title": "Renamed",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/ledgers/"+ledger.ID, "alice", nil)
	var got ledgerResponse
	decodeInto(t, rec, &got)
	if got.Title != "Renamed" {
		t.Errorf("title = %q, want Renamed (stale cache?)", got.Title)
	}
}
