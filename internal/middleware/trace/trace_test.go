package trace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMiddlewareTagsRequestsAndCountsMetrics(t *testing.T) {
	m := NewMiddleware(func(*http.Request) string { return "10.0.0.1" })

	var seen []string
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, GetRequestID(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ledgers/l1", nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want 204", rec.Code)
		}
	}

	if len(seen) != 2 {
		t.Fatalf("handler ran %d times, want 2", len(seen))
	}
	for _, id := range seen {
		if !strings.HasPrefix(id, "req_") {
			t.Errorf("request id %q missing req_ prefix", id)
		}
	}
	if seen[0] == seen[1] {
		t.Errorf("request ids not unique: %q", seen[0])
	}

	metrics := m.GetMetrics()
	if metrics.TotalRequests != 2 {
		t.Errorf("TotalRequests = %d, want 2", metrics.TotalRequests)
	}
	if metrics.LastResponseTime < 0 {
		t.Errorf("LastResponseTime = %d, want >= 0", metrics.LastResponseTime)
	}
}

func TestGetRequestIDWithoutMiddleware(t *testing.T) {
	if id := GetRequestID(context.Background()); id != "" {
		t.Errorf("request id = %q, want empty", id)
	}
}

func TestGenerateRequestID(t *testing.T) {
	a, b := GenerateRequestID(), GenerateRequestID()
	if !strings.HasPrefix(a, "req_") {
		t.Errorf("id %q missing req_ prefix", a)
	}
	if a == b {
		t.Errorf("ids collide: %q", a)
	}
}
