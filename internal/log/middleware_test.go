package log

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// recordingHandler captures every record, flattening pre-bound and per-call
// attributes into one map.
type recordingHandler struct {
	mu   *sync.Mutex
	base []slog.Attr
	recs *[]capturedRecord
}

type capturedRecord struct {
	level slog.Level
	msg   string
	attrs map[string]any
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{mu: &sync.Mutex{}, recs: &[]capturedRecord{}}
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any)
	for _, a := range h.base {
		attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})
	h.mu.Lock()
	defer h.mu.Unlock()
	*h.recs = append(*h.recs, capturedRecord{level: r.Level, msg: r.Message, attrs: attrs})
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.base = append(append([]slog.Attr{}, h.base...), attrs...)
	return &next
}

func (h *recordingHandler) WithGroup(string) slog.Handler { return h }

func (h *recordingHandler) records() []capturedRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]capturedRecord{}, *h.recs...)
}

func TestMiddlewareInjectsContextLogger(t *testing.T) {
	h := newRecordingHandler()
	logger := New(Config{Component: ComponentHTTP, Handler: h})

	handler := Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).InfoContext(r.Context(), "handled")
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	recs := h.records()
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	if recs[0].msg != "handled" {
		t.Errorf("msg = %q, want handled", recs[0].msg)
	}
	if recs[0].attrs[FieldComponent] != ComponentHTTP {
		t.Errorf("component = %v, want %q", recs[0].attrs[FieldComponent], ComponentHTTP)
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	logger := FromContext(context.Background())
	if logger == nil {
		t.Fatal("logger is nil")
	}
	if logger.Component() != ComponentApp {
		t.Errorf("component = %q, want %q", logger.Component(), ComponentApp)
	}
}

func TestRequestIDMiddlewareStampsContextLogger(t *testing.T) {
	h := newRecordingHandler()
	logger := New(Config{Component: ComponentHTTP, Handler: h})

	withID := RequestIDMiddleware(func(*http.Request) string { return "req_fixed" })
	handler := Middleware(logger)(withID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).InfoContext(r.Context(), "handled")
	})))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	recs := h.records()
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	if recs[0].attrs[FieldRequestID] != "req_fixed" {
		t.Errorf("request id = %v, want req_fixed", recs[0].attrs[FieldRequestID])
	}
}

func TestLogHTTPEndLevelFollowsStatusClass(t *testing.T) {
	cases := []struct {
		status  int
		level   slog.Level
		success bool
	}{
		{200, slog.LevelInfo, true},
		{404, slog.LevelWarn, false},
		{500, slog.LevelError, false},
	}

	for _, tc := range cases {
		h := newRecordingHandler()
		structured := NewStructuredLogger(New(Config{Component: ComponentHTTP, Handler: h}))
		r := httptest.NewRequest(http.MethodGet, "/ledgers/l1?x=1", nil)

		structured.LogHTTPEnd(context.Background(), r, tc.status, 7, "10.0.0.1")

		recs := h.records()
		if len(recs) != 1 {
			t.Fatalf("status %d: records = %d, want 1", tc.status, len(recs))
		}
		if recs[0].level != tc.level {
			t.Errorf("status %d: level = %v, want %v", tc.status, recs[0].level, tc.level)
		}
		if recs[0].attrs[FieldStatusCode] != int64(tc.status) {
			t.Errorf("status %d: status_code attr = %v", tc.status, recs[0].attrs[FieldStatusCode])
		}
		if recs[0].attrs[FieldSuccess] != tc.success {
			t.Errorf("status %d: success attr = %v, want %v", tc.status, recs[0].attrs[FieldSuccess], tc.success)
		}
	}
}

func TestLogErrorCarriesStructuredFields(t *testing.T) {
	h := newRecordingHandler()
	structured := NewStructuredLogger(New(Config{Component: ComponentHTTP, Handler: h}))

	fields := NewFields().WithTransaction("t1", "l1", 250)
	structured.LogError(context.Background(), "export failed", errors.New("sheet unavailable"),
		ComponentExport, OpExport, fields)

	recs := h.records()
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	attrs := recs[0].attrs
	if attrs[FieldError] != "sheet unavailable" {
		t.Errorf("error = %v", attrs[FieldError])
	}
	if attrs[FieldOperation] != OpExport {
		t.Errorf("operation = %v, want %q", attrs[FieldOperation], OpExport)
	}
	if attrs[FieldComponent] != ComponentExport {
		t.Errorf("component = %v, want %q", attrs[FieldComponent], ComponentExport)
	}
	if attrs[FieldTransactionID] != "t1" || attrs[FieldLedgerID] != "l1" {
		t.Errorf("transaction fields = %v/%v, want t1/l1", attrs[FieldTransactionID], attrs[FieldLedgerID])
	}
	if attrs[FieldAmountCents] != int64(250) {
		t.Errorf("amount_cents = %v, want 250", attrs[FieldAmountCents])
	}
}
