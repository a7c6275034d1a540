package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestRequestIDMiddleware_GeneratesID(t *testing.T) {
	var fromCtx, fromHeader string
	handler := NewRequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromCtx = RequestIDFromContext(r.Context())
		fromHeader = r.Header.Get(RequestIDHeader)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if _, err := uuid.Parse(fromCtx); err != nil {
		t.Fatalf("request id %q should be a UUID: %v", fromCtx, err)
	}
	if fromHeader != fromCtx {
		t.Errorf("forwarded header = %q, want %q", fromHeader, fromCtx)
	}
	if got := w.Header().Get(RequestIDHeader); got != fromCtx {
		t.Errorf("response header = %q, want %q", got, fromCtx)
	}
}

func TestRequestIDMiddleware_PropagatesValidID(t *testing.T) {
	var got string
	handler := NewRequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "client-req.42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got != "client-req.42" {
		t.Errorf("request id = %q, want %q", got, "client-req.42")
	}
}

func TestRequestIDMiddleware_ReplacesInvalidID(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{"改行を含む", "abc\ninjected"},
		{"空白を含む", "abc def"},
		{"長すぎる", strings.Repeat("a", 65)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			handler := NewRequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = RequestIDFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header[RequestIDHeader] = []string{tt.id}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if got == tt.id {
				t.Errorf("invalid request id %q should be replaced", tt.id)
			}
			if _, err := uuid.Parse(got); err != nil {
				t.Errorf("replacement %q should be a UUID: %v", got, err)
			}
		})
	}
}

func TestRequestIDFromContext_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := RequestIDFromContext(req.Context()); got != "" {
		t.Errorf("RequestIDFromContext = %q, want empty", got)
	}
}
