package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	h := chimiddleware.RequestID(Logger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/cart/items", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	entries := logs.FilterMessage("request").All()
	if len(entries) != 1 {
		t.Fatalf("log entries: got %d want 1", len(entries))
	}

	fields := entries[0].ContextMap()
	if fields["method"] != http.MethodPost {
		t.Fatalf("method: got %v", fields["method"])
	}
	if fields["path"] != "/api/cart/items" {
		t.Fatalf("path: got %v", fields["path"])
	}
	if fields["status"] != int64(http.StatusCreated) {
		t.Fatalf("status: got %v", fields["status"])
	}
	if fields["size"] != int64(len(`{"ok":true}`)) {
		t.Fatalf("size: got %v", fields["size"])
	}
	if fields["requestID"] == "" {
		t.Fatalf("request id is empty")
	}
}
