package utils

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, http.StatusBadRequest, "No image provided")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"error":"No image provided"}` {
		t.Fatalf("body = %s", got)
	}
}

func TestRespondAudio(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondAudio(rec, "audio/wav", []byte("RIFF1234"))

	if rec.Header().Get("Content-Type") != "audio/wav" || rec.Header().Get("Content-Length") != "8" {
		t.Fatalf("headers = %v", rec.Header())
	}
	if rec.Body.String() != "RIFF1234" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestSendSSEEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	SetupSSEHeaders(rec)
	SendSSEEvent(rec, rec, "delta", map[string]string{"content": "hi"})

	if rec.Header().Get("Content-Type") != "text/event-stream" {
		t.Fatalf("content type = %q", rec.Header().Get("Content-Type"))
	}
	if got := rec.Body.String(); got != "event: delta\ndata: {\"content\":\"hi\"}\n\n" {
		t.Fatalf("body = %q", got)
	}
	if !rec.Flushed {
		t.Fatal("expected flush")
	}
}
