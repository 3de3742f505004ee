package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/zhouzirui/visivo/backend/pkg/upload"
)

// fakeBackend serves /api/analyze and /api/chat.
func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/analyze", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"No image provided"}`)
			return
		}
		defer file.Close()

		if !upload.IsAllowed(header.Header.Get("Content-Type")) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"Unsupported image type"}`)
			return
		}

		// The number in the name sets the delay, scrambling completion order.
		var delay int
		fmt.Sscanf(header.Filename, "img-%d", &delay)
		time.Sleep(time.Duration(delay) * 10 * time.Millisecond)

		if r.FormValue("action") == "synthesize" {
			w.Header().Set("Content-Type", "audio/wav")
			_, _ = io.WriteString(w, "RIFF:"+r.FormValue("text"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"description": "described " + header.Filename})
	})

	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Message  string           `json:"message"`
			Messages []HistoryMessage `json:"messages"`
			FileData *struct {
				MimeType string `json:"mimeType"`
				Data     string `json:"data"`
			} `json:"fileData"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}

		if len(body.Messages) > 0 {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"response": fmt.Sprintf("%d turns", len(body.Messages))})
			return
		}

		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)

		switch body.Message {
		case "interrupt":
			_, _ = io.WriteString(w, "half an ")
			flusher.Flush()
			_, _ = io.WriteString(w, "answer")
			flusher.Flush()
			panic(http.ErrAbortHandler)
		case "whoami":
			_, _ = io.WriteString(w, r.Header.Get("X-Visivo-User"))
		default:
			for _, frag := range []string{"**Hello**", ", ", "world"} {
				_, _ = io.WriteString(w, frag)
				flusher.Flush()
			}
			if body.FileData != nil {
				_, _ = io.WriteString(w, " with "+body.FileData.MimeType)
			}
		}
	})

	return httptest.NewServer(mux)
}

func TestAnalyze(t *testing.T) {
	srv := fakeBackend(t)
	defer srv.Close()
	cl := New(srv.URL)

	desc, err := cl.Analyze(context.Background(), upload.Candidate{Name: "cat.png", MimeType: "image/png", Data: []byte("png")})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if desc != "described cat.png" {
		t.Fatalf("description = %q", desc)
	}
}

func TestAnalyzeAPIError(t *testing.T) {
	srv := fakeBackend(t)
	defer srv.Close()

	_, err := New(srv.URL).Analyze(context.Background(), upload.Candidate{Name: "anim.gif", MimeType: "image/gif", Data: []byte("gif")})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Message != "Unsupported image type" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestAnalyzeAllMatchesByIndex(t *testing.T) {
	srv := fakeBackend(t)
	defer srv.Close()

	cands := []upload.Candidate{
		{Name: "img-5", MimeType: "image/jpeg", Data: []byte("a")},
		{Name: "img-0", MimeType: "image/gif", Data: []byte("b")},
		{Name: "img-1", MimeType: "image/webp", Data: []byte("c")},
	}
	results := New(srv.URL).AnalyzeAll(context.Background(), cands)

	if len(results) != 3 {
		t.Fatalf("results = %d", len(results))
	}
	for i, res := range results {
		if res.Index != i || res.Name != cands[i].Name {
			t.Fatalf("result %d belongs to %s", i, res.Name)
		}
	}
	if results[0].Description != "described img-5" || results[2].Description != "described img-1" {
		t.Fatalf("descriptions out of place: %+v", results)
	}
	if results[1].Err == nil {
		t.Fatal("unsupported candidate should fail without affecting the others")
	}
}

func TestSynthesize(t *testing.T) {
	srv := fakeBackend(t)
	defer srv.Close()

	audio, err := New(srv.URL).Synthesize(context.Background(), upload.Candidate{Name: "x.png", MimeType: "image/png", Data: []byte("p")}, "A cat.")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "RIFF:A cat." {
		t.Fatalf("audio = %q", audio)
	}
}

func TestStreamChat(t *testing.T) {
	srv := fakeBackend(t)
	defer srv.Close()

	stream, err := New(srv.URL).StreamChat(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	defer stream.Close()

	if got := drain(stream); got != "**Hello**, world" {
		t.Fatalf("streamed = %q", got)
	}
	if stream.Err() != nil {
		t.Fatalf("Err = %v", stream.Err())
	}
}

func TestStreamChatSendsAttachmentAndUser(t *testing.T) {
	srv := fakeBackend(t)
	defer srv.Close()
	cl := New(srv.URL, WithUser("X-Visivo-User", "user-7"))

	stream, err := cl.StreamChat(context.Background(), "hi", &Attachment{Name: "a.pdf", MimeType: "application/pdf", Data: []byte("%PDF")})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	if got := drain(stream); !strings.HasSuffix(got, " with application/pdf") {
		t.Fatalf("streamed = %q", got)
	}
	stream.Close()

	stream, err = cl.StreamChat(context.Background(), "whoami", nil)
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	defer stream.Close()
	if got := drain(stream); got != "user-7" {
		t.Fatalf("user header = %q", got)
	}
}

func TestStreamChatInterrupted(t *testing.T) {
	srv := fakeBackend(t)
	defer srv.Close()

	stream, err := New(srv.URL).StreamChat(context.Background(), "interrupt", nil)
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	defer stream.Close()

	if got := drain(stream); got != "half an answer" {
		t.Fatalf("received = %q", got)
	}
	if !errors.Is(stream.Err(), ErrStreamInterrupted) {
		t.Fatalf("expected ErrStreamInterrupted, got %v", stream.Err())
	}
}

func TestReply(t *testing.T) {
	srv := fakeBackend(t)
	defer srv.Close()

	got, err := New(srv.URL).Reply(context.Background(), []HistoryMessage{{Role: RoleUser, Content: "a"}, {Role: RoleAssistant, Content: "b"}})
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if got != "2 turns" {
		t.Fatalf("reply = %q", got)
	}
}
