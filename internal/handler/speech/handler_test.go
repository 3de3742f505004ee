package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	speechmodel "github.com/zhouzirui/visivo/backend/internal/model/speech"
)

type fakeSynthesizer struct {
	text string
	err  error
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, text string) (*speechmodel.TTSResponse, error) {
	f.text = text
	if f.err != nil {
		return nil, f.err
	}
	return &speechmodel.TTSResponse{AudioData: []byte("RIFFaudio"), ContentType: "audio/wav"}, nil
}

func (f *fakeSynthesizer) Voice() string    { return "en_female_amy_jupiter_bigtts" }
func (f *fakeSynthesizer) Language() string { return "en-US" }

func setupRouter(synth Synthesizer) *chi.Mux {
	r := chi.NewRouter()
	New(synth).RegisterRoutes(r)
	return r
}

func TestSynthesizeReturnsAudio(t *testing.T) {
	fake := &fakeSynthesizer{}
	r := setupRouter(fake)

	req := httptest.NewRequest(http.MethodPost, "/speech/synthesize", bytes.NewBufferString(`{"text":"a cat"}`))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if resp.Header().Get("Content-Type") != "audio/wav" || resp.Header().Get("Content-Length") != "9" {
		t.Fatalf("unexpected headers %v", resp.Header())
	}
	if fake.text != "a cat" {
		t.Fatalf("synthesized text = %q", fake.text)
	}
}

func TestSynthesizeValidation(t *testing.T) {
	r := setupRouter(&fakeSynthesizer{})

	for _, body := range []string{`{`, `{"text":"   "}`} {
		req := httptest.NewRequest(http.MethodPost, "/speech/synthesize", bytes.NewBufferString(body))
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, resp.Code)
		}
	}
}

func TestSynthesizeUpstreamFailure(t *testing.T) {
	r := setupRouter(&fakeSynthesizer{err: errors.New("quota")})

	req := httptest.NewRequest(http.MethodPost, "/speech/synthesize", bytes.NewBufferString(`{"text":"hi"}`))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
}

func TestSpeechUnavailable(t *testing.T) {
	r := setupRouter(nil)

	req := httptest.NewRequest(http.MethodPost, "/speech/synthesize", bytes.NewBufferString(`{"text":"hi"}`))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}

	health := httptest.NewRecorder()
	r.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/speech/health", nil))
	if health.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 health, got %d", health.Code)
	}
}

func TestHealthReportsVoice(t *testing.T) {
	r := setupRouter(&fakeSynthesizer{})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/speech/health", nil))

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "healthy" || body["voice"] != "en_female_amy_jupiter_bigtts" || body["language"] != "en-US" {
		t.Fatalf("unexpected body %v", body)
	}
}
