package config

import (
	"testing"
	"time"

	"github.com/zhouzirui/visivo/backend/pkg/upload"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "ARK_API_KEY", "ARK_STREAM", "ARK_TIMEOUT", "SPEECH_APP_ID", "SPEECH_ACCESS_TOKEN",
		"SPEECH_API_KEY", "UPLOAD_MAX_BYTES", "UPLOAD_MAX_PENDING", "AUTH_REQUIRED", "METRICS_ENABLED",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if !cfg.AI.StreamResponse {
		t.Fatal("streaming should default to enabled")
	}
	if cfg.AI.Timeout != 60*time.Second {
		t.Fatalf("unexpected timeout: %s", cfg.AI.Timeout)
	}
	if cfg.Speech.Enabled {
		t.Fatal("speech should be disabled without credentials")
	}
	if cfg.Speech.TTSLanguage != "en-US" || cfg.Speech.SampleRate != 24000 {
		t.Fatalf("unexpected speech defaults: %+v", cfg.Speech)
	}
	if cfg.Upload.Limits() != upload.DefaultLimits() {
		t.Fatalf("unexpected upload limits: %+v", cfg.Upload)
	}
	if cfg.Auth.Required || cfg.Auth.Header != "X-Visivo-User" {
		t.Fatalf("unexpected auth defaults: %+v", cfg.Auth)
	}
	if !cfg.Metrics.Enabled {
		t.Fatal("metrics should default to enabled")
	}
}

func TestLoadServerAddr(t *testing.T) {
	cases := []struct {
		port string
		want string
	}{
		{port: "9090", want: ":9090"},
		{port: "127.0.0.1:7000", want: "127.0.0.1:7000"},
	}

	for _, tc := range cases {
		t.Setenv("PORT", tc.port)
		got, err := loadServerConfig()
		if err != nil {
			t.Fatalf("loadServerConfig(%q) err: %v", tc.port, err)
		}
		if got.Addr != tc.want {
			t.Errorf("loadServerConfig(%q) = %s, want %s", tc.port, got.Addr, tc.want)
		}
	}

	t.Setenv("PORT", "80 80")
	if _, err := loadServerConfig(); err == nil {
		t.Fatal("expected error for port with spaces")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		key   string
		value string
	}{
		{key: "ARK_STREAM", value: "maybe"},
		{key: "ARK_TIMEOUT", value: "0"},
		{key: "ARK_MAX_TOKENS", value: "lots"},
		{key: "UPLOAD_MAX_PENDING", value: "-1"},
		{key: "AUTH_REQUIRED", value: "sometimes"},
	}

	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", tc.key, tc.value)
			}
		})
	}
}

func TestSpeechFallsBackToArkKey(t *testing.T) {
	t.Setenv("SPEECH_APP_ID", "app")
	t.Setenv("SPEECH_ACCESS_TOKEN", "")
	t.Setenv("SPEECH_API_KEY", "")
	t.Setenv("ARK_API_KEY", "ark-key")

	cfg, err := loadSpeechConfig()
	if err != nil {
		t.Fatalf("loadSpeechConfig err: %v", err)
	}
	if !cfg.Enabled || cfg.AccessToken != "ark-key" {
		t.Fatalf("expected ark key fallback, got %+v", cfg)
	}
}

func TestAIEnabled(t *testing.T) {
	if (AIConfig{APIKey: "k"}).Enabled() {
		t.Fatal("model is required")
	}
	if !(AIConfig{APIKey: "k", Model: "m"}).Enabled() {
		t.Fatal("api key + model should be enabled")
	}
	if !(AIConfig{AccessKey: "a", SecretKey: "s", Model: "m"}).Enabled() {
		t.Fatal("ak/sk + model should be enabled")
	}
}
