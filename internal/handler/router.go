package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/visivo/backend/internal/config"
	"github.com/zhouzirui/visivo/backend/internal/handler/analyze"
	"github.com/zhouzirui/visivo/backend/internal/handler/chat"
	"github.com/zhouzirui/visivo/backend/internal/handler/speech"
	"github.com/zhouzirui/visivo/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/visivo/backend/internal/middleware"
	"github.com/zhouzirui/visivo/backend/internal/telemetry"
	"github.com/zhouzirui/visivo/backend/pkg/upload"
	"github.com/zhouzirui/visivo/backend/pkg/utils"
)

// Dependencies are the services behind the HTTP surface. Nil services make
// their routes answer 503.
type Dependencies struct {
	Describer      analyze.Describer
	Generator      chat.Generator
	Synthesizer    speech.Synthesizer
	Limits         upload.Limits
	Auth           config.AuthConfig
	Metrics        *telemetry.Metrics
	MetricsHandler http.Handler
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	var analyzeSynth analyze.Synthesizer
	if deps.Synthesizer != nil {
		analyzeSynth = deps.Synthesizer
	}

	analyzeHandler := analyze.New(deps.Describer, analyzeSynth, deps.Limits)
	chatHandler := chat.New(deps.Generator, relayRecorder(deps.Metrics))
	speechHandler := speech.New(deps.Synthesizer)

	r.Route("/api", func(api chi.Router) {
		api.Use(middlewarePkg.WithIdentity(middlewarePkg.HeaderIdentity{Header: deps.Auth.Header}))
		if deps.Auth.Required {
			api.Use(middlewarePkg.RequireIdentity)
		}

		analyzeHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
		speechHandler.RegisterRoutes(api)
	})

	return r
}

func relayRecorder(m *telemetry.Metrics) stream.Recorder {
	if m == nil {
		return nil
	}
	return m
}
