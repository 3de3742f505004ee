package speech

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/visivo/backend/internal/model/speech"
	"github.com/zhouzirui/visivo/backend/pkg/utils"
)

// maxTextBytes 限制单次合成请求体大小
const maxTextBytes = 64 << 10

// Synthesizer 抽象语音合成，便于测试与替换实现
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*speech.TTSResponse, error)
	Voice() string
	Language() string
}

// Handler 语音服务的HTTP处理器
type Handler struct {
	synth Synthesizer
}

// New 创建语音处理器，synth 为 nil 时所有合成请求返回 503
func New(synth Synthesizer) *Handler {
	return &Handler{synth: synth}
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/speech", func(speechRouter chi.Router) {
		speechRouter.Post("/synthesize", h.handleSynthesize)
		speechRouter.Get("/health", h.handleHealth)
	})
}

// handleSynthesize 处理文本转语音请求
func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	if h.synth == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "speech service unavailable")
		return
	}

	var req speech.TTSRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTextBytes)).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	resp, err := h.synth.Synthesize(r.Context(), req.Text)
	if err != nil {
		log.Printf("[speech] TTS error: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "speech synthesis failed")
		return
	}

	utils.RespondAudio(w, resp.ContentType, resp.AudioData)
}

// handleHealth 健康检查端点
func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if h.synth == nil {
		utils.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "unavailable",
			"service": "speech",
		})
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":   "healthy",
		"service":  "speech",
		"voice":    h.synth.Voice(),
		"language": h.synth.Language(),
	})
}
