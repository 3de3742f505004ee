// Package analyze 提供 POST /api/analyze：上传一张图片，返回描述或描述的语音
package analyze

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/visivo/backend/internal/model/chat"
	"github.com/zhouzirui/visivo/backend/internal/model/speech"
	"github.com/zhouzirui/visivo/backend/pkg/upload"
	"github.com/zhouzirui/visivo/backend/pkg/utils"
)

const (
	actionSynthesize = "synthesize"

	// formMemory 是 multipart 解析时保留在内存中的上限
	formMemory = 32 << 20
	// formOverhead 给表单边界与文本字段预留的空间
	formOverhead = 1 << 20

	msgProcessFailed = "Failed to process request"
)

// Describer 把图片内容转成文字描述
type Describer interface {
	DescribeImage(ctx context.Context, data []byte, mimeType string) (string, error)
}

// Synthesizer 把完成的文本合成为音频
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*speech.TTSResponse, error)
}

// Handler 图片分析处理器
type Handler struct {
	describer Describer
	synth     Synthesizer
	limits    upload.Limits
}

// New 创建处理器，未配置的服务可以传 nil
func New(describer Describer, synth Synthesizer, limits upload.Limits) *Handler {
	if limits.MaxBytes <= 0 || limits.MaxPending <= 0 {
		limits = upload.DefaultLimits()
	}
	return &Handler{describer: describer, synth: synth, limits: limits}
}

// RegisterRoutes 注册分析路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/analyze", h.handleAnalyze)
}

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.limits.MaxBytes+formOverhead)
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondError(w, http.StatusBadRequest, h.tooLargeMessage())
			return
		}
		utils.RespondError(w, http.StatusBadRequest, "No image provided")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "No image provided")
		return
	}
	defer file.Close()

	// 只有精确的 "synthesize" 走语音合成，其余取值一律按描述处理
	synthesize := r.FormValue("action") == actionSynthesize

	if header.Size > h.limits.MaxBytes {
		utils.RespondError(w, http.StatusBadRequest, h.tooLargeMessage())
		return
	}

	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		log.Printf("[analyze] failed to read upload %s: %v", header.Filename, err)
		utils.RespondError(w, http.StatusBadRequest, "No image provided")
		return
	}

	mimeType := uploadMimeType(header.Header.Get("Content-Type"), data)
	if err := upload.ValidateImage(mimeType, int64(len(data)), h.limits); err != nil {
		switch {
		case errors.Is(err, upload.ErrTooLarge):
			utils.RespondError(w, http.StatusBadRequest, h.tooLargeMessage())
		default:
			utils.RespondError(w, http.StatusBadRequest, "Unsupported image type")
		}
		return
	}

	if synthesize {
		h.synthesize(w, r, data, mimeType)
		return
	}

	description, ok := h.describe(r.Context(), w, data, mimeType)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, chat.AnalysisResponse{Description: description})
}

// synthesize 朗读客户端已有的描述；没有描述时先分析图片
func (h *Handler) synthesize(w http.ResponseWriter, r *http.Request, data []byte, mimeType string) {
	if h.synth == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "speech service unavailable")
		return
	}

	text := strings.TrimSpace(r.FormValue("text"))
	if text == "" {
		description, ok := h.describe(r.Context(), w, data, mimeType)
		if !ok {
			return
		}
		text = description
	}

	resp, err := h.synth.Synthesize(r.Context(), text)
	if err != nil {
		log.Printf("[analyze] synthesis failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, msgProcessFailed)
		return
	}

	utils.RespondAudio(w, resp.ContentType, resp.AudioData)
}

func (h *Handler) describe(ctx context.Context, w http.ResponseWriter, data []byte, mimeType string) (string, bool) {
	if h.describer == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "ai service unavailable")
		return "", false
	}

	description, err := h.describer.DescribeImage(ctx, data, mimeType)
	if err != nil {
		log.Printf("[analyze] describe failed type=%s size=%d: %v", mimeType, len(data), err)
		utils.RespondError(w, http.StatusInternalServerError, msgProcessFailed)
		return "", false
	}
	return description, true
}

func (h *Handler) tooLargeMessage() string {
	return fmt.Sprintf("Image exceeds %dMB limit", h.limits.MaxBytes/upload.MiB)
}

// uploadMimeType 优先使用表单声明的类型，缺省或为 octet-stream 时按内容探测
func uploadMimeType(declared string, data []byte) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	sniffed := http.DetectContentType(data)
	if i := strings.IndexByte(sniffed, ';'); i >= 0 {
		sniffed = sniffed[:i]
	}
	return sniffed
}
