package chat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/visivo/backend/internal/handler/stream"
	"github.com/zhouzirui/visivo/backend/internal/model/chat"
	"github.com/zhouzirui/visivo/backend/internal/service/ai"
	"github.com/zhouzirui/visivo/backend/pkg/utils"
)

// maxBodyBytes 覆盖 base64 编码后的 20MB 附件
const maxBodyBytes = 32 << 20

// Generator 聊天接口依赖的生成服务
type Generator interface {
	StreamingEnabled() bool
	StreamReply(ctx context.Context, req chat.GenerationRequest) (*schema.StreamReader[*schema.Message], error)
	Reply(ctx context.Context, req chat.GenerationRequest) (string, error)
}

// Handler 聊天服务的HTTP处理器
type Handler struct {
	gen      Generator
	recorder stream.Recorder
}

// New 创建聊天处理器；gen 为 nil 时返回 503
func New(gen Generator, recorder stream.Recorder) *Handler {
	return &Handler{gen: gen, recorder: recorder}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
}

// handleChat 按请求体形态分派：messages 为多轮 JSON 回复，message 为单轮流式回复
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	if h.gen == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "ai service unavailable")
		return
	}

	var payload chat.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	attachment, err := decodeAttachment(payload.FileData)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := chat.GenerationRequest{
		Prompt:     payload.Message,
		Attachment: attachment,
		History:    payload.Messages,
	}

	if len(payload.Messages) > 0 {
		h.reply(w, r, req)
		return
	}

	if strings.TrimSpace(payload.Message) == "" && attachment == nil {
		utils.RespondError(w, http.StatusBadRequest, "Message or file is required")
		return
	}

	if !h.gen.StreamingEnabled() {
		h.reply(w, r, req)
		return
	}

	h.streamReply(w, r, req)
}

func (h *Handler) reply(w http.ResponseWriter, r *http.Request, req chat.GenerationRequest) {
	text, err := h.gen.Reply(r.Context(), req)
	if err != nil {
		h.respondGenerationError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, chat.ChatResponse{Response: text})
}

func (h *Handler) streamReply(w http.ResponseWriter, r *http.Request, req chat.GenerationRequest) {
	sr, err := h.gen.StreamReply(r.Context(), req)
	if err != nil {
		h.respondGenerationError(w, r, err)
		return
	}

	relay := stream.New(stream.FromMessages(sr), stream.FramingFor(r), h.recorder)
	err = relay.Run(r.Context(), w)
	switch {
	case err == nil:
		log.Printf("[chat] request=%s relayed %d fragments", middleware.GetReqID(r.Context()), relay.Fragments())
	case errors.Is(err, stream.ErrNotStarted):
		log.Printf("[chat] request=%s stream failed before first fragment: %v", middleware.GetReqID(r.Context()), err)
		utils.RespondError(w, http.StatusInternalServerError, "Failed to process request")
	default:
		log.Printf("[chat] request=%s stream interrupted after %d fragments: %v", middleware.GetReqID(r.Context()), relay.Fragments(), err)
		// 响应头已提交，只能中断连接让客户端感知失败
		panic(http.ErrAbortHandler)
	}
}

func (h *Handler) respondGenerationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ai.ErrEmptyRequest):
		utils.RespondError(w, http.StatusBadRequest, "Message or file is required")
	case errors.Is(err, ai.ErrInvalidRole):
		utils.RespondError(w, http.StatusBadRequest, "invalid message role")
	default:
		log.Printf("[chat] request=%s generation failed: %v", middleware.GetReqID(r.Context()), err)
		utils.RespondError(w, http.StatusInternalServerError, "Failed to process request")
	}
}

var (
	errMissingMimeType = errors.New("fileData.mimeType is required")
	errInvalidFileData = errors.New("fileData.data must be base64")
)

func decodeAttachment(file *chat.FileData) (*chat.Attachment, error) {
	if file == nil {
		return nil, nil
	}

	mimeType := strings.TrimSpace(file.MimeType)
	if mimeType == "" {
		return nil, errMissingMimeType
	}

	encoded := strings.TrimSpace(file.Data)
	// 兼容 FileReader.readAsDataURL 产生的 data URI
	if strings.HasPrefix(encoded, "data:") {
		if i := strings.IndexByte(encoded, ','); i >= 0 {
			encoded = encoded[i+1:]
		}
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(data) == 0 {
		return nil, errInvalidFileData
	}

	return &chat.Attachment{MimeType: mimeType, Data: data}, nil
}
