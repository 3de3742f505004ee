package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/visivo/backend/internal/config"
	"github.com/zhouzirui/visivo/backend/internal/model/chat"
)

const historyLimit = 10

var (
	// ErrUpstream marks failures of the generation service: transport errors,
	// timeouts and unusable results.
	ErrUpstream = errors.New("generation service failed")
	// ErrEmptyRequest is returned when neither a prompt nor an attachment is given.
	ErrEmptyRequest = errors.New("message or file is required")
	// ErrInvalidRole is returned for history entries that are neither user nor assistant.
	ErrInvalidRole = errors.New("invalid history role")
)

// Service wraps the generative model behind compiled eino chains.
type Service struct {
	cfg      config.AIConfig
	vision   compose.Runnable[map[string]any, *schema.Message]
	chat     compose.Runnable[map[string]any, *schema.Message]
	observer UpstreamObserver
}

// UpstreamObserver records the latency of model calls.
type UpstreamObserver interface {
	ObserveUpstream(ctx context.Context, operation string, elapsed time.Duration, err error)
}

// NewService creates the Ark-backed service from configuration.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel, cfg)
}

// NewServiceWithModel compiles the chains around an arbitrary chat model.
func NewServiceWithModel(ctx context.Context, chatModel model.BaseChatModel, cfg config.AIConfig) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}

	vision, err := compileChain(ctx, chatModel)
	if err != nil {
		return nil, fmt.Errorf("failed to compile vision chain: %w", err)
	}

	chatChain, err := compileChain(ctx, chatModel)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &Service{
		cfg:    cfg,
		vision: vision,
		chat:   chatChain,
	}, nil
}

// SetObserver installs a latency observer. It must be called before the
// service handles requests.
func (s *Service) SetObserver(observer UpstreamObserver) {
	s.observer = observer
}

func (s *Service) observe(ctx context.Context, operation string, started time.Time, err error) {
	if s.observer != nil {
		s.observer.ObserveUpstream(ctx, operation, time.Since(started), err)
	}
}

func compileChain(ctx context.Context, chatModel model.BaseChatModel) (compose.Runnable[map[string]any, *schema.Message], error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("messages", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	return chain.Compile(ctx)
}

// StreamingEnabled reports whether single-turn chat replies are streamed.
func (s *Service) StreamingEnabled() bool {
	return s.cfg.StreamResponse
}

// DescribeImage sends one image with the fixed analysis prompt and returns the
// complete description. The call is bounded by the configured timeout.
func (s *Service) DescribeImage(ctx context.Context, data []byte, mimeType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	input := map[string]any{
		"system":   visionInstruction,
		"messages": []*schema.Message{userMessage(DescribePrompt, &chat.Attachment{MimeType: mimeType, Data: data})},
	}

	started := time.Now()
	response, err := s.vision.Invoke(ctx, input)
	s.observe(ctx, "describe", started, err)
	if err != nil {
		return "", fmt.Errorf("%w: failed to run vision chain: %w", ErrUpstream, err)
	}

	description := strings.TrimSpace(response.Content)
	if description == "" {
		return "", fmt.Errorf("%w: empty description", ErrUpstream)
	}

	log.Printf("[ai] described image type=%s size=%d length=%d elapsed=%s", mimeType, len(data), len(description), time.Since(started).Round(time.Millisecond))
	return description, nil
}

// StreamReply opens a streamed completion for a chat request. Errors returned
// here mean the stream could not be established; errors read from the stream
// afterwards belong to the caller.
func (s *Service) StreamReply(ctx context.Context, req chat.GenerationRequest) (*schema.StreamReader[*schema.Message], error) {
	input, err := buildChainInput(req)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	stream, err := s.chat.Stream(ctx, input)
	s.observe(ctx, "stream", started, err)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to stream chat chain output: %w", ErrUpstream, err)
	}

	return stream, nil
}

// Reply runs a non-streaming completion and returns the full text.
func (s *Service) Reply(ctx context.Context, req chat.GenerationRequest) (string, error) {
	input, err := buildChainInput(req)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	started := time.Now()
	response, err := s.chat.Invoke(ctx, input)
	s.observe(ctx, "reply", started, err)
	if err != nil {
		return "", fmt.Errorf("%w: failed to run chat chain: %w", ErrUpstream, err)
	}
	if strings.TrimSpace(response.Content) == "" {
		return "", fmt.Errorf("%w: empty response", ErrUpstream)
	}

	log.Printf("[ai] generated reply history=%d length=%d", len(req.History), len(response.Content))
	return response.Content, nil
}

// buildChainInput maps a request onto the template variables. When the
// request carries both history and a prompt, the prompt becomes the final
// user turn.
func buildChainInput(req chat.GenerationRequest) (map[string]any, error) {
	messages, err := buildHistoryMessages(req.History)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(req.Prompt) != "" || req.Attachment != nil {
		messages = append(messages, userMessage(req.Prompt, req.Attachment))
	}

	if len(messages) == 0 {
		return nil, ErrEmptyRequest
	}

	return map[string]any{
		"system":   chatInstruction,
		"messages": messages,
	}, nil
}

func buildHistoryMessages(history []chat.HistoryMessage) ([]*schema.Message, error) {
	if len(history) == 0 {
		return nil, nil
	}

	startIdx := 0
	if len(history) > historyLimit {
		startIdx = len(history) - historyLimit
	}

	messages := make([]*schema.Message, 0, len(history)-startIdx)
	for _, msg := range history[startIdx:] {
		switch msg.Role {
		case chat.RoleUser:
			messages = append(messages, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(msg.Content, nil))
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidRole, msg.Role)
		}
	}

	return messages, nil
}

// userMessage builds a user turn, inlining the attachment ahead of the text
// as a data URI part.
func userMessage(text string, attachment *chat.Attachment) *schema.Message {
	if attachment == nil {
		return schema.UserMessage(text)
	}

	parts := []schema.ChatMessagePart{attachmentPart(attachment)}
	if strings.TrimSpace(text) != "" {
		parts = append(parts, schema.ChatMessagePart{Type: schema.ChatMessagePartTypeText, Text: text})
	}

	return &schema.Message{
		Role:         schema.User,
		MultiContent: parts,
	}
}

func attachmentPart(attachment *chat.Attachment) schema.ChatMessagePart {
	uri := dataURI(attachment.MimeType, attachment.Data)
	mimeType := strings.ToLower(attachment.MimeType)

	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return schema.ChatMessagePart{
			Type:     schema.ChatMessagePartTypeImageURL,
			ImageURL: &schema.ChatMessageImageURL{URL: uri},
		}
	case strings.HasPrefix(mimeType, "video/"):
		return schema.ChatMessagePart{
			Type:     schema.ChatMessagePartTypeVideoURL,
			VideoURL: &schema.ChatMessageVideoURL{URL: uri},
		}
	case strings.HasPrefix(mimeType, "audio/"):
		return schema.ChatMessagePart{
			Type:     schema.ChatMessagePartTypeAudioURL,
			AudioURL: &schema.ChatMessageAudioURL{URL: uri},
		}
	default:
		return schema.ChatMessagePart{
			Type:    schema.ChatMessagePartTypeFileURL,
			FileURL: &schema.ChatMessageFileURL{URL: uri},
		}
	}
}

func dataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
