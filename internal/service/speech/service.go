package speech

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/visivo/backend/internal/model/speech"
)

// Service 语音合成服务，音色与语言由部署配置固定
type Service struct {
	config    *speech.SpeechConfig
	ttsClient *VolcengineTTSClient
}

// NewService 创建语音服务实例
func NewService(config *speech.SpeechConfig) *Service {
	return &Service{
		config:    config,
		ttsClient: NewVolcengineTTSClient(config),
	}
}

// Voice 返回实际请求的首选音色
func (s *Service) Voice() string {
	if v := NormalizeVoiceAlias(s.config.TTSVoice); v != "" {
		return v
	}
	return DefaultVoice
}

// Language 返回合成语言
func (s *Service) Language() string {
	return s.config.TTSLanguage
}

// Synthesize 单次合成整段文本，不做重试
func (s *Service) Synthesize(ctx context.Context, text string) (*speech.TTSResponse, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("TTS text is empty")
	}

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.config.Timeout)*time.Second)
		defer cancel()
	}

	return s.ttsClient.Synthesize(ctx, &speech.TTSRequest{
		SessionID: uuid.New().String(),
		Text:      text,
	})
}
