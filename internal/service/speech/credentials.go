package speech

import (
	"errors"
	"strings"

	speechmodel "github.com/zhouzirui/visivo/backend/internal/model/speech"
)

// ErrNotConfigured 语音配置缺失
var ErrNotConfigured = errors.New("speech synthesis not configured")

// resolveCredentials 返回规范化后的 AppID 与 AccessToken，缺失时返回 ErrNotConfigured。
func resolveCredentials(cfg *speechmodel.SpeechConfig) (string, string, error) {
	if cfg == nil {
		return "", "", ErrNotConfigured
	}

	appID := strings.TrimSpace(cfg.AppID)
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		token = strings.TrimSpace(cfg.APIKey)
	}

	if appID == "" || token == "" {
		return "", "", ErrNotConfigured
	}

	return appID, token, nil
}
