package speech

// SpeechConfig 语音服务配置
type SpeechConfig struct {
	// Volcengine 配置
	AppID       string `json:"appId"`            // 火山引擎 APP ID
	AccessToken string `json:"accessToken"`      // 火山引擎 Access Token
	APIKey      string `json:"apiKey,omitempty"` // 兼容旧配置的 API Key
	BaseURL     string `json:"baseUrl"`          // TTS WebSocket 地址

	// TTS 配置，由部署方固定，用户不可选择
	TTSVoice    string  `json:"ttsVoice"`
	TTSSpeed    float32 `json:"ttsSpeed"`
	TTSVolume   float32 `json:"ttsVolume"`
	TTSLanguage string  `json:"ttsLanguage"`
	SampleRate  int     `json:"sampleRate"`

	// 通用配置
	Timeout int `json:"timeout"` // 秒
}
