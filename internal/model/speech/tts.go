package speech

import "time"

// TTSRequest 语音合成请求
type TTSRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Text      string `json:"text"`
}

// TTSResponse 语音合成响应
type TTSResponse struct {
	SessionID   string    `json:"sessionId"`
	AudioData   []byte    `json:"-"`
	ContentType string    `json:"contentType"`
	Duration    int64     `json:"duration"` // 毫秒
	Voice       string    `json:"voice"`
	RequestID   string    `json:"requestId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}
