package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/zhouzirui/visivo/backend/internal/model/speech"
)

const (
	// DefaultVoice 未配置或配置失效时使用的英文音色
	DefaultVoice = "en_female_amy_jupiter_bigtts"

	pcmEncoding = "pcm"
)

// VolcengineTTSClient 火山引擎TTS WebSocket客户端
type VolcengineTTSClient struct {
	config *speech.SpeechConfig
	dialer *websocket.Dialer
}

type ttsServerMessage struct {
	ReqID    string `json:"reqid"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
}

type volcengineTTSRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string                   `json:"speaker"`
		Text        string                   `json:"text"`
		AudioParams volcengineTTSAudioParams `json:"audio_params"`
		Additions   string                   `json:"additions,omitempty"`
		Language    string                   `json:"language,omitempty"`
	} `json:"req_params"`
}

type volcengineTTSAudioParams struct {
	Format      string  `json:"format"`
	SampleRate  int     `json:"sample_rate"`
	SpeedRatio  float32 `json:"speed_ratio,omitempty"`
	VolumeRatio float32 `json:"volume_ratio,omitempty"`
}

// NewVolcengineTTSClient 创建火山引擎TTS客户端
func NewVolcengineTTSClient(config *speech.SpeechConfig) *VolcengineTTSClient {
	return &VolcengineTTSClient{
		config: config,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
		},
	}
}

// Synthesize 合成整段文本，返回 WAV 容器
func (c *VolcengineTTSClient) Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	if req == nil || strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("TTS text is empty")
	}

	appKey, accessKey, err := resolveCredentials(c.config)
	if err != nil {
		return nil, err
	}

	speakers := resolveTTSSpeakerCandidates(c.config.TTSVoice, DefaultVoice)
	var lastMismatch error

	for speakerIdx, speaker := range speakers {
		for resourceIdx, resourceID := range resolveTTSResourceCandidates(speaker) {
			resp, attemptErr := c.synthesizeWithResource(ctx, req, appKey, accessKey, speaker, resourceID)
			if attemptErr == nil {
				if resourceIdx > 0 || speakerIdx > 0 {
					log.Printf("[TTS] voice %s succeeded with fallback resource %s", speaker, resourceID)
				}
				return resp, nil
			}

			if !isResourceMismatchError(attemptErr) {
				return nil, attemptErr
			}
			log.Printf("[TTS] voice %s resource %s mismatch: %v", speaker, resourceID, attemptErr)
			lastMismatch = attemptErr
		}
	}

	if lastMismatch != nil {
		return nil, lastMismatch
	}
	return nil, &SynthesisError{Reason: fmt.Sprintf("no compatible resource for voices %v", speakers)}
}

func (c *VolcengineTTSClient) synthesizeWithResource(
	ctx context.Context,
	req *speech.TTSRequest,
	appKey, accessKey, speaker, resourceID string,
) (*speech.TTSResponse, error) {
	connectID := uuid.New().String()

	header := http.Header{}
	header.Set("X-Api-App-Key", appKey)
	header.Set("X-Api-Access-Key", accessKey)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)

	conn, resp, err := c.dialer.DialContext(ctx, c.endpoint(), header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to TTS WebSocket: %w", err)
	}
	defer conn.Close()

	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			log.Printf("[TTS] connected with logid: %s", logid)
		}
	}

	// 连接在 ctx 取消时关闭，阻塞中的 ReadMessage 随之返回
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	ttsReq, userUID := c.buildTTSRequest(req, speaker)
	payloadData, err := json.Marshal(ttsReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TTS request: %w", err)
	}

	message, err := CreateFullClientRequest(payloadData, NoCompression)
	if err != nil {
		return nil, err
	}
	messageBytes, err := EncodeMessage(message)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, messageBytes); err != nil {
		return nil, fmt.Errorf("failed to send TTS request: %w", err)
	}

	pcm, reqID, err := c.collectAudio(ctx, conn)
	if err != nil {
		return nil, err
	}

	audioData, err := EncodeWAV(pcm, c.sampleRate())
	if err != nil {
		return nil, fmt.Errorf("failed to package TTS audio: %w", err)
	}
	if reqID == "" {
		reqID = connectID
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = userUID
	}

	return &speech.TTSResponse{
		SessionID:   sessionID,
		AudioData:   audioData,
		ContentType: ContentTypeWAV,
		Duration:    pcmDurationMillis(pcm, c.sampleRate()),
		Voice:       speaker,
		RequestID:   reqID,
		CreatedAt:   time.Now(),
	}, nil
}

// collectAudio 读取服务端帧直到会话结束，返回拼接后的 PCM
func (c *VolcengineTTSClient) collectAudio(ctx context.Context, conn *websocket.Conn) ([]byte, string, error) {
	var (
		audioBuffer bytes.Buffer
		reqID       string
	)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, "", ctxErr
			}
			return nil, "", fmt.Errorf("failed to read TTS response: %w", err)
		}

		msg, err := DecodeMessage(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("failed to decode TTS message: %w", err)
		}

		switch msg.Header.MessageType {
		case ErrorMessage:
			return nil, "", &SynthesisError{Code: int(msg.ErrorCode), Reason: msg.payloadText()}

		case AudioOnlyServerResponse:
			chunk, err := DecompressPayload(msg.Payload, msg.Header.CompressionMethod)
			if err != nil {
				return nil, "", fmt.Errorf("failed to decompress audio chunk: %w", err)
			}
			audioBuffer.Write(chunk)

		case FullServerResponse:
			payload, err := DecompressPayload(msg.Payload, msg.Header.CompressionMethod)
			if err != nil {
				return nil, "", fmt.Errorf("failed to decompress TTS response payload: %w", err)
			}

			if msg.hasEvent() && msg.EventType == EventTypeSessionFailed {
				return nil, "", &SynthesisError{Reason: string(payload)}
			}

			var serverResp ttsServerMessage
			if len(payload) > 0 {
				if err := json.Unmarshal(payload, &serverResp); err != nil {
					log.Printf("[TTS] failed to unmarshal response payload: %v", err)
				} else {
					if serverResp.Code != 0 && serverResp.Code != 3000 && serverResp.Code != 20000000 {
						return nil, "", &SynthesisError{Code: serverResp.Code, Reason: serverResp.Message}
					}
					if serverResp.ReqID != "" {
						reqID = serverResp.ReqID
					}
					if serverResp.Data != "" {
						chunk, err := base64.StdEncoding.DecodeString(serverResp.Data)
						if err != nil {
							return nil, "", fmt.Errorf("failed to decode base64 audio chunk: %w", err)
						}
						audioBuffer.Write(chunk)
					}
				}
			}

			finishedByEvent := msg.hasEvent() && msg.EventType == EventTypeSessionFinished
			if finishedByEvent || msg.IsLastPacket() || serverResp.Sequence < 0 {
				if audioBuffer.Len() == 0 {
					return nil, "", &SynthesisError{Reason: "upstream returned no audio"}
				}
				return audioBuffer.Bytes(), reqID, nil
			}

		default:
			log.Printf("[TTS] unexpected message type: %d", msg.Header.MessageType)
		}
	}
}

// buildTTSRequest 构建符合火山引擎API格式的TTS请求，音色与语言只取自部署配置
func (c *VolcengineTTSClient) buildTTSRequest(req *speech.TTSRequest, speaker string) (*volcengineTTSRequest, string) {
	ttsReq := &volcengineTTSRequest{}

	userUID := strings.TrimSpace(req.SessionID)
	if userUID == "" {
		userUID = uuid.New().String()
	}
	ttsReq.User.UID = userUID

	ttsReq.ReqParams.Speaker = speaker
	ttsReq.ReqParams.Text = req.Text
	ttsReq.ReqParams.AudioParams.Format = pcmEncoding
	ttsReq.ReqParams.AudioParams.SampleRate = c.sampleRate()

	if speed := c.config.TTSSpeed; speed > 0 && speed != 1.0 {
		ttsReq.ReqParams.AudioParams.SpeedRatio = speed
	}
	if volume := c.config.TTSVolume; volume > 0 && volume != 1.0 {
		ttsReq.ReqParams.AudioParams.VolumeRatio = volume
	}
	if language := strings.TrimSpace(c.config.TTSLanguage); language != "" {
		ttsReq.ReqParams.Language = language
	}

	ttsReq.ReqParams.Additions = `{"disable_markdown_filter":false}`
	return ttsReq, userUID
}

func (c *VolcengineTTSClient) endpoint() string {
	if url := strings.TrimSpace(c.config.BaseURL); url != "" {
		return url
	}
	return "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"
}

func (c *VolcengineTTSClient) sampleRate() int {
	if c.config.SampleRate > 0 {
		return c.config.SampleRate
	}
	return 24000
}

func resolveTTSResourceCandidates(voice string) []string {
	const (
		defaultResource = "volc.service_type.10029"
		megaResource    = "volc.megatts.default"
		seedResource    = "seed-tts-2.0"
	)

	voice = strings.TrimSpace(voice)
	if voice == "" {
		return []string{defaultResource, seedResource}
	}
	if strings.HasPrefix(voice, "S_") {
		return []string{megaResource}
	}

	normalized := strings.ToLower(voice)
	for _, hint := range []string{"bigtts", "seed", "megatts", "uranus", "venus", "jupiter", "saturn", "neptune", "mercury", "pluto", "mars"} {
		if strings.Contains(normalized, hint) {
			return []string{seedResource, defaultResource}
		}
	}

	return []string{defaultResource, seedResource}
}

// voiceAliases 部署配置里可用的简写
var voiceAliases = map[string]string{
	"default":                   DefaultVoice,
	"en_default":                DefaultVoice,
	"zh_female_vv":              "zh_female_vv_uranus_bigtts",
	"zh_male_m392_conversation": "zh_male_M392_conversation_wvae_bigtts",
}

// NormalizeVoiceAlias 将简写展开为完整音色 ID，未知值原样返回
func NormalizeVoiceAlias(voice string) string {
	voice = strings.TrimSpace(voice)
	if mapped, ok := voiceAliases[strings.ToLower(voice)]; ok {
		return mapped
	}
	return voice
}

func resolveTTSSpeakerCandidates(configured, fallback string) []string {
	var candidates []string

	add := func(s string) {
		s = NormalizeVoiceAlias(s)
		if s == "" {
			return
		}
		for _, existing := range candidates {
			if strings.EqualFold(existing, s) {
				return
			}
		}
		candidates = append(candidates, s)
	}

	add(configured)
	add(fallback)
	return candidates
}
