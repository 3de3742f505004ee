package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/zhouzirui/visivo/backend/internal/config"
	speechmodel "github.com/zhouzirui/visivo/backend/internal/model/speech"
	"github.com/zhouzirui/visivo/backend/internal/service/speech"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	if !cfg.Speech.Enabled {
		log.Fatal("语音服务未启用，请先在环境变量中配置 SPEECH_APP_ID 与 SPEECH_ACCESS_TOKEN")
	}

	text := flag.String("text", "", "待合成文本")
	outputPath := flag.String("out", "", "输出 WAV 文件路径 (默认自动生成)")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")

	flag.Parse()

	if strings.TrimSpace(*text) == "" {
		flag.Usage()
		log.Fatal("请通过 -text 提供待合成文本")
	}

	if *outputPath == "" {
		*outputPath = fmt.Sprintf("tts-output-%d.wav", time.Now().Unix())
	}

	svc := speech.NewService(&speechmodel.SpeechConfig{
		AppID:       cfg.Speech.AppID,
		AccessToken: cfg.Speech.AccessToken,
		APIKey:      cfg.Speech.APIKey,
		BaseURL:     cfg.Speech.BaseURL,
		TTSVoice:    cfg.Speech.TTSVoice,
		TTSSpeed:    cfg.Speech.TTSSpeed,
		TTSVolume:   cfg.Speech.TTSVolume,
		TTSLanguage: cfg.Speech.TTSLanguage,
		SampleRate:  cfg.Speech.SampleRate,
		Timeout:     cfg.Speech.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	log.Printf("开始进行 TTS 测试: voice=%s language=%s", svc.Voice(), svc.Language())

	resp, err := svc.Synthesize(ctx, *text)
	if err != nil {
		log.Fatalf("TTS 调用失败: %v", err)
	}

	if err := os.WriteFile(*outputPath, resp.AudioData, 0o644); err != nil {
		log.Fatalf("写入音频文件失败: %v", err)
	}

	log.Printf("TTS 合成成功: 输出文件 %s, 时长=%dms, request=%s", *outputPath, resp.Duration, resp.RequestID)
}
