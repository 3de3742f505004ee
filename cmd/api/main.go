package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/zhouzirui/visivo/backend/internal/config"
	"github.com/zhouzirui/visivo/backend/internal/handler"
	speechModel "github.com/zhouzirui/visivo/backend/internal/model/speech"
	"github.com/zhouzirui/visivo/backend/internal/service/ai"
	"github.com/zhouzirui/visivo/backend/internal/service/speech"
	"github.com/zhouzirui/visivo/backend/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	deps := handler.Dependencies{
		Limits: cfg.Upload.Limits(),
		Auth:   cfg.Auth,
	}

	var metrics *telemetry.Provider
	if cfg.Metrics.Enabled {
		metrics, err = telemetry.Setup(ctx, telemetry.Options{ServiceName: "visivo-backend"})
		if err != nil {
			log.Printf("warning: failed to initialize metrics: %v", err)
		} else {
			deps.Metrics = metrics.Metrics
			deps.MetricsHandler = metrics.Handler()
		}
	}

	// 初始化 AI 服务
	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing without AI functionality - 请检查 Ark 模型相关环境变量")
		} else {
			if deps.Metrics != nil {
				aiService.SetObserver(deps.Metrics)
			}
			// 仅在服务可用时赋值，避免接口持有 nil 指针
			deps.Describer = aiService
			deps.Generator = aiService
			log.Println("AI service initialized successfully")
		}
	} else {
		log.Println("Ark 凭证未配置，跳过 AI 功能初始化")
	}

	// 初始化语音服务
	if cfg.Speech.Enabled {
		speechService := speech.NewService(&speechModel.SpeechConfig{
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
		deps.Synthesizer = speechService
		log.Printf("Speech service initialized (voice=%s)", speechService.Voice())
	} else {
		log.Println("语音服务凭证未配置，跳过语音功能初始化")
	}

	router := handler.NewRouter(deps)

	startServer(ctx, cfg.Server, router)

	if metrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metrics.Shutdown(shutdownCtx); err != nil {
			log.Printf("warning: metrics shutdown: %v", err)
		}
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Visivo backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
