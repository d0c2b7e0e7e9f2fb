package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/openai/openai-go/v2/packages/param"

	"github.com/crosstalk-ai/gateway/internal/orchestrator"
	"github.com/crosstalk-ai/gateway/internal/pipeline"
	"github.com/crosstalk-ai/gateway/internal/session"
	"github.com/crosstalk-ai/gateway/internal/trace"
	"github.com/crosstalk-ai/gateway/internal/ws"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg := loadConfig()

	// STT backends
	sttBackends := map[string]pipeline.Transcriber{
		"whisper": pipeline.NewWhisperClient(cfg.whisperURL, cfg.sttPoolSize),
	}
	sttRouter := pipeline.NewSTTRouter(sttBackends, "whisper")

	// TTS backends
	ttsHTTP := pipeline.NewPooledHTTPClient(cfg.ttsPoolSize, 30*time.Second)
	ttsBackends := map[string]pipeline.Synthesizer{
		"piper": pipeline.NewPiperSynthesizer(cfg.piperURL, cfg.piperVoices, ttsHTTP),
	}
	if cfg.openaiSpeechURL != "" {
		ttsBackends["openai"] = pipeline.NewOpenAISpeechSynthesizer(cfg.openaiSpeechURL, cfg.openaiSpeechModel, cfg.openaiSpeechVoice, ttsHTTP)
	}
	ttsRouter := pipeline.NewTTSRouter(ttsBackends, "piper")

	// Generation backends: Ollama raw client always, OpenAI via the agents
	// SDK when a key is configured.
	responder := pipeline.NewResponder(cfg.genFallbackEngine, cfg.genMaxTokens)
	responder.RegisterRaw("ollama", pipeline.NewOllamaClient(cfg.ollamaURL, cfg.ollamaModel, cfg.genMaxTokens, cfg.sttPoolSize), cfg.ollamaModel)
	if cfg.openaiAPIKey != "" {
		params := agents.OpenAIProviderParams{APIKey: param.NewOpt(cfg.openaiAPIKey)}
		if cfg.openaiBaseURL != "" {
			params.BaseURL = param.NewOpt(cfg.openaiBaseURL)
		}
		responder.Register("openai", agents.NewOpenAIProvider(params), cfg.openaiModel)
	}

	var acoustic pipeline.SpeakerIdentifier
	if cfg.acousticURL != "" {
		acoustic = pipeline.NewAcousticClient(cfg.acousticURL, cfg.acousticPoolSize)
		slog.Info("acoustic speaker id enabled", "url", cfg.acousticURL)
	}

	var noise *pipeline.NoiseClient
	if cfg.noiseURL != "" {
		noise = pipeline.NewNoiseClient(cfg.noiseURL)
		slog.Info("noise suppression enabled", "url", cfg.noiseURL)
	}

	var traceStore *trace.Store
	if cfg.traceDatabaseURL != "" {
		store, err := trace.Open(cfg.traceDatabaseURL)
		if err != nil {
			slog.Warn("trace store unavailable, continuing without persistence", "error", err)
		} else {
			traceStore = store
			defer traceStore.Close()
			slog.Info("trace store connected")
		}
	}

	repo := session.NewRepository()
	svc := orchestrator.New(orchestrator.Config{
		Repo:       repo,
		STT:        sttRouter,
		TTS:        ttsRouter,
		Responder:  responder,
		Acoustic:   acoustic,
		Noise:      noise,
		Insights:   pipeline.NewInsightAnalyzer(responder),
		TraceStore: traceStore,
		VAD:        cfg.vadConfig,
	})

	wsHandler := ws.NewHandler(svc, cfg.maxConcurrentSessions)

	mux := http.NewServeMux()
	registerRoutes(mux, deps{
		svc:        svc,
		repo:       repo,
		wsHandler:  wsHandler,
		traceStore: traceStore,
	})

	addr := ":" + cfg.port
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)

		svc.EndAll(session.StatusTerminated)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	slog.Info("gateway starting", "addr", addr, "max_concurrent", cfg.maxConcurrentSessions)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	slog.Info("gateway stopped")
}
