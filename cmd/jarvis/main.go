package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"jarvis/config"
	"jarvis/internal/application"
	"jarvis/internal/infra/anthropic"
	"jarvis/internal/infra/audio"
	"jarvis/internal/infra/gemini"
	"jarvis/internal/infra/openai"
	"jarvis/internal/infra/piper"
	"jarvis/internal/infra/status"
	"jarvis/internal/infra/whisper"
	"jarvis/internal/observe"
	"jarvis/internal/vad"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log)

	if err := run(cfg, logger); err != nil {
		logger.Error("jarvis stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	detector, err := vad.New(vad.Config{
		SampleRate:        cfg.Audio.SampleRate,
		SpeakingThreshold: cfg.VAD.SpeakingThreshold,
		SilenceTimeout:    cfg.VAD.SilenceTimeout,
		InitialTimeout:    cfg.VAD.InitialTimeout,
	})
	if err != nil {
		return fmt.Errorf("creating detector: %w", err)
	}

	transcriber, closeSTT, err := createTranscriber(cfg.STT, logger)
	if err != nil {
		return err
	}
	defer closeSTT()

	responder, err := createResponder(cfg.LLM)
	if err != nil {
		return err
	}

	synthesizer, closeTTS, err := createSynthesizer(cfg.TTS, logger)
	if err != nil {
		return err
	}
	defer closeTTS()

	mp, shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			logger.Warn("shutting down metrics", "error", err)
		}
	}()
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		return fmt.Errorf("creating metrics: %w", err)
	}

	opts := []application.Option{
		application.WithObserver(metrics),
		application.WithApology(cfg.Assistant.Apology),
		application.WithGreeting(cfg.Assistant.Greeting),
	}
	if cfg.Audio.RecordDir != "" {
		recorder, err := audio.NewWAVRecorder(cfg.Audio.RecordDir, logger)
		if err != nil {
			return err
		}
		opts = append(opts, application.WithRecorder(recorder))
	}

	assistant := application.NewAssistant(
		createAudioSource(cfg.Audio, logger),
		detector,
		transcriber,
		responder,
		synthesizer,
		application.NewHistory(cfg.Assistant.HistorySize),
		logger,
		opts...,
	)

	logger.Info("starting jarvis",
		"version", version,
		"audio_source", cfg.Audio.Source,
		"llm", cfg.LLM.Provider,
		"stt", cfg.STT.Provider,
		"tts", cfg.TTS.Provider,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// a finished file source ends the process
		defer cancel()
		return assistant.Run(gctx)
	})
	if cfg.Status.Addr != "" {
		server := status.NewServer(cfg.Status.Addr, assistant, logger)
		g.Go(func() error {
			return server.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func createAudioSource(cfg config.AudioConfig, logger *slog.Logger) application.AudioSource {
	switch cfg.Source {
	case "wav":
		return audio.NewWAVSource(cfg.WAVPath, cfg.SampleRate, cfg.FrameSize, cfg.WAVTail, logger)
	case "miniaudio":
		return audio.NewCaptureSource(cfg.SampleRate, cfg.FrameSize, logger)
	default:
		return audio.NewMicrophoneSource(cfg.SampleRate, cfg.FrameSize, logger)
	}
}

func createTranscriber(cfg config.STTConfig, logger *slog.Logger) (application.Transcriber, func(), error) {
	if cfg.Provider != "whisper" {
		return application.MarkerTranscriber{}, func() {}, nil
	}

	t, err := whisper.New(cfg.ModelPath, cfg.Language, logger)
	if err != nil {
		return nil, nil, err
	}
	return t, func() {
		if err := t.Close(); err != nil {
			logger.Warn("closing whisper model", "error", err)
		}
	}, nil
}

func createResponder(cfg config.LLMConfig) (application.Responder, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropic.NewClaudeClient(anthropic.Config{
			APIKey:       cfg.APIKey,
			Model:        cfg.Model,
			BaseURL:      cfg.BaseURL,
			MaxTokens:    cfg.MaxTokens,
			SystemPrompt: cfg.SystemPrompt,
		}), nil
	case "gemini":
		return gemini.NewClient(gemini.Config{
			APIKey:       cfg.APIKey,
			Model:        cfg.Model,
			BaseURL:      cfg.BaseURL,
			MaxTokens:    cfg.MaxTokens,
			SystemPrompt: cfg.SystemPrompt,
			SendAudio:    cfg.SendAudio,
		}), nil
	default:
		client, err := openai.NewChatClient(openai.Config{
			BaseURL:      cfg.BaseURL,
			APIKey:       cfg.APIKey,
			Model:        cfg.Model,
			MaxTokens:    cfg.MaxTokens,
			SystemPrompt: cfg.SystemPrompt,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

func createSynthesizer(cfg config.TTSConfig, logger *slog.Logger) (application.Synthesizer, func(), error) {
	if cfg.Provider != "piper" {
		return &application.NoopSynthesizer{Logger: logger}, func() {}, nil
	}

	speaker := audio.NewSpeaker(logger)
	if err := speaker.Open(); err != nil {
		return nil, nil, err
	}
	closeSpeaker := func() {
		if err := speaker.Close(); err != nil {
			logger.Warn("closing speaker", "error", err)
		}
	}

	synth, err := piper.New(piper.Config{
		Binary:     cfg.Binary,
		ModelPath:  cfg.ModelPath,
		ConfigPath: cfg.ConfigPath,
	}, speaker, logger)
	if err != nil {
		closeSpeaker()
		return nil, nil, err
	}
	return synth, closeSpeaker, nil
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
