package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Audio     AudioConfig     `yaml:"audio"`
	VAD       VADConfig       `yaml:"vad"`
	Assistant AssistantConfig `yaml:"assistant"`
	LLM       LLMConfig       `yaml:"llm"`
	STT       STTConfig       `yaml:"stt"`
	TTS       TTSConfig       `yaml:"tts"`
	Status    StatusConfig    `yaml:"status"`
	Log       LogConfig       `yaml:"log"`
}

type AudioConfig struct {
	Source     string        `yaml:"source"`
	WAVPath    string        `yaml:"wav_path"`
	WAVTail    time.Duration `yaml:"wav_tail"`
	SampleRate int           `yaml:"sample_rate"`
	Channels   int           `yaml:"channels"`
	FrameSize  int           `yaml:"frame_size"`
	RecordDir  string        `yaml:"record_dir"`
}

type VADConfig struct {
	SpeakingThreshold float64       `yaml:"speaking_threshold"`
	SilenceTimeout    time.Duration `yaml:"silence_timeout"`
	InitialTimeout    time.Duration `yaml:"initial_timeout"`
}

type AssistantConfig struct {
	HistorySize int    `yaml:"history_size"`
	Apology     string `yaml:"apology"`
	Greeting    string `yaml:"greeting"`
}

type LLMConfig struct {
	Provider     string `yaml:"provider"`
	BaseURL      string `yaml:"base_url"`
	APIKey       string `yaml:"api_key"`
	Model        string `yaml:"model"`
	MaxTokens    int    `yaml:"max_tokens"`
	SystemPrompt string `yaml:"system_prompt"`
	SendAudio    bool   `yaml:"send_audio"`
}

type STTConfig struct {
	Provider  string `yaml:"provider"`
	ModelPath string `yaml:"model_path"`
	Language  string `yaml:"language"`
}

type TTSConfig struct {
	Provider   string `yaml:"provider"`
	Binary     string `yaml:"binary"`
	ModelPath  string `yaml:"model_path"`
	ConfigPath string `yaml:"config_path"`
}

type StatusConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const DefaultSystemPrompt = "You are Jarvis, a friendly and concise voice assistant. " +
	"Keep answers to one or two sentences. If you don't know the answer, say so. " +
	"Respond in plain English without emojis, markdown, code blocks or special formatting."

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Audio.Source == "" {
		c.Audio.Source = "microphone"
	}
	if c.Audio.WAVTail == 0 {
		c.Audio.WAVTail = 2 * time.Second
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.Channels == 0 {
		c.Audio.Channels = 1
	}
	if c.Audio.FrameSize == 0 {
		c.Audio.FrameSize = c.Audio.SampleRate / 10
	}
	if c.VAD.SpeakingThreshold == 0 {
		c.VAD.SpeakingThreshold = 0.005
	}
	if c.VAD.SilenceTimeout == 0 {
		c.VAD.SilenceTimeout = 1500 * time.Millisecond
	}
	if c.VAD.InitialTimeout == 0 {
		c.VAD.InitialTimeout = 5 * time.Second
	}
	if c.Assistant.HistorySize == 0 {
		c.Assistant.HistorySize = 10
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 100
	}
	if c.LLM.SystemPrompt == "" {
		c.LLM.SystemPrompt = DefaultSystemPrompt
	}
	if c.STT.Provider == "" {
		c.STT.Provider = "none"
	}
	if c.STT.Language == "" {
		c.STT.Language = "en"
	}
	if c.TTS.Provider == "" {
		c.TTS.Provider = "piper"
	}
	if c.TTS.Binary == "" {
		c.TTS.Binary = "piper"
	}
	if c.TTS.ModelPath == "" {
		c.TTS.ModelPath = "piper_voices/en_GB-northern_english_male-medium.onnx"
	}
	if c.TTS.ConfigPath == "" {
		c.TTS.ConfigPath = c.TTS.ModelPath + ".json"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate reports every problem that must stop the process before it starts
// listening, including missing model files.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.Audio.Source {
	case "microphone", "miniaudio":
	case "wav":
		if err := fileExists(c.Audio.WAVPath); err != nil {
			add("audio.wav_path: %w", err)
		}
	default:
		add("audio.source: unknown source %q", c.Audio.Source)
	}
	if c.Audio.SampleRate <= 0 {
		add("audio.sample_rate must be > 0")
	}
	if c.Audio.Channels != 1 {
		add("audio.channels: only mono capture is supported, got %d", c.Audio.Channels)
	}
	if c.Audio.FrameSize <= 0 {
		add("audio.frame_size must be > 0")
	}
	if c.Audio.WAVTail < 0 {
		add("audio.wav_tail must not be negative")
	}

	if c.VAD.SpeakingThreshold <= 0 {
		add("vad.speaking_threshold must be > 0")
	}
	if c.VAD.SilenceTimeout <= 0 {
		add("vad.silence_timeout must be > 0")
	}
	if c.VAD.InitialTimeout <= 0 {
		add("vad.initial_timeout must be > 0")
	}

	if c.Assistant.HistorySize <= 0 {
		add("assistant.history_size must be > 0")
	}

	switch c.LLM.Provider {
	case "openai":
		if c.LLM.Model == "" {
			add("llm.model is required")
		}
	case "anthropic", "gemini":
		if c.LLM.APIKey == "" {
			add("llm.api_key is required for %s", c.LLM.Provider)
		}
	default:
		add("llm.provider: unknown provider %q", c.LLM.Provider)
	}
	if c.LLM.MaxTokens <= 0 {
		add("llm.max_tokens must be > 0")
	}

	switch c.STT.Provider {
	case "none":
	case "whisper":
		if err := fileExists(c.STT.ModelPath); err != nil {
			add("stt.model_path: %w", err)
		}
	default:
		add("stt.provider: unknown provider %q", c.STT.Provider)
	}

	switch c.TTS.Provider {
	case "none":
	case "piper":
		if err := fileExists(c.TTS.ModelPath); err != nil {
			add("tts.model_path: %w", err)
		}
		if err := fileExists(c.TTS.ConfigPath); err != nil {
			add("tts.config_path: %w", err)
		}
	default:
		add("tts.provider: unknown provider %q", c.TTS.Provider)
	}

	return errors.Join(errs...)
}

func fileExists(path string) error {
	if path == "" {
		return errors.New("path is empty")
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file not found: %s", path)
		}
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}
