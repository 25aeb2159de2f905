// Package config holds every setting of a pipeline run. Values come from
// defaults, an optional YAML file, the environment (optionally seeded from a
// .env file) and finally command line flags, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Audio      AudioConfig      `yaml:"audio"`
	Speech     SpeechConfig     `yaml:"speech"`
	Generation GenerationConfig `yaml:"generation"`
	Output     OutputConfig     `yaml:"output"`
	Daemon     DaemonConfig     `yaml:"daemon"`
	Logging    LoggingConfig    `yaml:"logging"`
	Proxy      string           `yaml:"proxy"` // SOCKS5 address for HTTP engines, "" = direct
}

type AudioConfig struct {
	Device     int           `yaml:"device"` // portaudio index, -1 = default input
	Duration   time.Duration `yaml:"duration"`
	SourceRate int           `yaml:"source_rate"`
	TargetRate int           `yaml:"target_rate"`
	Input      string        `yaml:"input"` // recording to use instead of the microphone
	KeepFiles  bool          `yaml:"keep_files"`
	KeepDir    string        `yaml:"keep_dir"` // where kept files go, "" = working directory
	Duck       bool          `yaml:"duck"`
	DuckFactor float64       `yaml:"duck_factor"`
}

type SpeechConfig struct {
	Engine             string   `yaml:"engine"` // "cli" or "native"
	Bin                string   `yaml:"bin"`
	Model              string   `yaml:"model"`
	Threads            int      `yaml:"threads"`
	Language           string   `yaml:"language"`
	DiagnosticPrefixes []string `yaml:"diagnostic_prefixes"` // empty = built-in list
}

type GenerationConfig struct {
	Engine string       `yaml:"engine"` // "ollama", "llama" or "openai"
	Ollama OllamaConfig `yaml:"ollama"`
	Llama  LlamaConfig  `yaml:"llama"`
	OpenAI OpenAIConfig `yaml:"openai"`
}

type OllamaConfig struct {
	URL     string        `yaml:"url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

type LlamaConfig struct {
	Bin         string  `yaml:"bin"`
	Model       string  `yaml:"model"`
	Template    string  `yaml:"template"`
	GPULayers   int     `yaml:"gpu_layers"`
	Threads     int     `yaml:"threads"`
	CtxSize     int     `yaml:"ctx_size"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	TopK        int     `yaml:"top_k"`
	TopP        float64 `yaml:"top_p"`
}

type OpenAIConfig struct {
	APIKey       string `yaml:"-"`
	BaseURL      string `yaml:"base_url"`
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`
	MaxTokens    int    `yaml:"max_tokens"`
}

type OutputConfig struct {
	Speak     bool   `yaml:"speak"`
	SpeakLang string `yaml:"speak_lang"`
	Beep      string `yaml:"beep"` // mp3 played before recording, "" = silent
}

type DaemonConfig struct {
	Socket      string `yaml:"socket"`
	MetricsAddr string `yaml:"metrics_addr"` // "" disables /metrics
	BusURL      string `yaml:"bus_url"`      // "" disables publishing
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			Device:     -1,
			Duration:   5 * time.Second,
			SourceRate: 48000,
			TargetRate: 16000,
			DuckFactor: 0.3,
		},
		Speech: SpeechConfig{
			Engine: "cli",
			Bin:    "whisper.cpp/main",
			Model:  "whisper.cpp/models/ggml-tiny.en.bin",
		},
		Generation: GenerationConfig{
			Engine: "ollama",
			Ollama: OllamaConfig{
				URL:     "http://localhost:11434/api/generate",
				Model:   "gemma3:1b",
				Timeout: 2 * time.Minute,
			},
			Llama: LlamaConfig{
				Bin:         "llama.cpp/main",
				Model:       "llama.cpp/models/tinyllama-1.1b-chat-v1.0.Q4_0.gguf",
				Template:    "[INST] %s [/INST]",
				GPULayers:   2,
				Threads:     3,
				CtxSize:     256,
				MaxTokens:   200,
				Temperature: 0.7,
				TopK:        40,
				TopP:        0.9,
			},
			OpenAI: OpenAIConfig{
				Model: "gpt-5-nano",
			},
		},
		Output: OutputConfig{
			SpeakLang: "en",
		},
		Daemon: DaemonConfig{
			Socket: "/tmp/voxline.sock",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML file on top of Default. An empty path returns the
// defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// ApplyEnv overrides fields from VOXLINE_* variables plus OPENAI_API_KEY and
// BUS_URL.
func (c *Config) ApplyEnv() error {
	var errs []string

	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}
	setStr := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	setInt("VOXLINE_DEVICE", &c.Audio.Device)
	setInt("VOXLINE_SOURCE_RATE", &c.Audio.SourceRate)
	setInt("VOXLINE_TARGET_RATE", &c.Audio.TargetRate)
	if v, ok := os.LookupEnv("VOXLINE_DURATION"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("VOXLINE_DURATION: %v", err))
		} else {
			c.Audio.Duration = d
		}
	}
	setStr("VOXLINE_WHISPER_BIN", &c.Speech.Bin)
	setStr("VOXLINE_WHISPER_MODEL", &c.Speech.Model)
	setStr("VOXLINE_ENGINE", &c.Generation.Engine)
	setStr("VOXLINE_OLLAMA_URL", &c.Generation.Ollama.URL)
	setStr("VOXLINE_OLLAMA_MODEL", &c.Generation.Ollama.Model)
	setStr("VOXLINE_LLAMA_BIN", &c.Generation.Llama.Bin)
	setStr("VOXLINE_LLAMA_MODEL", &c.Generation.Llama.Model)
	setStr("OPENAI_API_KEY", &c.Generation.OpenAI.APIKey)
	setStr("OPENAI_BASE_URL", &c.Generation.OpenAI.BaseURL)
	setStr("VOXLINE_PROXY", &c.Proxy)
	setStr("BUS_URL", &c.Daemon.BusURL)
	setStr("VOXLINE_LOG", &c.Logging.Level)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Speech.Validate(); err != nil {
		return fmt.Errorf("speech config: %w", err)
	}
	if err := c.Generation.Validate(); err != nil {
		return fmt.Errorf("generation config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

func (a *AudioConfig) Validate() error {
	if a.Input != "" {
		if _, err := os.Stat(a.Input); err != nil {
			return fmt.Errorf("input file: %w", err)
		}
	} else if a.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %v", a.Duration)
	}
	if a.SourceRate <= 0 {
		return fmt.Errorf("source_rate must be positive, got %d", a.SourceRate)
	}
	if a.TargetRate <= 0 {
		return fmt.Errorf("target_rate must be positive, got %d", a.TargetRate)
	}
	if a.Duck && (a.DuckFactor < 0 || a.DuckFactor > 1) {
		return fmt.Errorf("duck_factor must be within [0, 1], got %v", a.DuckFactor)
	}
	return nil
}

func (s *SpeechConfig) Validate() error {
	switch s.Engine {
	case "cli":
		if s.Bin == "" {
			return fmt.Errorf("bin is required for the cli engine")
		}
	case "native":
	default:
		return fmt.Errorf("unknown engine %q (want cli or native)", s.Engine)
	}
	if s.Model == "" {
		return fmt.Errorf("model is required")
	}
	return nil
}

func (g *GenerationConfig) Validate() error {
	switch g.Engine {
	case "ollama":
		if g.Ollama.URL == "" || g.Ollama.Model == "" {
			return fmt.Errorf("ollama url and model are required")
		}
	case "llama":
		if g.Llama.Bin == "" || g.Llama.Model == "" {
			return fmt.Errorf("llama bin and model are required")
		}
		if strings.Count(g.Llama.Template, "%s") != 1 {
			return fmt.Errorf("llama template must contain exactly one %%s, got %q", g.Llama.Template)
		}
		if g.Llama.Temperature < 0 || g.Llama.TopP < 0 || g.Llama.TopP > 1 {
			return fmt.Errorf("llama sampling out of range")
		}
	case "openai":
		if g.OpenAI.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY not set")
		}
	default:
		return fmt.Errorf("unknown engine %q (want ollama, llama or openai)", g.Engine)
	}
	return nil
}

func (l *LoggingConfig) Validate() error {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("invalid log level %q", l.Level)
}
