// Package app wires configuration into the concrete engines shared by the
// voxline command line tool and daemon.
package app

import (
	"fmt"
	"io"
	log "log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"voxline/internal/audio"
	"voxline/internal/config"
	"voxline/internal/pipeline"
	"voxline/internal/proxy"
	"voxline/pkg/llm"
	"voxline/pkg/stt"
	"voxline/pkg/stt/native"
	"voxline/pkg/transcript"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

// SetupLogging installs a tint handler on stderr as the default logger.
func SetupLogging(level string) {
	log.SetDefault(log.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: logLevelMap[strings.ToLower(level)],
	})))
}

// LoadConfig reads the YAML file at path (may be empty), then the .env file
// at envFile (may be missing) and the process environment.
func LoadConfig(path, envFile string) (*config.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Filter builds the transcript filter for the configured engine.
func Filter(cfg config.SpeechConfig) transcript.Filter {
	if len(cfg.DiagnosticPrefixes) == 0 {
		return transcript.Filter{}
	}
	return transcript.Filter{IsDiagnostic: transcript.PrefixPredicate(cfg.DiagnosticPrefixes...)}
}

// Speech builds the configured speech engine. The returned closer releases
// model memory and is never nil.
func Speech(cfg config.SpeechConfig) (pipeline.SpeechEngine, io.Closer, error) {
	switch cfg.Engine {
	case "native":
		t, err := native.NewTranscriber(cfg.Model, native.Options{
			Language: cfg.Language,
			Threads:  cfg.Threads,
		})
		if err != nil {
			return nil, nil, err
		}
		return t, t, nil
	case "cli":
		w := stt.NewWhisperCLI(cfg.Bin, cfg.Model)
		w.Threads = cfg.Threads
		w.Language = cfg.Language
		return w, nopCloser{}, nil
	}
	return nil, nil, fmt.Errorf("unknown speech engine %q", cfg.Engine)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Generator builds the configured generation engine.
func Generator(cfg *config.Config) (pipeline.GenerationEngine, error) {
	g := cfg.Generation

	switch g.Engine {
	case "ollama":
		client, err := proxy.NewClient(cfg.Proxy, g.Ollama.Timeout)
		if err != nil {
			return nil, fmt.Errorf("proxy: %w", err)
		}
		return llm.NewOllama(g.Ollama.URL, g.Ollama.Model, client), nil

	case "llama":
		l := llm.NewLlama(g.Llama.Bin, g.Llama.Model, llm.Sampling{
			Temperature: g.Llama.Temperature,
			TopK:        g.Llama.TopK,
			TopP:        g.Llama.TopP,
			MaxTokens:   g.Llama.MaxTokens,
			CtxSize:     g.Llama.CtxSize,
			Threads:     g.Llama.Threads,
			GPULayers:   g.Llama.GPULayers,
		})
		if g.Llama.Template != "" {
			l.Template = g.Llama.Template
		}
		return l, nil

	case "openai":
		client, err := proxy.NewClient(cfg.Proxy, 0)
		if err != nil {
			return nil, fmt.Errorf("proxy: %w", err)
		}
		return llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:       g.OpenAI.APIKey,
			BaseURL:      g.OpenAI.BaseURL,
			Model:        g.OpenAI.Model,
			SystemPrompt: g.OpenAI.SystemPrompt,
			MaxTokens:    g.OpenAI.MaxTokens,
			HTTPClient:   client,
		}), nil
	}
	return nil, fmt.Errorf("unknown generation engine %q", g.Engine)
}

// Capturer returns the file source when an input recording is configured
// and rec otherwise, wrapped in a ducker when enabled.
func Capturer(cfg config.AudioConfig, rec *audio.Recorder) pipeline.Capturer {
	var c audio.Capturer = rec
	if cfg.Input != "" {
		return audio.FileSource{Path: cfg.Input}
	}
	if cfg.Duck {
		c = audio.DuckingCapturer{
			Capturer: c,
			Ducker:   audio.NewDucker([]string{"voxline"}, cfg.DuckFactor, 5, 200*time.Millisecond),
		}
	}
	return c
}
