package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{"zero duration", func(c *Config) { c.Audio.Duration = 0 }, "duration must be positive"},
		{"bad source rate", func(c *Config) { c.Audio.SourceRate = -1 }, "source_rate"},
		{"bad target rate", func(c *Config) { c.Audio.TargetRate = 0 }, "target_rate"},
		{"missing input", func(c *Config) { c.Audio.Input = "/does/not/exist.wav" }, "input file"},
		{"duck factor", func(c *Config) { c.Audio.Duck = true; c.Audio.DuckFactor = 2 }, "duck_factor"},
		{"speech engine", func(c *Config) { c.Speech.Engine = "vosk" }, "unknown engine"},
		{"speech model", func(c *Config) { c.Speech.Model = "" }, "model is required"},
		{"generation engine", func(c *Config) { c.Generation.Engine = "gpt" }, "unknown engine"},
		{"llama template", func(c *Config) {
			c.Generation.Engine = "llama"
			c.Generation.Llama.Template = "no placeholder"
		}, "template"},
		{"openai key", func(c *Config) { c.Generation.Engine = "openai" }, "OPENAI_API_KEY"},
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }, "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)

			err := c.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("error %q does not mention %q", err, tt.errorMsg)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxline.yaml")
	data := `
audio:
  device: 11
  duration: 3s
speech:
  model: models/ggml-base.en.bin
  diagnostic_prefixes: ["whisper_", "INFO"]
generation:
  engine: llama
  llama:
    gpu_layers: 8
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if c.Audio.Device != 11 || c.Audio.Duration != 3*time.Second {
		t.Errorf("audio = %+v", c.Audio)
	}
	if c.Audio.SourceRate != 48000 {
		t.Errorf("default source rate lost: %d", c.Audio.SourceRate)
	}
	if c.Speech.Model != "models/ggml-base.en.bin" || len(c.Speech.DiagnosticPrefixes) != 2 {
		t.Errorf("speech = %+v", c.Speech)
	}
	if c.Generation.Engine != "llama" || c.Generation.Llama.GPULayers != 8 || c.Generation.Llama.TopK != 40 {
		t.Errorf("llama = %+v", c.Generation.Llama)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("audio: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for bad yaml")
	}
}

func TestLoadEmptyPath(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if c.Generation.Ollama.Model != "gemma3:1b" {
		t.Errorf("defaults not applied: %+v", c.Generation.Ollama)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("VOXLINE_DEVICE", "4")
	t.Setenv("VOXLINE_DURATION", "7s")
	t.Setenv("VOXLINE_OLLAMA_MODEL", "llama3.2")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("BUS_URL", "ws://hub/ws")

	c := Default()
	if err := c.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}

	if c.Audio.Device != 4 || c.Audio.Duration != 7*time.Second {
		t.Errorf("audio = %+v", c.Audio)
	}
	if c.Generation.Ollama.Model != "llama3.2" || c.Generation.OpenAI.APIKey != "sk-test" {
		t.Errorf("generation = %+v", c.Generation)
	}
	if c.Daemon.BusURL != "ws://hub/ws" {
		t.Errorf("bus url = %q", c.Daemon.BusURL)
	}
}

func TestApplyEnvInvalid(t *testing.T) {
	t.Setenv("VOXLINE_DEVICE", "eleven")
	t.Setenv("VOXLINE_DURATION", "forever")

	err := Default().ApplyEnv()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "VOXLINE_DEVICE") || !strings.Contains(err.Error(), "VOXLINE_DURATION") {
		t.Errorf("error %q should name both variables", err)
	}
}
