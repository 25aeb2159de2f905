package llm

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"voxline/pkg/proc"
)

// DefaultTemplate wraps a prompt in Llama/Mistral instruction markers.
const DefaultTemplate = "[INST] %s [/INST]"

// Sampling holds the llama.cpp generation parameters.
type Sampling struct {
	Temperature float64
	TopK        int
	TopP        float64
	MaxTokens   int
	CtxSize     int
	Threads     int
	GPULayers   int
}

func DefaultSampling() Sampling {
	return Sampling{
		Temperature: 0.7,
		TopK:        40,
		TopP:        0.9,
		MaxTokens:   200,
		CtxSize:     256,
		Threads:     3,
		GPULayers:   2,
	}
}

// Llama runs a llama.cpp main binary once per prompt.
type Llama struct {
	Bin      string
	Model    string
	Template string // fmt pattern with a single %s
	Sampling Sampling
}

func NewLlama(bin, model string, s Sampling) *Llama {
	return &Llama{Bin: bin, Model: model, Template: DefaultTemplate, Sampling: s}
}

func (l *Llama) FormatPrompt(prompt string) string {
	tmpl := l.Template
	if tmpl == "" || !strings.Contains(tmpl, "%s") {
		tmpl = DefaultTemplate
	}
	return fmt.Sprintf(tmpl, prompt)
}

func (l *Llama) Args(prompt string) []string {
	s := l.Sampling
	return []string{
		"-m", l.Model,
		"--gpu-layers", strconv.Itoa(s.GPULayers),
		"--threads", strconv.Itoa(s.Threads),
		"--ctx-size", strconv.Itoa(s.CtxSize),
		"-n", strconv.Itoa(s.MaxTokens),
		"--temp", strconv.FormatFloat(s.Temperature, 'g', -1, 64),
		"--top-k", strconv.Itoa(s.TopK),
		"--top-p", strconv.FormatFloat(s.TopP, 'g', -1, 64),
		"-p", l.FormatPrompt(prompt),
	}
}

// Generate blocks until the binary exits and returns its trimmed stdout.
// onChunk, if set, receives the whole reply once.
func (l *Llama) Generate(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	out, err := proc.Output(ctx, l.Bin, l.Args(prompt)...)
	if err != nil {
		return "", fmt.Errorf("llama: %w", err)
	}

	reply := strings.TrimSpace(out)
	if onChunk != nil && reply != "" {
		onChunk(reply)
	}
	return reply, nil
}
