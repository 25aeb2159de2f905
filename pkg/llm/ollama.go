package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"net/http"
	"strings"
)

const DefaultOllamaURL = "http://localhost:11434/api/generate"

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaChunk struct {
	Response *string `json:"response"`
	Done     bool    `json:"done"`
	Error    string  `json:"error"`
}

// Ollama streams replies from the /api/generate endpoint.
type Ollama struct {
	URL    string
	Model  string
	Client *http.Client
}

func NewOllama(url, model string, client *http.Client) *Ollama {
	if url == "" {
		url = DefaultOllamaURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Ollama{URL: url, Model: model, Client: client}
}

// Generate posts prompt and reads the newline-delimited JSON stream until a
// chunk reports done or the body ends. Every response fragment is passed to
// onChunk (when non-nil) in arrival order.
func (o *Ollama) Generate(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	body, err := json.Marshal(ollamaRequest{Model: o.Model, Prompt: prompt, Stream: true})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.URL, bytes.NewReader(body))
	if err != nil {
		return "", &TransportError{Engine: "ollama", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &TransportError{Engine: "ollama", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &TransportError{
			Engine: "ollama",
			Status: resp.StatusCode,
			Err:    errors.New(strings.TrimSpace(string(msg))),
		}
	}

	var reply strings.Builder

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}

		var c ollamaChunk
		if err := json.Unmarshal(line, &c); err != nil {
			return reply.String(), &ProtocolError{Engine: "ollama", Line: string(line), Err: err}
		}
		if c.Error != "" {
			return reply.String(), &TransportError{Engine: "ollama", Err: errors.New(c.Error)}
		}

		if c.Response != nil {
			reply.WriteString(*c.Response)
			if onChunk != nil {
				onChunk(*c.Response)
			}
		}

		if c.Done {
			log.Debug("Ollama stream done", "model", o.Model, "reply_bytes", reply.Len())
			return reply.String(), nil
		}
	}

	if err := sc.Err(); err != nil {
		if ctx.Err() != nil {
			return reply.String(), ctx.Err()
		}
		return reply.String(), &TransportError{Engine: "ollama", Err: fmt.Errorf("read stream: %w", err)}
	}

	log.Debug("Ollama stream closed without done", "model", o.Model)

	return reply.String(), nil
}
