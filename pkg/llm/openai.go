package llm

import (
	"context"
	"errors"
	log "log/slog"
	"net/http"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const DefaultOpenAIModel = string(openai.ChatModelGPT5Nano)

type OpenAIConfig struct {
	APIKey       string
	BaseURL      string // "" = api.openai.com; any compatible server works
	Model        string
	SystemPrompt string
	MaxTokens    int
	HTTPClient   *http.Client
}

// OpenAI streams chat completions from an OpenAI compatible API.
type OpenAI struct {
	client openai.Client
	cfg    OpenAIConfig
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}

	return &OpenAI{
		client: openai.NewClient(opts...),
		cfg:    cfg,
	}
}

func (o *OpenAI) Generate(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	var msgs []openai.ChatCompletionMessageParamUnion
	if o.cfg.SystemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(o.cfg.SystemPrompt))
	}
	msgs = append(msgs, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    openai.ChatModel(o.cfg.Model),
	}
	if o.cfg.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(o.cfg.MaxTokens))
	}

	stream := o.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var reply strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		reply.WriteString(delta)
		if onChunk != nil {
			onChunk(delta)
		}
	}

	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			return reply.String(), ctx.Err()
		}
		terr := &TransportError{Engine: "openai", Err: err}
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			terr.Status = apiErr.StatusCode
		}
		return reply.String(), terr
	}

	log.Debug("OpenAI stream done", "model", o.cfg.Model, "reply_bytes", reply.Len())

	return reply.String(), nil
}
