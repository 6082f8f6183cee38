package llmclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"
	"github.com/openai/openai-go/v2/shared"

	"github.com/docbrain/docbrain/internal/config"
	"github.com/docbrain/docbrain/internal/errs"
)

// openaiProvider adapts openai-go/v2, grounded on the teacher's
// internal/llm/openai_client.go CallLLM (client construction via
// option.WithAPIKey/WithBaseURL, role-to-message-constructor dispatch,
// ChatCompletionNewParams).
type openaiProvider struct {
	sdk   openai.Client
	model string
}

func newOpenAIProvider(cfg config.OpenAIConfig, httpClient *http.Client) *openaiProvider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithHTTPClient(httpClient)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &openaiProvider{sdk: openai.NewClient(opts...), model: cfg.Model}
}

func (p *openaiProvider) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (Completion, error) {
	model := opts.Model
	if model == "" {
		model = p.model
	}

	var msgs []openai.ChatCompletionMessageParamUnion
	for _, m := range messages {
		switch strings.ToLower(m.Role) {
		case "system":
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case "assistant":
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: msgs,
	}
	if opts.Temperature != 0 {
		params.Temperature = param.NewOpt(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = param.NewOpt(int64(opts.MaxTokens))
	}

	resp, err := p.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return Completion{}, fmt.Errorf("openai chat completion: %w", errs.ErrLLMFailed)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, fmt.Errorf("openai returned no choices: %w", errs.ErrLLMFailed)
	}
	return Completion{Content: resp.Choices[0].Message.Content, Model: model}, nil
}

func (p *openaiProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := p.sdk.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(p.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", errs.ErrEmbeddingFailed)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings count mismatch: got %d, want %d: %w", len(resp.Data), len(texts), errs.ErrEmbeddingFailed)
	}
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, nil
}
