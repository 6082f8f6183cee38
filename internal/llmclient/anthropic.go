package llmclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/docbrain/docbrain/internal/config"
	"github.com/docbrain/docbrain/internal/embedclient"
	"github.com/docbrain/docbrain/internal/errs"
)

const anthropicDefaultMaxTokens = 1024

// anthropicProvider adapts anthropic-sdk-go, grounded on
// internal/llm/anthropic's Client (client construction via
// option.WithAPIKey/WithBaseURL, MessageNewParams, sdk.Messages.New).
// Anthropic has no embeddings endpoint, so Embed falls back to the
// deterministic embedder, matching how the teacher's own anthropic client
// never implements an embeddings path at all.
type anthropicProvider struct {
	sdk       anthropic.Client
	model     string
	maxTokens int64
	fallback  embedclient.Embedder
}

func newAnthropicProvider(cfg config.AnthropicConfig, httpClient *http.Client) *anthropicProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &anthropicProvider{
		sdk:       anthropic.NewClient(opts...),
		model:     model,
		maxTokens: anthropicDefaultMaxTokens,
		fallback:  embedclient.NewDeterministic(0, true, 0),
	}
}

func (p *anthropicProvider) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (Completion, error) {
	model := opts.Model
	if model == "" {
		model = p.model
	}
	system, rest := foldSystemMessages(messages)

	var converted []anthropic.MessageParam
	for _, m := range rest {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			converted = append(converted, anthropic.NewAssistantMessage(block))
		} else {
			converted = append(converted, anthropic.NewUserMessage(block))
		}
	}

	maxTokens := p.maxTokens
	if opts.MaxTokens > 0 {
		maxTokens = int64(opts.MaxTokens)
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  converted,
		MaxTokens: maxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := p.sdk.Messages.New(ctx, params)
	if err != nil {
		return Completion{}, fmt.Errorf("anthropic message: %w", errs.ErrLLMFailed)
	}
	var out strings.Builder
	for _, block := range resp.Content {
		if text := block.Text; text != "" {
			out.WriteString(text)
		}
	}
	return Completion{Content: out.String(), Model: model}, nil
}

func (p *anthropicProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return p.fallback.EmbedBatch(ctx, texts)
}
