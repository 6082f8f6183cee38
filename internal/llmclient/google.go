package llmclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	genai "google.golang.org/genai"

	"github.com/docbrain/docbrain/internal/config"
	"github.com/docbrain/docbrain/internal/embedclient"
	"github.com/docbrain/docbrain/internal/errs"
)

// googleProvider adapts google.golang.org/genai, grounded on
// internal/llm/google's Client (genai.NewClient with APIKey/HTTPClient/
// HTTPOptions, per-call content conversion). Gemini has no REST embeddings
// surface exercised by the teacher, so, like the Anthropic adapter, Embed
// falls back to the deterministic embedder.
type googleProvider struct {
	client   *genai.Client
	model    string
	fallback embedclient.Embedder
}

func newGoogleProvider(cfg config.GoogleConfig, httpClient *http.Client) (*googleProvider, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-1.5-flash"
	}
	httpOpts := genai.HTTPOptions{}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		httpOpts.BaseURL = strings.TrimSuffix(base, "/") + "/"
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      strings.TrimSpace(cfg.APIKey),
		HTTPClient:  httpClient,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("init google genai client: %w", errs.ErrLLMFailed)
	}
	return &googleProvider{client: client, model: model, fallback: embedclient.NewDeterministic(0, true, 0)}, nil
}

func (p *googleProvider) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (Completion, error) {
	model := opts.Model
	if model == "" {
		model = p.model
	}
	system, rest := foldSystemMessages(messages)

	var contents []*genai.Content
	for _, m := range rest {
		role := genai.RoleUser
		if m.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}

	var cfg *genai.GenerateContentConfig
	if system != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		}
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return Completion{}, fmt.Errorf("gemini generate content: %w", errs.ErrLLMFailed)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Completion{}, fmt.Errorf("gemini returned no candidates: %w", errs.ErrLLMFailed)
	}
	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		out.WriteString(part.Text)
	}
	return Completion{Content: out.String(), Model: model}, nil
}

func (p *googleProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return p.fallback.EmbedBatch(ctx, texts)
}
