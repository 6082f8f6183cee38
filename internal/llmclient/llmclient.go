// Package llmclient is the LLMClient collaborator: a provider-agnostic
// capability for chat completion and text embedding, grounded on the
// teacher's internal/llm/provider.go (Provider/Message shape) and
// internal/llm/providers/factory.go (config-driven provider selection),
// narrowed to the single-turn, non-streaming, tool-free surface this
// system's synthesis and embedding paths need.
package llmclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/docbrain/docbrain/internal/config"
	"github.com/docbrain/docbrain/internal/errs"
)

// Message is one chat turn. Role is "system", "user", or "assistant".
type Message struct {
	Role    string
	Content string
}

// CompletionOptions configures a single Complete call.
type CompletionOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Completion is the model's response to a Complete call.
type Completion struct {
	Content string
	Model   string
}

// Provider is the capability every adapter implements: chat completion and
// text embedding behind one interface, so callers (RagRetriever synthesis,
// EmbeddingClient) don't need to know which backend is configured.
type Provider interface {
	Complete(ctx context.Context, messages []Message, opts CompletionOptions) (Completion, error)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// New builds the configured Provider, matching the teacher's
// providers.Build factory switch.
func New(cfg config.LLMConfig, httpClient *http.Client) (Provider, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	switch cfg.Provider {
	case "", "openai":
		return newOpenAIProvider(cfg.OpenAI, httpClient), nil
	case "anthropic":
		return newAnthropicProvider(cfg.Anthropic, httpClient), nil
	case "google":
		return newGoogleProvider(cfg.Google, httpClient)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q: %w", cfg.Provider, errs.ErrLLMFailed)
	}
}

// foldSystemMessages merges every leading/interleaved system message into a
// single system prompt string and returns the remaining non-system turns,
// for providers (Anthropic, Gemini) whose wire format has no system role on
// the messages list itself.
func foldSystemMessages(messages []Message) (system string, rest []Message) {
	var sys []string
	for _, m := range messages {
		if m.Role == "system" {
			sys = append(sys, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	if len(sys) == 0 {
		return "", rest
	}
	system = sys[0]
	for _, s := range sys[1:] {
		system += "\n\n" + s
	}
	return system, rest
}
