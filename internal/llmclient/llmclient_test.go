package llmclient

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/docbrain/docbrain/internal/config"
)

func TestFoldSystemMessages_MergesMultipleSystemTurns(t *testing.T) {
	system, rest := foldSystemMessages([]Message{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "hi"},
		{Role: "system", Content: "also be polite"},
		{Role: "assistant", Content: "hello"},
	})
	assert.Equal(t, "be terse\n\nalso be polite", system)
	assert.Equal(t, []Message{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}}, rest)
}

func TestFoldSystemMessages_NoSystemTurnsReturnsEmptyPrefix(t *testing.T) {
	in := []Message{{Role: "user", Content: "hi"}}
	system, rest := foldSystemMessages(in)
	assert.Equal(t, "", system)
	assert.Equal(t, in, rest)
}

func TestNew_UnsupportedProviderIsAnError(t *testing.T) {
	_, err := New(config.LLMConfig{Provider: "not-a-real-provider"}, nil)
	assert.Error(t, err)
}

func TestNew_DefaultsToOpenAI(t *testing.T) {
	p, err := New(config.LLMConfig{Provider: ""}, nil)
	assert.NoError(t, err)
	assert.IsType(t, &openaiProvider{}, p)
}

func TestNew_SelectsAnthropic(t *testing.T) {
	p, err := New(config.LLMConfig{Provider: "anthropic"}, nil)
	assert.NoError(t, err)
	assert.IsType(t, &anthropicProvider{}, p)
}
