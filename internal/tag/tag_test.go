package tag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docbrain/docbrain/internal/llmclient"
	"github.com/docbrain/docbrain/internal/prompts"
)

func TestValidateReadOnly(t *testing.T) {
	cases := []struct {
		name    string
		sql     string
		wantErr bool
	}{
		{"plain select", "SELECT id FROM docs", false},
		{"lowercase select", "select id from docs", false},
		{"leading comment", "-- note\nSELECT id FROM docs", false},
		{"trailing semicolon", "SELECT id FROM docs;", false},
		{"insert", "INSERT INTO docs VALUES (1)", true},
		{"drop", "DROP TABLE docs", true},
		{"stacked statements", "SELECT 1; DROP TABLE docs", true},
		{"empty", "   ", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := ValidateReadOnly(c.sql)
			if c.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

type fakeGenerator struct {
	sql string
	err error
}

func (f fakeGenerator) GenerateSQL(ctx context.Context, query, kb string) (string, error) {
	return f.sql, f.err
}

type fakeExecutor struct {
	rows []Row
	err  error
}

func (f fakeExecutor) Execute(ctx context.Context, sql string) ([]Row, error) {
	return f.rows, f.err
}

type fakeLLM struct {
	response string
}

func (f fakeLLM) Complete(ctx context.Context, messages []llmclient.Message, opts llmclient.CompletionOptions) (llmclient.Completion, error) {
	return llmclient.Completion{Content: f.response}, nil
}

func (f fakeLLM) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}

func loadPrompts(t *testing.T) *prompts.Registry {
	t.Helper()
	reg, err := prompts.NewRegistry()
	require.NoError(t, err)
	return reg
}

func TestServiceAnswerRejectsUnsafeSQL(t *testing.T) {
	reg := loadPrompts(t)
	svc := &Service{
		Generator: fakeGenerator{sql: "DELETE FROM docs"},
		Executor:  fakeExecutor{},
		LLM:       fakeLLM{response: "ignored"},
		Prompts:   reg,
	}
	_, err := svc.Answer(context.Background(), "how many docs", "kb1")
	require.Error(t, err)
}

func TestServiceAnswerRunsSafeSQL(t *testing.T) {
	reg := loadPrompts(t)
	svc := &Service{
		Generator: fakeGenerator{sql: "SELECT count(*) FROM docs"},
		Executor:  fakeExecutor{rows: []Row{{"count": 3}}},
		LLM:       fakeLLM{response: "There are 3 documents."},
		Prompts:   reg,
	}
	ans, err := svc.Answer(context.Background(), "how many docs", "kb1")
	require.NoError(t, err)
	assert.Equal(t, "There are 3 documents.", ans.Answer)
	assert.Equal(t, "SELECT count(*) FROM docs", ans.SQL)
	assert.Len(t, ans.Results, 1)
	assert.Len(t, ans.Sources, 1)
}
