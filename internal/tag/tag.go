// Package tag is the table-augmented-generation collaborator's interface
// boundary: spec's Non-goals specify TAG dispatch only at its interface
// (query, knowledge_base_id) -> {answer, sql, results, sources}, deferring
// the structured-data execution service itself to an external collaborator.
// This package supplies the one piece that is genuinely core: the SQL-safety
// gate Design Note (d) requires so the core never hands an LLM-generated
// non-SELECT statement to that external executor.
package tag

import (
	"context"
	"fmt"
	"strings"

	"github.com/docbrain/docbrain/internal/domain"
	"github.com/docbrain/docbrain/internal/errs"
	"github.com/docbrain/docbrain/internal/llmclient"
	"github.com/docbrain/docbrain/internal/prompts"
	"github.com/docbrain/docbrain/internal/router"
)

// ValidateReadOnly refuses any SQL string whose leading statement keyword is
// not SELECT, per Design Note (d): "the core merely requires that non-SELECT
// strings be refused." Leading comments and whitespace are skipped; a
// trailing semicolon is tolerated but a second statement is not.
func ValidateReadOnly(sql string) error {
	stripped := stripLeadingComments(sql)
	if stripped == "" {
		return fmt.Errorf("empty sql statement: %w", errs.ErrSQLNotReadOnly)
	}
	firstWord := strings.ToUpper(strings.Fields(stripped)[0])
	if firstWord != "SELECT" {
		return fmt.Errorf("statement %q is not a read-only select: %w", firstWord, errs.ErrSQLNotReadOnly)
	}
	body := strings.TrimRight(strings.TrimSpace(stripped), ";")
	if strings.Contains(body, ";") {
		return fmt.Errorf("multiple statements are not permitted: %w", errs.ErrSQLNotReadOnly)
	}
	return nil
}

func stripLeadingComments(sql string) string {
	s := strings.TrimSpace(sql)
	for {
		switch {
		case strings.HasPrefix(s, "--"):
			if i := strings.IndexByte(s, '\n'); i >= 0 {
				s = strings.TrimSpace(s[i+1:])
				continue
			}
			return ""
		case strings.HasPrefix(s, "/*"):
			if i := strings.Index(s, "*/"); i >= 0 {
				s = strings.TrimSpace(s[i+2:])
				continue
			}
			return ""
		}
		return s
	}
}

// Row is one result row from the structured-data execution service.
type Row = map[string]any

// Executor is the external structured-data execution service: it accepts a
// read-only SQL string and returns rows. The core never constructs this;
// it is supplied by the deployment.
type Executor interface {
	Execute(ctx context.Context, sql string) ([]Row, error)
}

// SQLGenerator produces a candidate SQL statement for a query against a
// knowledge base's known tables. Concrete generation (schema introspection,
// few-shot prompting) is deployment-specific; the core only requires that
// whatever it returns passes through ValidateReadOnly before execution.
type SQLGenerator interface {
	GenerateSQL(ctx context.Context, query, knowledgeBaseID string) (string, error)
}

// LLMSQLGenerator is a SQLGenerator backed by llmclient.Provider and a
// prompt template, a reasonable default for deployments that don't supply
// their own schema-aware generator.
type LLMSQLGenerator struct {
	LLM     llmclient.Provider
	Prompts *prompts.Registry
}

func (g LLMSQLGenerator) GenerateSQL(ctx context.Context, query, knowledgeBaseID string) (string, error) {
	rendered := g.Prompts.Get("tag", "generate_sql", map[string]any{
		"user_query":        query,
		"knowledge_base_id": knowledgeBaseID,
	})
	completion, err := g.LLM.Complete(ctx, []llmclient.Message{{Role: "user", Content: rendered}}, llmclient.CompletionOptions{})
	if err != nil {
		return "", fmt.Errorf("generate tag sql: %w", err)
	}
	return strings.TrimSpace(strings.Trim(completion.Content, "`")), nil
}

// Service implements router.TagExecutor: it generates SQL for a query,
// gates it through ValidateReadOnly, executes it, and renders a natural-
// language answer over the returned rows.
type Service struct {
	Generator SQLGenerator
	Executor  Executor
	LLM       llmclient.Provider
	Prompts   *prompts.Registry
}

var _ router.TagExecutor = (*Service)(nil)

func (s *Service) Answer(ctx context.Context, query, knowledgeBaseID string) (router.TagAnswer, error) {
	sql, err := s.Generator.GenerateSQL(ctx, query, knowledgeBaseID)
	if err != nil {
		return router.TagAnswer{}, err
	}
	if err := ValidateReadOnly(sql); err != nil {
		return router.TagAnswer{}, err
	}
	rows, err := s.Executor.Execute(ctx, sql)
	if err != nil {
		return router.TagAnswer{}, fmt.Errorf("execute tag sql: %w", err)
	}

	rendered := s.Prompts.Get("tag", "summarize_results", map[string]any{
		"user_query": query,
		"sql":        sql,
		"row_count":  fmt.Sprintf("%d", len(rows)),
	})
	completion, err := s.LLM.Complete(ctx, []llmclient.Message{{Role: "user", Content: rendered}}, llmclient.CompletionOptions{})
	answer := completion.Content
	if err != nil {
		answer = fmt.Sprintf("Ran the query but could not summarize the results: %s", err.Error())
	}

	source := domain.Source{Service: "tag", Score: 1, Content: sql}
	return router.TagAnswer{Answer: answer, SQL: sql, Results: rows, Sources: []domain.Source{source}}, nil
}
