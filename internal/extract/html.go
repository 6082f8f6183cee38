package extract

import (
	"context"
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	readability "github.com/go-shiori/go-readability"

	"github.com/docbrain/docbrain/internal/domain"
)

// htmlExtractor is the structured-conversion-first HTML variant, grounded
// on the teacher's internal/tools/web/fetch.go: primary path runs the whole
// document through html-to-markdown; if that produces no usable markdown
// (or errors), it falls back to readability's main-article extraction
// before re-converting. This is the spec's ordering (structured-first,
// readability fallback), the reverse of fetch.go's PreferReadable default,
// since DocBrain's HTML input is typically an already-scoped document body
// rather than an arbitrary live web page.
type htmlExtractor struct{}

func newHTMLExtractor() *htmlExtractor { return &htmlExtractor{} }

func (htmlExtractor) Extract(_ context.Context, raw []byte) (Extracted, error) {
	html := string(raw)

	md, err := htmltomarkdown.ConvertString(html)
	if err != nil || strings.TrimSpace(md) == "" {
		article, rerr := readability.FromReader(strings.NewReader(html), nil)
		if rerr != nil {
			if err != nil {
				return Extracted{}, fmt.Errorf("convert html and readability fallback failed: %w", err)
			}
			return Extracted{}, fmt.Errorf("empty markdown and readability fallback failed: %w", rerr)
		}
		fallbackMD, cerr := htmltomarkdown.ConvertString(article.Content)
		if cerr != nil {
			fallbackMD = article.TextContent
		}
		return Extracted{
			Text:     article.TextContent,
			Markdown: strings.TrimSpace(fallbackMD),
			Metadata: Metadata{
				DocumentType: domain.DocumentTypeUnstructured,
				Title:        strings.TrimSpace(article.Title),
				Headers:      extractHeaders(fallbackMD),
			},
		}, nil
	}

	return Extracted{
		Text:     stripMarkdownSyntax(md),
		Markdown: strings.TrimSpace(md),
		Metadata: Metadata{
			DocumentType: domain.DocumentTypeUnstructured,
			Headers:      extractHeaders(md),
		},
	}, nil
}

// extractHeaders scans markdown for "#"-prefixed header lines, grounded on
// the same header-detection approach the multi-level chunker uses.
func extractHeaders(markdown string) []HeaderRef {
	var headers []HeaderRef
	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		level := 0
		for level < len(trimmed) && trimmed[level] == '#' {
			level++
		}
		if level == 0 || level > 6 || level >= len(trimmed) || trimmed[level] != ' ' {
			continue
		}
		headers = append(headers, HeaderRef{Level: level, Text: strings.TrimSpace(trimmed[level:])})
	}
	return headers
}

func stripMarkdownSyntax(md string) string {
	var b strings.Builder
	for _, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimLeft(line, "#")
		trimmed = strings.TrimSpace(trimmed)
		b.WriteString(trimmed)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
