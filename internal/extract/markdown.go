package extract

import (
	"context"
	"strings"

	"github.com/docbrain/docbrain/internal/domain"
)

// markdownExtractor is a single-pass header scanner: markdown is already
// normalized text, so extraction is identity plus structure recovery.
type markdownExtractor struct{}

func (markdownExtractor) Extract(_ context.Context, raw []byte) (Extracted, error) {
	text := string(raw)
	headers := extractHeaders(text)
	title := ""
	if len(headers) > 0 && headers[0].Level == 1 {
		title = headers[0].Text
	}
	return Extracted{
		Text:     stripMarkdownSyntax(text),
		Markdown: strings.TrimSpace(text),
		Metadata: Metadata{
			DocumentType: domain.DocumentTypeStructured,
			Title:        title,
			Headers:      headers,
		},
	}, nil
}
