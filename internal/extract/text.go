package extract

import (
	"context"

	"github.com/docbrain/docbrain/internal/domain"
)

// textExtractor is the identity extractor for plain text.
type textExtractor struct{}

func (textExtractor) Extract(_ context.Context, raw []byte) (Extracted, error) {
	return Extracted{
		Text:     string(raw),
		Metadata: Metadata{DocumentType: domain.DocumentTypeUnstructured},
	}, nil
}
