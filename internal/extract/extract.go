// Package extract is the ContentExtractor collaborator: it normalizes raw
// document bytes into text (plus optional markdown) and structure metadata,
// dispatching on domain.ContentType into a closed set of variants. Each
// variant follows the teacher's primary-path/fallback-path convention
// (internal/tools/web/fetch.go's readability/structured-conversion split,
// generalized to every content type this system accepts).
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/docbrain/docbrain/internal/domain"
	"github.com/docbrain/docbrain/internal/errs"
)

// Metadata carries the structural facts an extractor recovers beyond plain
// text: markdown headers for Markdown/HTML, column headers for CSV, and the
// derived DocumentType the Chunker dispatches on.
type Metadata struct {
	DocumentType domain.DocumentType
	Title        string
	Headers      []HeaderRef
	CSVColumns   []string
}

// HeaderRef is one (level, text) heading recovered from structured content.
type HeaderRef struct {
	Level int
	Text  string
}

// Extracted is the normalized output of one extraction call.
type Extracted struct {
	Text     string
	Markdown string
	Metadata Metadata
}

// Extractor normalizes one document's raw bytes. Implementations must be
// deterministic for identical input and must not panic on truncated input —
// internal failures are expected to be absorbed by a fallback path inside
// Extract, with only the final, unrecoverable failure returned to the
// caller.
type Extractor interface {
	Extract(ctx context.Context, raw []byte) (Extracted, error)
}

// Registry is the process-wide, reusable set of Extractor singletons keyed
// by ContentType — "the factory must return reusable instances" per spec,
// since extractors like the PDF/OCR path are expensive to construct.
type Registry struct {
	extractors map[domain.ContentType]Extractor
}

// NewRegistry builds the default registry wiring every supported
// ContentType to its extractor.
func NewRegistry() *Registry {
	return &Registry{
		extractors: map[domain.ContentType]Extractor{
			domain.ContentTypeHTML:     newHTMLExtractor(),
			domain.ContentTypeMarkdown: markdownExtractor{},
			domain.ContentTypeCSV:      csvExtractor{},
			domain.ContentTypeText:     textExtractor{},
			domain.ContentTypePDF:      newPDFExtractor(),
			domain.ContentTypeDOCX:     docxExtractor{},
			domain.ContentTypePPTX:     pptxExtractor{},
			domain.ContentTypeImage:    newImageExtractor(),
		},
	}
}

// Extract dispatches to the Extractor registered for contentType, tagging
// any final failure with documentID per spec §4.1's error contract.
func (r *Registry) Extract(ctx context.Context, documentID string, contentType domain.ContentType, raw []byte) (Extracted, error) {
	extractor, ok := r.extractors[contentType]
	if !ok {
		return Extracted{}, fmt.Errorf("no extractor registered for content type %q (document %s): %w", contentType, documentID, errs.ErrExtractionFailed)
	}
	out, err := extractor.Extract(ctx, raw)
	if err != nil {
		return Extracted{}, fmt.Errorf("extract document %s (%s): %w", documentID, contentType, errs.ErrExtractionFailed)
	}
	return out, nil
}

// SniffContentType falls back to MIME sniffing when a caller's declared
// content_type is absent or untrusted, matching spec's dispatch-by-MIME
// requirement when extension/declared type alone is not authoritative.
func SniffContentType(raw []byte) domain.ContentType {
	mt := mimetype.Detect(raw)
	for mt != nil {
		switch mt.String() {
		case "text/html":
			return domain.ContentTypeHTML
		case "text/markdown":
			return domain.ContentTypeMarkdown
		case "text/csv":
			return domain.ContentTypeCSV
		case "application/pdf":
			return domain.ContentTypePDF
		case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
			return domain.ContentTypeDOCX
		case "application/vnd.openxmlformats-officedocument.presentationml.presentation":
			return domain.ContentTypePPTX
		}
		if strings.HasPrefix(mt.String(), "image/") {
			return domain.ContentTypeImage
		}
		if strings.HasPrefix(mt.String(), "text/") {
			return domain.ContentTypeText
		}
		mt = mt.Parent()
	}
	return domain.ContentTypeText
}
