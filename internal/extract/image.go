package extract

import (
	"context"
	"fmt"

	"github.com/docbrain/docbrain/internal/domain"
	"github.com/docbrain/docbrain/internal/errs"
)

// ImageOCR is the injectable layout-aware OCR capability, mirroring
// PDFTextExtractor: no OCR runtime ships in the reference corpus, so
// production wiring supplies a real implementation while tests use a stub.
type ImageOCR interface {
	RecognizeLayout(ctx context.Context, raw []byte) (text string, ok bool)
	RecognizePlain(ctx context.Context, raw []byte) (text string, ok bool)
}

// imageExtractor dispatches layout-aware OCR first, falling back to
// plain OCR per spec §4.1. With no OCR backend installed, both calls
// report !ok and extraction fails with ErrExtractionFailed — there is no
// further stdlib fallback for image text recognition.
type imageExtractor struct {
	ocr ImageOCR
}

func newImageExtractor() *imageExtractor { return &imageExtractor{} }

// WithOCR installs the OCR capability.
func (e *imageExtractor) WithOCR(ocr ImageOCR) *imageExtractor {
	e.ocr = ocr
	return e
}

func (e *imageExtractor) Extract(ctx context.Context, raw []byte) (Extracted, error) {
	if e.ocr == nil {
		return Extracted{}, fmt.Errorf("no ocr backend configured: %w", errs.ErrExtractionFailed)
	}
	if text, ok := e.ocr.RecognizeLayout(ctx, raw); ok {
		return Extracted{Text: text, Metadata: Metadata{DocumentType: domain.DocumentTypeUnstructured}}, nil
	}
	if text, ok := e.ocr.RecognizePlain(ctx, raw); ok {
		return Extracted{Text: text, Metadata: Metadata{DocumentType: domain.DocumentTypeUnstructured}}, nil
	}
	return Extracted{}, fmt.Errorf("ocr extraction failed: %w", errs.ErrExtractionFailed)
}
