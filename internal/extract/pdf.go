package extract

import (
	"bytes"
	"context"
	"fmt"

	"github.com/docbrain/docbrain/internal/domain"
	"github.com/docbrain/docbrain/internal/errs"
)

// PDFTextExtractor is the injectable primary extraction capability: a
// layout-preserving, OCR- and table-detection-capable backend. No such
// model ships in the reference corpus (the teacher treats OCR/ASR as an
// external binding — see DESIGN.md), so production wiring supplies a real
// implementation (e.g. an external OCR service client) while tests use a
// stub. When nil, pdfExtractor always uses the page-wise fallback.
type PDFTextExtractor interface {
	ExtractLayout(ctx context.Context, raw []byte) (text string, ok bool)
}

// pdfExtractor is the standard-library-grounded exception documented in
// DESIGN.md: the primary path is an injected PDFTextExtractor; the fallback
// is a page-wise text-only scrape between PDF stream markers using only
// bytes/regexp-free scanning, since no PDF-parsing library is present
// anywhere in the retrieved pack.
type pdfExtractor struct {
	primary PDFTextExtractor
}

func newPDFExtractor() *pdfExtractor { return &pdfExtractor{} }

// WithPDFTextExtractor installs the primary layout/OCR capability. Called
// once at process startup by whatever wires the extractor registry.
func (e *pdfExtractor) WithPDFTextExtractor(p PDFTextExtractor) *pdfExtractor {
	e.primary = p
	return e
}

func (e *pdfExtractor) Extract(ctx context.Context, raw []byte) (Extracted, error) {
	if e.primary != nil {
		if text, ok := e.primary.ExtractLayout(ctx, raw); ok {
			return Extracted{Text: text, Metadata: Metadata{DocumentType: domain.DocumentTypeUnstructured}}, nil
		}
	}
	text, err := extractPDFTextFallback(raw)
	if err != nil {
		return Extracted{}, fmt.Errorf("pdf fallback extraction: %w", errs.ErrExtractionFailed)
	}
	return Extracted{Text: text, Metadata: Metadata{DocumentType: domain.DocumentTypeUnstructured}}, nil
}

// extractPDFTextFallback scrapes literal text runs found inside "BT ... ET"
// text-object blocks and parenthesized string operands, which covers
// uncompressed PDF content streams without any layout/table awareness —
// the deliberately degraded page-wise-text-only fallback spec §4.1
// describes for when the primary extractor errors.
func extractPDFTextFallback(raw []byte) (string, error) {
	var out bytes.Buffer
	const (
		btMarker = "BT"
		etMarker = "ET"
	)
	i := 0
	for i < len(raw) {
		btIdx := bytes.Index(raw[i:], []byte(btMarker))
		if btIdx < 0 {
			break
		}
		start := i + btIdx
		etIdx := bytes.Index(raw[start:], []byte(etMarker))
		if etIdx < 0 {
			break
		}
		block := raw[start : start+etIdx]
		out.Write(extractParenthesizedStrings(block))
		out.WriteByte('\n')
		i = start + etIdx + len(etMarker)
	}
	return out.String(), nil
}

func extractParenthesizedStrings(block []byte) []byte {
	var out bytes.Buffer
	depth := 0
	for i := 0; i < len(block); i++ {
		switch block[i] {
		case '(':
			if depth == 0 {
				out.WriteByte(' ')
			}
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case '\\':
			i++ // skip escaped character
		default:
			if depth > 0 {
				out.WriteByte(block[i])
			}
		}
	}
	return out.Bytes()
}
