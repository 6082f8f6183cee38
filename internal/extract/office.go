package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/docbrain/docbrain/internal/domain"
	"github.com/docbrain/docbrain/internal/errs"
)

// docxExtractor and pptxExtractor are the second standard-library-grounded
// exception (see DESIGN.md): Office Open XML documents are zip containers
// of XML parts, so archive/zip + encoding/xml recovers the text runs
// without needing a dedicated DOCX/PPTX parsing library — none appears
// anywhere in the retrieved pack.
type docxExtractor struct{}

func (docxExtractor) Extract(_ context.Context, raw []byte) (Extracted, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return Extracted{}, fmt.Errorf("open docx zip: %w", errs.ErrExtractionFailed)
	}
	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return Extracted{}, fmt.Errorf("word/document.xml not found: %w", errs.ErrExtractionFailed)
	}
	text, err := extractTextRuns(doc)
	if err != nil {
		return Extracted{}, fmt.Errorf("parse word/document.xml: %w", errs.ErrExtractionFailed)
	}
	return Extracted{Text: text, Metadata: Metadata{DocumentType: domain.DocumentTypeUnstructured}}, nil
}

type pptxExtractor struct{}

func (pptxExtractor) Extract(_ context.Context, raw []byte) (Extracted, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return Extracted{}, fmt.Errorf("open pptx zip: %w", errs.ErrExtractionFailed)
	}
	var slides []*zip.File
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "ppt/slides/slide") && strings.HasSuffix(f.Name, ".xml") {
			slides = append(slides, f)
		}
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].Name < slides[j].Name })

	var b strings.Builder
	for i, slide := range slides {
		text, err := extractTextRuns(slide)
		if err != nil {
			return Extracted{}, fmt.Errorf("parse %s: %w", slide.Name, errs.ErrExtractionFailed)
		}
		fmt.Fprintf(&b, "Slide %d:\n%s\n\n", i+1, text)
	}
	return Extracted{Text: strings.TrimSpace(b.String()), Metadata: Metadata{DocumentType: domain.DocumentTypeUnstructured}}, nil
}

// extractTextRuns walks f's XML token stream collecting every <a:t> (pptx)
// or <w:t> (docx) element's character data, regardless of namespace prefix,
// since encoding/xml's decoder reports local names without needing the
// full OOXML schema registered.
func extractTextRuns(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	var b strings.Builder
	inTextElement := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inTextElement = true
			}
		case xml.EndElement:
			if t.Name.Local == "t" {
				inTextElement = false
				b.WriteByte(' ')
			}
			if t.Name.Local == "p" {
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inTextElement {
				b.Write(t)
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}
