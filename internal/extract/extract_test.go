package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docbrain/docbrain/internal/domain"
	"github.com/docbrain/docbrain/internal/errs"
)

func TestRegistry_DispatchesByContentType(t *testing.T) {
	r := NewRegistry()
	out, err := r.Extract(context.Background(), "doc1", domain.ContentTypeText, []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", out.Text)
}

func TestRegistry_UnknownContentType(t *testing.T) {
	r := NewRegistry()
	_, err := r.Extract(context.Background(), "doc1", domain.ContentType("unknown"), []byte("x"))
	assert.ErrorIs(t, err, errs.ErrExtractionFailed)
}

func TestMarkdownExtractor_RecordsHeaders(t *testing.T) {
	r := NewRegistry()
	md := "# Title\n\nSome intro.\n\n## Section\n\nBody text."
	out, err := r.Extract(context.Background(), "doc1", domain.ContentTypeMarkdown, []byte(md))
	require.NoError(t, err)
	assert.Equal(t, "Title", out.Metadata.Title)
	require.Len(t, out.Metadata.Headers, 2)
	assert.Equal(t, 1, out.Metadata.Headers[0].Level)
	assert.Equal(t, "Section", out.Metadata.Headers[1].Text)
}

func TestCSVExtractor_HeadersAndPreviewRows(t *testing.T) {
	r := NewRegistry()
	csv := "name,age\nalice,30\nbob,40\ncarol,50\ndan,60\neve,70\nfrank,80\n"
	out, err := r.Extract(context.Background(), "doc1", domain.ContentTypeCSV, []byte(csv))
	require.NoError(t, err)
	assert.Contains(t, out.Text, "Headers: name, age")
	assert.Contains(t, out.Text, "Row 0: alice, 30")
	assert.NotContains(t, out.Text, "frank") // beyond maxCSVPreviewRows
	assert.Equal(t, []string{"name", "age"}, out.Metadata.CSVColumns)
}

func TestCSVExtractor_MalformedInputFails(t *testing.T) {
	r := NewRegistry()
	_, err := r.Extract(context.Background(), "doc1", domain.ContentTypeCSV, []byte("a,b\n\"unterminated"))
	assert.ErrorIs(t, err, errs.ErrExtractionFailed)
}

func TestPDFExtractor_FallsBackWithoutPrimary(t *testing.T) {
	r := NewRegistry()
	pdf := []byte("irrelevant preamble BT (Hello) Tj (World) Tj ET trailer")
	out, err := r.Extract(context.Background(), "doc1", domain.ContentTypePDF, pdf)
	require.NoError(t, err)
	assert.Contains(t, out.Text, "Hello")
	assert.Contains(t, out.Text, "World")
}

func TestImageExtractor_FailsWithoutOCRBackend(t *testing.T) {
	r := NewRegistry()
	_, err := r.Extract(context.Background(), "doc1", domain.ContentTypeImage, []byte{0xff, 0xd8})
	assert.ErrorIs(t, err, errs.ErrExtractionFailed)
}

type stubOCR struct {
	layoutText string
	layoutOK   bool
}

func (s stubOCR) RecognizeLayout(context.Context, []byte) (string, bool) { return s.layoutText, s.layoutOK }
func (s stubOCR) RecognizePlain(context.Context, []byte) (string, bool)  { return "plain fallback", true }

func TestImageExtractor_PrefersLayoutOverPlain(t *testing.T) {
	img := newImageExtractor().WithOCR(stubOCR{layoutText: "layout text", layoutOK: true})
	out, err := img.Extract(context.Background(), []byte{0xff, 0xd8})
	require.NoError(t, err)
	assert.Equal(t, "layout text", out.Text)
}

func TestImageExtractor_FallsBackToPlain(t *testing.T) {
	img := newImageExtractor().WithOCR(stubOCR{layoutOK: false})
	out, err := img.Extract(context.Background(), []byte{0xff, 0xd8})
	require.NoError(t, err)
	assert.Equal(t, "plain fallback", out.Text)
}

func TestSniffContentType(t *testing.T) {
	assert.Equal(t, domain.ContentTypePDF, SniffContentType([]byte("%PDF-1.4\n")))
	assert.Equal(t, domain.ContentTypeText, SniffContentType([]byte("plain ascii text")))
}
