package extract

import (
	"context"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/docbrain/docbrain/internal/domain"
	"github.com/docbrain/docbrain/internal/errs"
)

// maxCSVPreviewRows is the number of data rows recorded in the text preview
// in addition to the header row, per spec §4.1's "Headers: …\n\nRow i: …"
// shape.
const maxCSVPreviewRows = 5

// csvExtractor uses encoding/csv (stdlib) — no ecosystem CSV library
// appears anywhere in the retrieved pack for structured tabular extraction;
// see DESIGN.md for the justification.
type csvExtractor struct{}

func (csvExtractor) Extract(_ context.Context, raw []byte) (Extracted, error) {
	r := csv.NewReader(strings.NewReader(string(raw)))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return Extracted{}, fmt.Errorf("parse csv: %w", errs.ErrExtractionFailed)
	}
	if len(records) == 0 {
		return Extracted{Metadata: Metadata{DocumentType: domain.DocumentTypeStructured}}, nil
	}
	headers := records[0]
	var b strings.Builder
	fmt.Fprintf(&b, "Headers: %s\n", strings.Join(headers, ", "))
	rows := records[1:]
	if len(rows) > maxCSVPreviewRows {
		rows = rows[:maxCSVPreviewRows]
	}
	for i, row := range rows {
		b.WriteString("\n")
		fmt.Fprintf(&b, "Row %d: %s", i, strings.Join(row, ", "))
	}
	return Extracted{
		Text: b.String(),
		Metadata: Metadata{
			DocumentType: domain.DocumentTypeStructured,
			CSVColumns:   headers,
		},
	}, nil
}
