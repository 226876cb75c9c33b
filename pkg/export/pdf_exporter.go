package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// Field is a labelled value printed on its own line.
type Field struct {
	Label string
	Value string
}

// Section groups fields and an optional table under a heading.
type Section struct {
	Heading string
	Fields  []Field
	Table   *Dataset
	// Body is free text printed after the fields.
	Body string
}

// Document is a printable report.
type Document struct {
	Title    string
	Subtitle string
	Sections []Section
}

// PDFExporter renders documents into A4 PDFs.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

const pageWidth = 190.0

// Render creates the PDF bytes for doc.
func (e *PDFExporter) Render(doc Document) ([]byte, error) {
	if doc.Title == "" {
		return nil, fmt.Errorf("pdf requires a title")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, tr(doc.Title), "", 1, "C", false, 0, "")
	if doc.Subtitle != "" {
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, tr(doc.Subtitle), "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	for _, section := range doc.Sections {
		if section.Heading != "" {
			pdf.SetFont("Arial", "B", 11)
			pdf.CellFormat(0, 8, tr(section.Heading), "B", 1, "", false, 0, "")
			pdf.Ln(1)
		}
		for _, field := range section.Fields {
			pdf.SetFont("Arial", "B", 9)
			pdf.CellFormat(50, 6, tr(field.Label), "", 0, "", false, 0, "")
			pdf.SetFont("Arial", "", 9)
			pdf.MultiCell(pageWidth-50, 6, tr(field.Value), "", "", false)
		}
		if section.Body != "" {
			pdf.SetFont("Arial", "", 9)
			pdf.MultiCell(pageWidth, 5, tr(section.Body), "", "", false)
		}
		if section.Table != nil && len(section.Table.Columns) > 0 {
			renderTable(pdf, tr, *section.Table)
		}
		pdf.Ln(3)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func renderTable(pdf *gofpdf.Fpdf, tr func(string) string, data Dataset) {
	colWidth := pageWidth / float64(len(data.Columns))
	pdf.SetFont("Arial", "B", 9)
	for _, header := range data.header() {
		pdf.CellFormat(colWidth, 7, tr(header), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for _, row := range data.Rows {
		for _, col := range data.Columns {
			pdf.CellFormat(colWidth, 6, tr(row[col]), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}
}
