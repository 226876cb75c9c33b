package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Dataset defines tabular export content. Columns are the row keys in output
// order; Labels optionally renames them in the header line.
type Dataset struct {
	Columns []string
	Labels  map[string]string
	Rows    []map[string]string
}

func (d Dataset) header() []string {
	header := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		if label, ok := d.Labels[col]; ok {
			header[i] = label
			continue
		}
		header[i] = col
	}
	return header
}

// CSVExporter renders Dataset records into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the dataset.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Columns) == 0 {
		return nil, fmt.Errorf("csv requires at least one column")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(data.header()); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range data.Rows {
		record := make([]string, len(data.Columns))
		for i, col := range data.Columns {
			record[i] = row[col]
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
