package ingestion

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Column names understood by ReadCSV. Unknown columns are ignored.
const (
	ColumnID          = "id"
	ColumnName        = "product_name"
	ColumnDescription = "description"
	ColumnCategory    = "category"
	ColumnPrice       = "list_price"
	ColumnBrand       = "brand"
	ColumnEmbedding   = "embedding"
)

// ReadCSVFile opens path and reads at most limit records from it
func ReadCSVFile(path string, limit int) ([]RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog file: %w", err)
	}
	defer f.Close()

	return ReadCSV(f, limit)
}

// ReadCSV reads a header row followed by product rows. Row numbers start at 1
// for the first data row. A limit of zero or less reads everything.
func ReadCSV(r io.Reader, limit int) ([]RawRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("catalog file is empty")
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, seen := columns[name]; !seen {
			columns[name] = i
		}
	}
	if _, ok := columns[ColumnName]; !ok {
		return nil, fmt.Errorf("missing required column %q", ColumnName)
	}

	field := func(row []string, column string) string {
		i, ok := columns[column]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var records []RawRecord
	for n := 1; limit <= 0 || n <= limit; n++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return records, fmt.Errorf("failed to read row %d: %w", n, err)
		}

		records = append(records, RawRecord{
			Row:         n,
			ID:          field(row, ColumnID),
			Name:        field(row, ColumnName),
			Description: field(row, ColumnDescription),
			Category:    field(row, ColumnCategory),
			Price:       field(row, ColumnPrice),
			Brand:       field(row, ColumnBrand),
			Embedding:   field(row, ColumnEmbedding),
		})
	}

	return records, nil
}
