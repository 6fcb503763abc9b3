// Package catalog reads the input product table.
package catalog

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/FranksOps/enrich/internal/product"
	"github.com/rotisserie/eris"
)

// ColumnName is the optional product name column.
const ColumnName = "Name"

// ErrMissingColumn is returned when the header lacks the EAN column.
var ErrMissingColumn = eris.New("catalog: required column missing")

// ErrUnsupportedFormat is returned for files that are neither CSV nor XLSX.
var ErrUnsupportedFormat = eris.New("catalog: unsupported file format")

const bom = "\ufeff"

// Read loads identifiers from a .csv or .xlsx file.
func Read(path string) ([]product.Identifier, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: open %s", path)
		}
		defer f.Close()
		return ReadCSV(f)
	case ".xlsx":
		return ReadXLSX(path, XLSXOptions{})
	default:
		return nil, eris.Wrapf(ErrUnsupportedFormat, "catalog: %s", path)
	}
}

// ReadCSV reads a comma separated table with a header row.
func ReadCSV(r io.Reader) ([]product.Identifier, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "catalog: read csv")
	}
	return FromRows(rows)
}

// FromRows maps a header row plus data rows to identifiers. Header cells are
// matched exactly after trimming a UTF-8 BOM and surrounding whitespace. Cell
// values are kept verbatim, so an empty EAN still yields an identifier.
func FromRows(rows [][]string) ([]product.Identifier, error) {
	if len(rows) == 0 {
		return nil, eris.Wrapf(ErrMissingColumn, "catalog: empty table, want %q", product.ColumnEAN)
	}

	eanCol, nameCol := -1, -1
	for i, h := range rows[0] {
		switch strings.TrimSpace(strings.TrimPrefix(h, bom)) {
		case product.ColumnEAN:
			if eanCol < 0 {
				eanCol = i
			}
		case ColumnName:
			if nameCol < 0 {
				nameCol = i
			}
		}
	}
	if eanCol < 0 {
		return nil, eris.Wrapf(ErrMissingColumn, "catalog: column %q", product.ColumnEAN)
	}

	ids := make([]product.Identifier, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		ids = append(ids, product.Identifier{
			EAN:  cell(row, eanCol),
			Name: cell(row, nameCol),
		})
	}
	return ids, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
