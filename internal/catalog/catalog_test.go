package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/FranksOps/enrich/internal/product"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func TestReadCSV(t *testing.T) {
	in := "\ufeff EAN ,Name,Brand\n" +
		"5999885051011,Chia mag,Bio\n" +
		",Névtelen EAN,\n" +
		"0012345678905,,\n" +
		"  4006040000018  ,Short\n"

	ids, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, ids, 4)

	assert.Equal(t, product.Identifier{EAN: "5999885051011", Name: "Chia mag"}, ids[0])
	assert.Equal(t, product.Identifier{EAN: "", Name: "Névtelen EAN"}, ids[1])
	assert.Equal(t, "0012345678905", ids[2].EAN, "leading zeros kept")
	assert.False(t, ids[2].HasName())
	assert.Equal(t, "  4006040000018  ", ids[3].EAN, "values are verbatim")
}

func TestReadCSV_NameOptional(t *testing.T) {
	ids, err := ReadCSV(strings.NewReader("EAN\n123\n456\n"))
	require.NoError(t, err)
	assert.Equal(t, []product.Identifier{{EAN: "123"}, {EAN: "456"}}, ids)
}

func TestReadCSV_MissingEAN(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("Barcode,Name\n123,X\n"))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrMissingColumn))

	_, err = ReadCSV(strings.NewReader(""))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrMissingColumn))
}

func TestReadCSV_CaseSensitiveHeader(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("ean,name\n1,a\n"))
	assert.True(t, eris.Is(err, ErrMissingColumn))
}

func createTestXLSX(t *testing.T, rows [][]any) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Products")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, v := range rowData {
			cell := row.AddCell()
			switch v := v.(type) {
			case int64:
				cell.SetInt64(v)
			case string:
				cell.SetString(v)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "products.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadXLSX(t *testing.T) {
	path := createTestXLSX(t, [][]any{
		{"Name", "EAN"},
		{"Chia mag", "5999885051011"},
		{"Numeric", int64(4006040000018)},
		{"", ""},
		{"Üres", ""},
	})

	ids, err := Read(path)
	require.NoError(t, err)
	require.Len(t, ids, 3)
	assert.Equal(t, product.Identifier{EAN: "5999885051011", Name: "Chia mag"}, ids[0])
	assert.Equal(t, "4006040000018", ids[1].EAN)
	assert.Equal(t, product.Identifier{EAN: "", Name: "Üres"}, ids[2])
}

func TestReadXLSX_SheetSelection(t *testing.T) {
	path := createTestXLSX(t, [][]any{{"EAN"}, {"1"}})

	_, err := ReadXLSX(path, XLSXOptions{SheetName: "Products"})
	require.NoError(t, err)

	_, err = ReadXLSX(path, XLSXOptions{SheetName: "Missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = ReadXLSX(path, XLSXOptions{SheetIndex: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestRead_Dispatch(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "products.CSV")
	require.NoError(t, os.WriteFile(csvPath, []byte("EAN,Name\n1234567890123,TestProduct\n"), 0644))
	ids, err := Read(csvPath)
	require.NoError(t, err)
	assert.Equal(t, []product.Identifier{{EAN: "1234567890123", Name: "TestProduct"}}, ids)

	_, err = Read(filepath.Join(dir, "products.json"))
	assert.True(t, eris.Is(err, ErrUnsupportedFormat))

	_, err = Read(filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)
}
