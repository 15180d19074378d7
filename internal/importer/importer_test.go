package importer_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jonesrussell/backlink-checker/internal/importer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestParse_CSV(t *testing.T) {
	t.Parallel()

	input := "\xEF\xBB\xBFdomain, price ,currency\n" +
		"https://Example.com/path,10.00,usd\n" +
		"\n" +
		",,\n" +
		"example.org,\"1,250.00\"\n" +
		"short.io\n"

	table, err := importer.Parse("offers.CSV", strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"domain", "price", "currency"}, table.Headers)
	require.Equal(t, 3, table.Len())

	first := table.Records[0]
	assert.Equal(t, 2, first.Line)
	assert.Equal(t, "https://Example.com/path", first.Get("domain"))
	assert.Equal(t, "usd", first.Get("currency"))

	second := table.Records[1]
	assert.Equal(t, 5, second.Line)
	assert.Equal(t, "1,250.00", second.Get("price"))
	assert.Empty(t, second.Get("currency"))

	third := table.Records[2]
	assert.Equal(t, 6, third.Line)
	assert.Empty(t, third.Get("price"))
}

func TestParse_CSVHeaderOnly(t *testing.T) {
	t.Parallel()

	table, err := importer.Parse("x.csv", strings.NewReader("domain,price\n"))
	require.NoError(t, err)
	assert.Zero(t, table.Len())
}

func TestParse_CSVEmpty(t *testing.T) {
	t.Parallel()

	_, err := importer.Parse("x.csv", strings.NewReader(""))
	require.ErrorIs(t, err, importer.ErrNoHeader)
}

func TestParse_UnsupportedExtension(t *testing.T) {
	t.Parallel()

	_, err := importer.Parse("offers.json", strings.NewReader("{}"))
	require.ErrorIs(t, err, importer.ErrUnsupportedFormat)
}

func TestParse_DuplicateHeadersKeepFirst(t *testing.T) {
	t.Parallel()

	table, err := importer.Parse("x.csv", strings.NewReader("domain,price,price\na.com,1,2\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"domain", "price"}, table.Headers)
	assert.Equal(t, "1", table.Records[0].Get("price"))
}

// createTestWorkbook builds an in-memory workbook with one header row.
func createTestWorkbook(t *testing.T, headers []string, rows [][]string) *bytes.Reader {
	t.Helper()

	f := excelize.NewFile()
	sheet := "Sheet1"

	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		require.NoError(t, err)
		require.NoError(t, f.SetCellValue(sheet, cell, h))
	}
	for rowIdx, row := range rows {
		for colIdx, val := range row {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cell, val))
		}
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return bytes.NewReader(buf.Bytes())
}

func TestParse_Excel(t *testing.T) {
	t.Parallel()

	reader := createTestWorkbook(t,
		[]string{"Domain", "Price", "URL"},
		[][]string{
			{"example.com", "10.00", "https://example.com/buy"},
			{"", "", ""},
			{"example.net", "8.50"},
		},
	)

	table, err := importer.Parse("offers.xlsx", reader)
	require.NoError(t, err)

	assert.Equal(t, []string{"Domain", "Price", "URL"}, table.Headers)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, 2, table.Records[0].Line)
	assert.Equal(t, "https://example.com/buy", table.Records[0].Get("URL"))
	assert.Equal(t, 4, table.Records[1].Line)
	assert.Empty(t, table.Records[1].Get("URL"))
}

func TestParse_ExcelCorrupt(t *testing.T) {
	t.Parallel()

	_, err := importer.Parse("offers.xlsx", strings.NewReader("not a zip"))
	require.Error(t, err)
}

func TestTable_MissingColumns(t *testing.T) {
	t.Parallel()

	table := &importer.Table{Headers: []string{"domain", "price"}}
	assert.Empty(t, table.MissingColumns("domain", "price", ""))
	assert.Equal(t, []string{"currency", "url"}, table.MissingColumns("domain", "currency", "url"))
}
