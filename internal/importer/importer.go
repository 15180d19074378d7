// Package importer turns uploaded CSV and Excel files into header-keyed
// records.
package importer

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/jonesrussell/backlink-checker/internal/domain"
)

// headerRow is the 1-based row number of the header in every format.
const headerRow = 1

var (
	// ErrUnsupportedFormat is returned for extensions other than .csv,
	// .xlsx and .xls.
	ErrUnsupportedFormat = errors.New("file must be CSV, XLS, or XLSX")
	// ErrNoHeader is returned when the file has no header row.
	ErrNoHeader = errors.New("file has no header row")
)

// Table is a parsed upload. Records keep the row numbers of the source file.
type Table struct {
	Headers []string
	Records []domain.Record
}

// Parse reads r according to the extension of filename.
func Parse(filename string, r io.Reader) (*Table, error) {
	switch Extension(filename) {
	case ".csv":
		return parseCSV(r)
	case ".xlsx", ".xls":
		return parseExcel(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(filename))
	}
}

// Extension returns the lower-cased extension of filename, dot included.
func Extension(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// MissingColumns returns the names that are not headers of t, in the order
// given.
func (t *Table) MissingColumns(names ...string) []string {
	present := make(map[string]struct{}, len(t.Headers))
	for _, h := range t.Headers {
		present[h] = struct{}{}
	}

	var missing []string
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, ok := present[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Len returns the number of data records.
func (t *Table) Len() int {
	return len(t.Records)
}

// build keys each data row by header. Rows whose cells are all blank are
// dropped, short rows are padded and cells past the last header ignored.
// lines holds the source row number of each entry of rows.
func build(header []string, rows [][]string, lines []int) (*Table, error) {
	headers, index := normalizeHeader(header)
	if len(headers) == 0 {
		return nil, ErrNoHeader
	}

	records := make([]domain.Record, 0, len(rows))
	for i, row := range rows {
		if isBlank(row) {
			continue
		}
		fields := make(map[string]string, len(headers))
		for col, name := range index {
			if col < len(row) {
				fields[name] = row[col]
			} else {
				fields[name] = ""
			}
		}
		records = append(records, domain.Record{Line: lines[i], Fields: fields})
	}
	return &Table{Headers: headers, Records: records}, nil
}

// normalizeHeader trims header cells. Blank cells are skipped and only the
// first of several equal names is kept.
func normalizeHeader(header []string) ([]string, map[int]string) {
	headers := make([]string, 0, len(header))
	index := make(map[int]string, len(header))
	seen := make(map[string]struct{}, len(header))

	for col, cell := range header {
		name := strings.TrimSpace(cell)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		headers = append(headers, name)
		index[col] = name
	}
	return headers, index
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
