package dataset

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFormat is returned for file extensions no loader handles
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrNoHeader is returned when the input has no header row
	ErrNoHeader = errors.New("input has no header row")
)

// LoadError reports a dataset that could not be read or parsed
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Loader parses a tabular file into a Dataset
type Loader interface {
	Load(ctx context.Context, name string, r io.Reader) (*Dataset, error)
}

// LoaderFor picks a loader from the extension of name
func LoaderFor(name string) (Loader, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return &CSVLoader{}, nil
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return &XLSXLoader{}, nil
	default:
		return nil, &LoadError{Source: name, Err: ErrUnsupportedFormat}
	}
}

// Open loads the dataset stored at path
func Open(ctx context.Context, path string) (*Dataset, error) {
	return OpenAs(ctx, path, filepath.Base(path))
}

// OpenAs loads the file at path using name to pick the format and to name the
// dataset. Uploads are stored under a prefixed name, so the two can differ.
func OpenAs(ctx context.Context, path, name string) (*Dataset, error) {
	loader, err := LoaderFor(name)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Source: name, Err: err}
	}
	defer f.Close()

	return loader.Load(ctx, name, f)
}

// CSVLoader reads comma separated files with a header row
type CSVLoader struct {
	// Comma is the field delimiter; zero means ','
	Comma rune
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Load implements Loader
func (l *CSVLoader) Load(ctx context.Context, name string, r io.Reader) (*Dataset, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	if l.Comma != 0 {
		reader.Comma = l.Comma
	}

	var records [][]string
	for {
		if len(records)%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, &LoadError{Source: name, Err: err}
			}
		}
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &LoadError{Source: name, Err: err}
		}
		records = append(records, rec)
	}

	return build(ctx, name, records)
}

// XLSXLoader reads Office Open XML workbooks
type XLSXLoader struct {
	// Sheet selects the worksheet; empty means the first sheet
	Sheet string
}

// Load implements Loader
func (l *XLSXLoader) Load(ctx context.Context, name string, r io.Reader) (*Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &LoadError{Source: name, Err: err}
	}
	defer f.Close()

	sheet := l.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, &LoadError{Source: name, Err: errors.New("workbook has no sheets")}
		}
		sheet = sheets[0]
	}

	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, &LoadError{Source: name, Err: fmt.Errorf("read sheet %q: %w", sheet, err)}
	}

	return build(ctx, name, records)
}

// build turns raw records (header first) into a Dataset. Short rows are
// padded with empty cells, fully blank rows are dropped.
func build(ctx context.Context, name string, records [][]string) (*Dataset, error) {
	if len(records) == 0 {
		return nil, &LoadError{Source: name, Err: ErrNoHeader}
	}

	columns := headerNames(records[0])
	rows := make([]Row, 0, len(records)-1)
	for i, rec := range records[1:] {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, &LoadError{Source: name, Err: err}
			}
		}

		row := make(Row, len(columns))
		blank := true
		for j, raw := range rec {
			if j >= len(columns) {
				if strings.TrimSpace(raw) != "" {
					return nil, &LoadError{
						Source: name,
						Err:    fmt.Errorf("row %d has %d fields, header has %d", i+2, len(rec), len(columns)),
					}
				}
				continue
			}
			row[j] = ParseCell(raw)
			if !row[j].IsEmpty() {
				blank = false
			}
		}
		if blank {
			continue
		}
		rows = append(rows, row)
	}

	ds, err := New(name, columns, rows)
	if err != nil {
		return nil, &LoadError{Source: name, Err: err}
	}
	return ds, nil
}

// headerNames names blank headers "Unnamed: <i>" and disambiguates repeated
// names with ".1", ".2", ... suffixes.
func headerNames(header []string) []string {
	columns := make([]string, len(header))
	used := make(map[string]bool, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		candidate := h
		for n := 1; used[candidate]; n++ {
			candidate = fmt.Sprintf("%s.%d", h, n)
		}
		used[candidate] = true
		columns[i] = candidate
	}
	return columns
}
