package output

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/eliaszeru/Excel-splitter/dataset"
)

// SheetName is the worksheet XLSX outputs are written to
const SheetName = "Sheet1"

// checkEvery is how many rows are encoded between cancellation checks
const checkEvery = 1024

type encoder func(ctx context.Context, w io.Writer, columns []string, rows []dataset.Row) error

// Ext returns the extension outputs derived from a source with extension src
// are written with. CSV sources stay CSV, everything else becomes XLSX.
func Ext(src string) string {
	if strings.EqualFold(src, ".csv") {
		return ".csv"
	}
	return ".xlsx"
}

func encoderFor(path string) encoder {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return encodeCSV
	}
	return encodeXLSX
}

func encodeCSV(ctx context.Context, w io.Writer, columns []string, rows []dataset.Row) error {
	bw := bufio.NewWriterSize(w, 64*1024)
	cw := csv.NewWriter(bw)

	if err := cw.Write(columns); err != nil {
		return err
	}
	record := make([]string, len(columns))
	for i, row := range rows {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		for j := range record {
			record[j] = ""
			if j < len(row) {
				record[j] = row[j].String()
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return bw.Flush()
}

func encodeXLSX(ctx context.Context, w io.Writer, columns []string, rows []dataset.Row) error {
	f := excelize.NewFile()
	defer f.Close()

	dateStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: ptr("yyyy-mm-dd")})
	if err != nil {
		return fmt.Errorf("create date style: %w", err)
	}
	dateTimeStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: ptr("yyyy-mm-dd hh:mm:ss")})
	if err != nil {
		return fmt.Errorf("create datetime style: %w", err)
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("create stream writer: %w", err)
	}

	header := make([]any, len(columns))
	for i, col := range columns {
		header[i] = col
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}

	values := make([]any, len(columns))
	for i, row := range rows {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		for j := range values {
			values[j] = nil
			if j < len(row) {
				values[j] = xlsxValue(row[j], dateStyle, dateTimeStyle)
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, values); err != nil {
			return err
		}
	}

	if err := sw.Flush(); err != nil {
		return err
	}
	return f.Write(w)
}

// xlsxValue keeps numbers numeric and dates as styled date cells when the
// native value reproduces the cell's text exactly. Anything else, such as long
// identifiers or exponent-looking codes, is written as its text.
func xlsxValue(c dataset.Cell, dateStyle, dateTimeStyle int) any {
	switch c.Kind() {
	case dataset.KindEmpty:
		return nil
	case dataset.KindNumber:
		if f, ok := c.Float(); ok && exactNumber(f, c.String()) {
			return f
		}
	case dataset.KindDate:
		if t, ok := c.Time(); ok {
			style, layout := dateStyle, "2006-01-02"
			if t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0 {
				style, layout = dateTimeStyle, "2006-01-02 15:04:05"
			}
			if t.Nanosecond() == 0 && t.Format(layout) == c.String() {
				return excelize.Cell{StyleID: style, Value: t}
			}
		}
	}
	return c.String()
}

// maxSignificantDigits is the precision spreadsheet applications keep for numbers
const maxSignificantDigits = 15

// exactNumber reports whether f renders back as text and fits the precision
// spreadsheets store
func exactNumber(f float64, text string) bool {
	if strconv.FormatFloat(f, 'f', -1, 64) != text {
		return false
	}
	digits := strings.TrimLeft(strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, text), "0")
	return len(digits) <= maxSignificantDigits
}

func ptr[T any](v T) *T {
	return &v
}
