package dataset

import (
	"strconv"
	"strings"
	"time"
)

// Kind identifies the native type held by a Cell
type Kind int

const (
	KindEmpty Kind = iota
	KindString
	KindNumber
	KindDate
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindDate:
		return "date"
	default:
		return "unknown"
	}
}

// Date layouts recognised when inferring cell types from text
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// Cell is a single typed value in a Dataset.
// When a cell was parsed from text the original text is kept and used as its
// string form, so values shown to users are exactly what rules compare against.
type Cell struct {
	kind Kind
	text string
	num  float64
	date time.Time
}

// EmptyCell returns a null cell
func EmptyCell() Cell {
	return Cell{kind: KindEmpty}
}

// StringCell returns a string cell. An empty string yields an empty cell.
func StringCell(s string) Cell {
	if s == "" {
		return EmptyCell()
	}
	return Cell{kind: KindString, text: s}
}

// NumberCell returns a numeric cell
func NumberCell(f float64) Cell {
	return Cell{kind: KindNumber, num: f}
}

// DateCell returns a date cell
func DateCell(t time.Time) Cell {
	return Cell{kind: KindDate, date: t}
}

// ParseCell infers the kind of a raw text value. The text itself is preserved
// verbatim as the cell's string form.
func ParseCell(raw string) Cell {
	if strings.TrimSpace(raw) == "" {
		return EmptyCell()
	}

	if looksNumeric(raw) {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return Cell{kind: KindNumber, text: raw, num: f}
		}
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return Cell{kind: KindDate, text: raw, date: t}
		}
	}

	return Cell{kind: KindString, text: raw}
}

// looksNumeric rejects text that parses as a float but is really an
// identifier, such as zero-padded codes or values with a sign prefix.
func looksNumeric(s string) bool {
	if s != strings.TrimSpace(s) || strings.HasPrefix(s, "+") {
		return false
	}
	digits := strings.TrimPrefix(s, "-")
	if len(digits) > 1 && digits[0] == '0' && digits[1] != '.' {
		return false
	}
	lower := strings.ToLower(digits)
	return lower != "inf" && lower != "infinity" && lower != "nan"
}

// Kind returns the cell's native type
func (c Cell) Kind() Kind {
	return c.kind
}

// IsEmpty reports whether the cell is null
func (c Cell) IsEmpty() bool {
	return c.kind == KindEmpty
}

// Float returns the numeric value and whether the cell is a number
func (c Cell) Float() (float64, bool) {
	return c.num, c.kind == KindNumber
}

// Time returns the date value and whether the cell is a date
func (c Cell) Time() (time.Time, bool) {
	return c.date, c.kind == KindDate
}

// String returns the canonical string representation used for rule matching
// and column summaries. Empty cells render as "".
func (c Cell) String() string {
	switch c.kind {
	case KindEmpty:
		return ""
	case KindNumber:
		if c.text != "" {
			return c.text
		}
		return strconv.FormatFloat(c.num, 'f', -1, 64)
	case KindDate:
		if c.text != "" {
			return c.text
		}
		if c.date.Hour() == 0 && c.date.Minute() == 0 && c.date.Second() == 0 && c.date.Nanosecond() == 0 {
			return c.date.Format("2006-01-02")
		}
		return c.date.Format("2006-01-02 15:04:05")
	default:
		return c.text
	}
}
