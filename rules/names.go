package rules

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// maxNameBytes keeps synthesized names well under common filesystem limits
const maxNameBytes = 200

// Synthesizer derives output names (without extension) from rules
type Synthesizer struct {
	// Now and NewID feed the fallback name used for unrecognised rule types
	Now   func() time.Time
	NewID func() string
}

// NewSynthesizer returns a Synthesizer using the wall clock and random UUIDs
func NewSynthesizer() *Synthesizer {
	return &Synthesizer{
		Now:   time.Now,
		NewID: uuid.NewString,
	}
}

// Synthesize returns the filesystem-safe output name for r.
// A custom name wins when it survives sanitization. Otherwise the name is
// built from the clause list: "{c1}_{v1}" for single rules,
// "{c1}_{v1}_{c2}_{v2}[_{c}_{v}...]" for and rules and
// "{c1}_{v1}_OR_{c2}_{v2}[_OR_{c}_{v}...]" for or rules, values joined with "_".
// For known rule types the result depends only on r.
func (s *Synthesizer) Synthesize(r Rule) string {
	if name := Sanitize(r.CustomName); name != "" {
		return name
	}

	var b strings.Builder
	switch r.Type {
	case TypeSingle:
		writeClause(&b, r.Column1, r.Value1)
	case TypeAnd, TypeOr:
		sep := "_"
		if r.Type == TypeOr {
			sep = "_OR_"
		}
		writeClause(&b, r.Column1, r.Value1)
		b.WriteString(sep)
		writeClause(&b, r.Column2, r.Value2)
		for _, c := range r.Additional {
			b.WriteString(sep)
			writeClause(&b, c.Column, c.Values)
		}
	}

	if name := Sanitize(b.String()); name != "" {
		return name
	}
	return s.fallback()
}

func writeClause(b *strings.Builder, column string, values []string) {
	b.WriteString(column)
	b.WriteByte('_')
	b.WriteString(strings.Join(values, "_"))
}

// fallback names an output by time plus a short random id
func (s *Synthesizer) fallback() string {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	newID := uuid.NewString
	if s.NewID != nil {
		newID = s.NewID
	}

	id := strings.ReplaceAll(newID(), "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	return "split_" + now().Format("20060102_150405") + "_" + id
}

// Sanitize makes name safe as a single path segment. Path separators, NUL,
// control characters and characters reserved on common filesystems become
// "_"; surrounding whitespace is trimmed and the result is capped at 200 bytes.
// It returns "" when nothing usable remains.
func Sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == 0:
			b.WriteByte('_')
		case unicode.IsControl(r):
			b.WriteByte('_')
		case strings.ContainsRune(`:*?"<>|`, r):
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}

	s := strings.TrimSpace(b.String())
	if len(s) > maxNameBytes {
		s = s[:maxNameBytes]
		for !utf8.ValidString(s) {
			s = s[:len(s)-1]
		}
		s = strings.TrimSpace(s)
	}

	if s == "." || s == ".." {
		return ""
	}
	return s
}
