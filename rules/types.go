package rules

import (
	"strings"

	"github.com/eliaszeru/Excel-splitter/dataset"
)

// Type is the combinator a Rule applies across its clauses
type Type string

const (
	TypeSingle Type = "single"
	TypeAnd    Type = "and"
	TypeOr     Type = "or"
)

// ParseType normalizes a wire rule type. Unknown names are kept as-is so the
// rule can be reported as unsupported when it is evaluated.
func ParseType(s string) Type {
	return Type(strings.ToLower(strings.TrimSpace(s)))
}

// Valid reports whether t is one of the supported combinators
func (t Type) Valid() bool {
	switch t {
	case TypeSingle, TypeAnd, TypeOr:
		return true
	}
	return false
}

// Clause is an atomic (column, value-set) test
type Clause struct {
	Column string
	Values []string
}

// Rule describes one output partition.
// Value1 and Value2 are nil when absent; an empty non-nil slice is a clause
// that matches nothing.
type Rule struct {
	Type       Type
	Column1    string
	Value1     []string
	Column2    string
	Value2     []string
	Additional []Clause // only applied for And/Or
	CustomName string
}

// Clauses returns the rule's clause list in order: primary, secondary (And/Or),
// then the additional clauses (And/Or).
func (r Rule) Clauses() ([]Clause, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	clauses := []Clause{{Column: r.Column1, Values: r.Value1}}
	if r.Type == TypeSingle {
		return clauses, nil
	}

	clauses = append(clauses, Clause{Column: r.Column2, Values: r.Value2})
	clauses = append(clauses, r.Additional...)
	return clauses, nil
}

// MatchResult is the subset of a dataset's rows that satisfies a rule
type MatchResult struct {
	// Indices are the source row positions, ascending
	Indices []int
	Rows    []dataset.Row
}

// Len returns the number of matched rows
func (m *MatchResult) Len() int {
	return len(m.Rows)
}

// Empty reports whether no rows matched
func (m *MatchResult) Empty() bool {
	return len(m.Rows) == 0
}
