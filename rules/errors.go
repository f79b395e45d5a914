package rules

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedRuleType is returned for a rule_type other than single, and, or
	ErrUnsupportedRuleType = errors.New("unsupported rule type")
	// ErrInvalidRule is returned for a rule missing a required column or value
	ErrInvalidRule = errors.New("invalid rule")
	// ErrColumnNotFound matches any *ColumnNotFoundError
	ErrColumnNotFound = errors.New("column not found")
)

// ColumnNotFoundError reports a clause that references a column the dataset lacks
type ColumnNotFoundError struct {
	Column string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("column %q not found", e.Column)
}

// Is lets errors.Is(err, ErrColumnNotFound) match
func (e *ColumnNotFoundError) Is(target error) bool {
	return target == ErrColumnNotFound
}
