package rules

import (
	"fmt"
	"strings"
)

const (
	// MaxRules caps the number of rules accepted in one split request
	MaxRules = 500
	// MaxAdditionalClauses caps the extra clauses on an And/Or rule
	MaxAdditionalClauses = 32
	// MaxValuesPerClause caps the size of one clause's value set
	MaxValuesPerClause = 1000
)

// Validate checks the rule's shape. It does not look at any dataset.
func (r Rule) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("%w: %q (must be one of: single, and, or)", ErrUnsupportedRuleType, string(r.Type))
	}

	if strings.TrimSpace(r.Column1) == "" {
		return fmt.Errorf("%w: column1 is required", ErrInvalidRule)
	}
	if r.Value1 == nil {
		return fmt.Errorf("%w: value1 is required", ErrInvalidRule)
	}
	if len(r.Value1) > MaxValuesPerClause {
		return fmt.Errorf("%w: value1 has %d values, maximum allowed is %d", ErrInvalidRule, len(r.Value1), MaxValuesPerClause)
	}

	if r.Type == TypeSingle {
		return nil
	}

	if strings.TrimSpace(r.Column2) == "" {
		return fmt.Errorf("%w: column2 is required for %s rules", ErrInvalidRule, r.Type)
	}
	if r.Value2 == nil {
		return fmt.Errorf("%w: value2 is required for %s rules", ErrInvalidRule, r.Type)
	}
	if len(r.Value2) > MaxValuesPerClause {
		return fmt.Errorf("%w: value2 has %d values, maximum allowed is %d", ErrInvalidRule, len(r.Value2), MaxValuesPerClause)
	}

	if len(r.Additional) > MaxAdditionalClauses {
		return fmt.Errorf("%w: %d additional clauses, maximum allowed is %d", ErrInvalidRule, len(r.Additional), MaxAdditionalClauses)
	}
	for i, c := range r.Additional {
		if len(c.Values) > MaxValuesPerClause {
			return fmt.Errorf("%w: additional clause %d has %d values, maximum allowed is %d", ErrInvalidRule, i, len(c.Values), MaxValuesPerClause)
		}
	}

	return nil
}

// ValidateBatch checks limits that apply to a whole request. Individual rule
// problems are not reported here; they fail only their own rule during a run.
func ValidateBatch(rules []Rule) error {
	if len(rules) > MaxRules {
		return fmt.Errorf("request contains %d rules, maximum allowed is %d", len(rules), MaxRules)
	}
	return nil
}
