package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Values is a wire value list. It accepts a single string or number as well
// as an array of them; a scalar becomes a one-element list.
type Values []string

// UnmarshalJSON implements json.Unmarshaler
func (v *Values) UnmarshalJSON(b []byte) error {
	vals, err := parseValues(b)
	if err != nil {
		return err
	}
	*v = vals
	return nil
}

// parseValues returns nil for JSON null and a non-nil slice otherwise
func parseValues(b []byte) ([]string, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil, nil
	}

	if b[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(b, &raw); err != nil {
			return nil, err
		}
		vals := make([]string, 0, len(raw))
		for i, item := range raw {
			s, err := scalar(item)
			if err != nil {
				return nil, fmt.Errorf("value %d: %w", i, err)
			}
			vals = append(vals, s)
		}
		return vals, nil
	}

	s, err := scalar(b)
	if err != nil {
		return nil, err
	}
	return []string{s}, nil
}

// scalar decodes a JSON string or number into its string form
func scalar(b []byte) (string, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return "", fmt.Errorf("empty value")
	}
	switch {
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", err
		}
		return s, nil
	case b[0] == '-' || (b[0] >= '0' && b[0] <= '9'):
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return "", err
		}
		return n.String(), nil
	default:
		return "", fmt.Errorf("expected string or number, got %s", b)
	}
}

// Descriptor is the JSON shape clients send for one rule
type Descriptor struct {
	RuleType          string            `json:"rule_type"`
	Column1           string            `json:"column1"`
	Value1            Values            `json:"value1"`
	Column2           string            `json:"column2,omitempty"`
	Value2            Values            `json:"value2,omitempty"`
	AdditionalColumns []string          `json:"additional_columns,omitempty"`
	AdditionalValues  []json.RawMessage `json:"additional_values,omitempty"`
	CustomName        string            `json:"custom_name,omitempty"`
}

// Rule converts the descriptor into a Rule. Additional columns and values are
// paired by position; pairs past the shorter list are ignored and a pair with
// a blank column or unparseable values is skipped for that index only.
func (d Descriptor) Rule() Rule {
	r := Rule{
		Type:       ParseType(d.RuleType),
		Column1:    d.Column1,
		Value1:     []string(d.Value1),
		Column2:    d.Column2,
		Value2:     []string(d.Value2),
		CustomName: strings.TrimSpace(d.CustomName),
	}

	n := min(len(d.AdditionalColumns), len(d.AdditionalValues))
	for i := 0; i < n; i++ {
		col := d.AdditionalColumns[i]
		if strings.TrimSpace(col) == "" {
			continue
		}
		vals, err := parseValues(d.AdditionalValues[i])
		if err != nil || vals == nil {
			continue
		}
		r.Additional = append(r.Additional, Clause{Column: col, Values: vals})
	}

	return r
}

// Descriptor converts a Rule back to its wire shape
func (r Rule) Descriptor() Descriptor {
	d := Descriptor{
		RuleType:   string(r.Type),
		Column1:    r.Column1,
		Value1:     Values(r.Value1),
		Column2:    r.Column2,
		Value2:     Values(r.Value2),
		CustomName: r.CustomName,
	}
	for _, c := range r.Additional {
		raw, err := json.Marshal(c.Values)
		if err != nil {
			continue
		}
		d.AdditionalColumns = append(d.AdditionalColumns, c.Column)
		d.AdditionalValues = append(d.AdditionalValues, raw)
	}
	return d
}

// FromDescriptors converts a batch of descriptors, preserving order
func FromDescriptors(ds []Descriptor) []Rule {
	out := make([]Rule, len(ds))
	for i, d := range ds {
		out[i] = d.Rule()
	}
	return out
}
