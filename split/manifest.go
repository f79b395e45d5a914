package split

import (
	"github.com/eliaszeru/Excel-splitter/output"
)

// Status is what happened to one rule during a run
type Status string

const (
	StatusGenerated Status = "generated"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// GeneratedFile records one written output
type GeneratedFile struct {
	Name      string           `json:"filename"`
	Rows      int              `json:"rows"`
	Reference output.Reference `json:"download_url"`
}

// Outcome is the per-rule result of a run
type Outcome struct {
	Index  int
	Status Status
	// Name is the output file name; empty unless a name was assigned
	Name string
	Rows int
	Err  error
}

// Manifest is the result of a run. Generated and Outcomes are in rule order.
type Manifest struct {
	Generated    []GeneratedFile
	RulesSkipped int
	RulesFailed  int
	Outcomes     []Outcome
	// Partial is set when the run was cancelled before every rule was processed
	Partial bool
}

// TotalFiles returns the number of generated file records
func (m *Manifest) TotalFiles() int {
	return len(m.Generated)
}

// Failures returns the failed outcomes in rule order
func (m *Manifest) Failures() []Outcome {
	var failed []Outcome
	for _, o := range m.Outcomes {
		if o.Status == StatusFailed {
			failed = append(failed, o)
		}
	}
	return failed
}

// Failure is the wire form of a failed rule
type Failure struct {
	RuleIndex int    `json:"rule_index"`
	Name      string `json:"name,omitempty"`
	Error     string `json:"error"`
}

// Response is the JSON body returned for a completed run
type Response struct {
	Success      bool            `json:"success"`
	Files        []GeneratedFile `json:"files"`
	TotalFiles   int             `json:"total_files"`
	RulesSkipped int             `json:"rules_skipped"`
	RulesFailed  int             `json:"rules_failed"`
	Failures     []Failure       `json:"failures,omitempty"`
	Partial      bool            `json:"partial,omitempty"`
}

// Response converts the manifest to its wire form
func (m *Manifest) Response() Response {
	files := m.Generated
	if files == nil {
		files = []GeneratedFile{}
	}

	var failures []Failure
	for _, o := range m.Failures() {
		f := Failure{RuleIndex: o.Index, Name: o.Name}
		if o.Err != nil {
			f.Error = o.Err.Error()
		}
		failures = append(failures, f)
	}

	return Response{
		Success:      true,
		Files:        files,
		TotalFiles:   len(m.Generated),
		RulesSkipped: m.RulesSkipped,
		RulesFailed:  m.RulesFailed,
		Failures:     failures,
		Partial:      m.Partial,
	}
}
