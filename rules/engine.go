package rules

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/eliaszeru/Excel-splitter/dataset"
)

// costLimit bounds the work of one row evaluation. It comfortably covers the
// largest rule Validate accepts.
const costLimit = 1000000

// Engine evaluates rules against datasets.
// Every rule shape (type and clause count) is compiled once to a CEL program
// over three variables: present[i] reports a non-empty cell for clause i,
// cells[i] is that cell's string form and values[i] the clause's value set.
// Compiled programs are cached and shared; Engine is safe for concurrent use.
type Engine struct {
	env      *cel.Env
	programs map[string]cel.Program // shape key -> compiled program
	mu       sync.RWMutex
}

// NewEngine creates an engine with the clause-matching CEL environment
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("present", cel.ListType(cel.BoolType)),
		cel.Variable("cells", cel.ListType(cel.StringType)),
		cel.Variable("values", cel.ListType(cel.ListType(cel.StringType))),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// expression builds the predicate for a rule shape. And rules conjoin every
// clause, Or rules take the union over every clause.
func expression(t Type, clauses int) string {
	terms := make([]string, clauses)
	for i := range terms {
		terms[i] = fmt.Sprintf("(present[%d] && cells[%d] in values[%d])", i, i, i)
	}
	op := " && "
	if t == TypeOr {
		op = " || "
	}
	return strings.Join(terms, op)
}

// program returns the cached program for a shape, compiling it on first use
func (en *Engine) program(t Type, clauses int) (cel.Program, error) {
	key := fmt.Sprintf("%s/%d", t, clauses)

	en.mu.RLock()
	prog, exists := en.programs[key]
	en.mu.RUnlock()
	if exists {
		return prog, nil
	}

	// Compilation happens under the write lock so the environment is never
	// used from two goroutines at once.
	en.mu.Lock()
	defer en.mu.Unlock()

	if prog, exists := en.programs[key]; exists {
		return prog, nil
	}

	ast, issues := en.env.Compile(expression(t, clauses))
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	prog, err := en.env.Program(ast, cel.CostLimit(costLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}

	en.programs[key] = prog
	return prog, nil
}

// Evaluate returns the rows of ds that satisfy r, in source order.
// A cell matches a clause when it is non-empty and its string form is in the
// clause's value set; numeric and date cells are compared by that string form.
// The dataset is only read.
func (en *Engine) Evaluate(ds *dataset.Dataset, r Rule) (*MatchResult, error) {
	clauses, err := r.Clauses()
	if err != nil {
		return nil, err
	}

	cols := make([]int, len(clauses))
	values := make([][]string, len(clauses))
	for i, c := range clauses {
		idx, ok := ds.ColumnIndex(c.Column)
		if !ok {
			return nil, &ColumnNotFoundError{Column: c.Column}
		}
		cols[i] = idx
		values[i] = c.Values
	}

	prog, err := en.program(r.Type, len(clauses))
	if err != nil {
		return nil, err
	}

	present := make([]bool, len(clauses))
	cells := make([]string, len(clauses))
	activation := map[string]any{
		"present": present,
		"cells":   cells,
		"values":  values,
	}

	result := &MatchResult{}
	for i := 0; i < ds.Len(); i++ {
		row := ds.Row(i)
		for j, col := range cols {
			present[j] = !row[col].IsEmpty()
			cells[j] = row[col].String()
		}

		out, _, err := prog.Eval(activation)
		if err != nil {
			return nil, fmt.Errorf("evaluate row %d: %w", i, err)
		}

		if matched, ok := out.Value().(bool); ok && matched {
			result.Indices = append(result.Indices, i)
			result.Rows = append(result.Rows, row)
		}
	}

	return result, nil
}
