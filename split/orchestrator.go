// Package split runs an ordered batch of rules against one dataset and
// writes one output per rule that matched anything.
package split

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eliaszeru/Excel-splitter/dataset"
	"github.com/eliaszeru/Excel-splitter/internal/logger"
	"github.com/eliaszeru/Excel-splitter/output"
	"github.com/eliaszeru/Excel-splitter/rules"
)

var (
	// ErrNoRulesProvided is returned when a run is started with no rules
	ErrNoRulesProvided = errors.New("no rules provided")
	// ErrRulePanicked wraps a panic recovered while processing one rule
	ErrRulePanicked = errors.New("rule processing panicked")
)

// Orchestrator drives a split run. It is safe for concurrent use; each Run
// call is independent.
type Orchestrator struct {
	engine *rules.Engine
	names  *rules.Synthesizer
	writer output.Writer
	config Config
}

// New creates an orchestrator
func New(engine *rules.Engine, names *rules.Synthesizer, writer output.Writer, config Config) *Orchestrator {
	if config.Collision == "" {
		config.Collision = CollisionOverwrite
	}
	return &Orchestrator{
		engine: engine,
		names:  names,
		writer: writer,
		config: config,
	}
}

// WithWriter returns a copy of o that persists outputs through w
func (o *Orchestrator) WithWriter(w output.Writer) *Orchestrator {
	c := *o
	c.writer = w
	return &c
}

func (o *Orchestrator) workers() int {
	if o.config.Workers > 0 {
		return o.config.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// ruleState tracks one rule through a run
type ruleState struct {
	processed bool
	match     *rules.MatchResult
	name      string
	written   bool
	ref       output.Reference
	err       error
}

// Run evaluates every rule against ds and writes the non-empty matches.
// A rule that fails is recorded and the run continues. When ctx is cancelled
// no further rules are started; the manifest then covers only the rules that
// finished, is marked Partial and is returned together with ctx's error.
func (o *Orchestrator) Run(ctx context.Context, ds *dataset.Dataset, rs []rules.Rule) (*Manifest, error) {
	if len(rs) == 0 {
		return nil, ErrNoRulesProvided
	}

	start := time.Now()
	states := make([]ruleState, len(rs))

	o.evaluate(ctx, ds, rs, states)
	o.assignNames(ds, rs, states)
	o.write(ctx, ds, states)

	manifest := assemble(states)

	logger.RulesSkipped.Add(int64(manifest.RulesSkipped))
	logger.RulesFailed.Add(int64(manifest.RulesFailed))
	for _, f := range manifest.Generated {
		logger.FilesWritten.Add(1)
		logger.RowsWritten.Add(int64(f.Rows))
	}
	for _, out := range manifest.Outcomes {
		if out.Status == StatusFailed {
			logger.Warn("Rule failed", "dataset", ds.Name(), "rule_index", out.Index, "name", out.Name, "error", out.Err)
		}
	}

	if manifest.Partial {
		logger.RunsPartial.Add(1)
		logger.Warn("Split run cancelled",
			"dataset", ds.Name(),
			"rules", len(rs),
			"processed", len(manifest.Outcomes),
			"duration_ms", time.Since(start).Milliseconds())
		err := ctx.Err()
		if err == nil {
			err = context.Canceled
		}
		return manifest, err
	}

	logger.RunsCompleted.Add(1)
	logger.Info("Split run completed",
		"dataset", ds.Name(),
		"rules", len(rs),
		"files", manifest.TotalFiles(),
		"skipped", manifest.RulesSkipped,
		"failed", manifest.RulesFailed,
		"duration_ms", time.Since(start).Milliseconds())
	return manifest, nil
}

// evaluate matches every rule on a bounded pool. Rules not started before
// ctx is done stay unprocessed.
func (o *Orchestrator) evaluate(ctx context.Context, ds *dataset.Dataset, rs []rules.Rule, states []ruleState) {
	var g errgroup.Group
	g.SetLimit(o.workers())

	for i := range rs {
		i := i
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			match, err := o.evaluateRule(ds, rs[i])
			states[i].processed = true
			states[i].match = match
			states[i].err = err
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) evaluateRule(ds *dataset.Dataset, r rules.Rule) (match *rules.MatchResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			match = nil
			err = fmt.Errorf("%w: %v", ErrRulePanicked, p)
		}
	}()
	return o.engine.Evaluate(ds, r)
}

// assignNames names every rule that has rows to write, in rule order, so
// collision suffixes are deterministic
func (o *Orchestrator) assignNames(ds *dataset.Dataset, rs []rules.Rule, states []ruleState) {
	ext := output.Ext(ds.Ext())
	used := make(map[string]bool)

	for i := range states {
		st := &states[i]
		if !st.processed || st.err != nil || st.match == nil || st.match.Empty() {
			continue
		}

		base, err := o.synthesize(rs[i])
		if err != nil {
			st.err = err
			continue
		}

		name := base + ext
		if o.config.Collision == CollisionSuffix {
			// Names differing only in case share a file on case-insensitive filesystems
			for n := 2; used[strings.ToLower(name)]; n++ {
				name = base + "_" + strconv.Itoa(n) + ext
			}
		}
		used[strings.ToLower(name)] = true
		st.name = name
	}
}

func (o *Orchestrator) synthesize(r rules.Rule) (name string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrRulePanicked, p)
		}
	}()
	return o.names.Synthesize(r), nil
}

// write persists every named rule. Rules sharing a name are written one after
// another in rule order; distinct names are written concurrently.
func (o *Orchestrator) write(ctx context.Context, ds *dataset.Dataset, states []ruleState) {
	var order []string
	groups := make(map[string][]int)
	for i, st := range states {
		if st.name == "" {
			continue
		}
		if _, exists := groups[st.name]; !exists {
			order = append(order, st.name)
		}
		groups[st.name] = append(groups[st.name], i)
	}

	columns := ds.Columns()

	var g errgroup.Group
	g.SetLimit(o.workers())

	for _, name := range order {
		name := name
		if ctx.Err() != nil {
			break
		}
		indices := groups[name]
		g.Go(func() error {
			for _, i := range indices {
				if ctx.Err() != nil {
					states[i].processed = false
					continue
				}
				ref, err := o.writeRule(ctx, name, columns, states[i].match)
				if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
					states[i].processed = false
					continue
				}
				states[i].written = true
				states[i].ref = ref
				states[i].err = err
			}
			return nil
		})
	}
	_ = g.Wait()

	// Groups never started because ctx ended
	for i := range states {
		if states[i].name != "" && !states[i].written {
			states[i].processed = false
		}
	}
}

func (o *Orchestrator) writeRule(ctx context.Context, name string, columns []string, match *rules.MatchResult) (ref output.Reference, err error) {
	defer func() {
		if p := recover(); p != nil {
			ref = ""
			err = &output.WriteError{Name: name, Err: fmt.Errorf("%w: %v", ErrRulePanicked, p)}
		}
	}()
	return o.writer.Write(ctx, name, columns, match.Rows)
}

// assemble builds the manifest in rule order from the processed rules
func assemble(states []ruleState) *Manifest {
	m := &Manifest{}
	for i, st := range states {
		if !st.processed {
			m.Partial = true
			continue
		}

		out := Outcome{Index: i, Name: st.name}
		if st.match != nil {
			out.Rows = st.match.Len()
		}

		switch {
		case st.err != nil:
			out.Status = StatusFailed
			out.Err = st.err
			m.RulesFailed++
		case st.name == "":
			out.Status = StatusSkipped
			m.RulesSkipped++
		default:
			out.Status = StatusGenerated
			m.Generated = append(m.Generated, GeneratedFile{
				Name:      st.name,
				Rows:      st.match.Len(),
				Reference: st.ref,
			})
		}
		m.Outcomes = append(m.Outcomes, out)
	}
	return m
}
