// Command split applies a JSON rules file to a local spreadsheet and writes
// one output file per matching rule.
//
//	split -input products.xlsx -rules rules.json -out ./out
//
// The rules file holds a JSON array of rules in the same shape the HTTP API
// accepts. The run manifest is printed to stdout as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/eliaszeru/Excel-splitter/dataset"
	"github.com/eliaszeru/Excel-splitter/internal/logger"
	"github.com/eliaszeru/Excel-splitter/output"
	"github.com/eliaszeru/Excel-splitter/rules"
	"github.com/eliaszeru/Excel-splitter/split"
)

type options struct {
	input     string
	rulesFile string
	outDir    string
	workers   int
	collision string
	logLevel  string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("split", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.input, "input", "", "Spreadsheet to split, .xlsx or .csv (required)")
	fs.StringVar(&opts.rulesFile, "rules", "", "JSON file holding the rule list (required)")
	fs.StringVar(&opts.outDir, "out", "output", "Directory the split files are written to")
	fs.IntVar(&opts.workers, "workers", 0, "Rules evaluated concurrently (0 = GOMAXPROCS)")
	fs.StringVar(&opts.collision, "collision", string(split.CollisionOverwrite), "Name collision policy: overwrite or suffix")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level (defaults to LOG_LEVEL)")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.input == "" || opts.rulesFile == "" {
		return opts, errors.New("-input and -rules are required")
	}
	if opts.workers < 0 {
		return opts, errors.New("-workers must not be negative")
	}
	return opts, nil
}

func readRules(path string) ([]rules.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var descriptors []rules.Descriptor
	if err := json.Unmarshal(data, &descriptors); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	rs := rules.FromDescriptors(descriptors)
	if err := rules.ValidateBatch(rs); err != nil {
		return nil, err
	}
	return rs, nil
}

// run performs one split and writes the manifest to stdout
func run(ctx context.Context, opts options, stdout io.Writer) error {
	if opts.logLevel != "" {
		level, err := logger.ParseLevel(opts.logLevel)
		if err != nil {
			return err
		}
		logger.SetLevel(level)
	}

	policy, err := split.ParseCollisionPolicy(opts.collision)
	if err != nil {
		return err
	}

	rs, err := readRules(opts.rulesFile)
	if err != nil {
		return fmt.Errorf("invalid rules: %w", err)
	}

	ds, err := dataset.Open(ctx, opts.input)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	writer, err := output.New(&output.Options{OutputDir: opts.outDir})
	if err != nil {
		return err
	}
	engine, err := rules.NewEngine()
	if err != nil {
		return err
	}

	orchestrator := split.New(engine, rules.NewSynthesizer(), writer, split.Config{
		Workers:   opts.workers,
		Collision: policy,
	})

	manifest, runErr := orchestrator.Run(ctx, ds, rs)
	if manifest == nil {
		return runErr
	}

	resp := manifest.Response()
	if runErr != nil {
		resp.Success = false
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return err
	}
	return runErr
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		logger.Error("Split failed", "input", opts.input, "error", err)
		os.Exit(1)
	}
}
