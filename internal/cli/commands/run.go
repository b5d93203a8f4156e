package commands

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lattice-ir/lattice/internal/cli/config"
	"github.com/lattice-ir/lattice/internal/cli/ui"
	"github.com/lattice-ir/lattice/internal/compiler/errors"
	"github.com/lattice-ir/lattice/internal/compiler/loader"
	"github.com/lattice-ir/lattice/internal/compiler/pass"
	"github.com/lattice-ir/lattice/internal/compiler/rtti"
	"github.com/lattice-ir/lattice/internal/compiler/transforms"
	"github.com/lattice-ir/lattice/internal/telemetry"
)

type runOptions struct {
	configPath string
	jsonOutput bool
	outDir     string
	stats      bool
	disable    []string
}

// graphRun is the outcome of one graph.
type graphRun struct {
	Path   string       `json:"path"`
	Report *pass.Report `json:"report,omitempty"`
	Error  string       `json:"error,omitempty"`
	Output string       `json:"output,omitempty"`

	err error
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <graph.yaml>...",
		Short: "Run the rewrite pipeline over graph descriptions",
		Long: `Load each graph description, run the default pipeline over it and report
what every pass did.

The pipeline is:
  ConstantFolding -> LowPrecision{AddTransformation} -> Simplify{MultiplyFusion} -> Validate

Graphs are independent and run concurrently.

Examples:
  lattice run model.yaml
  lattice run a.yaml b.yaml --json
  lattice run model.yaml --disable MultiplyFusion --out build/
  lattice run model.yaml --config lattice.yml --stats`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default: ./lattice.yml if present)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print reports as JSON")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "Directory to write the transformed graphs to")
	cmd.Flags().BoolVar(&opts.stats, "stats", false, "Print pass metrics after the run")
	cmd.Flags().StringSliceVar(&opts.disable, "disable", nil, "Pass to disable (repeatable)")

	return cmd
}

func runRun(cmd *cobra.Command, args []string, opts *runOptions) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return reportConfigError(stderr, err)
	}
	cfg.Passes.Disabled = append(cfg.Passes.Disabled, opts.disable...)

	logger, err := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprint(stderr, ui.ConfigError(err.Error(), false))
		return reportedError{err}
	}
	defer func() { _ = logger.Sync() }()

	provider, err := telemetry.NewProvider(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(ctx)
	}()

	var metrics *telemetry.Metrics
	registry := prometheus.NewRegistry()
	if opts.stats {
		metrics = telemetry.NewMetrics(registry)
	}

	// Surface unknown --disable names before any graph is loaded
	pipelineOpts := cfg.PipelineOptions(logger, metrics)
	if _, err := transforms.NewPipeline(pipelineOpts); err != nil {
		return reportConfigError(stderr, err)
	}

	ops, err := loader.NewOpRegistry()
	if err != nil {
		return err
	}

	if opts.outDir != "" {
		if err := os.MkdirAll(opts.outDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	runs := make([]graphRun, len(args))
	g, ctx := errgroup.WithContext(parent)
	for i, path := range args {
		i, path := i, path
		g.Go(func() error {
			runs[i] = runGraph(ctx, path, ops, pipelineOpts, provider, opts.outDir, logger)
			// graphs are independent, one failing must not cancel the others
			return nil
		})
	}
	_ = g.Wait()

	if opts.jsonOutput {
		if err := writeJSON(stdout, runs); err != nil {
			return err
		}
	} else {
		for _, r := range runs {
			printRun(stdout, stderr, r)
		}
	}
	if opts.stats {
		printStats(stdout, registry)
	}

	failed := 0
	for _, r := range runs {
		if r.err != nil {
			failed++
		}
	}
	if failed > 0 {
		return reportedError{fmt.Errorf("%d of %d graph(s) failed", failed, len(runs))}
	}
	return nil
}

func runGraph(
	ctx context.Context,
	path string,
	ops *rtti.Registry,
	opts transforms.Options,
	provider *telemetry.Provider,
	outDir string,
	logger *zap.Logger,
) graphRun {
	run := graphRun{Path: path}
	fail := func(err error) graphRun {
		run.err = err
		run.Error = err.Error()
		logger.Error("graph failed", zap.String("path", path), zap.Error(err))
		return run
	}

	g, err := loader.LoadFile(path, ops)
	if err != nil {
		return fail(err)
	}

	// one manager per graph so the runs do not serialize on each other
	m, err := transforms.NewPipeline(opts, pass.WithTracer(provider.Tracer()))
	if err != nil {
		return fail(err)
	}

	report, err := m.RunPasses(ctx, g)
	run.Report = report
	if err != nil {
		return fail(err)
	}

	if outDir != "" {
		out := filepath.Join(outDir, filepath.Base(path))
		if err := loader.WriteFile(out, g); err != nil {
			return fail(err)
		}
		run.Output = out
	}
	return run
}

func reportConfigError(w io.Writer, err error) error {
	var ce *errors.CompilerError
	if stderrors.As(err, &ce) && stderrors.Is(err, errors.UnknownType) {
		name := ce.Message
		if start, end := strings.Index(name, "'"), strings.LastIndex(name, "'"); start >= 0 && end > start {
			name = name[start+1 : end]
		}
		fmt.Fprint(w, ui.UnknownNameError("pass", name, passNames(), false))
		return reportedError{err}
	}
	fmt.Fprint(w, ui.ConfigError(err.Error(), false))
	return reportedError{err}
}

func passNames() []string {
	var names []string
	for _, info := range transforms.NewPassRegistry().Types() {
		names = append(names, info.Name())
	}
	return names
}

func writeJSON(w io.Writer, runs []graphRun) error {
	data, err := json.MarshalIndent(runs, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printRun(stdout, stderr io.Writer, r graphRun) {
	if r.Report != nil {
		ui.Header(stdout, r.Report.Graph+" ("+r.Path+")", false)

		table := ui.NewTable(stdout, false, "Pass", "Changed", "Matches", "Changes", "Iterations", "Duration").
			AlignRight(2, 3, 4, 5)
		for _, p := range r.Report.Passes {
			iterations := ""
			if p.Iterations > 0 {
				iterations = strconv.Itoa(p.Iterations)
			}
			table.AddRow(p.Name, yesNo(p.Changed), strconv.Itoa(p.Matches), strconv.Itoa(p.Changes),
				iterations, p.Duration.Round(time.Microsecond).String())
		}
		table.Render()
		fmt.Fprintln(stdout)

		kv := ui.NewKeyValueTable(stdout, false)
		kv.AddRow("nodes", fmt.Sprintf("%d -> %d", r.Report.InitialNodes, r.Report.FinalNodes))
		kv.AddRow("duration", r.Report.Duration.Round(time.Microsecond).String())
		if r.Output != "" {
			kv.AddRow("written", r.Output)
		}
		kv.Render()

		for _, d := range r.Report.Diagnostics {
			fmt.Fprint(stderr, ui.Diagnostic(d, false))
		}
	}

	if r.err != nil {
		var ce *errors.CompilerError
		if stderrors.As(r.err, &ce) {
			fmt.Fprint(stderr, ui.Diagnostic(ce, false))
		} else {
			ui.WriteError(stderr, ui.ErrorOptions{
				Level:   ui.ErrorLevelError,
				Context: "RUN FAILED",
				Problem: r.err.Error(),
			})
		}
		return
	}
	ui.WriteSuccess(stdout, r.Path, false)
	fmt.Fprintln(stdout)
}

func printStats(w io.Writer, registry *prometheus.Registry) {
	families, err := registry.Gather()
	if err != nil {
		fmt.Fprint(w, ui.Warning("metrics unavailable: "+err.Error(), false))
		return
	}

	ui.Header(w, "Metrics", false)
	table := ui.NewTable(w, false, "Metric", "Labels", "Value").AlignRight(2)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			sort.Strings(labels)

			var value string
			switch {
			case m.GetCounter() != nil:
				value = strconv.FormatFloat(m.GetCounter().GetValue(), 'g', -1, 64)
			case m.GetHistogram() != nil:
				value = fmt.Sprintf("%d obs", m.GetHistogram().GetSampleCount())
			case m.GetGauge() != nil:
				value = strconv.FormatFloat(m.GetGauge().GetValue(), 'g', -1, 64)
			}
			table.AddRow(mf.GetName(), strings.Join(labels, ","), value)
		}
	}
	table.Render()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
