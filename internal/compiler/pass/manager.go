package pass

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/lattice-ir/lattice/internal/compiler/errors"
	"github.com/lattice-ir/lattice/internal/compiler/ir"
	"github.com/lattice-ir/lattice/internal/compiler/rtti"
	"github.com/lattice-ir/lattice/internal/telemetry"
)

// ManagerType identifies a Manager built without WithName.
var ManagerType = rtti.New("Manager", 0, nil)

// Option configures a Manager.
type Option func(*Manager)

// WithName gives the manager its own pass identity, so it can be nested and
// disabled like any other pass.
func WithName(name string) Option {
	return func(m *Manager) { m.info = rtti.New(name, 0, nil) }
}

// WithLogger sets the logger passes report to.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithTracer sets the tracer that records one span per pass.
func WithTracer(tracer trace.Tracer) Option {
	return func(m *Manager) {
		if tracer != nil {
			m.tracer = tracer
		}
	}
}

// WithMetrics sets the prometheus pass metrics.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithPerPassValidation toggles graph validation after every pass.
func WithPerPassValidation(enabled bool) Option {
	return func(m *Manager) { m.PerPassValidation = enabled }
}

// WithConfig replaces the PassConfig template.
func WithConfig(cfg *PassConfig) Option {
	return func(m *Manager) {
		if cfg != nil {
			m.config = cfg
		}
	}
}

// Manager runs an ordered list of passes over a graph. Every run works on a
// fresh copy of the manager's PassConfig template and holds exclusive
// ownership of the graph until it returns. A Manager runs one graph at a
// time; independent graphs can be transformed concurrently by separate
// managers.
type Manager struct {
	info   *rtti.TypeInfo
	passes []Pass
	keys   map[rtti.Key]bool
	config *PassConfig

	logger  *zap.Logger
	tracer  trace.Tracer
	metrics *telemetry.Metrics

	// PerPassValidation re-runs inference after each pass and aborts the run
	// on the first violation.
	PerPassValidation bool

	runMu sync.Mutex
}

// NewManager creates an empty manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		info:              ManagerType,
		keys:              make(map[rtti.Key]bool),
		config:            NewPassConfig(),
		logger:            zap.NewNop(),
		tracer:            noop.NewTracerProvider().Tracer("noop"),
		PerPassValidation: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) TypeInfo() *rtti.TypeInfo { return m.info }
func (m *Manager) Name() string { return m.info.Name() }

// Config returns the PassConfig template later runs are created from.
func (m *Manager) Config() *PassConfig { return m.config }

// Passes returns the registered passes in order.
func (m *Manager) Passes() []Pass { return append([]Pass(nil), m.passes...) }

// Register appends p. A second pass with the same discrete type is a
// configuration error.
func (m *Manager) Register(p Pass) error {
	key := p.TypeInfo().Key()
	if m.keys[key] {
		return errors.NewDuplicatePass(p.TypeInfo().String())
	}
	m.keys[key] = true
	m.passes = append(m.passes, p)
	return nil
}

// MustRegister is Register for pipeline construction at startup.
func (m *Manager) MustRegister(passes ...Pass) *Manager {
	for _, p := range passes {
		if err := m.Register(p); err != nil {
			panic(err)
		}
	}
	return m
}

// RunPasses runs every enabled pass over g in order. Fatal errors abort the
// run and are returned together with the report built so far.
func (m *Manager) RunPasses(ctx context.Context, g *ir.Graph) (*Report, error) {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	owner := m.Name() + "-" + uuid.NewString()
	if err := g.Acquire(owner); err != nil {
		return nil, err
	}
	defer g.Release(owner)

	cfg := m.config.Clone()
	ctx = withRunState(ctx, &runState{owner: owner, config: cfg})

	ctx, span := m.tracer.Start(ctx, "lattice.run",
		trace.WithAttributes(
			attribute.String("lattice.graph", g.Name()),
			attribute.Int("lattice.passes", len(m.passes)),
		))
	defer span.End()

	report := &Report{Graph: g.Name(), InitialNodes: g.Len()}
	start := time.Now()

	err := m.runAll(ctx, g, report)
	if err == nil && cfg.ForbidDisabledOps {
		err = CheckDisabledOps(g, cfg)
	}

	report.Duration = time.Since(start)
	report.FinalNodes = g.Len()
	span.SetAttributes(attribute.Int("lattice.final_nodes", report.FinalNodes))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.logger.Error("pass run failed", zap.String("graph", g.Name()), zap.Error(err))
		return report, err
	}

	m.logger.Info("pass run finished",
		zap.String("graph", g.Name()),
		zap.Int("passes", len(report.Passes)),
		zap.Int("initial_nodes", report.InitialNodes),
		zap.Int("final_nodes", report.FinalNodes),
		zap.Duration("duration", report.Duration))
	return report, nil
}

func (m *Manager) runAll(ctx context.Context, g *ir.Graph, report *Report) error {
	cfg := ConfigFrom(ctx)
	for _, p := range m.passes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if cfg.IsDisabled(p.TypeInfo()) {
			m.logger.Debug("pass disabled", zap.String("pass", p.Name()))
			continue
		}
		if err := m.runOne(ctx, g, p, report); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) runOne(ctx context.Context, g *ir.Graph, p Pass, report *Report) error {
	name := p.Name()
	ctx, span := m.tracer.Start(ctx, "pass."+name,
		trace.WithAttributes(attribute.String("lattice.pass", name)))
	defer span.End()

	start := time.Now()
	var stats passStats
	var changed bool
	var err error

	switch pp := p.(type) {
	case *Manager:
		return pp.runAll(ctx, g, report)
	case statsPass:
		stats, err = pp.runWithStats(ctx, g, m.logger)
		changed = stats.changes > 0
	case GraphPass:
		changed, err = pp.RunOnGraph(ctx, g)
		if changed {
			stats.changes = 1
		}
	default:
		err = errors.NewInvalidConfig("passes", "pass "+name+" cannot run on a graph")
	}
	elapsed := time.Since(start)

	report.Passes = append(report.Passes, PassResult{
		Name:       name,
		Changed:    changed,
		Matches:    stats.matches,
		Changes:    stats.changes,
		Iterations: stats.iterations,
		Duration:   elapsed,
	})
	report.Diagnostics = append(report.Diagnostics, stats.diagnostics...)
	for range stats.diagnostics {
		m.metrics.ObserveNonConvergence(name)
	}
	m.metrics.ObservePass(name, stats.matches, stats.changes, elapsed)
	span.SetAttributes(
		attribute.Bool("lattice.changed", changed),
		attribute.Int("lattice.matches", stats.matches),
		attribute.Int("lattice.changes", stats.changes))

	if err == nil && m.PerPassValidation && p.TypeInfo() != ValidateType {
		err = g.Validate()
	}
	if err != nil {
		return m.fail(span, name, err, report)
	}

	m.logger.Debug("pass finished",
		zap.String("pass", name),
		zap.Bool("changed", changed),
		zap.Int("matches", stats.matches),
		zap.Duration("duration", elapsed))
	return nil
}

// fail records err against the pass. Fatal errors are returned; anything else
// becomes a report diagnostic and the run goes on.
func (m *Manager) fail(span trace.Span, name string, err error, report *Report) error {
	var ce *errors.CompilerError
	if stderrors.As(err, &ce) && ce.Pass == "" {
		ce.WithPass(name)
	}
	m.metrics.ObserveError(name, string(errors.CategoryOf(err)))
	span.RecordError(err)

	if !errors.IsFatal(err) && ce != nil {
		report.Diagnostics = append(report.Diagnostics, ce)
		m.logger.Warn("pass reported a diagnostic", zap.String("pass", name), zap.Error(err))
		return nil
	}
	span.SetStatus(codes.Error, err.Error())
	return err
}
