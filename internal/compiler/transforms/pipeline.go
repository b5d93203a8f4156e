package transforms

import (
	"go.uber.org/zap"

	"github.com/lattice-ir/lattice/internal/compiler/errors"
	"github.com/lattice-ir/lattice/internal/compiler/fold"
	"github.com/lattice-ir/lattice/internal/compiler/lpt"
	"github.com/lattice-ir/lattice/internal/compiler/pass"
	"github.com/lattice-ir/lattice/internal/compiler/rtti"
	"github.com/lattice-ir/lattice/internal/telemetry"
)

// Identities of the rewrite groups in the default pipeline.
var (
	PipelineType     = rtti.New("Pipeline", 0, nil)
	LowPrecisionType = rtti.New("LowPrecision", 0, nil)
	SimplifyType     = rtti.New("Simplify", 0, nil)
)

// Options configures the default pipeline.
type Options struct {
	MaxIterations     int
	Order             pass.Order
	FoldMaxElements   int
	PerPassValidation bool
	// Disabled names passes to switch off, e.g. "MultiplyFusion".
	Disabled []string

	Logger  *zap.Logger
	Metrics *telemetry.Metrics
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		MaxIterations:     pass.DefaultMaxIterations,
		Order:             pass.TopDown,
		FoldMaxElements:   fold.DefaultMaxElements,
		PerPassValidation: true,
	}
}

// NewPassRegistry returns a sealed registry of every pass the default
// pipeline can run, each with a factory for a standalone instance.
func NewPassRegistry() *rtti.Registry {
	reg := rtti.NewRegistry()
	reg.MustRegister(ConstantFoldingType, func() rtti.Typed { return NewConstantFolding(nil) })
	reg.MustRegister(LowPrecisionType, func() rtti.Typed {
		return pass.NewGraphRewrite(LowPrecisionType, lpt.NewAddTransformation(nil).AsMatcherPass())
	})
	reg.MustRegister(lpt.AddTransformationType, func() rtti.Typed { return lpt.NewAddTransformation(nil) })
	reg.MustRegister(SimplifyType, func() rtti.Typed {
		return pass.NewGraphRewrite(SimplifyType, NewMultiplyFusion(nil).AsMatcherPass())
	})
	reg.MustRegister(MultiplyFusionType, func() rtti.Typed { return NewMultiplyFusion(nil) })
	reg.MustRegister(pass.ValidateType, func() rtti.Typed { return pass.NewValidate() })
	reg.Seal()
	return reg
}

// NewPipeline builds the default pipeline:
//
//	ConstantFolding -> LowPrecision{AddTransformation} -> Simplify{MultiplyFusion} -> Validate
//
// One evaluator, and so one fold cache, is shared by every pass.
func NewPipeline(opts Options, extra ...pass.Option) (*pass.Manager, error) {
	reg := NewPassRegistry()
	cfg := pass.NewPassConfig()
	for _, name := range opts.Disabled {
		entry, ok := reg.LookupLatest(name)
		if !ok {
			return nil, errors.NewUnknownType("pass", name).
				WithSuggestion("Run 'lattice passes' to list the available passes")
		}
		cfg.Disable(entry.Info)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ev := fold.NewEvaluator(opts.FoldMaxElements)

	folding := NewConstantFolding(ev)
	folding.Logger = logger.Named("fold")
	folding.Metrics = opts.Metrics

	lowPrecision := pass.NewGraphRewrite(LowPrecisionType, lpt.NewAddTransformation(ev).AsMatcherPass())
	simplify := pass.NewGraphRewrite(SimplifyType, NewMultiplyFusion(ev).AsMatcherPass())
	for _, rw := range []*pass.GraphRewrite{lowPrecision, simplify} {
		rw.Order = opts.Order
		if opts.MaxIterations > 0 {
			rw.MaxIterations = opts.MaxIterations
		}
	}

	options := []pass.Option{
		pass.WithName(PipelineType.Name()),
		pass.WithConfig(cfg),
		pass.WithLogger(logger),
		pass.WithMetrics(opts.Metrics),
		pass.WithPerPassValidation(opts.PerPassValidation),
	}
	m := pass.NewManager(append(options, extra...)...)
	for _, p := range []pass.Pass{folding, lowPrecision, simplify, pass.NewValidate()} {
		if err := m.Register(p); err != nil {
			return nil, err
		}
	}
	return m, nil
}
