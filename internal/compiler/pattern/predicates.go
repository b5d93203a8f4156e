package pattern

import (
	"github.com/lattice-ir/lattice/internal/compiler/ir"
)

// Predicate restricts the values a pattern node may bind to.
type Predicate func(out ir.Output) bool

// HasStaticRank accepts values whose rank is known.
func HasStaticRank() Predicate {
	return func(out ir.Output) bool { return out.Shape().RankStatic() }
}

// HasStaticShape accepts values whose every dimension is known.
func HasStaticShape() Predicate {
	return func(out ir.Output) bool { return out.Shape().IsStatic() }
}

// ConsumersCount accepts values read by exactly n inputs.
func ConsumersCount(n int) Predicate {
	return func(out ir.Output) bool { return len(out.Targets()) == n }
}

// ElementType accepts values of element type et.
func ElementType(et ir.ElementType) Predicate {
	return func(out ir.Output) bool { return out.ElementType() == et }
}

// And accepts values every predicate accepts.
func And(preds ...Predicate) Predicate {
	return func(out ir.Output) bool {
		for _, p := range preds {
			if !p(out) {
				return false
			}
		}
		return true
	}
}
