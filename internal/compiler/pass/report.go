package pass

import (
	"encoding/json"
	"time"

	"github.com/lattice-ir/lattice/internal/compiler/errors"
)

// PassResult is one pass execution in a Report.
type PassResult struct {
	Name       string        `json:"name"`
	Changed    bool          `json:"changed"`
	Matches    int           `json:"matches"`
	Changes    int           `json:"changes"`
	Iterations int           `json:"iterations,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
}

// Report describes a Manager run.
type Report struct {
	Graph        string           `json:"graph"`
	Passes       []PassResult     `json:"passes"`
	Diagnostics  errors.ErrorList `json:"diagnostics,omitempty"`
	InitialNodes int              `json:"initial_nodes"`
	FinalNodes   int              `json:"final_nodes"`
	Duration     time.Duration    `json:"duration_ns"`
}

// Changed reports whether any pass changed the graph.
func (r *Report) Changed() bool {
	for _, p := range r.Passes {
		if p.Changed {
			return true
		}
	}
	return false
}

// Result returns the first execution of the named pass.
func (r *Report) Result(name string) (PassResult, bool) {
	for _, p := range r.Passes {
		if p.Name == name {
			return p, true
		}
	}
	return PassResult{}, false
}

// ToJSON renders the report for tooling.
func (r *Report) ToJSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
