package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lattice-ir/lattice/internal/cli/ui"
	"github.com/lattice-ir/lattice/internal/compiler/transforms"
)

// passSummaries describes the registered passes for listings.
var passSummaries = map[string]string{
	"ConstantFolding":   "replace compute nodes fed only by constants with their value",
	"LowPrecision":      "fixed-point group running the low precision rewrites",
	"AddTransformation": "move dequantization scales and shifts across an Add",
	"Simplify":          "fixed-point group running the algebraic simplifications",
	"MultiplyFusion":    "fold Multiply(Multiply(x, c1), c2) into Multiply(x, c1*c2)",
	"Validate":          "re-infer every node and fail on type or shape violations",
}

type passEntry struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Summary string `json:"summary"`
}

// NewPassesCommand creates the passes command.
func NewPassesCommand() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "passes",
		Short: "List the passes the pipeline can run",
		Long: `List every registered pass. Any of them can be named in passes.disabled
or with 'lattice run --disable'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var entries []passEntry
			for _, info := range transforms.NewPassRegistry().Types() {
				entries = append(entries, passEntry{
					Name:    info.Name(),
					Version: info.VersionString(),
					Summary: passSummaries[info.Name()],
				})
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				data, err := json.MarshalIndent(entries, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			table := ui.NewTable(out, false, "Pass", "Version", "Description")
			for _, e := range entries {
				table.AddRow(e.Name, e.Version, e.Summary)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the list as JSON")
	return cmd
}
