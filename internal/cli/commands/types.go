package commands

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lattice-ir/lattice/internal/cli/ui"
	"github.com/lattice-ir/lattice/internal/compiler/loader"
)

// NewTypesCommand creates the types command.
func NewTypesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the op types graph descriptions can use",
		Long: `List every registered op type with its version and lineage. A variant can
be used wherever one of its ancestors is expected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loader.NewOpRegistry()
			if err != nil {
				return err
			}

			table := ui.NewTable(cmd.OutOrStdout(), false, "Op", "Version", "Opset", "Lineage").AlignRight(1)
			for _, info := range reg.Types() {
				var lineage []string
				for _, t := range info.Lineage() {
					lineage = append(lineage, t.String())
				}
				table.AddRow(info.Name(), strconv.FormatUint(info.Version(), 10), info.VersionString(),
					strings.Join(lineage, " -> "))
			}
			table.Render()
			return nil
		},
	}
}
