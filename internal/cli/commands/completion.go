package commands

import (
	"github.com/spf13/cobra"
)

// NewCompletionCommand creates the completion command for shell completions.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion script",
		Long: `Generate shell completion script for the lattice CLI.

To load completions:

Bash:

  $ source <(lattice completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ lattice completion bash > /etc/bash_completion.d/lattice
  # macOS:
  $ lattice completion bash > $(brew --prefix)/etc/bash_completion.d/lattice

Zsh:

  # If shell completion is not already enabled in your environment,
  # you will need to enable it. You can execute the following once:

  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ lattice completion zsh > "${fpath[1]}/_lattice"

  # You will need to start a new shell for this setup to take effect.

Fish:

  $ lattice completion fish | source

  # To load completions for each session, execute once:
  $ lattice completion fish > ~/.config/fish/completions/lattice.fish

PowerShell:

  PS> lattice completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> lattice completion powershell > lattice.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, out := cmd.Root(), cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return root.GenBashCompletionV2(out, true)
			case "zsh":
				return root.GenZshCompletion(out)
			case "fish":
				return root.GenFishCompletion(out, true)
			default:
				return root.GenPowerShellCompletionWithDesc(out)
			}
		},
	}

	return cmd
}
