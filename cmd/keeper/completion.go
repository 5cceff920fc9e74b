package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"archival-hq/keeper/pkg/archive"
	"archival-hq/keeper/pkg/config"
)

var completionNoDesc bool

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate a shell completion script for Keeper.

Entity type flags (--entity, archive create) complete from the retention
policies in the active configuration.

Bash:
  $ source <(keeper completion bash)
  $ keeper completion bash > /etc/bash_completion.d/keeper

Zsh:
  $ keeper completion zsh > "${fpath[1]}/_keeper"

Fish:
  $ keeper completion fish > ~/.config/fish/completions/keeper.fish

PowerShell:
  PS> keeper completion powershell | Out-String | Invoke-Expression
`,
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		desc := !completionNoDesc
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletionV2(out, desc)
		case "zsh":
			if desc {
				return rootCmd.GenZshCompletion(out)
			}
			return rootCmd.GenZshCompletionNoDesc(out)
		case "fish":
			return rootCmd.GenFishCompletion(out, desc)
		case "powershell":
			if desc {
				return rootCmd.GenPowerShellCompletionWithDesc(out)
			}
			return rootCmd.GenPowerShellCompletion(out)
		default:
			return fmt.Errorf("unsupported shell: %s", args[0])
		}
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
	completionCmd.Flags().BoolVar(&completionNoDesc, "no-descriptions", false, "omit completion descriptions")
}

// completeEntityTypes offers the entity types that have a retention policy.
// It reads the config file without touching logging.
func completeEntityTypes(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return entityTypesWithPrefix(cfg.Retention.Policies, toComplete), cobra.ShellCompDirectiveNoFileComp
}

func entityTypesWithPrefix(policies []config.PolicyConfig, prefix string) []string {
	seen := make(map[string]bool, len(policies))
	var out []string
	for _, p := range policies {
		if seen[p.EntityType] || !strings.HasPrefix(p.EntityType, prefix) {
			continue
		}
		seen[p.EntityType] = true
		out = append(out, p.EntityType)
	}
	sort.Strings(out)
	return out
}

// completeEntityArg completes the first positional argument only.
func completeEntityArg(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return completeEntityTypes(cmd, args, toComplete)
}

func completeJobStatuses(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{
		string(archive.JobQueued),
		string(archive.JobRunning),
		string(archive.JobCompleted),
		string(archive.JobFailed),
	}, cobra.ShellCompDirectiveNoFileComp
}

func completeExportFormats(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{"json", "csv"}, cobra.ShellCompDirectiveNoFileComp
}
