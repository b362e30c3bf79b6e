// Package cmd is the townctl CLI surface: the daemon lifecycle commands
// an operator runs, plus the status/done/reset lifecycle primitives an
// agent's own hooks shell out to.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spartypkp/townctl/internal/config"
	"github.com/spartypkp/townctl/internal/util"
)

const (
	GroupServices = "services"
	GroupAgent    = "agent"
	GroupOps      = "ops"
)

var townRoot string

var rootCmd = &cobra.Command{
	Use:   "townctl",
	Short: "townctl runs the Chief/specialist agent orchestration daemon",
	Long: `townctl hosts the long-running loops that keep a fleet of
tmux-backed AI agent sessions alive: the Context Monitor, Duty Scheduler,
Trigger Service, Mission Executor, Filesystem Watcher, and Reply
Auto-Injector. It also exposes the status/done/reset lifecycle
primitives an agent's own hooks call into directly.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: GroupServices, Title: "Daemon:"},
		&cobra.Group{ID: GroupAgent, Title: "Agent lifecycle:"},
		&cobra.Group{ID: GroupOps, Title: "Operations:"},
	)
	rootCmd.PersistentFlags().StringVar(&townRoot, "town-root", "", "town root directory (default $TOWNCTL_HOME or ~/town)")
}

// Execute runs the root command and returns a process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// resolveTownRoot honors --town-root, then $TOWNCTL_HOME, then ~/town,
// expanding a leading ~/ the way every other path in this CLI does.
func resolveTownRoot() string {
	if townRoot != "" {
		return util.ExpandHome(townRoot)
	}
	return config.DefaultRoot()
}

// requireSubcommand is RunE for group commands that exist only to host
// subcommands (e.g. "townctl daemon" with no further arguments).
func requireSubcommand(cmd *cobra.Command, args []string) error {
	return cmd.Help()
}
