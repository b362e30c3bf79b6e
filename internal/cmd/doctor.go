package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spartypkp/townctl/internal/style"
	"github.com/spartypkp/townctl/internal/util"
)

var doctorCmd = &cobra.Command{
	Use:     "doctor",
	GroupID: GroupOps,
	Short:   "Check for claude processes orphaned by a killed pane",
	Long: `Scan the process table for claude CLI processes whose parent has
already exited (PPID=1) — typically left behind when a tmux pane is
killed directly instead of going through a handoff. Reports only; it
never kills anything on your behalf.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	orphans, err := util.FindOrphanedClaudeProcesses()
	if err != nil {
		return fmt.Errorf("scanning for orphaned processes: %w", err)
	}
	if len(orphans) == 0 {
		fmt.Printf("%s No orphaned claude processes found\n", style.Bold.Render("✓"))
		return nil
	}

	style.PrintWarning("found %d orphaned claude process(es):", len(orphans))
	for _, o := range orphans {
		fmt.Printf("  PID %-8d %s\n", o.PID, o.Cmd)
	}
	fmt.Println("\nThese are not tracked by any live session row; kill them manually if safe to do so.")
	return nil
}
