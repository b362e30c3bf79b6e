package cmd

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/spartypkp/townctl/internal/config"
	"github.com/spartypkp/townctl/internal/store"
	"github.com/spartypkp/townctl/internal/tui/status"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: GroupOps,
	Short:   "Launch the live session status dashboard",
	RunE:    runDashboard,
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	root := resolveTownRoot()
	layout := config.NewLayout(root)

	s, err := store.Open(layout.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	// The session/role/state/status columns need real room; below this a
	// narrow terminal would just wrap every row illegibly, so warn instead
	// of launching into a broken-looking table.
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width < 80 {
		fmt.Fprintf(os.Stderr, "warning: terminal is %d columns wide; the dashboard renders best at 80+\n", width)
	}

	m := status.New(s)
	p := tea.NewProgram(m)
	_, err = p.Run()
	return err
}
