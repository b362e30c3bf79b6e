package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spartypkp/townctl/internal/config"
	"github.com/spartypkp/townctl/internal/daemon"
	"github.com/spartypkp/townctl/internal/eventbus"
	"github.com/spartypkp/townctl/internal/handoff"
	"github.com/spartypkp/townctl/internal/lifecycle"
	"github.com/spartypkp/townctl/internal/session"
	"github.com/spartypkp/townctl/internal/store"
	"github.com/spartypkp/townctl/internal/tmux"
)

var (
	resetHandoffPath string
	resetReason      string
	doneNotifyChief  string
)

var statusCmd = &cobra.Command{
	Use:     "status <text>",
	GroupID: GroupAgent,
	Short:   "Report a short status line for the calling session",
	Args:    cobra.ExactArgs(1),
	RunE:    runStatus,
}

var doneCmd = &cobra.Command{
	Use:     "done <summary>",
	GroupID: GroupAgent,
	Short:   "End the calling session cleanly",
	Args:    cobra.ExactArgs(1),
	RunE:    runDone,
}

var resetCmd = &cobra.Command{
	Use:     "reset <summary>",
	GroupID: GroupAgent,
	Short:   "Hand off the calling session to a fresh successor pane",
	Args:    cobra.ExactArgs(1),
	RunE:    runReset,
}

func init() {
	resetCmd.Flags().StringVar(&resetHandoffPath, "path", "", "path to a handoff template file instead of an inline summary")
	resetCmd.Flags().StringVar(&resetReason, "reason", "", "handoff reason code (default context_low)")
	doneCmd.Flags().StringVar(&doneNotifyChief, "notify-pane", "", "tmux pane to notify via overlay message")
	rootCmd.AddCommand(statusCmd, doneCmd, resetCmd)
}

// callerPane resolves the tmux pane of the process invoking this CLI via
// $TMUX_PANE, the same way a pane identifies itself to tmux's own
// display-message and send-keys targeting.
func callerPane() (string, error) {
	pane := os.Getenv("TMUX_PANE")
	if pane == "" {
		return "", fmt.Errorf("TMUX_PANE is not set — this command must run inside the tmux pane it identifies")
	}
	return pane, nil
}

// openLifecycleTools assembles a lifecycle.Tools and session.Registry
// against the shared town database, for a one-shot CLI invocation rather
// than the long-running daemon process.
func openLifecycleTools(root string) (*lifecycle.Tools, *session.Registry, func(), error) {
	layout := config.NewLayout(root)

	s, err := store.Open(layout.DBPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening store: %w", err)
	}
	closeFn := func() { s.Close() }

	bus := eventbus.New()
	sessions := session.New(s, bus)
	tmuxDriver := tmux.New()

	engine, err := config.Load(layout.EngineConfig)
	if err != nil {
		closeFn()
		return nil, nil, nil, fmt.Errorf("loading engine config: %w", err)
	}
	roles, err := config.LoadRoles(layout.RolesConfig)
	if err != nil {
		closeFn()
		return nil, nil, nil, fmt.Errorf("loading roles config: %w", err)
	}

	spawner := daemon.NewTmuxSpawner(tmuxDriver, roles, layout)
	summarizer := daemon.NewSummarizer(layout, roles, nil)
	pipeline := handoff.New(s, sessions, tmuxDriver, bus, spawner, summarizer, layout, engine.HandoffDuration(), nil)
	tools := lifecycle.New(sessions, pipeline, tmuxDriver)
	return tools, sessions, closeFn, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	pane, err := callerPane()
	if err != nil {
		return err
	}
	tools, sessions, closeFn, err := openLifecycleTools(resolveTownRoot())
	if err != nil {
		return err
	}
	defer closeFn()

	sess, err := sessions.GetByPane(pane)
	if err != nil {
		return fmt.Errorf("resolving session for pane %s: %w", pane, err)
	}
	return tools.Status(sess.ID, args[0])
}

func runDone(cmd *cobra.Command, args []string) error {
	pane, err := callerPane()
	if err != nil {
		return err
	}
	tools, sessions, closeFn, err := openLifecycleTools(resolveTownRoot())
	if err != nil {
		return err
	}
	defer closeFn()

	sess, err := sessions.GetByPane(pane)
	if err != nil {
		return fmt.Errorf("resolving session for pane %s: %w", pane, err)
	}
	return tools.Done(sess, args[0], doneNotifyChief)
}

func runReset(cmd *cobra.Command, args []string) error {
	pane, err := callerPane()
	if err != nil {
		return err
	}
	tools, sessions, closeFn, err := openLifecycleTools(resolveTownRoot())
	if err != nil {
		return err
	}
	defer closeFn()

	sess, err := sessions.GetByPane(pane)
	if err != nil {
		return fmt.Errorf("resolving session for pane %s: %w", pane, err)
	}

	// --path replaces the inline summary: the spawner prefers inline text
	// over a path, so passing both would leave the file unused.
	summary := args[0]
	if resetHandoffPath != "" {
		summary = ""
	}
	h, err := tools.Reset(sess, summary, resetHandoffPath, resetReason)
	if err != nil {
		return fmt.Errorf("requesting handoff: %w", err)
	}
	fmt.Printf("handoff %s requested (reason: %s)\n", h.ID, h.Reason)
	return nil
}
