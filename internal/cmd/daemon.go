package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spartypkp/townctl/internal/config"
	"github.com/spartypkp/townctl/internal/daemon"
	"github.com/spartypkp/townctl/internal/style"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: GroupServices,
	Short:   "Manage the townctl background daemon",
	RunE:    requireSubcommand,
	Long: `Manage the townctl background daemon.

The daemon hosts every poll loop from the component design: the Context
Monitor, Duty Scheduler, Trigger Service, Mission Executor, Filesystem
Watcher, and Reply Auto-Injector. It is a single long-running process per
town root, enforced with an advisory cross-process lock.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon in the background",
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the daemon is running",
	RunE:  runDaemonStatus,
}

var daemonRunCmd = &cobra.Command{
	Use:    "run",
	Short:  "Run the daemon in the foreground (internal)",
	Hidden: true,
	RunE:   runDaemonRun,
}

func init() {
	daemonCmd.AddCommand(daemonStartCmd, daemonStopCmd, daemonStatusCmd, daemonRunCmd)
	rootCmd.AddCommand(daemonCmd)
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	root := resolveTownRoot()

	running, pid, err := daemon.IsRunning(root)
	if err != nil {
		return fmt.Errorf("checking daemon status: %w", err)
	}
	if running {
		return fmt.Errorf("daemon already running (PID %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("finding executable: %w", err)
	}

	proc := exec.Command(exe, "daemon", "run", "--town-root", root)
	proc.Stdin = nil
	proc.Stdout = nil
	proc.Stderr = nil
	if err := proc.Start(); err != nil {
		return fmt.Errorf("starting daemon: %w", err)
	}

	time.Sleep(200 * time.Millisecond)

	running, pid, err = daemon.IsRunning(root)
	if err != nil {
		return fmt.Errorf("checking daemon status: %w", err)
	}
	if !running {
		return fmt.Errorf("daemon failed to start (check %s/daemon/daemon.log)", root)
	}
	if pid != proc.Process.Pid {
		fmt.Printf("%s Daemon already running (PID %d)\n", style.Bold.Render("●"), pid)
		return nil
	}

	fmt.Printf("%s Daemon started (PID %d)\n", style.Bold.Render("✓"), pid)
	return nil
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	root := resolveTownRoot()

	running, pid, err := daemon.IsRunning(root)
	if err != nil {
		return fmt.Errorf("checking daemon status: %w", err)
	}
	if !running {
		return fmt.Errorf("daemon is not running")
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signaling daemon: %w", err)
	}

	fmt.Printf("%s Daemon stopped (was PID %d)\n", style.Bold.Render("✓"), pid)
	return nil
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	root := resolveTownRoot()

	running, pid, err := daemon.IsRunning(root)
	if err != nil {
		return fmt.Errorf("checking daemon status: %w", err)
	}
	if !running {
		fmt.Printf("%s Daemon is %s\n", style.Dim.Render("○"), "not running")
		fmt.Printf("\nStart with: %s\n", style.Dim.Render("townctl daemon start"))
		return nil
	}

	fmt.Printf("%s Daemon is %s (PID %d)\n", style.Bold.Render("●"), style.Bold.Render("running"), pid)
	if st, err := daemon.LoadState(root); err == nil {
		fmt.Printf("  Started: %s\n", st.StartedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runDaemonRun(cmd *cobra.Command, args []string) error {
	root := resolveTownRoot()
	layout := config.NewLayout(root)
	if err := layout.EnsureDirs(); err != nil {
		return fmt.Errorf("preparing town root: %w", err)
	}

	cleanup, err := daemon.AcquireSingleton(root)
	if err != nil {
		return err
	}
	defer cleanup()

	logFile, err := daemon.LogFile(root)
	if err != nil {
		return fmt.Errorf("opening daemon log: %w", err)
	}
	defer logFile.Close()
	logger := slog.New(slog.NewTextHandler(logFile, nil))

	engine, err := config.Load(layout.EngineConfig)
	if err != nil {
		return fmt.Errorf("loading engine config: %w", err)
	}
	roles, err := config.LoadRoles(layout.RolesConfig)
	if err != nil {
		return fmt.Errorf("loading roles config: %w", err)
	}

	d, err := daemon.New(layout, engine, roles, logger)
	if err != nil {
		return fmt.Errorf("assembling daemon: %w", err)
	}
	defer d.Close()

	if err := daemon.WriteState(root, daemon.State{PID: os.Getpid(), StartedAt: time.Now()}); err != nil {
		logger.Warn("daemon: failed to write state file", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("daemon: starting", "pid", os.Getpid(), "town_root", root)
	d.Run(ctx)
	logger.Info("daemon: stopped")
	return nil
}
