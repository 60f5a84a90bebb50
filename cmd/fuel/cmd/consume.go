package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fuelhq/fuel/internal/client"
	"github.com/fuelhq/fuel/internal/config"
	"github.com/fuelhq/fuel/internal/daemon"
	"github.com/fuelhq/fuel/internal/protocol"
	"github.com/fuelhq/fuel/internal/store"
	"github.com/fuelhq/fuel/internal/term"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Run the consume daemon in the foreground",
	Long: `Start the consume daemon: it dispatches ready tasks to agents on a
tick loop until interrupted. Only one daemon runs per project.

Use consume:runner to start it in the background instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := projectDir(cmd)
		if err != nil {
			return err
		}

		var cfg config.Config
		if err := config.Load(dir, &cfg); err != nil {
			return err
		}
		if cmd.Flags().Changed("interval") {
			ms, _ := cmd.Flags().GetInt("interval")
			cfg.IntervalMS = ms
		}
		if cmd.Flags().Changed("cap") {
			n, _ := cmd.Flags().GetInt("cap")
			cfg.ConcurrencyCap = n
		}

		log := slog.New(slog.NewTextHandler(os.Stderr, nil))
		d, err := daemon.New(dir, cfg, log)
		if err != nil {
			return err
		}
		defer d.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return d.Run(ctx)
	},
}

var consumeRunnerCmd = &cobra.Command{
	Use:   "consume:runner",
	Short: "Start the consume daemon in the background",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := projectDir(cmd)
		if err != nil {
			return err
		}

		if ok, pf := client.Running(dir); ok {
			return fmt.Errorf("consume daemon already running (pid %d, port %d)", pf.PID, pf.Port)
		}

		self, err := os.Executable()
		if err != nil {
			return fmt.Errorf("locating fuel binary: %w", err)
		}

		logPath := filepath.Join(dir, config.Dir, "consume-runner.log")
		if err := os.MkdirAll(filepath.Dir(logPath), 0700); err != nil {
			return err
		}
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return err
		}
		defer logFile.Close()

		runner := exec.Command(self, "consume", "--cwd", dir)
		runner.Stdout = logFile
		runner.Stderr = logFile
		runner.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
		if err := runner.Start(); err != nil {
			return fmt.Errorf("starting consume daemon: %w", err)
		}
		// Detached; the pid file is the daemon's to write.
		_ = runner.Process.Release()

		if jsonOutput(cmd) {
			return printJSON(map[string]any{"pid": runner.Process.Pid, "log": logPath})
		}
		fmt.Printf("consume daemon started %s\n", term.Dimf("(pid %d, log %s)", runner.Process.Pid, logPath))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and queue status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := projectDir(cmd)
		if err != nil {
			return err
		}

		c, err := client.Dial(dir)
		if err != nil {
			return statusFromStore(cmd, dir)
		}
		defer c.Close()

		env, err := c.Call(protocol.CmdStatus, nil)
		if err != nil {
			return err
		}
		var status protocol.StatusResponsePayload
		if err := protocol.DecodePayload(env, &status); err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(map[string]any{"daemon": "running", "status": status})
		}

		fmt.Printf("%s %s\n", term.Bold("Daemon:"), term.Green("running"))
		fmt.Printf("  %s %d  %s %d\n",
			term.Bold("Running:"), status.Running,
			term.Bold("Ready:"), status.Ready,
		)
		if len(status.Cooling) > 0 {
			fmt.Printf("  %s %s\n", term.Bold("Cooling:"), term.Yellow(fmt.Sprintf("%v", status.Cooling)))
		}
		return nil
	},
}

// statusFromStore renders what can be known without a daemon.
func statusFromStore(cmd *cobra.Command, dir string) error {
	st, err := store.Open(store.DBPath(dir))
	if err != nil {
		return err
	}
	defer st.Close()

	ready, err := st.ListReady(func(string) bool { return false })
	if err != nil {
		return err
	}
	inProgress, err := st.ListTasks(store.StatusInProgress)
	if err != nil {
		return err
	}

	if jsonOutput(cmd) {
		return printJSON(map[string]any{
			"daemon":      "stopped",
			"ready":       len(ready),
			"in_progress": len(inProgress),
		})
	}
	fmt.Printf("%s %s\n", term.Bold("Daemon:"), term.Dim("not running"))
	fmt.Printf("  %s %d  %s %d\n",
		term.Bold("Ready:"), len(ready),
		term.Bold("In progress:"), len(inProgress),
	)
	fmt.Printf("\nStart it with: %s\n", term.Cyan("fuel consume:runner"))
	return nil
}

var healthResetCmd = &cobra.Command{
	Use:   "health:reset",
	Short: "Clear agent failure counters and cool-downs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := projectDir(cmd)
		if err != nil {
			return err
		}
		c, err := client.Dial(dir)
		if err != nil {
			return err
		}
		defer c.Close()

		if _, err := c.Call(protocol.CmdHealthReset, nil); err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(map[string]bool{"ok": true})
		}
		fmt.Println("health state cleared")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(consumeCmd, consumeRunnerCmd, statusCmd, healthResetCmd)

	consumeCmd.Flags().Int("interval", 0, "tick interval in milliseconds (overrides config)")
	consumeCmd.Flags().Int("cap", 0, "concurrency cap (overrides config)")
}
