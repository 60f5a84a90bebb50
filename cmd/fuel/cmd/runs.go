package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fuelhq/fuel/internal/config"
	"github.com/fuelhq/fuel/internal/driver"
	"github.com/fuelhq/fuel/internal/store"
	"github.com/fuelhq/fuel/internal/term"
)

var runsCmd = &cobra.Command{
	Use:   "runs [task-id]",
	Short: "List runs, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		taskID := ""
		if len(args) == 1 {
			if taskID, err = st.Resolve(args[0]); err != nil {
				return err
			}
		}

		runs, err := st.ListRuns(taskID, limit)
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(runs)
		}
		if len(runs) == 0 {
			fmt.Println(term.Dim("no runs"))
			return nil
		}
		for _, r := range runs {
			printRunRow(r)
		}
		return nil
	},
}

func printRunRow(r store.Run) {
	state := term.Green("running")
	if r.ExitCode != nil {
		if *r.ExitCode == 0 {
			state = term.Dim("exit 0")
		} else {
			state = term.Redf("exit %d", *r.ExitCode)
		}
	}
	cost := ""
	if r.CostUSD != nil {
		cost = term.Dimf("  $%.4f", *r.CostUSD)
	}
	reason := ""
	if r.Reason != "" {
		reason = "  " + term.Yellow(r.Reason)
	}
	fmt.Printf("%s %s #%d %s %s%s%s\n",
		term.PadRight(r.ShortID, 10, term.Cyan),
		term.PadRight(r.TaskShortID, 10, term.Blue),
		r.RunID,
		term.Magenta(r.Agent),
		state,
		cost,
		reason,
	)
}

var reviewsCmd = &cobra.Command{
	Use:   "reviews [task-id]",
	Short: "List reviews",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		taskID := ""
		if len(args) == 1 {
			if taskID, err = st.Resolve(args[0]); err != nil {
				return err
			}
		}
		reviews, err := st.ListReviews(taskID)
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(reviews)
		}
		if len(reviews) == 0 {
			fmt.Println(term.Dim("no reviews"))
			return nil
		}
		for _, rv := range reviews {
			verdict := term.Yellow(string(rv.Status))
			switch rv.Status {
			case store.ReviewPassed:
				verdict = term.Green("passed")
			case store.ReviewFailed:
				verdict = term.Red("failed")
			}
			fmt.Printf("%s %s %s %s\n",
				term.PadRight(rv.ShortID, 10, term.Cyan),
				term.PadRight(rv.TaskShortID, 10, term.Blue),
				term.Magenta(rv.Agent),
				verdict,
			)
			for _, issue := range rv.Issues {
				fmt.Printf("    %s %s\n", term.Red("-"), issue)
			}
		}
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs <task-id>",
	Short: "Show the latest run's output",
	Long: `Print the stdout tail of the task's latest run, plus the command to
resume the agent session when the driver supports it.

Use -f to follow a live run's output as it is written.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, dir, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		id, err := st.Resolve(args[0])
		if err != nil {
			return err
		}
		run, err := st.LatestRun(id)
		if err != nil {
			return err
		}

		follow, _ := cmd.Flags().GetBool("follow")
		lines, _ := cmd.Flags().GetInt("lines")
		raw, _ := cmd.Flags().GetBool("raw")

		if jsonOutput(cmd) {
			return printJSON(run)
		}

		printRunRow(*run)

		path := filepath.Join(dir, config.Dir, "processes", run.ShortID, "stdout.log")
		if err := tailFile(path, run.Agent, lines, follow, !raw); err != nil {
			// The log dir may be gone; the run row keeps a tail.
			if run.Output != "" {
				fmt.Println(run.Output)
			} else {
				return err
			}
		}

		if run.SessionID != "" {
			var cfg config.Config
			if err := config.Load(dir, &cfg); err == nil {
				reg := driver.NewRegistry(cfg.Agents)
				if d, err := reg.Lookup(run.Agent); err == nil {
					if resume := d.ResumeCommand(run.SessionID); resume != "" {
						fmt.Printf("\n%s %s\n", term.Bold("Resume:"), term.Cyan(resume))
					}
				}
			}
		}
		return nil
	},
}

const defaultTailLines = 20

// tailFile prints the last n lines of a run log, optionally following
// new output. When pretty is true, agent JSONL is formatted.
func tailFile(path, agent string, n int, follow, pretty bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer f.Close()

	d := lookupLogDriver(agent)

	// Agent logs are bounded by session length; reading fully is fine.
	lines, err := readAllLines(f)
	if err != nil {
		return err
	}
	start := 0
	if n > 0 && n < len(lines) {
		start = len(lines) - n
	}
	for _, line := range lines[start:] {
		printLogLine(d, line, pretty)
	}

	if !follow {
		return nil
	}
	return followFile(f, d, pretty)
}

func lookupLogDriver(agent string) driver.Driver {
	reg := driver.NewRegistry(nil)
	d, err := reg.Lookup(agent)
	if err != nil {
		d, _ = reg.Lookup(driver.Claude)
	}
	return d
}

// printLogLine outputs a single log line, either raw or formatted
// through the agent's driver.
func printLogLine(d driver.Driver, line string, pretty bool) {
	if !pretty {
		fmt.Println(line)
		return
	}
	ev := d.ParseLine([]byte(line))
	switch ev.Kind {
	case driver.KindInit:
		fmt.Printf("%s %s\n", term.Green("session"), term.Dim(ev.Model))
	case driver.KindStep:
		if ev.Tool != "" {
			fmt.Printf("%s %s\n", term.PadRight(ev.Tool, 12, term.Cyan), firstLine(ev.Text))
		} else if strings.TrimSpace(ev.Text) != "" {
			fmt.Println(ev.Text)
		}
	case driver.KindResult:
		fmt.Printf("%s %s\n", term.Yellow("result"), firstLine(ev.Text))
	case driver.KindStepFinish:
		if ev.CostUSD > 0 {
			fmt.Println(term.Dimf("step done  $%.4f", ev.CostUSD))
		}
	default:
		if s := strings.TrimSpace(line); s != "" {
			fmt.Println(term.Dim(s))
		}
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// readAllLines reads all lines from the current position in the reader.
func readAllLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading log file: %w", err)
	}
	return lines, nil
}

const followPollInterval = 200 * time.Millisecond

// followFile polls a file for new lines and prints them until
// interrupted. The file must already be positioned past the tail.
func followFile(f *os.File, d driver.Driver, pretty bool) error {
	fmt.Fprintf(os.Stderr, "following %s (ctrl-c to stop)\n", f.Name())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	reader := bufio.NewReader(f)
	ticker := time.NewTicker(followPollInterval)
	defer ticker.Stop()

	for {
		for {
			line, err := reader.ReadString('\n')
			if len(line) > 0 {
				printLogLine(d, strings.TrimSuffix(line, "\n"), pretty)
			}
			if err != nil {
				if err != io.EOF {
					return fmt.Errorf("reading log file during follow: %w", err)
				}
				break
			}
		}

		select {
		case <-sigCh:
			fmt.Println()
			return nil
		case <-ticker.C:
		}
	}
}

func init() {
	rootCmd.AddCommand(runsCmd, reviewsCmd, logsCmd)

	runsCmd.Flags().Int("limit", 20, "max runs to list")

	logsCmd.Flags().BoolP("follow", "f", false, "follow new output as it's written")
	logsCmd.Flags().IntP("lines", "n", defaultTailLines, "number of initial lines to show")
	logsCmd.Flags().Bool("raw", false, "output raw JSONL instead of formatted text")
}
