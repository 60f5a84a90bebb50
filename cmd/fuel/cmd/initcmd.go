package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fuelhq/fuel/internal/scaffold"
	"github.com/fuelhq/fuel/internal/term"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the starter .fuel/ layout",
	Long: `Create .fuel/ in the project with a commented config file, a
gitignore for runtime state, and a plans directory. Existing files are
never touched; run with --dry-run to see what would be written.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := projectDir(cmd)
		if err != nil {
			return err
		}

		actions, err := scaffold.Plan(dir)
		if err != nil {
			return err
		}

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		if dryRun {
			if jsonOutput(cmd) {
				return printJSON(actions)
			}
			for _, a := range actions {
				fmt.Printf("%s %s\n", term.PadRight(a.Action.String(), 6, term.Yellow), a.RelPath)
			}
			return nil
		}

		result := scaffold.Execute(actions)
		if jsonOutput(cmd) {
			return printJSON(map[string]any{"result": result, "files": actions})
		}
		for _, a := range actions {
			switch {
			case a.Err != nil:
				fmt.Printf("%s %s: %v\n", term.PadRight("error", 6, term.Red), a.RelPath, a.Err)
			case a.Action == scaffold.ActionSkip:
				fmt.Printf("%s %s\n", term.PadRight("skip", 6, term.Dim), a.RelPath)
			default:
				fmt.Printf("%s %s\n", term.PadRight("write", 6, term.Green), a.RelPath)
			}
		}
		if result.Errors > 0 {
			return fmt.Errorf("%d file(s) failed", result.Errors)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().Bool("dry-run", false, "print planned writes without touching disk")
}
