// terminal.go implements "tide terminal-setup".
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tide-dev/tide/internal/tui/terminal"
)

func newTerminalSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "terminal-setup [terminal]",
		Short: "Bind Shift+Enter to insert a new line in the chat input",
		Long: `Most terminals send the same key code for Enter and Shift+Enter. This
command binds Shift+Enter to a distinct sequence in the terminal's own
configuration. The terminal is detected when not given.

Terminals: vscode, warp, alacritty, apple`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := terminal.Detect()
			if len(args) == 1 {
				kind = terminal.Kind(args[0])
			}
			if kind == "" {
				return fmt.Errorf("could not detect the terminal; pass one of %v", terminal.Kinds)
			}

			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("locating home directory: %w", err)
			}
			res, err := terminal.Setup(kind, home)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, res.Message)
			if res.ConfigPath != "" {
				fmt.Fprintf(out, "Config: %s\n", res.ConfigPath)
			}
			if res.NeedsRestart {
				fmt.Fprintln(out, "Restart the terminal for the change to take effect.")
			}
			return nil
		},
	}
}
