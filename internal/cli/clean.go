// clean.go implements "tide clean", which prunes the local log and cache.
package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tide-dev/tide/internal/cleanup"
)

func newCleanCmd(g *globals) *cobra.Command {
	var (
		days   int
		keep   int
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Prune old log entries and cached sessions",
		Long: `Remove event log entries and cached sessions older than --days, and keep
only the newest --keep-prompts prompts per server for recall.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 1 {
				return fmt.Errorf("--days must be at least 1")
			}
			dir, err := g.dir()
			if err != nil {
				return err
			}

			res, err := cleanup.Run(dir, cleanup.Options{
				MaxAge:      time.Duration(days) * 24 * time.Hour,
				KeepPrompts: keep,
				DryRun:      dryRun,
			}, time.Now())
			if err != nil {
				return err
			}

			verb := "Removed"
			if dryRun {
				verb = "Would remove"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d log entries, %d cached sessions, %d prompts.\n",
				verb, res.LogEntries, res.Sessions, res.Prompts)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "Remove entries older than this many days")
	cmd.Flags().IntVar(&keep, "keep-prompts", 500, "Prompts kept per server")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only report what would be removed")
	return cmd
}
