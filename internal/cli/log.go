// log.go implements "tide log", which prints the local event log.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tide-dev/tide/internal/log"
)

func newLogCmd(g *globals) *cobra.Command {
	var (
		limit int
		raw   bool
	)

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Print the local event log",
		Long: `Print the most recent entries of log.jsonl in the config directory:
session switches, snapshot fetches, dropped events, sends and stream reconnects.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := g.dir()
			if err != nil {
				return err
			}
			entries, err := log.ReadFile(filepath.Join(dir, log.FileName))
			if err != nil {
				return err
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "Log is empty.")
				return nil
			}
			for _, e := range entries {
				if raw {
					data, err := json.Marshal(e)
					if err != nil {
						return err
					}
					fmt.Fprintln(out, string(data))
					continue
				}
				printLogEvent(out, e)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "lines", "n", 50, "Number of entries to print (0 for all)")
	cmd.Flags().BoolVar(&raw, "json", false, "Print entries as JSON lines")
	return cmd
}

func printLogEvent(w io.Writer, e log.LogEvent) {
	fields := []string{e.Time.Local().Format("2006-01-02 15:04:05"), e.Event}
	add := func(k, v string) {
		if v != "" {
			fields = append(fields, k+"="+v)
		}
	}
	add("session", e.SessionID)
	add("message", e.MessageID)
	add("part", e.PartID)
	add("type", e.Type)
	add("reason", e.Reason)
	add("error", e.Error)
	if e.Count != 0 {
		add("count", fmt.Sprint(e.Count))
	}
	if e.DurationMs != 0 {
		add("duration_ms", fmt.Sprint(e.DurationMs))
	}
	if len(e.Data) > 0 {
		if data, err := json.Marshal(e.Data); err == nil {
			add("data", string(data))
		}
	}
	fmt.Fprintln(w, strings.Join(fields, "  "))
}
