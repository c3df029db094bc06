// sessions.go implements "tide sessions" and its new/rm/rename subcommands.
package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tide-dev/tide/internal/model"
	"github.com/tide-dev/tide/internal/tui"
)

// cachedListLimit caps how many cached sessions are printed.
const cachedListLimit = 200

func newSessionsCmd(g *globals) *cobra.Command {
	var cached bool

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions",
		Long: `List the sessions of the configured backend, most recently updated first.
With --cached the local session cache is printed instead; no backend call is made.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := g.open()
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			out := cmd.OutOrStdout()
			store := rt.history(cmd.ErrOrStderr())
			if store != nil {
				defer func() { _ = store.Close() }()
			}

			if cached {
				if store == nil {
					return fmt.Errorf("session cache unavailable")
				}
				sessions, err := store.ListSessions(rt.cfg.Server.URL, cachedListLimit)
				if err != nil {
					return fmt.Errorf("reading session cache: %w", err)
				}
				printSessions(out, sessions)
				return nil
			}

			ctx, cancel := callContext(cmd, rt)
			defer cancel()
			sessions, err := rt.client().ListSessions(ctx)
			if err != nil {
				return err
			}
			if store != nil {
				_ = store.SaveSessions(rt.cfg.Server.URL, sessions) // best effort
			}
			sortSessions(sessions)
			printSessions(out, sessions)
			return nil
		},
	}
	cmd.Flags().BoolVar(&cached, "cached", false, "List the local session cache")

	cmd.AddCommand(newSessionsNewCmd(g), newSessionsRmCmd(g), newSessionsRenameCmd(g))
	return cmd
}

func newSessionsNewCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "new [title]",
		Short: "Create a session",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := g.open()
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			ctx, cancel := callContext(cmd, rt)
			defer cancel()
			s, err := rt.client().CreateSession(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if store := rt.history(cmd.ErrOrStderr()); store != nil {
				_ = store.UpsertSession(rt.cfg.Server.URL, s)
				_ = store.Close()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s  %s\n", s.ID, tui.SessionTitle(s))
			return nil
		},
	}
}

func newSessionsRmCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a session",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := g.open()
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			ctx, cancel := callContext(cmd, rt)
			defer cancel()
			if err := rt.client().DeleteSession(ctx, args[0]); err != nil {
				return err
			}
			if store := rt.history(cmd.ErrOrStderr()); store != nil {
				_ = store.DeleteSession(rt.cfg.Server.URL, args[0])
				_ = store.Close()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func newSessionsRenameCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Rename a session",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.TrimSpace(strings.Join(args[1:], " "))
			if title == "" {
				return fmt.Errorf("title must not be empty")
			}

			rt, err := g.open()
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			ctx, cancel := callContext(cmd, rt)
			defer cancel()
			s, err := rt.client().UpdateSession(ctx, args[0], title)
			if err != nil {
				return err
			}
			if store := rt.history(cmd.ErrOrStderr()); store != nil {
				_ = store.UpsertSession(rt.cfg.Server.URL, s)
				_ = store.Close()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s  %s\n", s.ID, tui.SessionTitle(s))
			return nil
		},
	}
}

func sortSessions(sessions []model.Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].Time.Updated > sessions[j].Time.Updated
	})
}

func printSessions(w io.Writer, sessions []model.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions; create one with: tide sessions new")
		return
	}
	for _, s := range sessions {
		updated := time.UnixMilli(s.Time.Updated).Format("2006-01-02 15:04")
		fmt.Fprintf(w, "  %-32s  %s  %s\n", s.ID, updated, tui.SessionTitle(s))
	}
}
