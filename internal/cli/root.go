// Package cli defines the Cobra commands of the tide binary.
// This file contains the root command, shared flags and the TUI launcher.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tide-dev/tide/internal/api"
	"github.com/tide-dev/tide/internal/config"
	"github.com/tide-dev/tide/internal/events"
	"github.com/tide-dev/tide/internal/history"
	"github.com/tide-dev/tide/internal/log"
	"github.com/tide-dev/tide/internal/model"
	"github.com/tide-dev/tide/internal/polish"
	"github.com/tide-dev/tide/internal/tui"
	"github.com/tide-dev/tide/internal/tui/app"
	"github.com/tide-dev/tide/internal/tui/commands"
)

var version = "dev" // set via ldflags at build time

// globals holds the persistent flags shared by every command.
type globals struct {
	configDir string
	verbose   bool
}

// dir returns the config directory from --config-dir or the default.
func (g *globals) dir() (string, error) {
	if g.configDir != "" {
		return g.configDir, nil
	}
	return config.Dir()
}

// runtime is the state most commands need: the config directory, the
// loaded config and the event log.
type runtime struct {
	dir    string
	cfg    *config.Config
	logger *log.Logger
}

func (g *globals) open() (*runtime, error) {
	dir, err := g.dir()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	logger, err := log.NewLogger(dir)
	if err != nil {
		return nil, err
	}
	return &runtime{dir: dir, cfg: cfg, logger: logger}, nil
}

func (r *runtime) Close() error {
	return r.logger.Close()
}

func (r *runtime) client() *api.Client {
	return api.NewClient(r.cfg.Server.URL, r.cfg.RequestTimeout())
}

// selection is the configured model, or nil to let the backend choose.
func (r *runtime) selection() *model.ModelSelection {
	if r.cfg.Chat.Provider == "" || r.cfg.Chat.Model == "" {
		return nil
	}
	return &model.ModelSelection{ProviderID: r.cfg.Chat.Provider, ModelID: r.cfg.Chat.Model}
}

// history opens the local session cache. A cache that cannot be opened
// is reported on w and tide carries on without it.
func (r *runtime) history(w io.Writer) *history.Store {
	store, err := history.NewStore(filepath.Join(r.dir, history.FileName))
	if err != nil {
		fmt.Fprintf(w, "Warning: session cache unavailable: %v\n", err)
		return nil
	}
	return store
}

// callContext bounds one backend call by the configured request timeout.
func callContext(cmd *cobra.Command, rt *runtime) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, rt.cfg.RequestTimeout())
}

// NewRootCmd builds the tide command tree.
func NewRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:   "tide",
		Short: "Terminal chat client for opencode-style agent backends",
		Long: `tide lists the sessions of an agent backend, shows their transcripts
and streams replies as the backend generates them.

Run without arguments in a terminal to open the interactive UI.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Without a terminal there is nothing to draw on.
			if !tui.IsTTY() {
				return cmd.Help()
			}
			return runTUI(cmd.Context(), g)
		},
	}

	root.PersistentFlags().StringVar(&g.configDir, "config-dir", "", "Directory holding config.yaml, log.jsonl and the session cache")
	root.PersistentFlags().BoolVar(&g.verbose, "verbose", false, "Print raw server events and debug output to stderr")

	root.AddCommand(newSessionsCmd(g))
	root.AddCommand(newSendCmd(g))
	root.AddCommand(newLogCmd(g))
	root.AddCommand(newConfigCmd(g))
	root.AddCommand(newPolishCmd(g))
	root.AddCommand(newMockServerCmd(g))
	root.AddCommand(newCleanCmd(g))
	root.AddCommand(newTerminalSetupCmd())
	return root
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runTUI(ctx context.Context, g *globals) error {
	rt, err := g.open()
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	store := rt.history(os.Stderr)
	if store != nil {
		defer func() { _ = store.Close() }()
	}

	// Keep the interface nil when polish is not configured.
	var polisher commands.Polisher
	if p, err := polish.New(rt.cfg.Polish); err == nil {
		polisher = p
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream := api.NewStreamClient(rt.cfg.Server.URL, rt.cfg.ReconnectDelay(), rt.logger)
	defer stream.Stop()

	hub := events.NewHub()
	ch := make(chan model.Event, 256)
	hub.Subscribe(events.TopicAll, func(ev model.Event) {
		select {
		case ch <- ev:
		case <-ctx.Done():
		}
	})
	go func() {
		hub.Pump(ctx, stream.Subscribe(ctx))
		close(ch)
	}()

	return tui.Run(app.New(app.Options{
		Config:    rt.cfg,
		ConfigDir: rt.dir,
		Backend:   rt.client(),
		Events:    ch,
		History:   store,
		Polisher:  polisher,
		Logger:    rt.logger,
	}))
}
