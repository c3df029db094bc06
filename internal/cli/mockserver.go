// mockserver.go implements "tide mock-server", the offline fake backend.
package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tide-dev/tide/internal/mockserver"
)

func newMockServerCmd(g *globals) *cobra.Command {
	var (
		addr    string
		delay   time.Duration
		project string
	)

	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Run a fake agent backend for offline development",
		Long: `Run an in-process backend that implements the session, message, catalog and
event endpoints tide uses. Every message gets a scripted streamed reply.

Point tide at it with: tide config set server.url http://<addr>`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := zerolog.InfoLevel
			if g.verbose {
				level = zerolog.DebugLevel
			}
			logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.Kitchen}).
				Level(level).With().Timestamp().Logger()

			srv, err := mockserver.NewServer(mockserver.Options{
				Addr:      addr,
				StepDelay: delay,
				Project:   project,
				Logger:    logger,
			})
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()
			fmt.Fprintln(cmd.OutOrStdout(), srv.URL())

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sig)

			select {
			case s := <-sig:
				logger.Info().Str("signal", s.String()).Msg("shutting down")
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("mock server: %w", err)
				}
				return errors.New("mock server stopped unexpectedly")
			}
			return srv.Stop()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:4096", "Listen address")
	cmd.Flags().DurationVar(&delay, "delay", mockserver.DefaultStepDelay, "Pause between streamed reply events")
	cmd.Flags().StringVar(&project, "project", "mock", "Project id reported for new sessions")
	return cmd
}
