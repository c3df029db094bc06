// send.go implements "tide send", a headless send that streams the reply.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/tide-dev/tide/internal/api"
	"github.com/tide-dev/tide/internal/engine"
	"github.com/tide-dev/tide/internal/events"
	"github.com/tide-dev/tide/internal/model"
	"github.com/tide-dev/tide/internal/ui"
)

func newSendCmd(g *globals) *cobra.Command {
	var (
		asJSON    bool
		modelFlag string
		agent     string
		reasoning bool
	)

	cmd := &cobra.Command{
		Use:   "send <sessionID> <text...>",
		Short: "Send a message and stream the reply",
		Long: `Send text to a session and print the assistant reply while it is generated.
The command exits once the reply is complete. With --json nothing is streamed;
the new messages are printed as JSON at the end.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := g.open()
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			sel := rt.selection()
			if modelFlag != "" {
				if sel, err = parseModel(modelFlag); err != nil {
					return err
				}
			}
			if agent == "" {
				agent = rt.cfg.Chat.Agent
			}

			out := cmd.OutOrStdout()
			printerOut := out
			if asJSON {
				printerOut = io.Discard
			}
			var trace io.Writer
			if g.verbose {
				trace = cmd.ErrOrStderr()
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			msgs, err := sendAndWait(ctx, rt, sendRequest{
				sessionID: args[0],
				text:      strings.Join(args[1:], " "),
				selection: sel,
				agent:     agent,
				printer:   ui.NewStreamPrinter(printerOut, reasoning),
				trace:     trace,
			})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(msgs)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the new messages as JSON instead of streaming")
	cmd.Flags().StringVar(&modelFlag, "model", "", "Model as provider/model (default: chat.provider and chat.model)")
	cmd.Flags().StringVar(&agent, "agent", "", "Agent to answer (default: chat.agent)")
	cmd.Flags().BoolVar(&reasoning, "reasoning", false, "Print model reasoning")
	return cmd
}

// parseModel splits "provider/model".
func parseModel(s string) (*model.ModelSelection, error) {
	provider, id, ok := strings.Cut(s, "/")
	if !ok || provider == "" || id == "" {
		return nil, fmt.Errorf("invalid model %q: want provider/model", s)
	}
	return &model.ModelSelection{ProviderID: provider, ModelID: id}, nil
}

type sendRequest struct {
	sessionID string
	text      string
	selection *model.ModelSelection
	agent     string
	printer   *ui.StreamPrinter
	trace     io.Writer // raw events, nil for none
}

// sendAndWait opens the event stream, loads the session, sends the text and
// waits for the reply to complete. It returns the messages that were not in
// the session before the send.
func sendAndWait(ctx context.Context, rt *runtime, req sendRequest) ([]model.MessageWithParts, error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eng := engine.New(engine.Options{Logger: rt.logger, WaitingTimeout: rt.cfg.WaitingTimeout()})
	w := newSendWatcher(req.printer)
	loop := engine.NewLoop(eng, rt.client(), w.observe)
	go func() { _ = loop.Run(ctx) }()

	stream := api.NewStreamClient(rt.cfg.Server.URL, rt.cfg.ReconnectDelay(), rt.logger)
	defer stream.Stop()

	hub := events.NewHub()
	connected := make(chan struct{})
	var once sync.Once
	hub.Subscribe(string(model.EventServerConnected), func(model.Event) {
		once.Do(func() { close(connected) })
	})
	hub.Subscribe(events.TopicAll, loop.Deliver)
	if req.trace != nil {
		hub.Subscribe(events.TopicAll, func(ev model.Event) {
			fmt.Fprintf(req.trace, "event %s %s\n", ev.Type, ev.Properties)
		})
	}
	go hub.Pump(ctx, stream.Subscribe(ctx))

	// Events sent before the stream is up would be lost.
	timer := time.NewTimer(rt.cfg.RequestTimeout())
	defer timer.Stop()
	select {
	case <-connected:
	case <-timer.C:
		return nil, fmt.Errorf("event stream at %s did not connect", rt.cfg.Server.URL)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	loop.Activate(req.sessionID)
	if err := wait(ctx, w.ready); err != nil {
		return nil, err
	}

	loop.Send(req.text, req.selection, req.agent)
	if err := wait(ctx, w.done); err != nil {
		return nil, err
	}

	var msgs []model.MessageWithParts
	loop.Do(func(e *engine.Engine) {
		for _, m := range e.Messages() {
			if !w.known[m.Info.ID] {
				msgs = append(msgs, m)
			}
		}
	})
	return msgs, nil
}

func wait(ctx context.Context, ch <-chan error) error {
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sendWatcher follows one send through the engine's updates. It runs on
// the loop goroutine only.
type sendWatcher struct {
	printer   *ui.StreamPrinter
	known     map[string]bool // messages present before the send
	activated bool
	finished  bool
	completed *model.Message

	ready chan error
	done  chan error
}

func newSendWatcher(p *ui.StreamPrinter) *sendWatcher {
	return &sendWatcher{
		printer: p,
		known:   make(map[string]bool),
		ready:   make(chan error, 1),
		done:    make(chan error, 1),
	}
}

func notify(ch chan error, err error) {
	select {
	case ch <- err:
	default:
	}
}

func (w *sendWatcher) observe(e *engine.Engine, u engine.Update) {
	switch u.Kind {
	case engine.UpdateSnapshot:
		if !w.activated {
			w.activated = true
			for _, m := range e.Messages() {
				w.known[m.Info.ID] = true
			}
			notify(w.ready, nil)
			return
		}
		w.print(e)
		if w.completed != nil {
			w.finish()
		}

	case engine.UpdateTranscript:
		if w.activated {
			w.print(e)
		}

	case engine.UpdateWaiting:
		w.printer.Waiting(e.Waiting())

	case engine.UpdateNotice:
		if !w.activated {
			notify(w.ready, fmt.Errorf("loading session: %s", e.Notice()))
			return
		}
		if n := e.Notice(); n != "" {
			w.printer.Notice(n)
		}
		// The final snapshot failed; what streamed in is all there is.
		if w.completed != nil {
			w.finish()
		}

	case engine.UpdateCompleted:
		if m := u.Message; m != nil && m.Role == model.RoleAssistant && !w.known[m.ID] {
			w.completed = m
		}

	case engine.UpdateSendFailed:
		notify(w.done, u.Err)

	case engine.UpdateSessionDeleted:
		err := fmt.Errorf("the session was deleted")
		notify(w.ready, err)
		notify(w.done, err)
	}
}

func (w *sendWatcher) print(e *engine.Engine) {
	for _, m := range e.Messages() {
		if !w.known[m.Info.ID] {
			w.printer.Update(m)
		}
	}
}

func (w *sendWatcher) finish() {
	if w.finished {
		return
	}
	w.finished = true
	w.printer.Finish(w.completed)
	notify(w.done, nil)
}
