package commands

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tide-dev/tide/internal/model"
	"github.com/tide-dev/tide/internal/tui"
)

// ListenEventsCmd waits for the next server event on ch. The caller
// re-issues it after every EventMsg.
func ListenEventsCmd(ch <-chan model.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return tui.StreamClosedMsg{}
		}
		return tui.EventMsg{Event: ev}
	}
}

// LoadCatalogCmd fetches the agents and providers the backend offers.
func LoadCatalogCmd(b Backend) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := callContext()
		defer cancel()
		agents, err := b.GetAgents(ctx)
		if err != nil {
			return tui.CatalogMsg{Err: err}
		}
		providers, err := b.GetProviders(ctx)
		return tui.CatalogMsg{Agents: agents, Providers: providers, Err: err}
	}
}

