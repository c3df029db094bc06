// Package app provides the main TUI application that wires all views together.
package app

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tide-dev/tide/internal/config"
	"github.com/tide-dev/tide/internal/engine"
	"github.com/tide-dev/tide/internal/history"
	"github.com/tide-dev/tide/internal/log"
	"github.com/tide-dev/tide/internal/model"
	"github.com/tide-dev/tide/internal/polish"
	"github.com/tide-dev/tide/internal/render"
	"github.com/tide-dev/tide/internal/tui"
	"github.com/tide-dev/tide/internal/tui/commands"
	"github.com/tide-dev/tide/internal/tui/views"
)

// Options configures an App. Events, History, Polisher and Logger may be nil.
type Options struct {
	Config    *config.Config
	ConfigDir string
	Backend   commands.Backend
	Events    <-chan model.Event
	History   *history.Store
	Polisher  commands.Polisher
	Logger    *log.Logger
}

// App is the main TUI application. Every backend call runs as a tea.Cmd and
// every result comes back as a tea.Msg, so the engine is only ever touched
// from Update.
type App struct {
	cfg      *config.Config
	dir      string
	server   string
	backend  commands.Backend
	events   <-chan model.Event
	history  *history.Store
	polisher commands.Polisher
	logger   *log.Logger

	engine   *engine.Engine
	renderer *render.Renderer

	state        tui.ViewState
	prevState    tui.ViewState
	width        int
	height       int
	ctrlCPending bool

	sessionsView views.SessionsModel
	chatView     views.ChatModel
	settingsView views.SettingsModel

	freshList    bool   // the backend list has arrived
	pendingOpen  string // last active session, opened once the list confirms it
	defaultModel string
	agents       []model.Agent
	notice       string // app-level notice, shown when the engine has none
}

// New creates an App.
func New(opts Options) *App {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	const width, height = 80, 24

	renderer, err := render.New(cfg.Chat.MarkdownStyle, width-6)
	if err != nil {
		renderer = render.Plain()
	}

	return &App{
		cfg:      cfg,
		dir:      opts.ConfigDir,
		server:   cfg.Server.URL,
		backend:  opts.Backend,
		events:   opts.Events,
		history:  opts.History,
		polisher: opts.Polisher,
		logger:   opts.Logger,
		engine: engine.New(engine.Options{
			Logger:         opts.Logger,
			WaitingTimeout: cfg.WaitingTimeout(),
		}),
		renderer:     renderer,
		state:        tui.StateSessions,
		width:        width,
		height:       height,
		sessionsView: views.NewSessionsModel(width, height),
		chatView:     views.NewChatModel(renderer, width, height),
	}
}

// Engine exposes the transcript engine.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// State returns the current screen.
func (a *App) State() tui.ViewState {
	return a.state
}

// Init loads the cached and live session lists and starts listening for
// server events.
func (a *App) Init() tea.Cmd {
	_ = a.logger.Append(log.LogEvent{Event: log.EventAppStarted, Data: map[string]any{"server": a.server}})

	cmds := []tea.Cmd{
		commands.LoadCachedSessionsCmd(a.history, a.server),
		commands.LoadSessionsCmd(a.backend, a.history, a.server),
		commands.LoadLastActiveCmd(a.history, a.server),
		commands.LoadPromptsCmd(a.history, a.server),
		commands.LoadCatalogCmd(a.backend),
		a.chatView.Init(),
	}
	if a.events != nil {
		cmds = append(cmds, commands.ListenEventsCmd(a.events))
	}
	return tea.Batch(cmds...)
}

// Update handles messages and updates the application state.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.resize(msg.Width, msg.Height)
		return a, nil

	case tea.KeyMsg:
		if msg.String() == tui.KeyCtrlC {
			if a.ctrlCPending {
				return a, tea.Quit
			}
			a.ctrlCPending = true
			return a, tea.Tick(time.Second, func(time.Time) tea.Msg {
				return tui.CtrlCResetMsg{}
			})
		}

	case tui.CtrlCResetMsg:
		a.ctrlCPending = false
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.chatView, cmd = a.chatView.Update(msg)
		return a, cmd

	// Background results are handled whatever screen is showing.
	case tui.SessionsLoadedMsg:
		return a, a.handleSessionsLoaded(msg)
	case tui.LastActiveMsg:
		return a, a.handleLastActive(msg.ID)
	case tui.SessionCreatedMsg:
		return a, a.handleSessionCreated(msg)
	case tui.SessionRenamedMsg:
		return a, a.handleSessionRenamed(msg)
	case tui.SessionRemovedMsg:
		if msg.Err != nil {
			a.sessionsView.Err = msg.Err
			return a, nil
		}
		a.sessionsView.Remove(msg.ID)
		return a, nil
	case tui.EventMsg:
		return a, a.handleEvent(msg.Event)
	case tui.StreamClosedMsg:
		a.notice = "Event stream closed; restart tide to reconnect"
		a.syncChat()
		return a, nil
	case tui.SnapshotMsg:
		if msg.Err != nil {
			a.engine.SnapshotFailed(msg.Ticket, msg.Err)
		} else {
			a.engine.ApplySnapshot(msg.Ticket, msg.Messages)
		}
		a.syncChat()
		return a, nil
	case tui.SendResultMsg:
		if msg.Err != nil {
			a.engine.SendFailed(msg.Request, msg.Err)
		} else {
			a.engine.SendSucceeded(msg.Request)
		}
		a.syncChat()
		return a, nil
	case tui.WaitingTimeoutMsg:
		if a.engine.WaitingExpired(msg.Seq) {
			a.syncChat()
		}
		return a, nil
	case tui.PromptsLoadedMsg:
		a.chatView.SetPrompts(msg.Prompts)
		return a, nil
	case tui.PolishedMsg:
		if msg.Err != nil {
			a.chatView.PolishFailed()
			a.notice = "Polish failed: " + msg.Err.Error()
		} else {
			a.chatView.SetInput(msg.Text)
		}
		a.syncChat()
		return a, nil
	case tui.CatalogMsg:
		a.handleCatalog(msg)
		return a, nil
	case tui.ErrorMsg:
		a.notice = msg.Err.Error()
		a.syncChat()
		return a, nil

	// Requests raised by the views.
	case views.OpenSessionMsg:
		return a, a.openSession(msg.ID)
	case views.NewSessionMsg:
		return a, commands.CreateSessionCmd(a.backend, "")
	case views.DeleteSessionMsg:
		return a, commands.DeleteSessionCmd(a.backend, a.history, a.server, msg.ID)
	case views.RenameSessionMsg:
		return a, commands.RenameSessionCmd(a.backend, msg.ID, msg.Title)
	case views.RefreshSessionsMsg:
		a.sessionsView.Err = nil
		return a, commands.LoadSessionsCmd(a.backend, a.history, a.server)
	case views.OpenSettingsMsg:
		a.prevState = a.state
		a.state = tui.StateSettings
		a.settingsView = views.NewSettingsModel(a.cfg, a.width, a.height)
		return a, a.settingsView.Init()
	case views.SaveSettingsMsg:
		a.saveSettings(msg.Values)
		return a, nil
	case views.BackMsg:
		if a.state == tui.StateSettings {
			a.state = a.prevState
		} else {
			a.state = tui.StateSessions
		}
		return a, nil
	case views.SendMsg:
		return a, a.submit(msg.Text)
	case views.PolishRequestMsg:
		return a, commands.PolishCmd(a.polisher, msg.Text)
	case views.DismissNoticeMsg:
		a.notice = ""
		a.engine.DismissNotice()
		a.syncChat()
		return a, nil
	}

	var cmd tea.Cmd
	switch a.state {
	case tui.StateSessions:
		a.sessionsView, cmd = a.sessionsView.Update(msg)
	case tui.StateChat:
		a.chatView, cmd = a.chatView.Update(msg)
	case tui.StateSettings:
		a.settingsView, cmd = a.settingsView.Update(msg)
	}
	return a, cmd
}

// View renders the current application state.
func (a *App) View() string {
	var content string
	switch a.state {
	case tui.StateSessions:
		content = a.sessionsView.View()
	case tui.StateChat:
		content = a.chatView.View()
	case tui.StateSettings:
		content = a.settingsView.View()
	default:
		content = "Unknown state"
	}

	if a.ctrlCPending {
		content = lipgloss.JoinVertical(lipgloss.Left, content, tui.WarningStyle.Render("Press Ctrl+C again to exit"))
	}
	return content
}

func (a *App) resize(width, height int) {
	a.width = width
	a.height = height
	if r, err := render.New(a.cfg.Chat.MarkdownStyle, width-6); err == nil {
		a.renderer = r
		a.chatView.SetRenderer(r)
	}
	a.sessionsView.SetSize(width, height)
	a.chatView.SetSize(width, height)
	a.settingsView.SetSize(width, height)
}

// ============================================================================
// Sessions
// ============================================================================

func (a *App) handleSessionsLoaded(msg tui.SessionsLoadedMsg) tea.Cmd {
	if msg.Err != nil {
		if !msg.Cached {
			a.sessionsView.Err = msg.Err
		}
		return nil
	}
	// A cached list arriving after the live one is stale.
	if msg.Cached && a.freshList {
		return nil
	}
	a.engine.Remember(msg.Sessions...)
	cmd := a.sessionsView.SetSessions(msg.Sessions, msg.Cached)
	if msg.Cached {
		return cmd
	}
	a.freshList = true
	a.sessionsView.Err = nil

	if id := a.pendingOpen; id != "" {
		a.pendingOpen = ""
		if _, ok := a.engine.Session(id); ok && a.state == tui.StateSessions && a.engine.Active() == "" {
			return tea.Batch(cmd, a.openSession(id))
		}
	}
	return cmd
}

func (a *App) handleLastActive(id string) tea.Cmd {
	if !a.freshList {
		a.pendingOpen = id
		return nil
	}
	if _, ok := a.engine.Session(id); ok && a.state == tui.StateSessions && a.engine.Active() == "" {
		return a.openSession(id)
	}
	return nil
}

func (a *App) handleSessionCreated(msg tui.SessionCreatedMsg) tea.Cmd {
	if msg.Err != nil {
		a.sessionsView.Err = msg.Err
		return nil
	}
	a.engine.Remember(msg.Session)
	return tea.Batch(
		a.sessionsView.Upsert(msg.Session),
		commands.CacheSessionCmd(a.history, a.server, msg.Session),
		a.openSession(msg.Session.ID),
	)
}

func (a *App) handleSessionRenamed(msg tui.SessionRenamedMsg) tea.Cmd {
	if msg.Err != nil {
		a.sessionsView.Err = msg.Err
		return nil
	}
	a.engine.Remember(msg.Session)
	a.syncChat()
	return tea.Batch(
		a.sessionsView.Upsert(msg.Session),
		commands.CacheSessionCmd(a.history, a.server, msg.Session),
	)
}

// openSession activates id and fetches its transcript.
func (a *App) openSession(id string) tea.Cmd {
	t := a.engine.Activate(id)
	a.state = tui.StateChat
	a.notice = ""
	a.sessionsView.Select(id)
	a.syncChat()
	return tea.Batch(
		commands.FetchSnapshotCmd(a.backend, t),
		commands.SetLastActiveCmd(a.history, a.server, id),
	)
}

// ============================================================================
// Chat
// ============================================================================

func (a *App) selection() *model.ModelSelection {
	if a.cfg.Chat.Provider == "" || a.cfg.Chat.Model == "" {
		return nil
	}
	return &model.ModelSelection{ProviderID: a.cfg.Chat.Provider, ModelID: a.cfg.Chat.Model}
}

func (a *App) submit(text string) tea.Cmd {
	req, err := a.engine.Submit(text, a.selection(), a.cfg.Chat.Agent)
	if err != nil {
		if !errors.Is(err, engine.ErrEmptyInput) {
			a.notice = err.Error()
		}
		a.syncChat()
		return nil
	}
	a.notice = ""
	a.chatView.AddPrompt(text)
	a.syncChat()
	return tea.Batch(
		commands.SendCmd(a.backend, req),
		commands.WaitingTimerCmd(a.cfg.WaitingTimeout(), req.WaitSeq),
		commands.RecordPromptCmd(a.history, a.server, req.SessionID, text),
	)
}

func (a *App) handleEvent(ev model.Event) tea.Cmd {
	var cmds []tea.Cmd
	if a.events != nil {
		cmds = append(cmds, commands.ListenEventsCmd(a.events))
	}

	fx, _ := a.engine.HandleEvent(ev)
	if fx.Refresh != nil {
		cmds = append(cmds, commands.FetchSnapshotCmd(a.backend, *fx.Refresh))
	}

	switch ev.Type {
	case model.EventSessionUpdated:
		if p, err := ev.SessionUpdated(); err == nil {
			a.engine.Remember(p.Info)
			cmds = append(cmds,
				a.sessionsView.Upsert(p.Info),
				commands.CacheSessionCmd(a.history, a.server, p.Info))
		}
	case model.EventSessionDeleted:
		if p, err := ev.SessionUpdated(); err == nil {
			a.sessionsView.Remove(p.Info.ID)
			cmds = append(cmds, commands.ForgetSessionCmd(a.history, a.server, p.Info.ID))
		}
	}

	if fx.SessionDeleted && a.state == tui.StateChat {
		a.state = tui.StateSessions
		a.sessionsView.Err = fmt.Errorf("the open session was deleted")
	}
	a.syncChat()
	return tea.Batch(cmds...)
}

func (a *App) handleCatalog(msg tui.CatalogMsg) {
	if msg.Err != nil {
		return
	}
	a.agents = msg.Agents
	if m, ok := msg.Providers.Default[a.cfg.Chat.Provider]; ok {
		a.defaultModel = m
		return
	}
	for _, p := range msg.Providers.Providers {
		if m, ok := msg.Providers.Default[p.ID]; ok {
			a.defaultModel = m
			return
		}
	}
}

// modelLabel is the model shown in the chat header: the last model that
// answered, else the configured model, else the backend default.
func (a *App) modelLabel() string {
	if id := a.engine.LastModelID(); id != "" {
		return id
	}
	if a.cfg.Chat.Model != "" {
		return a.cfg.Chat.Model
	}
	return a.defaultModel
}

// syncChat copies engine state into the chat view.
func (a *App) syncChat() {
	title := a.engine.Active()
	if s, ok := a.engine.ActiveSession(); ok {
		title = tui.SessionTitle(s)
	}
	a.chatView.SetHeader(title, a.modelLabel())
	a.chatView.SetTranscript(a.engine.Messages(), a.engine.Waiting(), a.engine.WaitingSince())

	notice := a.engine.Notice()
	if notice == "" {
		notice = a.notice
	}
	a.chatView.SetNotice(notice)
}

// ============================================================================
// Settings
// ============================================================================

// saveSettings applies changed values to the running config and writes
// them on top of the config file, so environment overrides are not
// persisted.
func (a *App) saveSettings(values map[string]string) {
	a.settingsView.Err = nil
	a.settingsView.Status = ""

	changed := map[string]string{}
	for _, k := range config.Keys {
		v, ok := values[k]
		if !ok {
			continue
		}
		if cur, _ := a.cfg.Get(k); cur != v {
			changed[k] = v
		}
	}
	if len(changed) == 0 {
		a.settingsView.Status = "No changes"
		return
	}

	updated := *a.cfg
	for k, v := range changed {
		if err := updated.Set(k, v); err != nil {
			a.settingsView.Err = err
			return
		}
	}

	if a.dir != "" {
		onDisk, err := config.ReadConfig(a.dir)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				a.settingsView.Err = err
				return
			}
			onDisk = config.DefaultConfig()
		}
		for k, v := range changed {
			_ = onDisk.Set(k, v)
		}
		if err := config.WriteConfig(a.dir, onDisk); err != nil {
			a.settingsView.Err = err
			return
		}
	}

	old := *a.cfg
	*a.cfg = updated

	if old.Chat.MarkdownStyle != updated.Chat.MarkdownStyle {
		if r, err := render.New(updated.Chat.MarkdownStyle, a.width-6); err == nil {
			a.renderer = r
			a.chatView.SetRenderer(r)
		} else {
			a.settingsView.Err = err
		}
	}
	if old.Polish != updated.Polish {
		if p, err := polish.New(updated.Polish); err == nil {
			a.polisher = p
		} else {
			a.polisher = nil
		}
	}

	a.settingsView.Status = fmt.Sprintf("Saved %d setting(s)", len(changed))
	if old.Server.URL != updated.Server.URL {
		a.settingsView.Status += "; restart tide to connect to the new server"
	}
}
