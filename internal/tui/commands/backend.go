// Package commands provides Bubble Tea commands for TUI operations.
package commands

import (
	"context"
	"time"

	"github.com/tide-dev/tide/internal/engine"
	"github.com/tide-dev/tide/internal/model"
)

// DefaultTimeout bounds every backend call started by a command.
const DefaultTimeout = 2 * time.Minute

// Backend is the agent API used by the TUI. *api.Client implements it.
type Backend interface {
	engine.Backend
	ListSessions(ctx context.Context) ([]model.Session, error)
	CreateSession(ctx context.Context, title string) (model.Session, error)
	UpdateSession(ctx context.Context, id, title string) (model.Session, error)
	DeleteSession(ctx context.Context, id string) error
	GetAgents(ctx context.Context) ([]model.Agent, error)
	GetProviders(ctx context.Context) (model.ProvidersResponse, error)
}

// Polisher rewrites input text. *polish.Client implements it.
type Polisher interface {
	Polish(ctx context.Context, text string) (string, error)
}

func callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), DefaultTimeout)
}
