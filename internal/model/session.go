// Package model defines the wire types exchanged with the agent backend:
// sessions, messages, message parts and server-sent events.
package model

// SessionTime holds the creation and last-update timestamps of a session
// in Unix milliseconds.
type SessionTime struct {
	Created int64 `json:"created"`
	Updated int64 `json:"updated"`
}

// Share is present on a session that has been published.
type Share struct {
	URL string `json:"url"`
}

// Session is a conversation owned by the backend.
type Session struct {
	ID        string      `json:"id"`
	ProjectID string      `json:"projectID"`
	Title     string      `json:"title"`
	ParentID  string      `json:"parentID,omitempty"`
	Time      SessionTime `json:"time"`
	Share     *Share      `json:"share,omitempty"`
}

// Agent is an agent definition advertised by the backend.
type Agent struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ModelInfo describes one model offered by a provider.
type ModelInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Limit struct {
		Context int `json:"context"`
		Output  int `json:"output"`
	} `json:"limit"`
}

// Provider groups the models served by one upstream provider.
type Provider struct {
	ID     string               `json:"id"`
	Name   string               `json:"name"`
	Models map[string]ModelInfo `json:"models"`
}

// ProvidersResponse is the payload of GET /config/providers.
// Default maps provider id to its default model id.
type ProvidersResponse struct {
	Providers []Provider        `json:"providers"`
	Default   map[string]string `json:"default"`
}

// ServerConfig is the subset of the backend configuration the client reads.
type ServerConfig struct {
	Theme string `json:"theme,omitempty"`
	Model string `json:"model,omitempty"`
}
