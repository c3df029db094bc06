// Package config handles reading and writing tide's config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tide-dev/tide/prompts"
)

// Config is the top-level structure for config.yaml.
type Config struct {
	Version int          `yaml:"version"`
	Server  ServerConfig `yaml:"server"`
	Chat    ChatConfig   `yaml:"chat"`
	Polish  PolishConfig `yaml:"polish"`
}

// ServerConfig locates the agent backend.
type ServerConfig struct {
	URL            string `yaml:"url"`
	RequestTimeout int    `yaml:"request_timeout"` // seconds
	ReconnectDelay int    `yaml:"reconnect_delay"` // seconds
}

// ChatConfig controls the chat surface.
type ChatConfig struct {
	WaitingTimeout int    `yaml:"waiting_timeout"` // seconds
	Provider       string `yaml:"provider"`
	Model          string `yaml:"model"`
	Agent          string `yaml:"agent"`
	MarkdownStyle  string `yaml:"markdown_style"` // glamour standard style: "dark" | "light" | "notty"
}

// PolishConfig configures the OpenAI-compatible endpoint used to rewrite input.
type PolishConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Prompt  string `yaml:"prompt"`
}

// Enabled reports whether enough is configured to call the LLM.
func (p PolishConfig) Enabled() bool {
	return p.BaseURL != "" && p.APIKey != ""
}

const (
	appDirName = "tide"
	configFile = "config.yaml"
)

// Environment variables that override file values.
const (
	EnvServerURL    = "TIDE_SERVER_URL"
	EnvPolishAPIKey = "TIDE_POLISH_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvConfigDir    = "TIDE_CONFIG_DIR"
)

// Dir returns the directory holding config.yaml, log.jsonl and the local
// session cache. TIDE_CONFIG_DIR wins over the OS user config directory.
func Dir() (string, error) {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating user config directory: %w", err)
	}
	return filepath.Join(base, appDirName), nil
}

// ReadConfig reads config.yaml from the given config directory.
// Returns an error if the file is not found or YAML is malformed.
func ReadConfig(dir string) (*Config, error) {
	path := filepath.Join(dir, configFile)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// WriteConfig writes cfg to config.yaml in the given directory.
// Creates the directory if it does not exist.
func WriteConfig(dir string, cfg *Config) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	path := filepath.Join(dir, configFile)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// Load reads config.yaml from dir, falling back to defaults when the file
// does not exist, then applies environment overrides. A .env file in the
// working directory is loaded first if present.
func Load(dir string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := ReadConfig(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		cfg = DefaultConfig()
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvServerURL); v != "" {
		cfg.Server.URL = v
	}
	if v := os.Getenv(EnvPolishAPIKey); v != "" {
		cfg.Polish.APIKey = v
	} else if cfg.Polish.APIKey == "" {
		cfg.Polish.APIKey = os.Getenv(EnvOpenAIAPIKey)
	}
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Server: ServerConfig{
			URL:            "http://localhost:4096",
			RequestTimeout: 60,
			ReconnectDelay: 5,
		},
		Chat: ChatConfig{
			WaitingTimeout: 5,
			MarkdownStyle:  "dark",
		},
		Polish: PolishConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o",
			Prompt:  prompts.PolishPrompt,
		},
	}
}

// RequestTimeout returns the per-request HTTP timeout.
func (c *Config) RequestTimeout() time.Duration {
	return seconds(c.Server.RequestTimeout, 60)
}

// ReconnectDelay returns the pause between event stream reconnects.
func (c *Config) ReconnectDelay() time.Duration {
	return seconds(c.Server.ReconnectDelay, 5)
}

// WaitingTimeout returns how long the client waits for the first response
// event before showing a slow-response notice.
func (c *Config) WaitingTimeout() time.Duration {
	return seconds(c.Chat.WaitingTimeout, 5)
}

func seconds(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Second
}

// Keys lists the dotted keys accepted by Set and Get.
var Keys = []string{
	"server.url",
	"server.request_timeout",
	"server.reconnect_delay",
	"chat.waiting_timeout",
	"chat.provider",
	"chat.model",
	"chat.agent",
	"chat.markdown_style",
	"polish.base_url",
	"polish.api_key",
	"polish.model",
	"polish.prompt",
}

// Set assigns value to a dotted key such as "server.url".
func (c *Config) Set(key, value string) error {
	intField := func(dst *int) error {
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s must be a positive integer, got %q", key, value)
		}
		*dst = n
		return nil
	}

	switch strings.ToLower(key) {
	case "server.url":
		c.Server.URL = strings.TrimRight(value, "/")
	case "server.request_timeout":
		return intField(&c.Server.RequestTimeout)
	case "server.reconnect_delay":
		return intField(&c.Server.ReconnectDelay)
	case "chat.waiting_timeout":
		return intField(&c.Chat.WaitingTimeout)
	case "chat.provider":
		c.Chat.Provider = value
	case "chat.model":
		c.Chat.Model = value
	case "chat.agent":
		c.Chat.Agent = value
	case "chat.markdown_style":
		c.Chat.MarkdownStyle = value
	case "polish.base_url":
		c.Polish.BaseURL = value
	case "polish.api_key":
		c.Polish.APIKey = value
	case "polish.model":
		c.Polish.Model = value
	case "polish.prompt":
		c.Polish.Prompt = value
	default:
		return fmt.Errorf("unknown config key %q (valid: %s)", key, strings.Join(Keys, ", "))
	}
	return nil
}

// Get returns the string form of a dotted key.
func (c *Config) Get(key string) (string, error) {
	switch strings.ToLower(key) {
	case "server.url":
		return c.Server.URL, nil
	case "server.request_timeout":
		return strconv.Itoa(c.Server.RequestTimeout), nil
	case "server.reconnect_delay":
		return strconv.Itoa(c.Server.ReconnectDelay), nil
	case "chat.waiting_timeout":
		return strconv.Itoa(c.Chat.WaitingTimeout), nil
	case "chat.provider":
		return c.Chat.Provider, nil
	case "chat.model":
		return c.Chat.Model, nil
	case "chat.agent":
		return c.Chat.Agent, nil
	case "chat.markdown_style":
		return c.Chat.MarkdownStyle, nil
	case "polish.base_url":
		return c.Polish.BaseURL, nil
	case "polish.api_key":
		return c.Polish.APIKey, nil
	case "polish.model":
		return c.Polish.Model, nil
	case "polish.prompt":
		return c.Polish.Prompt, nil
	default:
		return "", fmt.Errorf("unknown config key %q", key)
	}
}
