// Package terminal configures terminal emulators so that Shift+Enter sends
// a sequence the chat input reads as "new line" instead of "send".
package terminal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// NewlineSequence is what Shift+Enter is bound to send: ESC CR, which
// bubbletea reports as alt+enter.
const NewlineSequence = "\x1b\r"

// Kind names a supported terminal.
type Kind string

const (
	VSCode    Kind = "vscode"
	Warp      Kind = "warp"
	Alacritty Kind = "alacritty"
	Apple     Kind = "apple"
)

// Kinds lists the terminals Setup knows about.
var Kinds = []Kind{VSCode, Warp, Alacritty, Apple}

// Detect guesses the running terminal from the environment. It returns ""
// when the terminal is not recognised.
func Detect() Kind {
	switch os.Getenv("TERM_PROGRAM") {
	case "vscode":
		return VSCode
	case "WarpTerminal":
		return Warp
	case "Apple_Terminal":
		return Apple
	}
	if os.Getenv("ALACRITTY_WINDOW_ID") != "" || os.Getenv("TERM") == "alacritty" {
		return Alacritty
	}
	return ""
}

// Result describes what Setup did.
type Result struct {
	Changed      bool   // a config file was written
	Manual       bool   // the terminal needs manual steps, see Message
	Message      string
	ConfigPath   string
	NeedsRestart bool
}

// Setup adds the Shift+Enter binding for kind below the home directory.
func Setup(kind Kind, home string) (*Result, error) {
	switch kind {
	case VSCode:
		return setupVSCode(home)
	case Warp:
		return setupWarp(home)
	case Alacritty:
		return setupAlacritty(home)
	case Apple:
		return &Result{
			Manual: true,
			Message: "Terminal.app cannot be configured automatically.\n" +
				"Enable Settings > Profiles > Keyboard > \"Use Option as Meta Key\" and use Option+Enter, or Ctrl+J.",
		}, nil
	default:
		return &Result{
			Manual:  true,
			Message: fmt.Sprintf("No automatic setup for %q; use Ctrl+J for new lines.", kind),
		}, nil
	}
}

func vscodePaths(home string) []string {
	var bases []string
	switch runtime.GOOS {
	case "darwin":
		bases = []string{filepath.Join(home, "Library", "Application Support")}
	case "windows":
		bases = []string{filepath.Join(home, "AppData", "Roaming")}
	default:
		bases = []string{filepath.Join(home, ".config")}
	}
	var paths []string
	for _, base := range bases {
		for _, app := range []string{"Code", "Cursor"} {
			paths = append(paths, filepath.Join(base, app, "User", "keybindings.json"))
		}
	}
	return paths
}

func setupVSCode(home string) (*Result, error) {
	var path string
	for _, p := range vscodePaths(home) {
		if _, err := os.Stat(filepath.Dir(p)); err == nil {
			path = p
			break
		}
	}
	if path == "" {
		return nil, errors.New("no VS Code or Cursor user settings directory found")
	}

	var bindings []map[string]any
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if strings.TrimSpace(string(data)) != "" {
			if err := json.Unmarshal([]byte(stripJSONComments(string(data))), &bindings); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	for _, b := range bindings {
		if b["key"] == "shift+enter" && b["command"] == "workbench.action.terminal.sendSequence" {
			return &Result{Message: "Shift+Enter is already bound in VS Code", ConfigPath: path}, nil
		}
	}

	bindings = append(bindings, map[string]any{
		"key":     "shift+enter",
		"command": "workbench.action.terminal.sendSequence",
		"args":    map[string]string{"text": NewlineSequence},
		"when":    "terminalFocus",
	})
	out, err := json.MarshalIndent(bindings, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}
	return &Result{Changed: true, Message: "Bound Shift+Enter in VS Code", ConfigPath: path, NeedsRestart: true}, nil
}

func setupWarp(home string) (*Result, error) {
	path := filepath.Join(home, ".warp", "keybindings.yaml")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	var bindings []map[string]any
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &bindings); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	for _, b := range bindings {
		if b["key"] == "shift-enter" {
			return &Result{Message: "Shift+Enter is already bound in Warp", ConfigPath: path}, nil
		}
	}

	bindings = append(bindings, map[string]any{
		"key":    "shift-enter",
		"action": "send_text",
		"text":   NewlineSequence,
	})
	out, err := yaml.Marshal(bindings)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}
	return &Result{Changed: true, Message: "Bound Shift+Enter in Warp", ConfigPath: path, NeedsRestart: true}, nil
}

const alacrittyBinding = `
# tide: Shift+Enter inserts a new line
[[keyboard.bindings]]
key = "Return"
mods = "Shift"
chars = "\u001b\r"
`

func setupAlacritty(home string) (*Result, error) {
	candidates := []string{
		filepath.Join(home, ".config", "alacritty", "alacritty.toml"),
		filepath.Join(home, ".alacritty.toml"),
	}
	path := candidates[0]
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			path = p
			break
		}
	}

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	content := string(data)
	if strings.Contains(content, `key = "Return"`) && strings.Contains(content, `mods = "Shift"`) {
		return &Result{Message: "Shift+Enter is already bound in Alacritty", ConfigPath: path}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(content+alacrittyBinding), 0644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}
	return &Result{Changed: true, Message: "Bound Shift+Enter in Alacritty", ConfigPath: path, NeedsRestart: true}, nil
}

// stripJSONComments removes // and /* */ comments outside strings, as
// VS Code accepts them in its settings files.
func stripJSONComments(in string) string {
	var b strings.Builder
	inString, escaped := false, false
	for i := 0; i < len(in); i++ {
		c := in[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch {
		case c == '"':
			inString = true
			b.WriteByte(c)
		case c == '/' && i+1 < len(in) && in[i+1] == '/':
			for i < len(in) && in[i] != '\n' {
				i++
			}
			if i < len(in) {
				b.WriteByte('\n')
			}
		case c == '/' && i+1 < len(in) && in[i+1] == '*':
			i += 2
			for i+1 < len(in) && !(in[i] == '*' && in[i+1] == '/') {
				i++
			}
			i++
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
