// Package main is a hook plugin that types the recognized gesture label,
// or a configured key combination, into the focused window. It uses
// AppleScript on macOS and xdotool elsewhere.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Request is the input written by the hook executor.
type Request struct {
	Action     string          `json:"action"`
	Label      string          `json:"label"`
	Index      int             `json:"index"`
	Confidence float64         `json:"confidence"`
	Config     json.RawMessage `json:"config"`
	Params     json.RawMessage `json:"params"`
}

// Response is read back by the hook executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Params configures the type and shortcut actions.
type Params struct {
	Text      string   `json:"text"`      // defaults to the label
	Suffix    string   `json:"suffix"`    // appended to the typed text, e.g. " "
	Key       string   `json:"key"`       // shortcut key
	Modifiers []string `json:"modifiers"` // command, option, control, shift
}

// modifierMap maps user-friendly modifier names to AppleScript equivalents.
var modifierMap = map[string]string{
	"command": "command down",
	"cmd":     "command down",
	"option":  "option down",
	"alt":     "option down",
	"control": "control down",
	"ctrl":    "control down",
	"shift":   "shift down",
}

// xdoModifiers maps the same names to xdotool key prefixes.
var xdoModifiers = map[string]string{
	"command": "super",
	"cmd":     "super",
	"option":  "alt",
	"alt":     "alt",
	"control": "ctrl",
	"ctrl":    "ctrl",
	"shift":   "shift",
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	var p Params
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			writeErrorResponse(fmt.Sprintf("failed to parse params: %v", err))
			return
		}
	}

	var err error
	switch req.Action {
	case "", "type":
		text := p.Text
		if text == "" {
			text = req.Label
		}
		if text == "" {
			writeErrorResponse("nothing to type")
			return
		}
		err = typeText(text + p.Suffix)
	case "shortcut":
		if p.Key == "" {
			writeErrorResponse("key is required")
			return
		}
		err = shortcut(p.Key, p.Modifiers)
	default:
		writeErrorResponse(fmt.Sprintf("unknown action: %s", req.Action))
		return
	}
	if err != nil {
		writeErrorResponse(fmt.Sprintf("action %s failed: %v", req.Action, err))
		return
	}

	writeSuccessResponse()
}

func typeText(text string) error {
	if runtime.GOOS == "darwin" {
		return run("osascript", "-e", fmt.Sprintf(`tell application "System Events" to keystroke %q`, text))
	}
	return run("xdotool", "type", "--", text)
}

func shortcut(key string, modifiers []string) error {
	if runtime.GOOS == "darwin" {
		return run("osascript", "-e", buildKeystrokeScript(key, modifiers))
	}
	var parts []string
	for _, mod := range modifiers {
		if m, ok := xdoModifiers[strings.ToLower(mod)]; ok {
			parts = append(parts, m)
		}
	}
	return run("xdotool", "key", strings.Join(append(parts, key), "+"))
}

// buildKeystrokeScript generates an AppleScript for the given key and modifiers.
func buildKeystrokeScript(key string, modifiers []string) string {
	var appleModifiers []string
	for _, mod := range modifiers {
		if appleMod, ok := modifierMap[strings.ToLower(mod)]; ok {
			appleModifiers = append(appleModifiers, appleMod)
		}
	}

	if len(appleModifiers) == 0 {
		return fmt.Sprintf(`tell application "System Events" to keystroke %q`, key)
	}
	return fmt.Sprintf(`tell application "System Events" to keystroke %q using {%s}`, key, strings.Join(appleModifiers, ", "))
}

func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: false, Error: errMsg})
}

func writeSuccessResponse() {
	json.NewEncoder(os.Stdout).Encode(Response{Success: true})
}

func run(name string, args ...string) error {
	output, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}
