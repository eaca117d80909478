// Package main is a hook plugin that speaks the recognized gesture label
// with the platform speech synthesizer (say on macOS, espeak elsewhere).
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// Request is the input written by the hook executor.
type Request struct {
	Action     string          `json:"action"`
	Label      string          `json:"label"`
	Confidence float64         `json:"confidence"`
	Params     json.RawMessage `json:"params"`
}

// Response is read back by the hook executor.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Params configures the say action.
type Params struct {
	Text  string `json:"text"` // defaults to the label
	Voice string `json:"voice"`
	Rate  int    `json:"rate"` // words per minute, 0 for the default
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResponse(fmt.Errorf("failed to decode request: %w", err))
		return
	}
	if req.Action != "" && req.Action != "say" {
		writeResponse(fmt.Errorf("unknown action: %s", req.Action))
		return
	}

	var p Params
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			writeResponse(fmt.Errorf("failed to parse params: %w", err))
			return
		}
	}
	text := p.Text
	if text == "" {
		text = req.Label
	}
	if text == "" {
		writeResponse(fmt.Errorf("nothing to say"))
		return
	}

	writeResponse(say(text, p))
}

func say(text string, p Params) error {
	name, args := command(runtime.GOOS, text, p)
	output, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w: %s", name, err, string(output))
	}
	return nil
}

// command returns the synthesizer invocation for goos. The text always
// follows "--" so it is never parsed as an option.
func command(goos, text string, p Params) (string, []string) {
	name, rateFlag := "espeak", "-s"
	if goos == "darwin" {
		name, rateFlag = "say", "-r"
	}
	var args []string
	if p.Voice != "" {
		args = append(args, "-v", p.Voice)
	}
	if p.Rate > 0 {
		args = append(args, rateFlag, fmt.Sprint(p.Rate))
	}
	return name, append(args, "--", text)
}

func writeResponse(err error) {
	resp := Response{Success: err == nil}
	if err != nil {
		resp.Error = err.Error()
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
