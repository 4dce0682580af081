// Package main provides a hook that shows a desktop notification when the
// candle is blown out or relit.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"time"
)

// Request represents the input from the hook executor.
type Request struct {
	Event   string          `json:"event"`
	Session string          `json:"session"`
	State   string          `json:"state"`
	At      time.Time       `json:"at"`
	Config  json.RawMessage `json:"config"`
}

// Response represents the output to the hook executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config is the manifest config of the hook.
type Config struct {
	Title string `json:"title"`
	// DryRun prints the notification instead of showing it.
	DryRun bool `json:"dry_run"`
}

// messages maps events to notification text.
var messages = map[string]string{
	"extinguished": "The candle was blown out. Make a wish!",
	"relit":        "The candle is lit again.",
}

func main() {
	resp := handle(os.Stdin, notify)
	json.NewEncoder(os.Stdout).Encode(resp)
}

func handle(r io.Reader, show func(title, body string) error) Response {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return errorResponse(fmt.Sprintf("failed to decode request: %v", err))
	}

	cfg := Config{Title: "Candlelight"}
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			return errorResponse(fmt.Sprintf("invalid config: %v", err))
		}
	}

	body, ok := messages[req.Event]
	if !ok {
		return errorResponse(fmt.Sprintf("unknown event: %s", req.Event))
	}
	if !req.At.IsZero() {
		body += " (" + req.At.Local().Format("15:04:05") + ")"
	}

	if cfg.DryRun {
		data, _ := json.Marshal(map[string]string{"title": cfg.Title, "body": body})
		return Response{Success: true, Data: data}
	}
	if err := show(cfg.Title, body); err != nil {
		return errorResponse(fmt.Sprintf("notification failed: %v", err))
	}
	return Response{Success: true}
}

func errorResponse(msg string) Response {
	return Response{Success: false, Error: msg}
}

// notify shows a notification with the platform's notifier.
func notify(title, body string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		script := "display notification " + strconv.Quote(body) + " with title " + strconv.Quote(title)
		cmd = exec.Command("osascript", "-e", script)
	case "linux":
		cmd = exec.Command("notify-send", title, body)
	default:
		return fmt.Errorf("notifications are not supported on %s", runtime.GOOS)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}
