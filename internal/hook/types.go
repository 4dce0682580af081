// Package hook runs external executables when the candle changes state.
package hook

import (
	"encoding/json"
	"time"
)

// Events a hook can subscribe to.
const (
	EventExtinguished = "extinguished"
	EventRelit        = "relit"
)

// Manifest describes a hook's metadata and the events it handles.
type Manifest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Executable  string          `json:"executable"`
	Events      []string        `json:"events"`
	Config      json.RawMessage `json:"config,omitempty"`
}

// Handles reports whether the hook subscribes to event. A manifest without
// events receives all of them.
func (m Manifest) Handles(event string) bool {
	if len(m.Events) == 0 {
		return true
	}
	for _, e := range m.Events {
		if e == event {
			return true
		}
	}
	return false
}

// Request is written to the hook's stdin as JSON.
type Request struct {
	Event   string          `json:"event"`
	Session string          `json:"session"`
	State   string          `json:"state"`
	At      time.Time       `json:"at"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// Response is read from the hook's stdout. Empty output counts as success.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Hook is a discovered hook with its manifest and location.
type Hook struct {
	Manifest   Manifest
	Path       string
	Executable string
}
