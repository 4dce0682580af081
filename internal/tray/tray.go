// Package tray provides the system tray menu of the candle.
package tray

import (
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/candlelight/internal/candle"
)

// Tray represents the system tray application.
type Tray struct {
	onRelight func() bool
	onOpen    func()
	onQuit    func()
	state     candle.State
	cooling   bool
	mu        sync.RWMutex

	// Menu items stored for later updates
	menuState   *systray.MenuItem
	menuRelight *systray.MenuItem
}

// New creates a new Tray showing a lit candle.
func New() *Tray {
	return &Tray{state: candle.Lit}
}

// OnRelight sets the callback called when the relight menu item is clicked.
func (t *Tray) OnRelight(fn func() bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onRelight = fn
}

// OnOpen sets the callback called when the open display menu item is clicked.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until Quit is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray, which makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Candlelight")
	systray.SetTooltip("Candlelight")

	t.mu.Lock()
	t.menuState = systray.AddMenuItem(stateTitle(t.state, t.cooling), "Candle state")
	t.menuState.Disable()
	systray.AddSeparator()

	t.menuRelight = systray.AddMenuItem("Relight", "Relight the candle")
	t.updateLocked()
	t.mu.Unlock()

	menuOpen := systray.AddMenuItem("Open Display...", "Open the candle in the browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Candlelight")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuRelight.ClickedCh:
				t.handleRelight()
			case <-menuOpen.ClickedCh:
				t.handleOpen()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func (t *Tray) handleRelight() bool {
	t.mu.RLock()
	callback := t.onRelight
	t.mu.RUnlock()

	if callback == nil {
		return false
	}
	return callback()
}

func (t *Tray) handleOpen() {
	t.mu.RLock()
	callback := t.onOpen
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetState updates the candle state shown in the menu.
func (t *Tray) SetState(state candle.State, coolingDown bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = state
	t.cooling = coolingDown
	t.updateLocked()
}

// OnTransition updates the menu after a candle transition. It has the
// signature of a candle transition listener.
func (t *Tray) OnTransition(tr candle.Transition) {
	t.SetState(tr.To, tr.To == candle.Lit)
}

func (t *Tray) updateLocked() {
	if t.menuState != nil {
		t.menuState.SetTitle(stateTitle(t.state, t.cooling))
	}
	if t.menuRelight != nil {
		if t.state == candle.Unlit {
			t.menuRelight.Enable()
		} else {
			t.menuRelight.Disable()
		}
	}
}

// State returns the state last shown.
func (t *Tray) State() candle.State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func stateTitle(state candle.State, coolingDown bool) string {
	switch {
	case state == candle.Unlit:
		return "○ Blown out"
	case coolingDown:
		return "● Lit (just relit)"
	default:
		return "● Lit"
	}
}
