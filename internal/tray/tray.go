// Package tray provides a system tray menu for the mudra controller.
package tray

import (
	"context"
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/mudra/internal/status"
)

const (
	titleEnabled  = "● Enabled"
	titleDisabled = "○ Disabled"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle  func(enabled bool)
	onQuit    func()
	enabled   bool
	publisher *status.Publisher
	mu        sync.RWMutex

	// Menu items stored for later updates
	menuToggle  *systray.MenuItem
	menuVolume  *systray.MenuItem
	volumeLabel string
}

// New creates a new Tray instance with enabled state set to true by default.
// When p is non-nil the menu shows the applied volume as it changes.
func New(p *status.Publisher) *Tray {
	return &Tray{
		enabled:     true,
		publisher:   p,
		volumeLabel: VolumeTitle(status.State{}),
	}
}

// OnToggle sets the callback function to be called when the enabled state is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application and blocks until Quit is clicked
// or ctx is cancelled. It must be called from the main goroutine.
func (t *Tray) Run(ctx context.Context) {
	systray.Run(func() { t.onReady(ctx) }, func() {})
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady(ctx context.Context) {
	systray.SetTitle("Mudra")
	systray.SetTooltip("Mudra pinch volume control")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(ToggleTitle(t.enabled), "Toggle volume control")
	systray.AddSeparator()

	t.menuVolume = systray.AddMenuItem(t.volumeLabel, "Last applied volume")
	t.menuVolume.Disable()
	systray.AddSeparator()
	t.mu.Unlock()

	menuQuit := systray.AddMenuItem("Quit", "Quit Mudra")

	var states <-chan status.State
	cancel := func() {}
	if t.publisher != nil {
		states, cancel = t.publisher.Subscribe()
	}

	go func() {
		defer cancel()
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case st, ok := <-states:
				if !ok {
					states = nil
					continue
				}
				t.SetVolume(st)
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				systray.Quit()
				return
			case <-ctx.Done():
				systray.Quit()
				return
			}
		}
	}()
}

// handleToggle flips the enabled state and reports it to the toggle callback.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled

	if t.menuToggle != nil {
		t.menuToggle.SetTitle(ToggleTitle(enabled))
	}

	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

// handleQuit runs the quit callback.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// SetVolume updates the volume display in the menu. States arrive once per
// frame; the menu is only touched when the label changes, which SetVolume
// reports.
func (t *Tray) SetVolume(st status.State) bool {
	label := VolumeTitle(st)

	t.mu.Lock()
	defer t.mu.Unlock()

	if label == t.volumeLabel {
		return false
	}
	t.volumeLabel = label
	if t.menuVolume != nil {
		t.menuVolume.SetTitle(label)
	}
	return true
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// ToggleTitle is the toggle item's label for the given state.
func ToggleTitle(enabled bool) string {
	if enabled {
		return titleEnabled
	}
	return titleDisabled
}

// VolumeTitle is the volume item's label for st.
func VolumeTitle(st status.State) string {
	if !st.HasVolume {
		return "Volume: --"
	}
	return fmt.Sprintf("Volume: %d%%", st.Volume)
}
