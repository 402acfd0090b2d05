package present

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/atotto/clipboard"
	"github.com/gen2brain/beeep"
	"github.com/micmonay/keybd_event"
)

// Desktop talks to the OS: toast notifications, the clipboard and a
// synthetic Ctrl+V.
type Desktop struct {
	// Consulted on every call so settings reloads apply immediately
	Notifications func() bool
	AutoPaste     func() bool

	kb    *keybd_event.KeyBonding
	kbErr error
}

func NewDesktop(notifications, autoPaste func() bool) *Desktop {
	d := &Desktop{
		Notifications: notifications,
		AutoPaste:     autoPaste,
	}
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		d.kbErr = err
		slog.Warn("Keyboard injection unavailable, auto-paste disabled", "error", err)
		return d
	}
	if runtime.GOOS == "linux" {
		// uinput needs a moment before the virtual device accepts events
		time.Sleep(2 * time.Second)
	}
	d.kb = &kb
	return d
}

func (d *Desktop) Notify(title, message string) {
	if d.Notifications != nil && !d.Notifications() {
		return
	}
	if err := beeep.Notify(title, message, ""); err != nil {
		slog.Debug("Failed to show notification", "error", err, "title", title)
	}
}

// CopyAndPaste puts text on the clipboard and, when enabled, pastes it into
// the focused window.
func (d *Desktop) CopyAndPaste(text string) {
	if err := clipboard.WriteAll(text); err != nil {
		slog.Error("Failed to write clipboard", "error", err)
		return
	}
	if d.AutoPaste != nil && !d.AutoPaste() {
		return
	}
	if d.kb == nil {
		slog.Debug("Skipping auto-paste", "error", d.kbErr)
		return
	}

	time.Sleep(80 * time.Millisecond)

	d.kb.Clear()
	d.kb.HasCTRL(true)
	d.kb.SetKeys(keybd_event.VK_V)
	if err := d.kb.Launching(); err != nil {
		slog.Error("Failed to send paste keystroke", "error", err)
	}
}
