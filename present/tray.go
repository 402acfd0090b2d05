package present

import (
	"sync"

	"github.com/getlantern/systray"

	"github.com/bosley/dictate/controller"
)

const appTitle = "Dictate"

// Labels derived from the controller mode.
type Labels struct {
	Title   string
	Tooltip string
	Action  string
	Enabled bool
}

func LabelsFor(mode controller.Mode) Labels {
	switch mode {
	case controller.Recording:
		return Labels{
			Title:   appTitle + " ●",
			Tooltip: "Recording...",
			Action:  "Stop Recording",
			Enabled: true,
		}
	case controller.Processing:
		return Labels{
			Title:   appTitle + " …",
			Tooltip: "Transcribing...",
			Action:  "Transcribing...",
			Enabled: false,
		}
	}
	return Labels{
		Title:   appTitle,
		Tooltip: "Idle. Alt+, hold, Alt+. toggle, Alt+/ cancel",
		Action:  "Record & Transcribe",
		Enabled: true,
	}
}

// Tray is the system tray icon. Run must be called from the main goroutine.
type Tray struct {
	onToggle func()
	onQuit   func()

	mu     sync.Mutex
	mode   controller.Mode
	ready  bool
	action *systray.MenuItem
}

func NewTray(onToggle, onQuit func()) *Tray {
	return &Tray{
		onToggle: onToggle,
		onQuit:   onQuit,
	}
}

// Run blocks until Quit is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	t.mu.Lock()
	t.action = systray.AddMenuItem("Record & Transcribe", "Start or stop a recording")
	systray.AddSeparator()
	quit := systray.AddMenuItem("Quit", "Quit the application")
	t.ready = true
	t.apply()
	action := t.action
	t.mu.Unlock()

	go func() {
		for {
			select {
			case <-action.ClickedCh:
				if t.onToggle != nil {
					t.onToggle()
				}
			case <-quit.ClickedCh:
				systray.Quit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {
	if t.onQuit != nil {
		t.onQuit()
	}
}

func (t *Tray) SetState(mode controller.Mode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mode = mode
	if t.ready {
		t.apply()
	}
}

func (t *Tray) apply() {
	labels := LabelsFor(t.mode)
	systray.SetTitle(labels.Title)
	systray.SetTooltip(labels.Tooltip)
	t.action.SetTitle(labels.Action)
	if labels.Enabled {
		t.action.Enable()
	} else {
		t.action.Disable()
	}
}
