package hotkey

import (
	"context"
	"log/slog"

	hook "github.com/robotn/gohook"
)

// Listener feeds global keyboard events from gohook into an Interpreter and
// hands every resulting intent to emit.
type Listener struct {
	interp *Interpreter
	emit   func(context.Context, Intent)
	keys   map[uint16]Key
	logger *slog.Logger
}

func NewListener(interp *Interpreter, emit func(context.Context, Intent), logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		interp: interp,
		emit:   emit,
		keys:   keycodes(),
		logger: logger,
	}
}

func keycodes() map[uint16]Key {
	names := map[string]Key{
		"ctrl":   KeyCtrl,
		"rctrl":  KeyCtrl,
		"alt":    KeyAlt,
		"ralt":   KeyRightAlt,
		"shift":  KeyShift,
		"rshift": KeyShift,
		"cmd":    KeyMeta,
		"rcmd":   KeyMeta,
		",":      KeyComma,
		".":      KeyPeriod,
		"/":      KeySlash,
	}
	codes := make(map[uint16]Key, len(names))
	for name, key := range names {
		code, ok := hook.Keycode[name]
		if !ok || code == 0 {
			continue
		}
		codes[code] = key
	}
	return codes
}

// Run blocks until ctx is cancelled or the hook shuts down.
func (l *Listener) Run(ctx context.Context) error {
	events := hook.Start()
	defer func() {
		hook.End()
		l.interp.Reset()
		l.logger.Debug("Hotkey listener stopped")
	}()

	l.logger.Info("Hotkey listener started",
		"hold", ChordModifier.String()+"+,",
		"toggle", ChordModifier.String()+"+.",
		"cancel", ChordModifier.String()+"+/")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			l.handle(ctx, ev)
		}
	}
}

func (l *Listener) handle(ctx context.Context, ev hook.Event) {
	var pressed bool
	switch ev.Kind {
	case hook.KeyHold, hook.KeyDown:
		pressed = true
	case hook.KeyUp:
		pressed = false
	default:
		return
	}

	key, ok := l.keys[ev.Keycode]
	if !ok {
		return
	}

	intent, ok := l.interp.Feed(Event{Key: key, Pressed: pressed})
	if !ok {
		return
	}
	l.logger.Debug("Hotkey intent", "intent", intent)
	l.emit(ctx, intent)
}
