package hotkey

import "sync"

type Key int

const (
	KeyUnknown Key = iota
	KeyCtrl
	KeyAlt
	KeyRightAlt
	KeyShift
	KeyMeta
	KeyComma
	KeyPeriod
	KeySlash
)

func (k Key) IsModifier() bool {
	switch k {
	case KeyCtrl, KeyAlt, KeyRightAlt, KeyShift, KeyMeta:
		return true
	}
	return false
}

func (k Key) String() string {
	switch k {
	case KeyCtrl:
		return "ctrl"
	case KeyAlt:
		return "alt"
	case KeyRightAlt:
		return "ralt"
	case KeyShift:
		return "shift"
	case KeyMeta:
		return "meta"
	case KeyComma:
		return ","
	case KeyPeriod:
		return "."
	case KeySlash:
		return "/"
	}
	return "unknown"
}

// ChordModifier must be held, on either side, for any binding to fire.
const ChordModifier = KeyAlt

// Event is a single key transition.
type Event struct {
	Key     Key
	Pressed bool
}

type Intent int

const (
	IntentNone Intent = iota
	StartHold
	StopHold
	ToggleStart
	ToggleStop
	Cancel

	// MenuToggle comes from the tray rather than the keyboard: it starts a
	// toggle session when idle and stops whatever session is recording.
	MenuToggle
)

func (i Intent) String() string {
	switch i {
	case StartHold:
		return "start-hold"
	case StopHold:
		return "stop-hold"
	case ToggleStart:
		return "toggle-start"
	case ToggleStop:
		return "toggle-stop"
	case Cancel:
		return "cancel"
	case MenuToggle:
		return "menu-toggle"
	}
	return "none"
}

// IsStart reports whether the intent asks for a new recording.
func (i Intent) IsStart() bool {
	return i == StartHold || i == ToggleStart
}

// IsToggle reports whether the intent came from the toggle chord. The
// controller treats both as a press and decides from its own session which
// one applies.
func (i Intent) IsToggle() bool {
	return i == ToggleStart || i == ToggleStop
}

// Interpreter turns raw key transitions into recording intents.
//
// Bindings, all with ChordModifier held:
//
//	,  press starts a hold recording, release stops it
//	.  press toggles recording on or off
//	/  press cancels the active recording
type Interpreter struct {
	mu      sync.Mutex
	held    map[Key]bool
	down    map[Key]bool
	holding bool
	toggled bool
}

func NewInterpreter() *Interpreter {
	return &Interpreter{
		held: make(map[Key]bool),
		down: make(map[Key]bool),
	}
}

// Feed applies one event and returns the intent it produced, if any.
func (in *Interpreter) Feed(ev Event) (Intent, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if ev.Key.IsModifier() {
		if ev.Pressed {
			in.held[ev.Key] = true
		} else {
			delete(in.held, ev.Key)
		}
		return IntentNone, false
	}

	switch ev.Key {
	case KeyComma, KeyPeriod, KeySlash:
	default:
		return IntentNone, false
	}

	if !ev.Pressed {
		wasDown := in.down[ev.Key]
		delete(in.down, ev.Key)
		if ev.Key == KeyComma && wasDown && in.holding {
			in.holding = false
			return StopHold, true
		}
		return IntentNone, false
	}

	// auto-repeat
	if in.down[ev.Key] {
		return IntentNone, false
	}
	if !in.held[KeyAlt] && !in.held[KeyRightAlt] {
		return IntentNone, false
	}
	in.down[ev.Key] = true

	switch ev.Key {
	case KeyComma:
		if in.holding {
			return IntentNone, false
		}
		in.holding = true
		return StartHold, true
	case KeyPeriod:
		return in.flip(), true
	case KeySlash:
		in.holding = false
		in.toggled = false
		return Cancel, true
	}
	return IntentNone, false
}

func (in *Interpreter) flip() Intent {
	in.toggled = !in.toggled
	if in.toggled {
		return ToggleStart
	}
	return ToggleStop
}

func (in *Interpreter) Reset() {
	in.mu.Lock()
	defer in.mu.Unlock()
	clear(in.held)
	clear(in.down)
	in.holding = false
	in.toggled = false
}

// Toggled reports whether the toggle flag is set.
func (in *Interpreter) Toggled() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.toggled
}
