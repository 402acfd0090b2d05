package controller

import (
	"time"

	"github.com/bosley/dictate/hotkey"
)

type Mode int32

const (
	Idle Mode = iota
	Recording
	Processing
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Processing:
		return "processing"
	}
	return "unknown"
}

// Session is the single recording attempt owned by the controller.
type Session struct {
	State     Mode
	Origin    hotkey.Intent
	StartedAt time.Time
}

// stops reports whether intent ends a session started by s.Origin. Either
// toggle intent ends a toggle session, since the chord's own flag can lag
// behind the session.
func (s Session) stops(intent hotkey.Intent) bool {
	switch intent {
	case hotkey.StopHold:
		return s.Origin == hotkey.StartHold
	case hotkey.ToggleStart, hotkey.ToggleStop:
		return s.Origin == hotkey.ToggleStart
	case hotkey.MenuToggle:
		return true
	}
	return false
}
