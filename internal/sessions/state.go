package sessions

import "time"

// State of a visitor's session window.
type State int

const (
	// StateExpired means no session window is active for the visitor.
	StateExpired State = iota
	// StateActive means the window is still open.
	StateActive
)

func (s State) String() string {
	if s == StateActive {
		return "active"
	}
	return "expired"
}

// Evaluate applies the single transition of the session lifetime machine:
// a window stays Active while the time since last activity is within the
// inactivity timeout, and Expires otherwise. Taking "now" as an input keeps
// the machine testable without clock mocking.
func Evaluate(now, lastActivity time.Time, timeout time.Duration) State {
	if lastActivity.IsZero() {
		return StateExpired
	}
	if now.Sub(lastActivity) > timeout {
		return StateExpired
	}
	return StateActive
}
