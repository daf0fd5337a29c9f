package activation

// State is the activation state of a session.
type State int

const (
	Idle State = iota
	Listening
	CommandWindow
	Capturing
	Speaking
	Restarting
)

var stateNames = [...]string{
	Idle:          "idle",
	Listening:     "listening",
	CommandWindow: "command_window",
	Capturing:     "capturing",
	Speaking:      "speaking",
	Restarting:    "restarting",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
