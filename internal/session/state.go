package session

import "fmt"

// State is the session state owned by the Controller.
type State int

const (
	Uninitialized State = iota
	Initializing
	InitFailed
	NoSession
	SessionPresentUnconfirmed
	Authenticated
	LoggedOut
)

var stateNames = [...]string{
	Uninitialized:             "Uninitialized",
	Initializing:              "Initializing",
	InitFailed:                "InitFailed",
	NoSession:                 "NoSession",
	SessionPresentUnconfirmed: "SessionPresentUnconfirmed",
	Authenticated:             "Authenticated",
	LoggedOut:                 "LoggedOut",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ShareMethod reports which path a share request took.
type ShareMethod int

const (
	ShareNone        ShareMethod = iota
	SharePicker                  // host share target picker
	ShareDirect                  // direct message to the current chat
	ShareUnsupported             // neither available here
)

func (m ShareMethod) String() string {
	switch m {
	case SharePicker:
		return "picker"
	case ShareDirect:
		return "direct"
	case ShareUnsupported:
		return "unsupported"
	default:
		return "none"
	}
}
