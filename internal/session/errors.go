package session

// Kind classifies errors surfaced to the user.
type Kind int

const (
	// KindInitialization is fatal for the visit; the user must reload.
	KindInitialization Kind = iota + 1
	// KindLogin reports a failed hand-off to the host login flow.
	KindLogin
	// KindProfileFetch leaves the session unconfirmed; proceed may be retried.
	KindProfileFetch
	// KindShare leaves the session unchanged; share may be retried.
	KindShare
	// KindLogout never blocks the local reset.
	KindLogout
)

func (k Kind) String() string {
	switch k {
	case KindInitialization:
		return "initialization"
	case KindLogin:
		return "login"
	case KindProfileFetch:
		return "profile fetch"
	case KindShare:
		return "share"
	case KindLogout:
		return "logout"
	default:
		return "unknown"
	}
}

// user-visible texts for the message slot
const (
	msgInitFailed  = "Initialization failed. Check the channel ID and the published URL, then reload."
	msgLoginFailed = "Login failed."
	msgProfile     = "Could not retrieve your profile. Try again."
	msgShareFailed = "Sharing failed. Try again."
	msgUnsupported = "Sharing may not work in a browser. Open the app inside LINE."
)

// Error is a host failure annotated with its user-facing kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String() + " failed"
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }
