package session

// State is where a session sits in the login handshake.
type State int

const (
	// Anonymous: no token and no login in flight.
	Anonymous State = iota
	// PendingCallback: Login stored a verifier and the provider has not yet
	// redirected back, or the exchange failed.
	PendingCallback
	// Authorized: an access token is stored.
	Authorized
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case PendingCallback:
		return "pending_callback"
	case Authorized:
		return "authorized"
	default:
		return "unknown"
	}
}
