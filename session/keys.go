package session

// Storage keys. They match the keys the browser client used in localStorage so
// that a store can be shared with it.
const (
	StateKey       = "oauth/state"
	VerifierKey    = "oauth/verifierCode"
	CurrentURIKey  = "oauth/currentUri"
	AccessTokenKey = "oauth/accessToken"
)
