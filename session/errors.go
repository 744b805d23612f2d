package session

import "errors"

var (
	// ErrInvalidConfig is returned by Config.Validate and New.
	ErrInvalidConfig = errors.New("invalid session configuration")

	// ErrMalformedCallback means the current URL is not a usable
	// authorization response, typically because code is missing.
	ErrMalformedCallback = errors.New("malformed authorization callback")

	// ErrAuthorizationDenied means the provider redirected back with an
	// error parameter instead of a code.
	ErrAuthorizationDenied = errors.New("authorization denied by provider")

	// ErrExchangeFailed wraps transport and provider errors from the token
	// endpoint.
	ErrExchangeFailed = errors.New("token exchange failed")

	// ErrExchangeTimeout means the token endpoint did not answer before the
	// exchange deadline.
	ErrExchangeTimeout = errors.New("token exchange timed out")
)

// FailureHook receives every GetToken failure. It must not panic; the
// Manager has already left storage untouched by the time it is called.
type FailureHook func(err error)
