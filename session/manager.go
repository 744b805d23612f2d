// Package session implements the browser side of the OAuth 2.0 authorization
// code flow with PKCE: it sends the user to the provider, exchanges the code
// that comes back for an access token, keeps that token in a Store and signs
// API URLs with it.
//
// A Manager owns no state of its own. Everything lives in the Store, so a
// Manager can be rebuilt on every page load (or every CLI invocation) and
// pick up where the last one left off.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const defaultExchangeTimeout = 10 * time.Second

// schemePrefix matches anything that starts like an absolute URI. It is a
// heuristic, not a parser: "localhost:8080/x" counts as absolute.
var schemePrefix = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.\-]*:`)

// Manager runs the PKCE handshake against a Store and a Navigator.
type Manager struct {
	cfg   Config
	store Store
	nav   Navigator

	oauth           *oauth2.Config
	httpClient      *http.Client
	exchangeTimeout time.Duration
	logger          *zap.SugaredLogger
	onFailure       FailureHook
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithFailureHook sets the function told about GetToken failures. The default
// logs them at error level.
func WithFailureHook(hook FailureHook) Option {
	return func(m *Manager) { m.onFailure = hook }
}

// WithHTTPClient sets the client used to reach the token endpoint.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) { m.httpClient = client }
}

// WithExchangeTimeout bounds the token endpoint round-trip.
func WithExchangeTimeout(d time.Duration) Option {
	return func(m *Manager) { m.exchangeTimeout = d }
}

// New validates cfg and returns a Manager.
func New(cfg Config, store Store, nav Navigator, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("session store cannot be nil")
	}
	if nav == nil {
		return nil, errors.New("navigator cannot be nil")
	}

	m := &Manager{
		cfg:   cfg,
		store: store,
		nav:   nav,
		oauth: &oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthorizationURL(),
				TokenURL:  cfg.TokenURL(),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		exchangeTimeout: defaultExchangeTimeout,
		logger:          zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// WithNavigator returns a copy of m bound to another page.
func (m *Manager) WithNavigator(nav Navigator) *Manager {
	c := *m
	c.nav = nav
	return &c
}

// Config returns the configuration m was built with.
func (m *Manager) Config() Config {
	return m.cfg
}

// get reads key, treating a read failure like a missing key.
func (m *Manager) get(key string) string {
	value, err := m.store.Get(key)
	if err != nil {
		m.logger.Warnw("failed to read session store", "key", key, "error", err)
		return ""
	}
	return value
}

// AccessToken returns the stored bearer token, or "".
func (m *Manager) AccessToken() string {
	return m.get(AccessTokenKey)
}

// SetAccessToken stores token as is.
func (m *Manager) SetAccessToken(token string) error {
	if err := m.store.Set(AccessTokenKey, token); err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}
	return nil
}

// IsAuthorized reports whether an access token is stored.
func (m *Manager) IsAuthorized() bool {
	return m.AccessToken() != ""
}

// SetBaseURL prefixes relative API paths with the API host.
func (m *Manager) SetBaseURL(path string) string {
	if schemePrefix.MatchString(path) {
		return path
	}
	return m.cfg.APIHost + path
}

// SignURL appends the bearer token as an Authorization query parameter.
// data: URLs are returned untouched. Without a token the parameter is still
// added, with an empty value.
func (m *Manager) SignURL(rawURL string) string {
	if strings.HasPrefix(rawURL, "data:") {
		return rawURL
	}
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return m.SetBaseURL(rawURL) + sep + "Authorization=Bearer%20" + url.QueryEscape(m.AccessToken())
}

// Login remembers the current page, stores a fresh verifier and state, and
// navigates to the provider's authorization endpoint. Any login already in
// flight is replaced.
func (m *Manager) Login() error {
	if err := m.store.Set(CurrentURIKey, m.nav.CurrentURL()); err != nil {
		return fmt.Errorf("failed to store current location: %w", err)
	}

	pkce, err := GeneratePKCE()
	if err != nil {
		return fmt.Errorf("failed to generate PKCE: %w", err)
	}
	state := generateState()

	if err := m.store.Set(VerifierKey, pkce.Verifier); err != nil {
		return fmt.Errorf("failed to store code verifier: %w", err)
	}
	if err := m.store.Set(StateKey, state); err != nil {
		return fmt.Errorf("failed to store state: %w", err)
	}

	authURL := m.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", pkce.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", pkce.Method),
	)
	m.logger.Debugw("redirecting to authorization endpoint", "url", m.cfg.AuthorizationURL(), "state", state)

	if err := m.nav.Navigate(authURL); err != nil {
		return fmt.Errorf("failed to navigate to authorization endpoint: %w", err)
	}
	return nil
}

// GetToken completes a login on the page the provider redirected back to.
// The current URL must carry code and state. On success the token is stored,
// the verifier/state pair is removed and the user is sent back to where
// Login was called from (or PublicURL).
//
// On failure nothing in the store changes. The error is passed to the
// failure hook and also returned; GetToken never retries. Once the token is
// stored the login counts as done: failing to clear the pair or to navigate
// afterwards is only logged.
func (m *Manager) GetToken(ctx context.Context) (*oauth2.Token, error) {
	token, err := m.completeLogin(ctx)
	if err != nil {
		if m.onFailure != nil {
			m.onFailure(err)
		} else {
			m.logger.Errorw("token exchange failed", "error", err)
		}
		return nil, err
	}
	return token, nil
}

func (m *Manager) completeLogin(ctx context.Context) (*oauth2.Token, error) {
	token, err := m.exchange(ctx)
	if err != nil {
		return nil, err
	}

	if err := m.SetAccessToken(token.AccessToken); err != nil {
		return nil, err
	}
	m.logger.Debugw("access token stored", "token_type", token.TokenType)

	for _, key := range []string{VerifierKey, StateKey} {
		if err := m.store.Delete(key); err != nil {
			m.logger.Warnw("failed to clear session key", "key", key, "error", err)
		}
	}
	if err := m.restoreLoginLocation(); err != nil {
		m.logger.Warnw("failed to restore location after login", "error", err)
	}
	return token, nil
}

func (m *Manager) exchange(ctx context.Context) (*oauth2.Token, error) {
	verifier := m.get(VerifierKey)
	state := m.get(StateKey)

	callback, err := url.Parse(m.nav.CurrentURL())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCallback, err)
	}
	query := callback.Query()
	if oauthErr := query.Get("error"); oauthErr != "" {
		if desc := query.Get("error_description"); desc != "" {
			return nil, fmt.Errorf("%w: %s: %s", ErrAuthorizationDenied, oauthErr, desc)
		}
		return nil, fmt.Errorf("%w: %s", ErrAuthorizationDenied, oauthErr)
	}
	code := query.Get("code")
	if code == "" {
		return nil, fmt.Errorf("%w: code parameter missing", ErrMalformedCallback)
	}

	ctx, cancel := context.WithTimeout(ctx, m.exchangeTimeout)
	defer cancel()
	if m.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	}

	// state travels in the body as well so the provider can check it
	// against the authorization request.
	token, err := m.oauth.Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", verifier),
		oauth2.SetAuthURLParam("state", state),
	)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %w", ErrExchangeTimeout, m.exchangeTimeout, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrExchangeFailed, err)
	}
	return token, nil
}

func (m *Manager) restoreLoginLocation() error {
	target := m.get(CurrentURIKey)
	if err := m.store.Delete(CurrentURIKey); err != nil {
		return fmt.Errorf("failed to clear %s: %w", CurrentURIKey, err)
	}
	if target == "" {
		target = m.cfg.PublicURL
	}
	if err := m.nav.Navigate(target); err != nil {
		return fmt.Errorf("failed to restore location: %w", err)
	}
	return nil
}

// Logout forgets the access token. On the sign-out route it stops there.
// Otherwise it either starts a new login (relogin, e.g. after a 401) or
// sends the user to the provider's logout page.
func (m *Manager) Logout(relogin bool) error {
	if err := m.store.Delete(AccessTokenKey); err != nil {
		return fmt.Errorf("failed to remove access token: %w", err)
	}

	if m.OnSignOutRoute() {
		return nil
	}
	if relogin {
		return m.Login()
	}
	if err := m.nav.Navigate(m.cfg.LogoutURI); err != nil {
		return fmt.Errorf("failed to navigate to logout URI: %w", err)
	}
	return nil
}

// OnSignOutRoute reports whether the current page is the sign-out route,
// where Logout neither logs in again nor leaves the page.
func (m *Manager) OnSignOutRoute() bool {
	u, err := url.Parse(m.nav.CurrentURL())
	return err == nil && u.Path == m.cfg.SignOutPath()
}

// State derives the handshake state from the store.
func (m *Manager) State() State {
	switch {
	case m.AccessToken() != "":
		return Authorized
	case m.get(VerifierKey) != "":
		return PendingCallback
	default:
		return Anonymous
	}
}

// Cancel abandons a pending login, returning the session to Anonymous. It
// does nothing in any other state.
func (m *Manager) Cancel() error {
	if m.State() != PendingCallback {
		return nil
	}
	for _, key := range []string{VerifierKey, StateKey, CurrentURIKey} {
		if err := m.store.Delete(key); err != nil {
			return fmt.Errorf("failed to clear %s: %w", key, err)
		}
	}
	m.logger.Debugw("pending login cancelled")
	return nil
}
