package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/go-authgate/oauth-session/session"
)

// setFlag points a string flag at value for the duration of the test.
func setFlag(t *testing.T, flagPtr *string, value string) {
	t.Helper()
	orig := *flagPtr
	*flagPtr = value
	t.Cleanup(func() { *flagPtr = orig })
}

func TestLoadSettings_Priority(t *testing.T) {
	t.Setenv("API_HOST", "https://api.from-env")
	t.Setenv("CLIENT_ID", "from-env")

	setFlag(t, flagClientID, "from-flag")
	setFlag(t, flagAPIHost, "")

	s, err := loadSettings()
	require.NoError(t, err)

	assert.Equal(t, "from-flag", s.ClientID, "flag wins over env")
	assert.Equal(t, "https://api.from-env", s.APIHost, "env used when flag is empty")
	assert.Equal(t, "file", s.Store, "default used when both are empty")
	assert.Equal(t, ".oauth-session.json", s.SessionFile)
	assert.Equal(t, "oauth-session", s.KeyringService)
}

func TestSettingsSessionConfig_FailsFast(t *testing.T) {
	s := &settings{APIHost: "https://api.x"}
	err := s.sessionConfig().Validate()
	require.ErrorIs(t, err, session.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "client ID")
}

func TestSettingsWarnings(t *testing.T) {
	s := &settings{
		APIHost:      "http://api.x",
		OAuthBaseURL: "https://auth.x",
		ClientID:     "not-a-uuid",
	}
	warnings := s.warnings()
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], "HTTP instead of HTTPS")
	assert.Contains(t, warnings[1], "UUID")

	s = &settings{
		APIHost:      "https://api.x",
		OAuthBaseURL: "https://auth.x",
		ClientID:     "1f0e8a6c-8b0e-4c5e-9a57-6e3f5c1d2b7a",
	}
	assert.Empty(t, s.warnings())
}

func TestOpenStore(t *testing.T) {
	base := settings{
		RedirectURI:    "http://127.0.0.1:8888/callback",
		SessionFile:    filepath.Join(t.TempDir(), "session.json"),
		KeyringService: "oauth-session-test",
	}

	for _, kind := range []string{"file", "memory"} {
		s := base
		s.Store = kind
		store, err := openStore(&s)
		require.NoError(t, err, kind)
		require.NoError(t, store.Set(session.StateKey, "abcde"))
	}

	s := base
	s.Store = "cookie"
	_, err := openStore(&s)
	require.Error(t, err)
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		base, ref, want string
	}{
		{"http://localhost:8888/callback?code=x", "/app", "http://localhost:8888/app"},
		{"http://localhost:8888/callback", "https://app.x/a", "https://app.x/a"},
		{"http://localhost:8888/callback", "", "http://localhost:8888/callback"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, resolveURL(tc.base, tc.ref))
	}
}

func testSessionConfig(oauthBase string) session.Config {
	return session.Config{
		APIHost:      "https://api.x",
		OAuthBaseURL: oauthBase,
		ClientID:     "client-1",
		RedirectURI:  "http://127.0.0.1:19010/callback",
		LogoutURI:    "https://auth.x/logout",
		PublicURL:    "/app",
	}
}

// newTestApp builds an app whose page is a recordingNavigator, so nothing
// tries to open a browser.
func newTestApp(t *testing.T, cfg session.Config, current string) (*app, *recordingNavigator, *bytes.Buffer) {
	t.Helper()
	nav := &recordingNavigator{current: current}
	m, err := session.New(cfg, session.NewMemoryStore(), nav,
		session.WithFailureHook(func(error) {}))
	require.NoError(t, err)

	rc, err := retry.NewBackgroundClient(retry.WithHTTPClient(http.DefaultClient))
	require.NoError(t, err)

	out := &bytes.Buffer{}
	return &app{
		settings:    &settings{RedirectURI: cfg.RedirectURI},
		manager:     m,
		retryClient: rc,
		logger:      zap.NewNop().Sugar(),
		out:         out,
	}, nav, out
}

func TestRun_Sign(t *testing.T) {
	a, _, out := newTestApp(t, testSessionConfig("https://auth.x"), "http://127.0.0.1:19010/app")
	require.NoError(t, a.manager.SetAccessToken("T"))

	require.NoError(t, a.run(context.Background(), "sign", []string{"/items?x=1"}))
	assert.Equal(t, "https://api.x/items?x=1&Authorization=Bearer%20T\n", out.String())

	require.Error(t, a.run(context.Background(), "sign", nil))
}

func TestRun_Callback(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"Bearer"}`))
	}))
	t.Cleanup(provider.Close)

	a, nav, out := newTestApp(t, testSessionConfig(provider.URL), "http://127.0.0.1:19010/app/items")
	require.NoError(t, a.manager.Login())
	assert.Contains(t, nav.target, provider.URL+"/authorize?")

	err := a.run(context.Background(), "callback",
		[]string{"http://127.0.0.1:19010/callback?code=abc&state=xyz"})
	require.NoError(t, err)
	assert.Equal(t, "tok-1", a.manager.AccessToken())
	assert.Contains(t, out.String(), "Continue at http://127.0.0.1:19010/app/items")
}

func TestRun_CallbackFailureKeepsPendingLogin(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	t.Cleanup(provider.Close)

	a, _, _ := newTestApp(t, testSessionConfig(provider.URL), "http://127.0.0.1:19010/app")
	require.NoError(t, a.manager.Login())

	err := a.run(context.Background(), "callback",
		[]string{"http://127.0.0.1:19010/callback?code=abc&state=xyz"})
	require.ErrorIs(t, err, session.ErrExchangeFailed)
	assert.Equal(t, session.PendingCallback, a.manager.State())

	require.NoError(t, a.run(context.Background(), "cancel", nil))
	assert.Equal(t, session.Anonymous, a.manager.State())
}

func TestRun_LoginCompletesThroughCallbackServer(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-2","token_type":"Bearer"}`))
	}))
	t.Cleanup(provider.Close)

	cfg := testSessionConfig(provider.URL)
	cfg.RedirectURI = "http://127.0.0.1:19011/callback"
	a, nav, out := newTestApp(t, cfg, "https://app.x/app/items")

	errCh := make(chan error, 1)
	go func() { errCh <- a.run(context.Background(), "login", nil) }()

	require.Eventually(t, func() bool {
		resp, err := noRedirectClient.Get("http://127.0.0.1:19011/callback?code=abc&state=xyz") //nolint:noctx
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusFound
	}, 3*time.Second, 50*time.Millisecond)

	require.NoError(t, <-errCh)
	assert.Equal(t, "tok-2", a.manager.AccessToken())
	assert.Contains(t, out.String(), "Continue at https://app.x/app/items")
	assert.Contains(t, nav.target, provider.URL+"/authorize?")
}

func TestRun_Logout(t *testing.T) {
	a, nav, out := newTestApp(t, testSessionConfig("https://auth.x"), "http://127.0.0.1:19010/app")
	require.NoError(t, a.manager.SetAccessToken("tok"))

	setRelogin := func(v bool) {
		orig := *flagRelogin
		*flagRelogin = v
		t.Cleanup(func() { *flagRelogin = orig })
	}
	setRelogin(false)

	require.NoError(t, a.run(context.Background(), "logout", nil))
	assert.False(t, a.manager.IsAuthorized())
	assert.Equal(t, "https://auth.x/logout", nav.target)
	assert.Contains(t, out.String(), "Signed out.")
}

func TestRun_LogoutIgnoresStalePendingLogin(t *testing.T) {
	a, nav, out := newTestApp(t, testSessionConfig("https://auth.x"), "http://127.0.0.1:19010/app")

	// A login whose exchange failed keeps its verifier and state.
	require.NoError(t, a.manager.Login())
	require.NoError(t, a.manager.SetAccessToken("tok"))

	orig := *flagRelogin
	*flagRelogin = false
	t.Cleanup(func() { *flagRelogin = orig })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, a.run(ctx, "logout", nil))
	assert.Equal(t, "https://auth.x/logout", nav.target)
	assert.Contains(t, out.String(), "Signed out.")
	assert.NotContains(t, out.String(), "Waiting for callback")
	assert.Equal(t, session.PendingCallback, a.manager.State(), "the earlier pair is left in place")
}

func TestRun_Status(t *testing.T) {
	a, _, out := newTestApp(t, testSessionConfig("https://auth.x"), "http://127.0.0.1:19010/app")

	require.NoError(t, a.run(context.Background(), "status", nil))
	assert.Contains(t, out.String(), "anonymous")
	assert.NotContains(t, out.String(), "Access token")
}

func TestRun_UnknownCommand(t *testing.T) {
	a, _, _ := newTestApp(t, testSessionConfig("https://auth.x"), "http://127.0.0.1:19010/app")
	err := a.run(context.Background(), "frobnicate", nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "frobnicate"))
}
