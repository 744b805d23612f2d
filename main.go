package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"github.com/go-authgate/oauth-session/session"
)

var (
	flagAPIHost      *string
	flagOAuthBaseURL *string
	flagClientID     *string
	flagRedirectURI  *string
	flagLogoutURI    *string
	flagPublicURL    *string
	flagStore        *string
	flagSessionFile  *string
	flagReturnTo     *string
	flagRelogin      *bool
	flagDebug        *bool
)

const tokenExchangeTimeout = 10 * time.Second

func init() {
	_ = godotenv.Load()

	flagAPIHost = flag.String("api-host", "", "API base URL prefixed to relative paths (or API_HOST env)")
	flagOAuthBaseURL = flag.String(
		"oauth-base-url",
		"",
		"OAuth provider base URL; /authorize and /token are appended (or OAUTH_BASE_URL env)",
	)
	flagClientID = flag.String("client-id", "", "OAuth client ID (or CLIENT_ID env)")
	flagRedirectURI = flag.String(
		"redirect-uri",
		"",
		"Redirect URI registered with the provider; the login command listens on it (or REDIRECT_URI env)",
	)
	flagLogoutURI = flag.String("logout-uri", "", "Provider logout page (or LOGOUT_URI env)")
	flagPublicURL = flag.String("public-url", "", "App root, a path or URL (or PUBLIC_URL env)")
	flagStore = flag.String("store", "", "Session store: file, keyring or memory (default: file or SESSION_STORE env)")
	flagSessionFile = flag.String(
		"session-file",
		"",
		"Session file for the file store (default: .oauth-session.json or SESSION_FILE env)",
	)
	flagReturnTo = flag.String(
		"return-to",
		"",
		"Page the session is on; login returns here (default: the public URL)",
	)
	flagRelogin = flag.Bool("relogin", false, "logout: start a new login instead of visiting the logout URI")
	flagDebug = flag.Bool("debug", false, "Enable debug logging")
}

// settings is everything the CLI reads from the environment. Flags override
// the environment, which overrides defaults.
type settings struct {
	APIHost        string `envconfig:"API_HOST"`
	OAuthBaseURL   string `envconfig:"OAUTH_BASE_URL"`
	ClientID       string `envconfig:"CLIENT_ID"`
	RedirectURI    string `envconfig:"REDIRECT_URI"`
	LogoutURI      string `envconfig:"LOGOUT_URI"`
	PublicURL      string `envconfig:"PUBLIC_URL"`
	Store          string `envconfig:"SESSION_STORE" default:"file"`
	SessionFile    string `envconfig:"SESSION_FILE" default:".oauth-session.json"`
	KeyringService string `envconfig:"KEYRING_SERVICE" default:"oauth-session"`
}

func loadSettings() (*settings, error) {
	var s settings
	if err := envconfig.Process("", &s); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	override(&s.APIHost, *flagAPIHost)
	override(&s.OAuthBaseURL, *flagOAuthBaseURL)
	override(&s.ClientID, *flagClientID)
	override(&s.RedirectURI, *flagRedirectURI)
	override(&s.LogoutURI, *flagLogoutURI)
	override(&s.PublicURL, *flagPublicURL)
	override(&s.Store, *flagStore)
	override(&s.SessionFile, *flagSessionFile)
	return &s, nil
}

func override(dst *string, flagValue string) {
	if flagValue != "" {
		*dst = flagValue
	}
}

func (s *settings) sessionConfig() session.Config {
	return session.Config{
		APIHost:      s.APIHost,
		OAuthBaseURL: s.OAuthBaseURL,
		ClientID:     s.ClientID,
		RedirectURI:  s.RedirectURI,
		LogoutURI:    s.LogoutURI,
		PublicURL:    s.PublicURL,
	}
}

// warnings lists settings that are valid but probably a mistake.
func (s *settings) warnings() []string {
	var out []string
	for _, u := range []string{s.APIHost, s.OAuthBaseURL} {
		if strings.HasPrefix(strings.ToLower(u), "http://") {
			out = append(out, fmt.Sprintf(
				"Using HTTP instead of HTTPS for %s. Tokens will be transmitted in plaintext!", u))
		}
	}
	if s.ClientID != "" {
		if _, err := uuid.Parse(s.ClientID); err != nil {
			out = append(out, fmt.Sprintf("CLIENT_ID doesn't appear to be a valid UUID: %s", s.ClientID))
		}
	}
	return out
}

func openStore(s *settings) (session.Store, error) {
	switch s.Store {
	case "file":
		return session.NewFileStore(s.SessionFile, s.RedirectURI)
	case "keyring":
		return session.NewKeyringStore(s.KeyringService, s.RedirectURI)
	case "memory":
		return session.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown session store %q (want file, keyring or memory)", s.Store)
	}
}

func newLogger(debug bool) *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	cfg.DisableStacktrace = true
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

// app is one CLI invocation.
type app struct {
	settings    *settings
	manager     *session.Manager
	retryClient *retry.Client
	logger      *zap.SugaredLogger
	out         io.Writer
	interactive bool
}

func newApp(logger *zap.SugaredLogger, out io.Writer) (*app, error) {
	s, err := loadSettings()
	if err != nil {
		return nil, err
	}
	cfg := s.sessionConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, w := range s.warnings() {
		fmt.Fprintf(os.Stderr, "WARNING: %s\n", w)
	}

	store, err := openStore(s)
	if err != nil {
		return nil, err
	}

	current := *flagReturnTo
	if current == "" {
		current = resolveURL(s.RedirectURI, s.PublicURL)
	}

	httpClient := newHTTPClient()
	manager, err := session.New(cfg, store, &browserNavigator{current: current, out: out},
		session.WithLogger(logger),
		session.WithHTTPClient(httpClient),
		session.WithExchangeTimeout(tokenExchangeTimeout),
	)
	if err != nil {
		return nil, err
	}

	retryClient, err := retry.NewBackgroundClient(retry.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create retry client: %w", err)
	}

	return &app{
		settings:    s,
		manager:     manager,
		retryClient: retryClient,
		logger:      logger,
		out:         out,
		interactive: isInteractive(),
	}, nil
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "login":
		if err := a.manager.Login(); err != nil {
			return err
		}
		return a.awaitCallback(ctx)

	case "callback":
		if len(args) != 1 {
			return errors.New("usage: callback <redirect-url>")
		}
		target, err := a.completeLogin(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Signed in. Continue at %s\n", target)
		return nil

	case "status":
		fmt.Fprint(a.out, renderStatus(a.manager))
		return nil

	case "sign":
		if len(args) != 1 {
			return errors.New("usage: sign <path-or-url>")
		}
		fmt.Fprintln(a.out, a.manager.SignURL(args[0]))
		return nil

	case "fetch":
		if len(args) != 1 {
			return errors.New("usage: fetch <path-or-url>")
		}
		return a.fetch(ctx, args[0])

	case "logout":
		relogin := *flagRelogin
		if err := a.manager.Logout(relogin); err != nil {
			return err
		}
		// A pending pair left by an earlier failed exchange is not ours to
		// wait for; only a login Logout itself started is.
		if relogin && !a.manager.OnSignOutRoute() {
			return a.awaitCallback(ctx)
		}
		fmt.Fprintln(a.out, "Signed out.")
		return nil

	case "cancel":
		if err := a.manager.Cancel(); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "No login pending.")
		return nil

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// completeLogin runs GetToken as the page at callbackURL and returns where
// that page would navigate next.
func (a *app) completeLogin(ctx context.Context, callbackURL string) (string, error) {
	nav := &recordingNavigator{current: callbackURL}
	if _, err := a.manager.WithNavigator(nav).GetToken(ctx); err != nil {
		return "", err
	}
	return resolveURL(callbackURL, nav.target), nil
}

// awaitCallback listens on the redirect URI until the provider sends the
// browser back, then completes the login.
func (a *app) awaitCallback(ctx context.Context) error {
	wait := func(ctx context.Context) (string, error) {
		return startCallbackServer(ctx, a.settings.RedirectURI, a.completeLogin)
	}

	var (
		target string
		err    error
	)
	if a.interactive {
		target, err = runWithSpinner(ctx, "Waiting for browser authorization...", wait)
	} else {
		fmt.Fprintf(a.out, "Waiting for callback on %s ...\n", a.settings.RedirectURI)
		target, err = wait(ctx)
	}
	if err != nil {
		if errors.Is(err, errWaitCancelled) || ctx.Err() != nil {
			if cancelErr := a.manager.Cancel(); cancelErr != nil {
				a.logger.Warnw("failed to cancel pending login", "error", cancelErr)
			}
		}
		return fmt.Errorf("authorization failed: %w", err)
	}

	fmt.Fprintln(a.out, okStyle.Render("Signed in."))
	fmt.Fprintf(a.out, "Continue at %s\n", target)
	return nil
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: %s [flags] <command> [args]

Commands:
  login            sign in through the browser
  callback <url>   complete a sign-in from a pasted redirect URL
  status           show the session state
  sign <path>      print a signed API URL
  fetch <path>     GET a signed API URL
  logout           sign out (-relogin to sign in again)
  cancel           abandon a pending sign-in

Flags:
`, os.Args[0])
	flag.PrintDefaults()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	logger := newLogger(*flagDebug)
	defer func() { _ = logger.Sync() }()

	a, err := newApp(logger, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := a.run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "\nInterrupted.")
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
