package main

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	// callbackTimeout is how long we wait for the browser to come back from
	// the provider.
	callbackTimeout = 5 * time.Minute

	// callbackWriteTimeout must exceed tokenExchangeTimeout so the outcome
	// can still be written back to the browser.
	callbackWriteTimeout = 30 * time.Second
)

// callbackResult holds the outcome of the local callback round-trip.
type callbackResult struct {
	Target string
	Err    error
}

// startCallbackServer listens on the host, port and path of redirectURI and
// waits for the provider to send the browser back. The full callback URL is
// handed to completeFn, which returns the page to continue at. The browser is
// redirected there when it is an absolute http(s) URL; otherwise it gets a
// result page.
//
// The server shuts itself down after the first result or when ctx is cancelled.
func startCallbackServer(
	ctx context.Context,
	redirectURI string,
	completeFn func(ctx context.Context, callbackURL string) (string, error),
) (string, error) {
	redirect, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("invalid redirect URI: %w", err)
	}
	addr := redirect.Host
	if redirect.Port() == "" {
		port := "80"
		if redirect.Scheme == "https" {
			port = "443"
		}
		addr = net.JoinHostPort(redirect.Hostname(), port)
	}
	path := redirect.Path
	if path == "" {
		path = "/"
	}

	resultCh := make(chan callbackResult, 1)

	// Only the first result is delivered; browser retries are discarded so
	// no handler blocks on the send.
	var once sync.Once
	sendResult := func(r callbackResult) {
		once.Do(func() { resultCh <- r })
	}

	// The exchange runs at most once even when the browser retries.
	var (
		completeOnce sync.Once
		target       string
		completeErr  error
	)

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			http.NotFound(w, r)
			return
		}

		callback := *redirect
		callback.RawQuery = r.URL.RawQuery

		// Hold the response open during the exchange so the browser shows
		// the real outcome.
		completeOnce.Do(func() {
			target, completeErr = completeFn(r.Context(), callback.String())
		})
		if completeErr != nil {
			writeCallbackPage(w, false, completeErr.Error(), "")
			sendResult(callbackResult{Err: completeErr})
			return
		}

		if isAbsoluteHTTP(target) {
			http.Redirect(w, r, target, http.StatusFound)
		} else {
			writeCallbackPage(w, true, "", target)
		}
		sendResult(callbackResult{Target: target})
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: callbackWriteTimeout,
	}

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", srv.Addr)
	if err != nil {
		return "", fmt.Errorf("failed to start callback server on %s: %w", addr, err)
	}

	go func() {
		_ = srv.Serve(ln)
	}()

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	select {
	case result := <-resultCh:
		return result.Target, result.Err

	case <-ctx.Done():
		return "", ctx.Err()

	case <-time.After(callbackTimeout):
		return "", errors.New("timed out waiting for browser authorization")
	}
}

func isAbsoluteHTTP(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// writeCallbackPage writes a minimal HTML response to the browser tab.
func writeCallbackPage(w http.ResponseWriter, success bool, errMsg, target string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if success {
		next := "You can close this tab and return to your terminal."
		if target != "" {
			next = fmt.Sprintf("Continue at %s.", html.EscapeString(target))
		}
		fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>Authorization Successful</title></head>
<body style="font-family:sans-serif;text-align:center;padding:4rem">
  <h1 style="color:#2ea44f">&#10003; Authorization Successful</h1>
  <p>You have been successfully authorized.</p>
  <p>%s</p>
</body>
</html>`, next)
		return
	}

	w.WriteHeader(http.StatusBadRequest)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>Authorization Failed</title></head>
<body style="font-family:sans-serif;text-align:center;padding:4rem">
  <h1 style="color:#cb2431">&#10007; Authorization Failed</h1>
  <p>%s</p>
  <p>You can close this tab and check your terminal for details.</p>
</body>
</html>`, html.EscapeString(strings.TrimSpace(errMsg)))
}
