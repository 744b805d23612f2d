package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// errNotSignedIn is returned by fetch when the API rejects the token and no
// new login could be started, e.g. on the sign-out route.
var errNotSignedIn = errors.New("not signed in")

// fetch GETs the signed URL for path and copies the body to a.out. A 401
// drops the token and signs in again, then the request is retried once.
func (a *app) fetch(ctx context.Context, path string) error {
	status, body, err := a.get(ctx, a.manager.SignURL(path))
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized {
		fmt.Fprintln(a.out, "Access token rejected (401), signing in again...")
		if err := a.manager.Logout(true); err != nil {
			return fmt.Errorf("failed to restart login: %w", err)
		}
		if a.manager.OnSignOutRoute() {
			return errNotSignedIn
		}
		if err := a.awaitCallback(ctx); err != nil {
			return err
		}

		status, body, err = a.get(ctx, a.manager.SignURL(path))
		if err != nil {
			return fmt.Errorf("retry failed: %w", err)
		}
	}

	if status != http.StatusOK {
		return fmt.Errorf("API call failed with status %d: %s", status, string(body))
	}

	_, err = a.out.Write(body)
	return err
}

func (a *app) get(ctx context.Context, signedURL string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signedURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.retryClient.DoWithContext(ctx, req)
	if err != nil {
		return 0, nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}
