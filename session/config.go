package session

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Config is the fixed configuration of a Manager. Every field is required.
type Config struct {
	// APIHost is prefixed to relative API paths by SetBaseURL.
	APIHost string

	// OAuthBaseURL is the provider base; "/authorize" and "/token" are
	// appended to it.
	OAuthBaseURL string

	ClientID string

	// RedirectURI is where the provider sends the browser back with code
	// and state.
	RedirectURI string

	// LogoutURI is the provider-side logout page.
	LogoutURI string

	// PublicURL is the app root, either a path ("/app") or an absolute URL.
	// The sign-out route lives at PublicURL + "/signout".
	PublicURL string
}

// Validate reports every missing or malformed field at once.
func (c Config) Validate() error {
	var errs []error

	urls := []struct {
		name, value string
	}{
		{"API host", c.APIHost},
		{"OAuth base URL", c.OAuthBaseURL},
		{"redirect URI", c.RedirectURI},
		{"logout URI", c.LogoutURI},
	}
	for _, u := range urls {
		if err := validateAbsoluteURL(u.value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", u.name, err))
		}
	}
	if c.ClientID == "" {
		errs = append(errs, errors.New("client ID: cannot be empty"))
	}
	if c.PublicURL == "" {
		errs = append(errs, errors.New("public URL: cannot be empty"))
	} else if _, err := url.Parse(c.PublicURL); err != nil {
		errs = append(errs, fmt.Errorf("public URL: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// AuthorizationURL is the provider's authorization endpoint.
func (c Config) AuthorizationURL() string {
	return strings.TrimSuffix(c.OAuthBaseURL, "/") + "/authorize"
}

// TokenURL is the provider's token endpoint.
func (c Config) TokenURL() string {
	return strings.TrimSuffix(c.OAuthBaseURL, "/") + "/token"
}

// SignOutPath is the path of the app's dedicated sign-out route.
func (c Config) SignOutPath() string {
	p := c.PublicURL
	if u, err := url.Parse(c.PublicURL); err == nil {
		p = u.Path
	}
	return strings.TrimSuffix(p, "/") + "/signout"
}

func validateAbsoluteURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("cannot be empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("URL must include a host")
	}
	return nil
}
