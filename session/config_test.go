package session

import (
	"errors"
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing api host", func(c *Config) { c.APIHost = "" }, "API host"},
		{"relative api host", func(c *Config) { c.APIHost = "/api" }, "API host"},
		{"bad oauth scheme", func(c *Config) { c.OAuthBaseURL = "ftp://auth.x" }, "OAuth base URL"},
		{"missing client", func(c *Config) { c.ClientID = "" }, "client ID"},
		{"redirect without host", func(c *Config) { c.RedirectURI = "http://" }, "redirect URI"},
		{"missing logout", func(c *Config) { c.LogoutURI = "" }, "logout URI"},
		{"missing public url", func(c *Config) { c.PublicURL = "" }, "public URL"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Validate() = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Validate() = %q, want mention of %q", err, tc.wantErr)
			}
		})
	}
}

func TestConfigValidate_ReportsEveryField(t *testing.T) {
	err := Config{}.Validate()
	if err == nil {
		t.Fatal("Validate() of empty config returned nil")
	}
	for _, field := range []string{"API host", "OAuth base URL", "client ID", "redirect URI", "logout URI", "public URL"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q does not mention %s", err, field)
		}
	}
}

func TestConfigEndpoints(t *testing.T) {
	cfg := testConfig()
	cfg.OAuthBaseURL = "https://auth.x/oauth/"

	if got := cfg.AuthorizationURL(); got != "https://auth.x/oauth/authorize" {
		t.Errorf("AuthorizationURL() = %q", got)
	}
	if got := cfg.TokenURL(); got != "https://auth.x/oauth/token" {
		t.Errorf("TokenURL() = %q", got)
	}
}

func TestConfigSignOutPath(t *testing.T) {
	tests := []struct {
		publicURL string
		want      string
	}{
		{"/app", "/app/signout"},
		{"/app/", "/app/signout"},
		{"https://app.x/portal", "/portal/signout"},
		{"https://app.x", "/signout"},
	}
	for _, tc := range tests {
		cfg := testConfig()
		cfg.PublicURL = tc.publicURL
		if got := cfg.SignOutPath(); got != tc.want {
			t.Errorf("SignOutPath() with %q = %q, want %q", tc.publicURL, got, tc.want)
		}
	}
}
