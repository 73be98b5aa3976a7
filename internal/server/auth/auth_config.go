package auth

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	// ClientSecretFile is a Google Cloud "web" client secret. When set it
	// takes precedence over ClientID/ClientSecret.
	ClientSecretFile string        `mapstructure:"client_secret_file"`
	ClientID         string        `mapstructure:"client_id"`
	ClientSecret     string        `mapstructure:"client_secret"`
	RedirectURL      string        `mapstructure:"redirect_url"`
	StateExpiry      time.Duration `mapstructure:"state_expiry"`
	PostLoginPath    string        `mapstructure:"post_login_path"`

	// Endpoint overrides, used against fake Google servers.
	AuthURL     string `mapstructure:"auth_url"`
	TokenURL    string `mapstructure:"token_url"`
	APIEndpoint string `mapstructure:"api_endpoint"`
}

func (c *Config) Validate() error {
	if c.ClientSecretFile == "" && (c.ClientID == "" || c.ClientSecret == "") {
		return fmt.Errorf("auth `client_secret_file` or `client_id` and `client_secret` are required")
	}

	if c.RedirectURL == "" {
		return fmt.Errorf("auth `redirect_url` is required")
	}
	u, err := url.Parse(c.RedirectURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("auth invalid redirect_url %q", c.RedirectURL)
	}

	if c.StateExpiry <= 0 {
		return fmt.Errorf("auth `state_expiry` must be greater than 0")
	}

	if !strings.HasPrefix(c.PostLoginPath, "/") {
		return fmt.Errorf("auth `post_login_path` must be an absolute path, got %q", c.PostLoginPath)
	}

	return nil
}

// CallbackPath is the route path of RedirectURL.
func (c *Config) CallbackPath() string {
	u, err := url.Parse(c.RedirectURL)
	if err != nil || u.Path == "" {
		return "/signin-google"
	}
	return u.Path
}
