package googleauth

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

var ErrMissingClientSecret = errors.New("client secret file not found")

type clientSecretFile struct {
	Web       *clientSecret `json:"web"`
	Installed *clientSecret `json:"installed"`
}

type clientSecret struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	AuthURI      string   `json:"auth_uri"`
	TokenURI     string   `json:"token_uri"`
	RedirectURIs []string `json:"redirect_uris"`
}

// LoadClientSecret builds an oauth2.Config from a Google Cloud client secret
// file ("installed" or "web" application). redirect_uris is optional; callers
// set RedirectURL for their own flow.
func LoadClientSecret(path string, scopes ...string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissingClientSecret, path)
	} else if err != nil {
		return nil, fmt.Errorf("read client secret: %w", err)
	}

	var file clientSecretFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse client secret %s: %w", path, err)
	}

	c := file.Web
	if c == nil {
		c = file.Installed
	}
	if c == nil {
		return nil, fmt.Errorf("parse client secret %s: no \"web\" or \"installed\" client", path)
	}
	if c.ClientID == "" {
		return nil, fmt.Errorf("parse client secret %s: missing client_id", path)
	}

	cfg := &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       scopes,
	}
	if c.AuthURI != "" {
		cfg.Endpoint.AuthURL = c.AuthURI
	}
	if c.TokenURI != "" {
		cfg.Endpoint.TokenURL = c.TokenURI
	}
	if len(c.RedirectURIs) > 0 {
		cfg.RedirectURL = c.RedirectURIs[0]
	}
	return cfg, nil
}
