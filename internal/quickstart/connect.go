package quickstart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/openmined/drivegate/internal/drive"
	"github.com/openmined/drivegate/internal/googleauth"
)

type Options struct {
	CredentialsFile string
	TokenFile       string

	// Out receives the consent URL when a login is needed.
	Out         io.Writer
	OpenBrowser func(string) error

	// Endpoint overrides, used against fake Google servers.
	AuthURL       string
	TokenURL      string
	DriveEndpoint string
}

// Connect returns a Drive client for the local user. The cached token is used
// when present; otherwise the browser consent flow runs once and its token is saved.
func Connect(ctx context.Context, opts *Options) (*drive.Service, error) {
	if opts.Out == nil {
		opts.Out = os.Stderr
	}

	cfg, err := googleauth.LoadClientSecret(opts.CredentialsFile, googleauth.QuickstartScopes()...)
	if err != nil {
		return nil, err
	}
	if opts.AuthURL != "" {
		cfg.Endpoint.AuthURL = opts.AuthURL
	}
	if opts.TokenURL != "" {
		cfg.Endpoint.TokenURL = opts.TokenURL
	}

	store, err := googleauth.NewFileTokenStore(opts.TokenFile)
	if err != nil {
		return nil, err
	}

	tok, err := store.Load(ctx)
	if errors.Is(err, googleauth.ErrNoToken) {
		tok, err = googleauth.Authorize(ctx, cfg, googleauth.AuthorizeOptions{
			Out:         opts.Out,
			OpenBrowser: opts.OpenBrowser,
		})
		if err != nil {
			return nil, fmt.Errorf("authorize: %w", err)
		}
		if err := store.Save(ctx, tok); err != nil {
			return nil, err
		}
		fmt.Fprintf(opts.Out, "Credential file saved to: %s\n", store.Path())
	} else if err != nil {
		return nil, err
	}

	ts := googleauth.PersistingTokenSource(ctx, cfg, store, tok)
	return drive.New(ctx, ts, &drive.Config{Endpoint: opts.DriveEndpoint})
}
