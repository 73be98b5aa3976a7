package googleauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"time"

	"golang.org/x/oauth2"
)

const callbackPath = "/oauth2/callback"

type AuthorizeOptions struct {
	Timeout time.Duration
	// Out receives the consent URL. Defaults to stderr.
	Out io.Writer
	// OpenBrowser is called with the consent URL. Defaults to the OS browser.
	OpenBrowser func(string) error
}

// Authorize runs the installed-app flow on a loopback listener and returns
// the exchanged token. cfg.RedirectURL is replaced with the listener address.
func Authorize(ctx context.Context, cfg *oauth2.Config, opts AuthorizeOptions) (*oauth2.Token, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.Out == nil {
		opts.Out = os.Stderr
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = openBrowser
	}
	if len(cfg.Scopes) == 0 {
		return nil, errors.New("missing scopes")
	}

	state, err := RandomState()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	defer ln.Close()

	flowCfg := *cfg
	flowCfg.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d%s", ln.Addr().(*net.TCPAddr).Port, callbackPath)

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	srv := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != callbackPath {
				http.NotFound(w, r)
				return
			}
			q := r.URL.Query()
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")

			switch {
			case q.Get("error") != "":
				sendErr(errCh, fmt.Errorf("authorization error: %s", q.Get("error")))
				w.WriteHeader(http.StatusOK)
				fmt.Fprintln(w, "Authorization cancelled. You can close this window.")
			case q.Get("state") != state:
				sendErr(errCh, errors.New("state mismatch"))
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprintln(w, "State mismatch. Please try again.")
			case q.Get("code") == "":
				sendErr(errCh, errors.New("missing code"))
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprintln(w, "Missing authorization code. Please try again.")
			default:
				select {
				case codeCh <- q.Get("code"):
				default:
				}
				w.WriteHeader(http.StatusOK)
				fmt.Fprintln(w, "Authorization complete. You can close this window.")
			}
		}),
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sendErr(errCh, err)
		}
	}()
	defer srv.Close()

	authURL := flowCfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
	fmt.Fprintln(opts.Out, "Open the following link in your browser to authorize:")
	fmt.Fprintln(opts.Out, authURL)
	_ = opts.OpenBrowser(authURL)

	select {
	case code := <-codeCh:
		tok, err := flowCfg.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("exchange code: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RandomState returns a URL-safe random OAuth state value.
func RandomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func sendErr(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
