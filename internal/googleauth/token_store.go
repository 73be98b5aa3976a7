package googleauth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofrs/flock"
	"golang.org/x/oauth2"

	"github.com/openmined/drivegate/internal/utils"
)

const (
	tokenFilePerm = 0o600
	tokenDirPerm  = 0o700
	lockTimeout   = 10 * time.Second
	lockRetry     = 50 * time.Millisecond
)

var ErrNoToken = errors.New("no cached token")

// FileTokenStore keeps one OAuth token in a JSON file. Access is serialized
// across processes with a sidecar lock file.
type FileTokenStore struct {
	path string
	lock *flock.Flock
}

func NewFileTokenStore(path string) (*FileTokenStore, error) {
	path, err := utils.ResolvePath(path)
	if err != nil {
		return nil, err
	}
	return &FileTokenStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}, nil
}

func (s *FileTokenStore) Path() string {
	return s.path
}

func (s *FileTokenStore) Load(ctx context.Context) (*oauth2.Token, error) {
	if err := s.acquire(ctx, false); err != nil {
		return nil, err
	}
	defer s.lock.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoToken
	} else if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", s.path, err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, ErrNoToken
	}
	return &tok, nil
}

func (s *FileTokenStore) Save(ctx context.Context, tok *oauth2.Token) error {
	if tok == nil {
		return errors.New("save token: nil token")
	}

	if err := utils.EnsureDir(filepath.Dir(s.path), tokenDirPerm); err != nil {
		return err
	}

	if err := s.acquire(ctx, true); err != nil {
		return err
	}
	defer s.lock.Unlock()

	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, tokenFilePerm); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

func (s *FileTokenStore) acquire(ctx context.Context, exclusive bool) error {
	if err := utils.EnsureDir(filepath.Dir(s.path), tokenDirPerm); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	var locked bool
	var err error
	if exclusive {
		locked, err = s.lock.TryLockContext(ctx, lockRetry)
	} else {
		locked, err = s.lock.TryRLockContext(ctx, lockRetry)
	}
	if err != nil {
		return fmt.Errorf("lock token file: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock token file: %s is busy", s.path)
	}
	return nil
}

// PersistingTokenSource returns a TokenSource seeded with tok that writes
// every refreshed token back to the store.
func PersistingTokenSource(ctx context.Context, cfg *oauth2.Config, store *FileTokenStore, tok *oauth2.Token) oauth2.TokenSource {
	return &persistingTokenSource{
		ctx:   ctx,
		base:  cfg.TokenSource(ctx, tok),
		store: store,
		last:  tok.AccessToken,
	}
}

type persistingTokenSource struct {
	ctx   context.Context
	base  oauth2.TokenSource
	store *FileTokenStore

	mu   sync.Mutex
	last string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		if err := p.store.Save(p.ctx, tok); err != nil {
			return nil, err
		}
		p.last = tok.AccessToken
	}
	return tok, nil
}
