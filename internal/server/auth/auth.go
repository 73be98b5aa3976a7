package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	goauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/openmined/drivegate/internal/googleauth"
	"github.com/openmined/drivegate/internal/server/session"
	"github.com/openmined/drivegate/internal/version"
)

type AuthService struct {
	config   *Config
	oauth    *oauth2.Config
	states   *expirable.LRU[string, loginState]
	sessions *session.Store
}

func NewAuthService(config *Config, sessions *session.Store) (*AuthService, error) {
	oauthCfg, err := newOAuthConfig(config)
	if err != nil {
		return nil, err
	}

	return &AuthService{
		config:   config,
		oauth:    oauthCfg,
		states:   expirable.NewLRU[string, loginState](0, nil, config.StateExpiry), // 0 = LRU off
		sessions: sessions,
	}, nil
}

func newOAuthConfig(c *Config) (*oauth2.Config, error) {
	var cfg *oauth2.Config
	if c.ClientSecretFile != "" {
		loaded, err := googleauth.LoadClientSecret(c.ClientSecretFile, googleauth.ServerScopes()...)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       googleauth.ServerScopes(),
		}
	}

	cfg.RedirectURL = c.RedirectURL
	if c.AuthURL != "" {
		cfg.Endpoint.AuthURL = c.AuthURL
	}
	if c.TokenURL != "" {
		cfg.Endpoint.TokenURL = c.TokenURL
	}
	return cfg, nil
}

func (s *AuthService) Sessions() *session.Store {
	return s.sessions
}

func (s *AuthService) PostLoginPath() string {
	return s.config.PostLoginPath
}

// HasRequiredScopes reports whether the session was granted every scope the service asks for.
func (s *AuthService) HasRequiredScopes(sess *session.Session) bool {
	return sess != nil && googleauth.HasScopes(sess.Scopes, s.oauth.Scopes)
}

// BeginLogin records a login state and returns the Google consent URL.
func (s *AuthService) BeginLogin(returnTo string) (string, error) {
	state, err := googleauth.RandomState()
	if err != nil {
		return "", fmt.Errorf("failed to generate login state: %w", err)
	}

	s.states.Add(state, loginState{ReturnTo: s.safeReturnTo(returnTo)})

	return s.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	), nil
}

type CallbackRequest struct {
	State string
	Code  string
	Error string
}

type LoginResult struct {
	Session  *session.Session
	Cookie   string
	ReturnTo string
}

// CompleteLogin validates the callback, exchanges the code and opens a session.
// A state value can be used once.
func (s *AuthService) CompleteLogin(ctx context.Context, req *CallbackRequest) (*LoginResult, error) {
	state, ok := s.states.Get(req.State)
	if req.State == "" || !ok {
		return nil, ErrInvalidState
	}
	s.states.Remove(req.State)

	if req.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrAuthDenied, req.Error)
	}
	if req.Code == "" {
		return nil, ErrMissingCode
	}

	tok, err := s.oauth.Exchange(ctx, req.Code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExchange, err)
	}

	info, err := s.fetchUserInfo(ctx, s.oauth.TokenSource(ctx, tok))
	if err != nil {
		return nil, err
	}

	sess, cookie, err := s.sessions.Create(session.Profile{
		Subject: info.ID,
		Name:    info.Name,
		Email:   info.Email,
	}, tok, grantedScopes(tok, s.oauth.Scopes))
	if err != nil {
		return nil, err
	}

	slog.Info("login complete", "subject", sess.Subject, "name", sess.Name, "session", sess.ID, "active_sessions", s.sessions.Len())

	return &LoginResult{Session: sess, Cookie: cookie, ReturnTo: state.ReturnTo}, nil
}

// TokenSource yields the session's credential, refreshing it when expired
// and writing refreshed tokens back into the session store.
func (s *AuthService) TokenSource(ctx context.Context, sess *session.Session) oauth2.TokenSource {
	return &sessionTokenSource{
		base:      s.oauth.TokenSource(ctx, sess.Token),
		sessions:  s.sessions,
		sessionID: sess.ID,
		last:      sess.Token.AccessToken,
	}
}

// UserInfo fetches the Google profile of the session's user.
func (s *AuthService) UserInfo(ctx context.Context, sess *session.Session) (*UserInfo, error) {
	return s.fetchUserInfo(ctx, s.TokenSource(ctx, sess))
}

func (s *AuthService) fetchUserInfo(ctx context.Context, ts oauth2.TokenSource) (*UserInfo, error) {
	opts := []option.ClientOption{
		option.WithTokenSource(ts),
		option.WithUserAgent(version.UserAgent()),
	}
	if s.config.APIEndpoint != "" {
		opts = append(opts, option.WithEndpoint(s.config.APIEndpoint))
	}

	svc, err := goauth2.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create oauth2 service: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("fetch user info: %w", err)
	}

	return &UserInfo{
		ID:         info.Id,
		Name:       info.Name,
		GivenName:  info.GivenName,
		FamilyName: info.FamilyName,
		Email:      info.Email,
		Picture:    info.Picture,
		Locale:     info.Locale,
	}, nil
}

func (s *AuthService) safeReturnTo(returnTo string) string {
	if !strings.HasPrefix(returnTo, "/") || strings.HasPrefix(returnTo, "//") || strings.HasPrefix(returnTo, "/\\") {
		return s.config.PostLoginPath
	}
	return returnTo
}

// grantedScopes reads the token response's scope list, falling back to what was requested.
func grantedScopes(tok *oauth2.Token, requested []string) []string {
	if scope, ok := tok.Extra("scope").(string); ok && strings.TrimSpace(scope) != "" {
		return strings.Fields(scope)
	}
	return requested
}

type sessionTokenSource struct {
	base      oauth2.TokenSource
	sessions  *session.Store
	sessionID string

	mu   sync.Mutex
	last string
}

func (t *sessionTokenSource) Token() (*oauth2.Token, error) {
	tok, err := t.base.Token()
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if tok.AccessToken != t.last {
		if err := t.sessions.UpdateToken(t.sessionID, tok); err != nil {
			slog.Warn("refreshed token not saved", "session", t.sessionID, "error", err)
		}
		t.last = tok.AccessToken
	}
	return tok, nil
}
