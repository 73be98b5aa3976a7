package session

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/oauth2"
)

const contextKey = "session"

var (
	ErrInvalidSession  = errors.New("invalid session")
	ErrSessionNotFound = errors.New("session not found")
)

// Session is an authenticated browser login. Sessions are immutable once
// stored; token refreshes replace the stored value but keep ExpiresAt, which
// tracks the cookie lifetime.
type Session struct {
	ID        string
	Subject   string
	Name      string
	Email     string
	Token     *oauth2.Token
	Scopes    []string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type Profile struct {
	Subject string
	Name    string
	Email   string
}

type Store struct {
	config   *Config
	sessions *expirable.LRU[string, *Session]
	mu       sync.Mutex
}

func NewStore(config *Config) *Store {
	return &Store{
		config:   config,
		sessions: expirable.NewLRU[string, *Session](config.MaxSessions, nil, config.TTL), // 0 = unbounded
	}
}

// Create stores a new session and returns it with its signed cookie value.
func (s *Store) Create(profile Profile, token *oauth2.Token, scopes []string) (*Session, string, error) {
	if profile.Subject == "" {
		return nil, "", fmt.Errorf("create session: empty subject")
	}
	if token == nil {
		return nil, "", fmt.Errorf("create session: nil token")
	}

	sess := &Session{
		ID:        uuid.New().String(),
		Subject:   profile.Subject,
		Name:      profile.Name,
		Email:     profile.Email,
		Token:     token,
		Scopes:    scopes,
		CreatedAt: time.Now(),
	}
	sess.ExpiresAt = sess.CreatedAt.Add(s.config.TTL)

	value, err := newToken(sess.ID, sess.Subject, s.config.Secret, s.config.TTL)
	if err != nil {
		return nil, "", fmt.Errorf("sign session: %w", err)
	}

	s.sessions.Add(sess.ID, sess)
	return sess, value, nil
}

// Lookup resolves a cookie value to its live session.
func (s *Store) Lookup(cookieValue string) (*Session, error) {
	if cookieValue == "" {
		return nil, ErrInvalidSession
	}

	claims, err := ParseClaims(cookieValue, s.config.Secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}

	sess, ok := s.sessions.Get(claims.ID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	if sess.Subject != claims.Subject {
		return nil, fmt.Errorf("%w: subject mismatch", ErrInvalidSession)
	}
	// re-adding on token refresh restarts the LRU timer
	if time.Now().After(sess.ExpiresAt) {
		s.sessions.Remove(sess.ID)
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// UpdateToken swaps in a refreshed credential for sessionID.
func (s *Store) UpdateToken(sessionID string, token *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions.Peek(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	updated := *sess
	updated.Token = token
	s.sessions.Add(sessionID, &updated)
	return nil
}

func (s *Store) Delete(sessionID string) {
	s.sessions.Remove(sessionID)
}

func (s *Store) Len() int {
	return s.sessions.Len()
}

func (s *Store) CookieName() string {
	return s.config.CookieName
}

// SetCookie writes the session cookie on the response.
func (s *Store) SetCookie(ctx *gin.Context, value string) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(s.config.CookieName, value, int(s.config.TTL.Seconds()), "/", s.config.Domain, s.config.Secure, true)
}

func (s *Store) ClearCookie(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(s.config.CookieName, "", -1, "/", s.config.Domain, s.config.Secure, true)
}

// FromRequest looks up the session named by the request cookie.
func (s *Store) FromRequest(ctx *gin.Context) (*Session, error) {
	value, err := ctx.Cookie(s.config.CookieName)
	if err != nil {
		return nil, ErrInvalidSession
	}
	return s.Lookup(value)
}

func SetContext(ctx *gin.Context, sess *Session) {
	ctx.Set(contextKey, sess)
}

func FromContext(ctx *gin.Context) (*Session, bool) {
	v, ok := ctx.Get(contextKey)
	if !ok {
		return nil, false
	}
	sess, ok := v.(*Session)
	return sess, ok
}
