// Package identity hands out short-lived bearer tokens for calls to the R2C API.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/r2clabs/bulkstudy/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrNoIdentity means nobody is signed in, or the token we hold has expired.
// It is a pause condition, not a failure.
var ErrNoIdentity = errors.New("no authenticated identity")

// Provider returns a bearer token for the current user.
type Provider interface {
	Token(ctx context.Context) (string, error)
}

// Session holds the token source of whoever is signed in. The zero value is signed out.
type Session struct {
	mu       sync.RWMutex
	src      oauth2.TokenSource
	onSignIn []func()
}

// NewSession returns a session backed by src. A nil src starts signed out.
func NewSession(src oauth2.TokenSource) *Session {
	return &Session{src: src}
}

// FromConfig builds a session from the configured identity mode.
func FromConfig(ctx context.Context, cfg config.IdentityConfig) (*Session, error) {
	switch cfg.Mode {
	case config.IdentityNone, "":
		return NewSession(nil), nil
	case config.IdentityStatic:
		return NewSession(oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.AccessToken,
			TokenType:   "Bearer",
		})), nil
	case config.IdentityClientCredentials:
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		// clientcredentials caches the token and refreshes it shortly before expiry.
		return NewSession(cc.TokenSource(context.WithoutCancel(ctx))), nil
	default:
		return nil, fmt.Errorf("unknown identity mode %q", cfg.Mode)
	}
}

// Token returns the current access token, or ErrNoIdentity when signed out or expired.
func (s *Session) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.RLock()
	src := s.src
	s.mu.RUnlock()

	if src == nil {
		return "", ErrNoIdentity
	}
	tok, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoIdentity, err)
	}
	if !tok.Valid() {
		return "", fmt.Errorf("%w: token expired", ErrNoIdentity)
	}
	return tok.AccessToken, nil
}

// SignIn replaces the current identity with a user-supplied access token.
// A zero expiresIn means the token does not expire on our side.
func (s *Session) SignIn(accessToken string, expiresIn time.Duration) {
	tok := &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}
	if expiresIn > 0 {
		tok.Expiry = time.Now().Add(expiresIn)
	}

	s.mu.Lock()
	s.src = oauth2.StaticTokenSource(tok)
	hooks := append([]func(){}, s.onSignIn...)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// SignOut drops the current identity.
func (s *Session) SignOut() {
	s.mu.Lock()
	s.src = nil
	s.mu.Unlock()
}

// SignedIn reports whether a token source is present. The token may still be expired.
func (s *Session) SignedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.src != nil
}

// OnSignIn registers fn to run after every SignIn.
func (s *Session) OnSignIn(fn func()) {
	s.mu.Lock()
	s.onSignIn = append(s.onSignIn, fn)
	s.mu.Unlock()
}

var _ Provider = (*Session)(nil)
