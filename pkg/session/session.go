// Package session holds the tokens of a signed in user and the
// observable state derived from them.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zitadel/logging"

	"github.com/authgear/authgear-sdk-ios-sub000/pkg/credstore"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/oidc"
)

type State string

const (
	StateUnknown       State = "unknown"
	StateNoSession     State = "no_session"
	StateAuthenticated State = "authenticated"
)

// Reason tags every state transition.
type Reason string

const (
	ReasonNoToken       Reason = "no_token"
	ReasonFoundToken    Reason = "found_token"
	ReasonAuthenticated Reason = "authenticated"
	ReasonLogout        Reason = "logout"
	ReasonInvalid       Reason = "invalid"
	ReasonClear         Reason = "clear"
)

// ExpiryFactor shortens the server declared lifetime of an access token.
const ExpiryFactor = 0.9

var ErrMissingRefreshToken = errors.New("session: token response without refresh token")

// Notifier is called after every transition, outside of any lock.
type Notifier func(State, Reason)

// Snapshot is a consistent copy of the session.
type Snapshot struct {
	State        State
	AccessToken  string
	RefreshToken string
	IDToken      string
	ExpireAt     time.Time
}

// Session is the in memory session of one namespace.
// An empty refresh token implies an empty access token, id token and expiry.
type Session struct {
	namespace string
	store     credstore.Store
	now       func() time.Time
	notify    Notifier

	mu           sync.RWMutex
	state        State
	accessToken  string
	refreshToken string
	idToken      string
	expireAt     time.Time
}

type Option func(*Session)

func WithNow(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

func WithNotifier(notify Notifier) Option {
	return func(s *Session) {
		s.notify = notify
	}
}

func New(namespace string, store credstore.Store, opts ...Option) *Session {
	s := &Session{
		namespace: namespace,
		store:     store,
		now:       time.Now,
		state:     StateUnknown,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads the refresh token from the store and reports whether one exists.
// The access token is kept only when the stored refresh token is the one
// already held.
func (s *Session) Load(ctx context.Context) (bool, error) {
	refreshToken, err := s.store.Get(ctx, s.namespace, credstore.KeyRefreshToken)
	if err != nil {
		return false, fmt.Errorf("loading refresh token: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if refreshToken != s.refreshToken {
		s.clearLocked()
		s.refreshToken = refreshToken
	}
	return refreshToken != "", nil
}

// ShouldRefresh reports whether a refresh token is held and the access
// token is missing or expired at now.
func (s *Session) ShouldRefresh(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.refreshToken == "" {
		return false
	}
	if s.accessToken == "" || s.expireAt.IsZero() {
		return true
	}
	return !now.Before(s.expireAt)
}

// Persist stores the refresh token of resp and then takes over its tokens.
// A response without refresh token keeps the current one.
// Nothing changes in memory when the store write fails.
func (s *Session) Persist(ctx context.Context, resp *oidc.AccessTokenResponse, reason Reason) error {
	s.mu.RLock()
	refreshToken := s.refreshToken
	s.mu.RUnlock()

	if resp.RefreshToken != "" {
		refreshToken = resp.RefreshToken
		if err := s.store.Set(ctx, s.namespace, credstore.KeyRefreshToken, refreshToken); err != nil {
			return fmt.Errorf("persisting refresh token: %w", err)
		}
	}
	if refreshToken == "" {
		return ErrMissingRefreshToken
	}

	var expireAt time.Time
	if resp.ExpiresIn > 0 {
		lifetime := time.Duration(float64(resp.ExpiresIn) * ExpiryFactor * float64(time.Second))
		expireAt = s.now().Add(lifetime)
	}

	s.mu.Lock()
	s.refreshToken = refreshToken
	s.accessToken = resp.AccessToken
	s.expireAt = expireAt
	if resp.IDToken != "" {
		s.idToken = resp.IDToken
	}
	s.state = StateAuthenticated
	s.mu.Unlock()

	s.emit(StateAuthenticated, reason)
	return nil
}

// Cleanup deletes the stored refresh token and anonymous key binding,
// clears the tokens in memory and transitions to StateNoSession.
// Without force the first failed deletion is returned and nothing changes.
// With force failed deletions are logged and the session is cleared anyway.
func (s *Session) Cleanup(ctx context.Context, force bool, reason Reason) error {
	for _, key := range []credstore.Key{credstore.KeyRefreshToken, credstore.KeyAnonymousKeyID} {
		err := s.store.Delete(ctx, s.namespace, key)
		if err == nil {
			continue
		}
		if !force {
			return fmt.Errorf("deleting %s: %w", key, err)
		}
		if logger, ok := logging.FromContext(ctx); ok {
			logger.WarnContext(ctx, "ignoring failed credential deletion",
				slog.String("key", string(key)),
				slog.Any("error", err),
			)
		}
	}

	s.mu.Lock()
	s.clearLocked()
	s.refreshToken = ""
	s.state = StateNoSession
	s.mu.Unlock()

	s.emit(StateNoSession, reason)
	return nil
}

// Transition sets the state without touching the tokens.
func (s *Session) Transition(state State, reason Reason) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.emit(state, reason)
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		State:        s.state,
		AccessToken:  s.accessToken,
		RefreshToken: s.refreshToken,
		IDToken:      s.idToken,
		ExpireAt:     s.expireAt,
	}
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

func (s *Session) IDToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idToken
}

func (s *Session) clearLocked() {
	s.accessToken = ""
	s.idToken = ""
	s.expireAt = time.Time{}
}

func (s *Session) emit(state State, reason Reason) {
	if s.notify != nil {
		s.notify(state, reason)
	}
}
