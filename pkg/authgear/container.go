// Package authgear is the client side session engine. A Container signs a
// user in through one of the supported grants, keeps the session fresh and
// answers app2app requests of other apps on the same device.
//
// Every operation that mutates the session is run on a single worker, one
// at a time and in submission order. Accessors like AccessToken read a
// snapshot and may be called from any goroutine.
package authgear

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/zitadel/logging"

	"github.com/authgear/authgear-sdk-ios-sub000/internal/queue"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/app2app"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/assertion"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/client"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/credstore"
	httphelper "github.com/authgear/authgear-sdk-ios-sub000/pkg/http"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/keystore"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/oidc"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/session"
)

// Delegate observes session state transitions. Calls are made in order on
// a goroutine owned by the Container.
type Delegate interface {
	OnSessionStateChanged(c *Container, state session.State, reason session.Reason)
}

type DelegateFunc func(c *Container, state session.State, reason session.Reason)

func (f DelegateFunc) OnSessionStateChanged(c *Container, state session.State, reason session.Reason) {
	f(c, state, reason)
}

type Container struct {
	clientID   string
	endpoint   string
	name       string
	platform   string
	thirdParty bool
	deviceInfo map[string]any
	now        func() time.Time

	httpClient  *http.Client
	logger      *slog.Logger
	keyStore    keystore.KeyStore
	credStore   credstore.Store
	authSession AuthenticationSession
	app2app     App2AppOptions
	delegate    Delegate

	resolver      *client.EndpointResolver
	session       *session.Session
	assertions    *assertion.Builder
	registry      *app2app.Registry
	queue         *queue.Queue
	notifications *queue.Dispatcher
}

// New creates a Container for clientID of the server at endpoint.
// Unless configured otherwise, keys and credentials are kept in memory.
func New(clientID, endpoint string, options ...Option) (*Container, error) {
	if clientID == "" {
		return nil, errors.New("authgear: empty client id")
	}
	if endpoint == "" {
		return nil, errors.New("authgear: empty endpoint")
	}
	c := &Container{
		clientID:   clientID,
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		name:       DefaultName,
		platform:   DefaultPlatform,
		now:        time.Now,
		httpClient: httphelper.DefaultHTTPClient,
		keyStore:   keystore.WithErrorMapping(keystore.NewMemoryKeyStore()),
		credStore:  credstore.NewMemoryStore(),
	}
	for _, optFunc := range options {
		if err := optFunc(c); err != nil {
			return nil, err
		}
	}

	c.resolver = client.NewEndpointResolver(c.endpoint, c.httpClient)
	c.session = session.New(c.name, c.credStore,
		session.WithNow(c.now),
		session.WithNotifier(c.notify),
	)
	c.assertions = assertion.NewBuilder(c.keyStore, assertion.WithNow(c.now))
	c.registry = app2app.NewRegistry()
	c.queue = queue.New()
	c.notifications = queue.NewDispatcher()
	return c, nil
}

// Close stops the workers of c. Operations called afterwards fail.
func (c *Container) Close() {
	c.queue.Close()
	c.notifications.Close()
}

func (c *Container) ClientID() string {
	return c.clientID
}

func (c *Container) Name() string {
	return c.name
}

func (c *Container) Logger(ctx context.Context) (logger *slog.Logger, ok bool) {
	logger, ok = logging.FromContext(ctx)
	if ok {
		return logger, ok
	}
	return c.logger, c.logger != nil
}

func (c *Container) logCtx(ctx context.Context, function string, attrs ...any) context.Context {
	logger, ok := c.Logger(ctx)
	if !ok {
		return ctx
	}
	attrs = append([]any{"name", c.name, "function", function}, attrs...)
	logger = logger.With(slog.Group("authgear", attrs...))
	return logging.ToContext(ctx, logger)
}

func (c *Container) debug(ctx context.Context, msg string, args ...any) {
	if logger, ok := logging.FromContext(ctx); ok {
		logger.DebugContext(ctx, msg, args...)
	}
}

func (c *Container) warn(ctx context.Context, msg string, args ...any) {
	if logger, ok := logging.FromContext(ctx); ok {
		logger.WarnContext(ctx, msg, args...)
	}
}

func (c *Container) notify(state session.State, reason session.Reason) {
	if c.delegate == nil {
		return
	}
	c.notifications.Post(func() {
		c.delegate.OnSessionStateChanged(c, state, reason)
	})
}

// caller resolves the endpoints of the server, discovering them on first use.
func (c *Container) caller(ctx context.Context) (*client.Caller, error) {
	endpoints, err := c.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return &client.Caller{Endpoints: *endpoints, Client: c.httpClient}, nil
}

// SessionState returns the current state without waiting for running operations.
func (c *Container) SessionState() session.State {
	return c.session.State()
}

// AccessToken returns the cached access token, which may be expired.
// Use RefreshAccessTokenIfNeeded to get a fresh one.
func (c *Container) AccessToken() string {
	return c.session.AccessToken()
}

// IDTokenHint returns the id token of the last authentication, if any.
func (c *Container) IDTokenHint() string {
	return c.session.IDToken()
}

// CanReauthenticate reports whether the id token allows Reauthenticate.
// The id token is read without verification, it was received over TLS
// from the token endpoint.
func (c *Container) CanReauthenticate() bool {
	idToken := c.session.IDToken()
	if idToken == "" {
		return false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return false
	}
	can, _ := claims[oidc.ClaimCanReauthenticate].(bool)
	return can
}

// Configure loads the stored session. A session whose access token is
// missing or expired is refreshed.
func (c *Container) Configure(ctx context.Context) (session.State, session.Reason, error) {
	ctx = c.logCtx(ctx, "Configure")
	type result struct {
		state  session.State
		reason session.Reason
	}
	r, err := queue.Do(ctx, c.queue, func(ctx context.Context) (result, error) {
		found, err := c.session.Load(ctx)
		if err != nil {
			return result{}, err
		}
		if !found {
			c.session.Transition(session.StateNoSession, session.ReasonNoToken)
			return result{session.StateNoSession, session.ReasonNoToken}, nil
		}
		if !c.session.ShouldRefresh(c.now()) {
			c.session.Transition(session.StateAuthenticated, session.ReasonFoundToken)
			return result{session.StateAuthenticated, session.ReasonFoundToken}, nil
		}
		reason, err := c.refresh(ctx, session.ReasonFoundToken)
		if err != nil {
			return result{}, err
		}
		return result{c.session.State(), reason}, nil
	})
	return r.state, r.reason, err
}

// RefreshAccessTokenIfNeeded returns a fresh access token, refreshing it
// first when it is missing or expired. Without session it returns "".
func (c *Container) RefreshAccessTokenIfNeeded(ctx context.Context) (string, error) {
	ctx = c.logCtx(ctx, "RefreshAccessTokenIfNeeded")
	return queue.Do(ctx, c.queue, func(ctx context.Context) (string, error) {
		if err := c.refreshIfNeeded(ctx); err != nil {
			return "", err
		}
		return c.session.AccessToken(), nil
	})
}

// FetchUserInfo returns the claims of the signed in user.
func (c *Container) FetchUserInfo(ctx context.Context) (*oidc.UserInfo, error) {
	ctx = c.logCtx(ctx, "FetchUserInfo")
	return queue.Do(ctx, c.queue, func(ctx context.Context) (*oidc.UserInfo, error) {
		if err := c.refreshIfNeeded(ctx); err != nil {
			return nil, err
		}
		return c.userInfo(ctx)
	})
}

// Logout revokes the refresh token and clears the session.
// With force a failed revocation or deletion does not stop the session
// from being cleared.
func (c *Container) Logout(ctx context.Context, force bool) error {
	ctx = c.logCtx(ctx, "Logout", "force", force)
	_, err := queue.Do(ctx, c.queue, func(ctx context.Context) (struct{}, error) {
		if refreshToken := c.session.RefreshToken(); refreshToken != "" {
			if err := c.revoke(ctx, refreshToken); err != nil {
				if !force {
					return struct{}{}, err
				}
				c.warn(ctx, "ignoring failed revocation", slog.Any("error", err))
			}
		}
		return struct{}{}, c.session.Cleanup(ctx, force, session.ReasonLogout)
	})
	return err
}

// ClearSessionState forgets the session without revoking it.
func (c *Container) ClearSessionState(ctx context.Context) error {
	ctx = c.logCtx(ctx, "ClearSessionState")
	_, err := queue.Do(ctx, c.queue, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.session.Cleanup(ctx, true, session.ReasonClear)
	})
	return err
}

// refreshIfNeeded must run on the queue.
func (c *Container) refreshIfNeeded(ctx context.Context) error {
	if !c.session.ShouldRefresh(c.now()) {
		return nil
	}
	_, err := c.refresh(ctx, session.ReasonFoundToken)
	return err
}

// refresh exchanges the refresh token. An invalid_grant answer ends the
// session and is not an error: the returned reason is then ReasonInvalid.
// Any other error leaves the session untouched.
func (c *Container) refresh(ctx context.Context, reason session.Reason) (session.Reason, error) {
	refreshToken := c.session.RefreshToken()
	if refreshToken == "" {
		return reason, nil
	}
	c.debug(ctx, "refreshing access token")
	caller, err := c.caller(ctx)
	if err != nil {
		return reason, err
	}
	resp, err := client.CallTokenEndpoint(ctx, &oidc.RefreshTokenRequest{
		GrantTypeValue: oidc.GrantTypeRefreshToken,
		ClientID:       c.clientID,
		RefreshToken:   refreshToken,
	}, caller)
	if oidc.IsInvalidGrant(err) {
		c.warn(ctx, "refresh token rejected, clearing session", slog.Any("error", err))
		if err := c.session.Cleanup(ctx, true, session.ReasonInvalid); err != nil {
			return reason, err
		}
		return session.ReasonInvalid, nil
	}
	if err != nil {
		return reason, fmt.Errorf("refreshing access token: %w", err)
	}
	return reason, c.session.Persist(ctx, resp, reason)
}

func (c *Container) revoke(ctx context.Context, refreshToken string) error {
	caller, err := c.caller(ctx)
	if err != nil {
		return err
	}
	return client.CallRevokeEndpoint(ctx, &oidc.RevokeRequest{Token: refreshToken}, caller)
}

func (c *Container) userInfo(ctx context.Context) (*oidc.UserInfo, error) {
	accessToken := c.session.AccessToken()
	if accessToken == "" {
		return nil, ErrUnauthenticatedUser
	}
	caller, err := c.caller(ctx)
	if err != nil {
		return nil, err
	}
	return client.CallUserinfoEndpoint(ctx, accessToken, caller)
}

// assert requests a one time challenge for purpose and builds an assertion
// over it. A generated key must be bound by the caller once the grant succeeded.
func (c *Container) assert(ctx context.Context, purpose oidc.ChallengePurpose, req assertion.Request) (*assertion.Result, error) {
	caller, err := c.caller(ctx)
	if err != nil {
		return nil, err
	}
	challenge, err := client.CallChallengeEndpoint(ctx, purpose, caller)
	if err != nil {
		return nil, fmt.Errorf("requesting challenge: %w", err)
	}
	req.Challenge = challenge.Token
	if req.DeviceInfo == nil {
		req.DeviceInfo = c.deviceInfo
	}
	res, err := c.assertions.Build(ctx, req)
	if err != nil {
		return nil, err
	}
	if res.Generated {
		c.debug(ctx, "generated device key",
			slog.String("purpose", string(req.Binding.Purpose)),
			slog.String("kid", res.Binding.KeyID),
		)
	}
	return res, nil
}

func (c *Container) keyID(ctx context.Context, key credstore.Key) (string, error) {
	id, err := c.credStore.Get(ctx, c.name, key)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	return id, nil
}

func (c *Container) bind(ctx context.Context, key credstore.Key, res *assertion.Result) error {
	if !res.Generated {
		return nil
	}
	if err := c.credStore.Set(ctx, c.name, key, res.Binding.KeyID); err != nil {
		return fmt.Errorf("persisting %s: %w", key, err)
	}
	return nil
}
