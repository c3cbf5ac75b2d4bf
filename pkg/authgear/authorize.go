package authgear

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/muhlemmer/gu"
	"golang.org/x/oauth2"
	"golang.org/x/text/language"

	"github.com/authgear/authgear-sdk-ios-sub000/internal/queue"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/assertion"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/client"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/credstore"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/keystore"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/oidc"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/session"
)

// AuthenticationSession presents the authorization URL to the user and
// returns the URL the server redirected to. redirectURI tells the session
// which redirect ends the flow. An ephemeral session shares no cookies
// with the system browser.
// A session dismissed by the user returns an error matching ErrCanceled
// or context.Canceled.
type AuthenticationSession interface {
	Open(ctx context.Context, authorizationURL, redirectURI string, ephemeral bool) (*url.URL, error)
}

type AuthenticateOptions struct {
	RedirectURI string
	// ResponseType defaults to code.
	ResponseType      oidc.ResponseType
	State             string
	Prompt            []oidc.Prompt
	LoginHint         string
	UILocales         []language.Tag
	ColorScheme       oidc.ColorScheme
	WechatRedirectURI string
	Page              oidc.Page
	// IsSSOEnabled shares the browser session with other apps,
	// otherwise the authentication session is ephemeral.
	IsSSOEnabled bool
}

type ReauthenticateOptions struct {
	RedirectURI       string
	State             string
	UILocales         []language.Tag
	ColorScheme       oidc.ColorScheme
	WechatRedirectURI string
	// MaxAge defaults to 0, which forces the user to authenticate again.
	MaxAge       *int
	IsSSOEnabled bool
}

type authorizationRequest struct {
	AuthenticateOptions
	verifier    *oidc.CodeVerifier
	maxAge      *int
	idTokenHint string
}

// Authenticate signs the user in through the authorization code flow.
func (c *Container) Authenticate(ctx context.Context, opts AuthenticateOptions) (*oidc.UserInfo, error) {
	ctx = c.logCtx(ctx, "Authenticate")
	req := &authorizationRequest{
		AuthenticateOptions: opts,
		verifier:            oidc.NewCodeVerifier(),
	}
	code, err := c.authorize(ctx, req)
	if err != nil {
		return nil, err
	}
	return queue.Do(ctx, c.queue, func(ctx context.Context) (*oidc.UserInfo, error) {
		return c.finishAuthorization(ctx, code, req)
	})
}

// Reauthenticate asks the signed in user to authenticate again.
func (c *Container) Reauthenticate(ctx context.Context, opts ReauthenticateOptions) (*oidc.UserInfo, error) {
	ctx = c.logCtx(ctx, "Reauthenticate")
	idToken, err := queue.Do(ctx, c.queue, func(ctx context.Context) (string, error) {
		if err := c.refreshIfNeeded(ctx); err != nil {
			return "", err
		}
		idToken := c.session.IDToken()
		if c.session.RefreshToken() == "" || idToken == "" {
			return "", ErrUnauthenticatedUser
		}
		return idToken, nil
	})
	if err != nil {
		return nil, err
	}

	maxAge := opts.MaxAge
	if maxAge == nil {
		maxAge = gu.Ptr(0)
	}
	req := &authorizationRequest{
		AuthenticateOptions: AuthenticateOptions{
			RedirectURI:       opts.RedirectURI,
			State:             opts.State,
			Prompt:            []oidc.Prompt{oidc.PromptLogin},
			UILocales:         opts.UILocales,
			ColorScheme:       opts.ColorScheme,
			WechatRedirectURI: opts.WechatRedirectURI,
			IsSSOEnabled:      opts.IsSSOEnabled,
		},
		verifier:    oidc.NewCodeVerifier(),
		maxAge:      maxAge,
		idTokenHint: idToken,
	}
	code, err := c.authorize(ctx, req)
	if err != nil {
		return nil, err
	}
	return queue.Do(ctx, c.queue, func(ctx context.Context) (*oidc.UserInfo, error) {
		return c.finishAuthorization(ctx, code, req)
	})
}

// authorize runs the interactive part of the code flow and returns the code.
// It does not touch the session and runs outside of the queue.
func (c *Container) authorize(ctx context.Context, req *authorizationRequest) (string, error) {
	if c.authSession == nil {
		return "", errors.New("authgear: no authentication session configured")
	}
	caller, err := c.caller(ctx)
	if err != nil {
		return "", err
	}
	authURL := c.authorizationURL(&caller.Endpoints, req)
	c.debug(ctx, "opening authentication session")
	callback, err := c.authSession.Open(ctx, authURL, req.RedirectURI, !req.IsSSOEnabled)
	if err != nil {
		if errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled) || errors.Is(err, keystore.ErrCanceled) {
			return "", fmt.Errorf("%w: %w", ErrCanceled, err)
		}
		return "", err
	}
	return parseAuthorizationCallback(callback, req.State)
}

func parseAuthorizationCallback(callback *url.URL, state string) (string, error) {
	q := callback.Query()
	if errorCode := q.Get(oidc.ParamError); errorCode != "" {
		oauthErr := oidc.NewError(errorCode, q.Get(oidc.ParamErrorDescription))
		oauthErr.State = q.Get(oidc.ParamState)
		return "", oauthErr
	}
	if state != "" && q.Get(oidc.ParamState) != state {
		return "", ErrStateMismatch
	}
	code := q.Get(oidc.ParamCode)
	if code == "" {
		return "", oidc.ErrInvalidRequest().WithDescription("callback without %s", oidc.ParamCode)
	}
	return code, nil
}

// finishAuthorization must run on the queue.
func (c *Container) finishAuthorization(ctx context.Context, code string, req *authorizationRequest) (*oidc.UserInfo, error) {
	resp, deviceKey, err := c.exchangeCode(ctx, code, req.RedirectURI, req.verifier)
	if err != nil {
		return nil, err
	}
	return c.completeAuthentication(ctx, resp, deviceKey)
}

// exchangeCode exchanges an authorization code. With app2app enabled the
// request proves possession of the app2app device key of this app.
func (c *Container) exchangeCode(ctx context.Context, code, redirectURI string, verifier *oidc.CodeVerifier) (*oidc.AccessTokenResponse, *assertion.Result, error) {
	caller, err := c.caller(ctx)
	if err != nil {
		return nil, nil, err
	}
	tokenReq := &oidc.AccessTokenRequest{
		GrantTypeValue: oidc.GrantTypeCode,
		ClientID:       c.clientID,
		Code:           code,
		RedirectURI:    redirectURI,
	}
	if verifier != nil {
		tokenReq.CodeVerifier = verifier.Verifier
	}
	var deviceKey *assertion.Result
	if c.app2app.Enabled {
		keyID, err := c.keyID(ctx, credstore.KeyApp2AppDeviceKey)
		if err != nil {
			return nil, nil, err
		}
		action := assertion.ActionAuthenticate
		if keyID == "" {
			action = assertion.ActionSetup
		}
		deviceKey, err = c.assert(ctx, oidc.ChallengePurposeApp2App, assertion.Request{
			Binding: assertion.KeyBinding{Purpose: keystore.PurposeApp2App, KeyID: keyID},
			Action:  action,
		})
		if err != nil {
			return nil, nil, err
		}
		tokenReq.DeviceKeyJWT = deviceKey.JWT
	}
	resp, err := client.CallTokenEndpoint(ctx, tokenReq, caller)
	if err != nil {
		return nil, nil, err
	}
	return resp, deviceKey, nil
}

// completeAuthentication persists a new session and returns its user.
func (c *Container) completeAuthentication(ctx context.Context, resp *oidc.AccessTokenResponse, deviceKey *assertion.Result) (*oidc.UserInfo, error) {
	if err := c.session.Persist(ctx, resp, session.ReasonAuthenticated); err != nil {
		return nil, err
	}
	if deviceKey != nil {
		if err := c.bind(ctx, credstore.KeyApp2AppDeviceKey, deviceKey); err != nil {
			return nil, err
		}
	}
	return c.userInfo(ctx)
}

// authorizationURL builds the authorization request. Optional parameters
// are only present when set.
func (c *Container) authorizationURL(endpoints *client.Endpoints, req *authorizationRequest) string {
	scopes := oidc.FirstPartyScopes
	if c.thirdParty {
		scopes = oidc.ThirdPartyScopes
	}
	config := &oauth2.Config{
		ClientID:    c.clientID,
		RedirectURL: req.RedirectURI,
		Scopes:      scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  endpoints.AuthorizationURL,
			TokenURL: endpoints.TokenURL,
		},
	}

	var opts []oauth2.AuthCodeOption
	param := func(key, value string) {
		if value != "" {
			opts = append(opts, oauth2.SetAuthURLParam(key, value))
		}
	}
	if req.ResponseType != "" && req.ResponseType != oidc.ResponseTypeCode {
		param(oidc.ParamResponseType, string(req.ResponseType))
	}
	if req.verifier != nil {
		opts = append(opts, oauth2.S256ChallengeOption(req.verifier.Verifier))
	}
	if len(req.Prompt) > 0 {
		prompts := make([]string, len(req.Prompt))
		for i, p := range req.Prompt {
			prompts[i] = string(p)
		}
		param(oidc.ParamPrompt, strings.Join(prompts, " "))
	}
	param(oidc.ParamLoginHint, req.LoginHint)
	param(oidc.ParamUILocales, oidc.Locales(req.UILocales).String())
	param(oidc.ParamIDTokenHint, req.idTokenHint)
	if req.maxAge != nil {
		param(oidc.ParamMaxAge, strconv.Itoa(*req.maxAge))
	}
	param(oidc.ParamWechatRedirectURI, req.WechatRedirectURI)
	param(oidc.ParamPlatform, c.platform)
	param(oidc.ParamPage, string(req.Page))
	param(oidc.ParamColorScheme, string(req.ColorScheme))
	return config.AuthCodeURL(req.State, opts...)
}
