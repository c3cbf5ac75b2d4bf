package authgear

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/authgear/authgear-sdk-ios-sub000/internal/queue"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/app2app"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/assertion"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/client"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/credstore"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/keystore"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/oidc"
)

type App2AppAuthenticateOptions struct {
	// AuthorizationEndpoint is the app2app endpoint of the app holding the session.
	AuthorizationEndpoint string
	// RedirectURI must be routed to HandleApp2AppAuthenticationResult.
	RedirectURI string
	State       string
}

// StartApp2AppAuthentication asks another app on this device to sign the
// user in and waits until its answer is passed to
// HandleApp2AppAuthenticationResult or ctx is done.
func (c *Container) StartApp2AppAuthentication(ctx context.Context, opts App2AppAuthenticateOptions) (*oidc.UserInfo, error) {
	ctx = c.logCtx(ctx, "StartApp2AppAuthentication")
	if !c.app2app.Enabled {
		return nil, ErrApp2AppNotEnabled
	}
	verifier := oidc.NewCodeVerifier()
	req := &app2app.AuthenticateRequest{
		AuthorizationEndpoint: opts.AuthorizationEndpoint,
		RedirectURI:           opts.RedirectURI,
		ClientID:              c.clientID,
		CodeChallenge:         verifier.Challenge,
		State:                 opts.State,
	}
	requestURL, err := req.URL()
	if err != nil {
		return nil, err
	}

	results, unregister, err := c.registry.Wait(opts.RedirectURI)
	if err != nil {
		return nil, err
	}
	defer unregister()

	if err := c.app2app.OpenURL(ctx, requestURL); err != nil {
		return nil, fmt.Errorf("opening app2app request: %w", err)
	}
	var result *url.URL
	select {
	case result = <-results:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if opts.State != "" && result.Query().Get(oidc.ParamState) != opts.State {
		return nil, ErrStateMismatch
	}
	code, err := app2app.ParseResult(result)
	if err != nil {
		return nil, err
	}
	return queue.Do(ctx, c.queue, func(ctx context.Context) (*oidc.UserInfo, error) {
		resp, deviceKey, err := c.exchangeCode(ctx, code, opts.RedirectURI, verifier)
		if err != nil {
			return nil, err
		}
		return c.completeAuthentication(ctx, resp, deviceKey)
	})
}

// HandleApp2AppAuthenticationResult delivers a result URL to the waiting
// StartApp2AppAuthentication. It returns false when nobody waits for u,
// so other handlers may try it.
func (c *Container) HandleApp2AppAuthenticationResult(u *url.URL) bool {
	return c.registry.Deliver(u)
}

// ParseApp2AppAuthenticationRequest decodes a request sent by another app
// to the app2app authorization endpoint of this app.
func (c *Container) ParseApp2AppAuthenticationRequest(u *url.URL) (*app2app.AuthenticateRequest, error) {
	if !c.app2app.Enabled || c.app2app.AuthorizationEndpoint == "" {
		return nil, ErrApp2AppNotEnabled
	}
	return app2app.ParseAuthenticateRequest(u, c.app2app.AuthorizationEndpoint)
}

// ApproveApp2AppAuthenticationRequest obtains an authorization code for the
// requesting app from the session of this app and sends it back.
// Failures are sent back as error result and returned.
func (c *Container) ApproveApp2AppAuthenticationRequest(ctx context.Context, req *app2app.AuthenticateRequest) error {
	ctx = c.logCtx(ctx, "ApproveApp2AppAuthenticationRequest", slog.String("client_id", req.ClientID))
	if !c.app2app.Enabled {
		return ErrApp2AppNotEnabled
	}
	code, err := queue.Do(ctx, c.queue, func(ctx context.Context) (string, error) {
		if c.session.RefreshToken() == "" {
			return "", oidc.ErrInvalidGrant().WithDescription("no session to authorize the request")
		}
		if err := c.refreshIfNeeded(ctx); err != nil {
			return "", err
		}
		refreshToken := c.session.RefreshToken()
		if refreshToken == "" {
			return "", oidc.ErrInvalidGrant().WithDescription("session ended while authorizing the request")
		}
		return c.issueApp2AppCode(ctx, req, refreshToken)
	})
	if err != nil {
		if sendErr := c.sendApp2AppResult(ctx, req, func() (*url.URL, error) {
			return app2app.RejectURL(req.RedirectURI, err)
		}); sendErr != nil {
			return errors.Join(err, sendErr)
		}
		return err
	}
	return c.sendApp2AppResult(ctx, req, func() (*url.URL, error) {
		return app2app.ApproveURL(req.RedirectURI, code)
	})
}

// RejectApp2AppAuthenticationRequest sends reason back as error result.
// A nil reason is sent as access_denied.
func (c *Container) RejectApp2AppAuthenticationRequest(ctx context.Context, req *app2app.AuthenticateRequest, reason error) error {
	ctx = c.logCtx(ctx, "RejectApp2AppAuthenticationRequest", slog.String("client_id", req.ClientID))
	if !c.app2app.Enabled {
		return ErrApp2AppNotEnabled
	}
	if reason == nil {
		reason = oidc.ErrAccessDenied().WithDescription("the user declined the request")
	}
	return c.sendApp2AppResult(ctx, req, func() (*url.URL, error) {
		return app2app.RejectURL(req.RedirectURI, reason)
	})
}

// issueApp2AppCode must run on the queue.
func (c *Container) issueApp2AppCode(ctx context.Context, req *app2app.AuthenticateRequest, refreshToken string) (string, error) {
	keyID, err := c.keyID(ctx, credstore.KeyApp2AppDeviceKey)
	if err != nil {
		return "", err
	}
	action := assertion.ActionAuthenticate
	if keyID == "" {
		action = assertion.ActionSetup
	}
	res, err := c.assert(ctx, oidc.ChallengePurposeApp2App, assertion.Request{
		Binding: assertion.KeyBinding{Purpose: keystore.PurposeApp2App, KeyID: keyID},
		Action:  action,
	})
	if err != nil {
		return "", err
	}
	caller, err := c.caller(ctx)
	if err != nil {
		return "", err
	}
	resp, err := client.CallTokenEndpoint(ctx, &oidc.App2AppTokenRequest{
		GrantTypeValue:      oidc.GrantTypeApp2App,
		ClientID:            req.ClientID,
		JWT:                 res.JWT,
		RefreshToken:        refreshToken,
		RedirectURI:         req.RedirectURI,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: oidc.CodeChallengeMethodS256,
	}, caller)
	if err != nil {
		return "", err
	}
	if resp.Code == "" {
		return "", oidc.ErrServerError().WithDescription("app2app grant returned no %s", oidc.ParamCode)
	}
	if err := c.bind(ctx, credstore.KeyApp2AppDeviceKey, res); err != nil {
		return "", err
	}
	return resp.Code, nil
}

func (c *Container) sendApp2AppResult(ctx context.Context, req *app2app.AuthenticateRequest, build func() (*url.URL, error)) error {
	u, err := build()
	if err != nil {
		return err
	}
	if req.State != "" {
		q := u.Query()
		q.Set(oidc.ParamState, req.State)
		u.RawQuery = q.Encode()
	}
	c.debug(ctx, "sending app2app result", slog.String("redirect_uri", req.RedirectURI))
	return c.app2app.OpenURL(ctx, u)
}
