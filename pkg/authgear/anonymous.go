package authgear

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"golang.org/x/text/language"

	"github.com/authgear/authgear-sdk-ios-sub000/internal/queue"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/assertion"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/client"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/credstore"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/keystore"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/oidc"
)

const anonymousLoginHint = "https://authgear.com/login_hint"

type PromoteOptions struct {
	RedirectURI       string
	State             string
	UILocales         []language.Tag
	ColorScheme       oidc.ColorScheme
	WechatRedirectURI string
	IsSSOEnabled      bool
}

// AuthenticateAnonymously signs in an anonymous user bound to a device key.
// The key is created on first use.
func (c *Container) AuthenticateAnonymously(ctx context.Context) (*oidc.UserInfo, error) {
	ctx = c.logCtx(ctx, "AuthenticateAnonymously")
	return queue.Do(ctx, c.queue, func(ctx context.Context) (*oidc.UserInfo, error) {
		keyID, err := c.keyID(ctx, credstore.KeyAnonymousKeyID)
		if err != nil {
			return nil, err
		}
		res, err := c.assert(ctx, oidc.ChallengePurposeAnonymous, assertion.Request{
			Binding: assertion.KeyBinding{Purpose: keystore.PurposeAnonymous, KeyID: keyID},
			Action:  assertion.ActionAuth,
		})
		if err != nil {
			return nil, err
		}
		caller, err := c.caller(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := client.CallTokenEndpoint(ctx, &oidc.JWTGrantRequest{
			GrantTypeValue: oidc.GrantTypeAnonymous,
			ClientID:       c.clientID,
			JWT:            res.JWT,
		}, caller)
		if err != nil {
			return nil, err
		}
		if err := c.bind(ctx, credstore.KeyAnonymousKeyID, res); err != nil {
			return nil, err
		}
		return c.completeAuthentication(ctx, resp, nil)
	})
}

// PromoteAnonymousUser turns the anonymous user into a regular one through
// the code flow. The anonymous key binding is removed afterwards.
func (c *Container) PromoteAnonymousUser(ctx context.Context, opts PromoteOptions) (*oidc.UserInfo, error) {
	ctx = c.logCtx(ctx, "PromoteAnonymousUser")
	type promotion struct {
		jwt     string
		binding assertion.KeyBinding
	}
	p, err := queue.Do(ctx, c.queue, func(ctx context.Context) (promotion, error) {
		if err := c.refreshIfNeeded(ctx); err != nil {
			return promotion{}, err
		}
		keyID, err := c.keyID(ctx, credstore.KeyAnonymousKeyID)
		if err != nil {
			return promotion{}, err
		}
		if keyID == "" {
			return promotion{}, ErrAnonymousUserNotFound
		}
		res, err := c.assert(ctx, oidc.ChallengePurposeAnonymous, assertion.Request{
			Binding:      assertion.KeyBinding{Purpose: keystore.PurposeAnonymous, KeyID: keyID},
			Action:       assertion.ActionPromote,
			ExistingOnly: true,
		})
		if errors.Is(err, keystore.ErrKeyNotFound) {
			return promotion{}, errors.Join(ErrAnonymousUserNotFound, err)
		}
		if err != nil {
			return promotion{}, err
		}
		return promotion{jwt: res.JWT, binding: res.Binding}, nil
	})
	if err != nil {
		return nil, err
	}

	req := &authorizationRequest{
		AuthenticateOptions: AuthenticateOptions{
			RedirectURI:       opts.RedirectURI,
			State:             opts.State,
			Prompt:            []oidc.Prompt{oidc.PromptLogin},
			LoginHint:         promotionLoginHint(p.jwt),
			UILocales:         opts.UILocales,
			ColorScheme:       opts.ColorScheme,
			WechatRedirectURI: opts.WechatRedirectURI,
			IsSSOEnabled:      opts.IsSSOEnabled,
		},
		verifier: oidc.NewCodeVerifier(),
	}
	code, err := c.authorize(ctx, req)
	if err != nil {
		return nil, err
	}
	return queue.Do(ctx, c.queue, func(ctx context.Context) (*oidc.UserInfo, error) {
		userInfo, err := c.finishAuthorization(ctx, code, req)
		if err != nil {
			return nil, err
		}
		if err := c.credStore.Delete(ctx, c.name, credstore.KeyAnonymousKeyID); err != nil {
			return nil, err
		}
		if err := c.keyStore.Delete(ctx, p.binding.Tag()); err != nil {
			c.warn(ctx, "ignoring failed anonymous key deletion", slog.Any("error", err))
		}
		return userInfo, nil
	})
}

func promotionLoginHint(jwt string) string {
	return anonymousLoginHint + "?type=anonymous&jwt=" + url.QueryEscape(jwt)
}
