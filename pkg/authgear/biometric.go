package authgear

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/authgear/authgear-sdk-ios-sub000/internal/queue"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/assertion"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/client"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/credstore"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/keystore"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/oidc"
)

// EnableBiometric binds a new biometric protected device key to the
// signed in user. A previously bound key is replaced.
func (c *Container) EnableBiometric(ctx context.Context) error {
	ctx = c.logCtx(ctx, "EnableBiometric")
	_, err := queue.Do(ctx, c.queue, func(ctx context.Context) (struct{}, error) {
		if err := c.refreshIfNeeded(ctx); err != nil {
			return struct{}{}, err
		}
		accessToken := c.session.AccessToken()
		if accessToken == "" {
			return struct{}{}, ErrUnauthenticatedUser
		}
		previous, err := c.keyID(ctx, credstore.KeyBiometricKeyID)
		if err != nil {
			return struct{}{}, err
		}
		res, err := c.assert(ctx, oidc.ChallengePurposeBiometric, assertion.Request{
			Binding: assertion.KeyBinding{Purpose: keystore.PurposeBiometric},
			Action:  assertion.ActionSetup,
		})
		if err != nil {
			return struct{}{}, err
		}
		caller, err := c.caller(ctx)
		if err != nil {
			return struct{}{}, err
		}
		_, err = client.CallAuthorizedTokenEndpoint(ctx, &oidc.JWTGrantRequest{
			GrantTypeValue: oidc.GrantTypeBiometric,
			ClientID:       c.clientID,
			JWT:            res.JWT,
		}, accessToken, caller)
		if err != nil {
			c.deleteKey(ctx, res.Binding)
			return struct{}{}, err
		}
		if err := c.bind(ctx, credstore.KeyBiometricKeyID, res); err != nil {
			return struct{}{}, err
		}
		if previous != "" {
			c.deleteKey(ctx, assertion.KeyBinding{Purpose: keystore.PurposeBiometric, KeyID: previous})
		}
		return struct{}{}, nil
	})
	return err
}

// AuthenticateBiometric signs in with the biometric key. A key that is gone
// or rejected by the server disables biometric authentication.
func (c *Container) AuthenticateBiometric(ctx context.Context) (*oidc.UserInfo, error) {
	ctx = c.logCtx(ctx, "AuthenticateBiometric")
	return queue.Do(ctx, c.queue, func(ctx context.Context) (*oidc.UserInfo, error) {
		keyID, err := c.keyID(ctx, credstore.KeyBiometricKeyID)
		if err != nil {
			return nil, err
		}
		if keyID == "" {
			return nil, ErrBiometricNotEnabled
		}
		res, err := c.assert(ctx, oidc.ChallengePurposeBiometric, assertion.Request{
			Binding:      assertion.KeyBinding{Purpose: keystore.PurposeBiometric, KeyID: keyID},
			Action:       assertion.ActionAuthenticate,
			ExistingOnly: true,
		})
		if errors.Is(err, keystore.ErrKeyNotFound) {
			return nil, errors.Join(ErrBiometricNotEnabled, err, c.disableBiometric(ctx))
		}
		if err != nil {
			return nil, err
		}
		caller, err := c.caller(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := client.CallTokenEndpoint(ctx, &oidc.JWTGrantRequest{
			GrantTypeValue: oidc.GrantTypeBiometric,
			ClientID:       c.clientID,
			JWT:            res.JWT,
		}, caller)
		if oidc.IsInvalidGrant(err) {
			return nil, errors.Join(err, c.disableBiometric(ctx))
		}
		if err != nil {
			return nil, err
		}
		return c.completeAuthentication(ctx, resp, nil)
	})
}

// DisableBiometric deletes the biometric key and its binding.
func (c *Container) DisableBiometric(ctx context.Context) error {
	ctx = c.logCtx(ctx, "DisableBiometric")
	_, err := queue.Do(ctx, c.queue, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.disableBiometric(ctx)
	})
	return err
}

// IsBiometricEnabled reports whether a biometric key is bound and present.
func (c *Container) IsBiometricEnabled(ctx context.Context) (bool, error) {
	keyID, err := c.keyID(ctx, credstore.KeyBiometricKeyID)
	if err != nil || keyID == "" {
		return false, err
	}
	descriptor, err := c.keyStore.Load(ctx, keystore.Tag(keystore.PurposeBiometric, keyID))
	if err != nil {
		return false, err
	}
	return descriptor != nil, nil
}

func (c *Container) disableBiometric(ctx context.Context) error {
	keyID, err := c.keyID(ctx, credstore.KeyBiometricKeyID)
	if err != nil {
		return err
	}
	if keyID == "" {
		return nil
	}
	if err := c.keyStore.Delete(ctx, keystore.Tag(keystore.PurposeBiometric, keyID)); err != nil {
		return fmt.Errorf("deleting biometric key: %w", err)
	}
	return c.credStore.Delete(ctx, c.name, credstore.KeyBiometricKeyID)
}

func (c *Container) deleteKey(ctx context.Context, binding assertion.KeyBinding) {
	if err := c.keyStore.Delete(ctx, binding.Tag()); err != nil {
		c.warn(ctx, "ignoring failed key deletion", slog.String("kid", binding.KeyID), slog.Any("error", err))
	}
}
