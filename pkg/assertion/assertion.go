// Package assertion builds the signed, short lived JWTs that prove
// possession of a device key in the anonymous, biometric and app2app grants.
package assertion

import (
	"context"
	"fmt"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"

	"github.com/authgear/authgear-sdk-ios-sub000/pkg/crypto"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/keystore"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/oidc"
)

// Lifetime is the validity of an assertion, counted from its issue time.
const Lifetime = 60 * time.Second

type Action string

const (
	ActionAuth         Action = "auth"
	ActionPromote      Action = "promote"
	ActionSetup        Action = "setup"
	ActionAuthenticate Action = "authenticate"
)

// Type is the JOSE `typ` header of an assertion.
type Type string

const (
	TypeAnonymous Type = "vnd.authgear.anonymous-request"
	TypeBiometric Type = "vnd.authgear.biometric-request"
	TypeApp2App   Type = "vnd.authgear.app2app-device-key"
)

var purposeTypes = map[keystore.Purpose]Type{
	keystore.PurposeAnonymous: TypeAnonymous,
	keystore.PurposeBiometric: TypeBiometric,
	keystore.PurposeApp2App:   TypeApp2App,
}

// TypeOf returns the `typ` header used for keys of purpose.
func TypeOf(purpose keystore.Purpose) (Type, error) {
	t, ok := purposeTypes[purpose]
	if !ok {
		return "", fmt.Errorf("assertion: unknown key purpose %q", purpose)
	}
	return t, nil
}

// KeyBinding addresses a device key. An empty KeyID means no key is bound yet.
type KeyBinding struct {
	Purpose keystore.Purpose
	KeyID   string
}

func (b KeyBinding) Tag() string {
	return keystore.Tag(b.Purpose, b.KeyID)
}

type Payload struct {
	IssuedAt   oidc.Time      `json:"iat"`
	Expiration oidc.Time      `json:"exp"`
	Challenge  string         `json:"challenge"`
	Action     Action         `json:"action"`
	DeviceInfo map[string]any `json:"device_info,omitempty"`
}

// Request describes one assertion.
// With ExistingOnly set, a missing key fails with keystore.ErrKeyNotFound
// instead of being generated.
type Request struct {
	Binding      KeyBinding
	Challenge    string
	Action       Action
	DeviceInfo   map[string]any
	ExistingOnly bool
}

// Result carries the compact JWT and the binding that signed it.
// Generated reports that the key was created for this assertion,
// Binding must then be persisted by the caller.
type Result struct {
	JWT       string
	Binding   KeyBinding
	Generated bool
}

type Builder struct {
	store    keystore.KeyStore
	now      func() time.Time
	newKeyID func() string
}

type Option func(*Builder)

func WithNow(now func() time.Time) Option {
	return func(b *Builder) {
		b.now = now
	}
}

func WithKeyIDGenerator(gen func() string) Option {
	return func(b *Builder) {
		b.newKeyID = gen
	}
}

func NewBuilder(store keystore.KeyStore, opts ...Option) *Builder {
	b := &Builder{
		store:    store,
		now:      time.Now,
		newKeyID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build loads or creates the key of req.Binding and signs a JWT with it.
// The public key is embedded as `jwk` header only when the key was created
// by this call.
func (b *Builder) Build(ctx context.Context, req Request) (*Result, error) {
	typ, err := TypeOf(req.Binding.Purpose)
	if err != nil {
		return nil, err
	}
	binding := req.Binding
	var descriptor *keystore.Descriptor
	if binding.KeyID != "" {
		descriptor, err = b.store.Load(ctx, binding.Tag())
		if err != nil {
			return nil, fmt.Errorf("loading device key: %w", err)
		}
	}
	generated := false
	if descriptor == nil {
		if req.ExistingOnly {
			return nil, &keystore.Error{Kind: keystore.ErrKeyNotFound}
		}
		binding.KeyID = b.newKeyID()
		descriptor, err = b.store.Generate(ctx, binding.Tag())
		if err != nil {
			return nil, fmt.Errorf("generating device key: %w", err)
		}
		generated = true
	}

	headers := map[jose.HeaderKey]any{
		jose.HeaderType: string(typ),
	}
	if generated {
		headers["jwk"] = descriptor.JWK(binding.KeyID)
	}
	signer, err := crypto.NewOpaqueSigner(
		keystore.NewOpaqueSigner(ctx, b.store, descriptor, binding.KeyID),
		keystore.Algorithm,
		headers,
	)
	if err != nil {
		return nil, err
	}

	now := b.now()
	payload := &Payload{
		IssuedAt:   oidc.FromTime(now),
		Expiration: oidc.FromTime(now.Add(Lifetime)),
		Challenge:  req.Challenge,
		Action:     req.Action,
		DeviceInfo: req.DeviceInfo,
	}
	jwt, err := crypto.Sign(payload, signer)
	if err != nil {
		return nil, fmt.Errorf("signing assertion: %w", keystore.MapError(err))
	}
	return &Result{
		JWT:       jwt,
		Binding:   binding,
		Generated: generated,
	}, nil
}
