// Package keystore defines the device key manager used to prove possession
// of device held keys, and ships a software implementation of it.
package keystore

import (
	"context"
	"crypto"
	"encoding/json"
	"fmt"

	jose "github.com/go-jose/go-jose/v4"
)

// Algorithm is the JWS algorithm of every key created by this package.
const Algorithm = jose.ES256

// Purpose separates the keys of the different grants.
type Purpose string

const (
	PurposeAnonymous Purpose = "anonymous"
	PurposeBiometric Purpose = "biometric"
	PurposeApp2App   Purpose = "app2app"
)

const tagPrefix = "com.authgear.keys."

// Tag returns the key store address of a key: com.authgear.keys.<purpose>.<keyID>
func Tag(purpose Purpose, keyID string) string {
	return fmt.Sprintf("%s%s.%s", tagPrefix, purpose, keyID)
}

// KeyStore generates, loads and signs with named asymmetric keys.
// Load returns nil and no error when no key exists under tag.
// Sign receives the JWS signing input and returns the raw JWS signature
// for Algorithm.
type KeyStore interface {
	Load(ctx context.Context, tag string) (*Descriptor, error)
	Generate(ctx context.Context, tag string) (*Descriptor, error)
	Sign(ctx context.Context, tag string, data []byte) ([]byte, error)
	Delete(ctx context.Context, tag string) error
}

// Descriptor is the public part of a key.
type Descriptor struct {
	Tag       string
	PublicKey crypto.PublicKey
}

// JWK returns the public key as JSON Web Key, with keyID set as `kid`.
func (d *Descriptor) JWK(keyID string) *jose.JSONWebKey {
	return &jose.JSONWebKey{
		Key:       d.PublicKey,
		KeyID:     keyID,
		Algorithm: string(Algorithm),
		Use:       "sig",
	}
}

// JSON returns the JSON key descriptor of the public key.
func (d *Descriptor) JSON(keyID string) ([]byte, error) {
	return json.Marshal(d.JWK(keyID))
}
