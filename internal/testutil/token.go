// Package testutil provides a fake authorization server for tests.
package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"time"

	jose "github.com/go-jose/go-jose/v4"

	"github.com/authgear/authgear-sdk-ios-sub000/pkg/oidc"
)

const SignatureAlgorithm = jose.RS256

// KeySet signs the id tokens issued by the fake server.
type KeySet struct {
	Private *rsa.PrivateKey
	Public  *rsa.PublicKey

	Signer jose.Signer
}

func NewKeySet() *KeySet {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: SignatureAlgorithm, Key: privateKey}, nil)
	if err != nil {
		panic(err)
	}
	return &KeySet{
		Private: privateKey,
		Public:  &privateKey.PublicKey,
		Signer:  signer,
	}
}

func (k *KeySet) signEncodeTokenClaims(claims any) string {
	payload, err := json.Marshal(claims)
	if err != nil {
		panic(err)
	}
	object, err := k.Signer.Sign(payload)
	if err != nil {
		panic(err)
	}
	token, err := object.CompactSerialize()
	if err != nil {
		panic(err)
	}
	return token
}

// IDTokenClaims are the claims of the id tokens of the fake server.
type IDTokenClaims struct {
	Issuer            string    `json:"iss"`
	Subject           string    `json:"sub"`
	Audience          string    `json:"aud"`
	IssuedAt          oidc.Time `json:"iat"`
	Expiration        oidc.Time `json:"exp"`
	IsAnonymous       bool      `json:"https://authgear.com/claims/user/is_anonymous"`
	CanReauthenticate bool      `json:"https://authgear.com/claims/user/can_reauthenticate"`
}

// NewIDToken signs an id token for subject and returns it with its claims.
func (k *KeySet) NewIDToken(issuer, subject, clientID string, anonymous bool, lifetime time.Duration) (string, *IDTokenClaims) {
	now := time.Now()
	claims := &IDTokenClaims{
		Issuer:            issuer,
		Subject:           subject,
		Audience:          clientID,
		IssuedAt:          oidc.FromTime(now),
		Expiration:        oidc.FromTime(now.Add(lifetime)),
		IsAnonymous:       anonymous,
		CanReauthenticate: !anonymous,
	}
	return k.signEncodeTokenClaims(claims), claims
}
