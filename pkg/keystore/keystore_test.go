package keystore

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"testing"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgear/authgear-sdk-ios-sub000/pkg/crypto"
)

func TestTag(t *testing.T) {
	assert.Equal(t, "com.authgear.keys.anonymous.kid", Tag(PurposeAnonymous, "kid"))
	assert.Equal(t, "com.authgear.keys.app2app.kid", Tag(PurposeApp2App, "kid"))
}

func TestMemoryKeyStore(t *testing.T) {
	ctx := context.Background()
	ks := NewMemoryKeyStore()
	tag := Tag(PurposeBiometric, "kid")

	d, err := ks.Load(ctx, tag)
	require.NoError(t, err)
	assert.Nil(t, d)

	generated, err := ks.Generate(ctx, tag)
	require.NoError(t, err)
	loaded, err := ks.Load(ctx, tag)
	require.NoError(t, err)
	assert.Equal(t, generated.PublicKey, loaded.PublicKey)

	data := []byte("header.payload")
	sig, err := ks.Sign(ctx, tag, data)
	require.NoError(t, err)
	require.Len(t, sig, 64)

	digest := sha256.Sum256(data)
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	assert.True(t, ecdsa.Verify(loaded.PublicKey.(*ecdsa.PublicKey), digest[:], r, s))

	require.NoError(t, ks.Delete(ctx, tag))
	_, err = ks.Sign(ctx, tag, data)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestDescriptor_JSON(t *testing.T) {
	ks := NewMemoryKeyStore()
	d, err := ks.Generate(context.Background(), "tag")
	require.NoError(t, err)

	raw, err := d.JSON("kid")
	require.NoError(t, err)
	var jwk map[string]any
	require.NoError(t, json.Unmarshal(raw, &jwk))
	assert.Equal(t, "EC", jwk["kty"])
	assert.Equal(t, "P-256", jwk["crv"])
	assert.Equal(t, "kid", jwk["kid"])
	assert.NotContains(t, jwk, "d")
}

func TestMapError(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"unknown", cause, cause},
		{"user cancel", &StatusError{Domain: DomainLocalAuthentication, Code: -2}, ErrCanceled},
		{"not available", &StatusError{Domain: DomainLocalAuthentication, Code: -6}, ErrNotSupported},
		{"not enrolled", &StatusError{Domain: DomainLocalAuthentication, Code: -7}, ErrNoEnrollment},
		{"lockout", &StatusError{Domain: DomainLocalAuthentication, Code: -8}, ErrLockout},
		{"item not found", &StatusError{Domain: DomainSecurity, Code: -25300}, ErrKeyNotFound},
		{"wrapped status", fmt.Errorf("sign: %w", &StatusError{Domain: DomainSecurity, Code: -128}), ErrCanceled},
		{"context", context.Canceled, ErrCanceled},
		{"unknown status", &StatusError{Domain: DomainSecurity, Code: 1}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if tt.err == nil {
				assert.NoError(t, got)
				return
			}
			if tt.want == nil {
				assert.Equal(t, tt.err, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestOpaqueSigner(t *testing.T) {
	ctx := context.Background()
	ks := NewMemoryKeyStore()
	d, err := ks.Generate(ctx, "tag")
	require.NoError(t, err)

	signer, err := crypto.NewOpaqueSigner(NewOpaqueSigner(ctx, ks, d, "kid"), Algorithm, map[jose.HeaderKey]any{
		"typ": "test",
	})
	require.NoError(t, err)
	token, err := crypto.SignPayload([]byte(`{"a":1}`), signer)
	require.NoError(t, err)

	jws, err := jose.ParseSigned(token, []jose.SignatureAlgorithm{Algorithm})
	require.NoError(t, err)
	payload, err := jws.Verify(d.PublicKey)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(payload))
	assert.Equal(t, "kid", jws.Signatures[0].Protected.KeyID)
	assert.Equal(t, "test", jws.Signatures[0].Protected.ExtraHeaders["typ"])
}
