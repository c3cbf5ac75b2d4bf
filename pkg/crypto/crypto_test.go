package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHashAlgorithm(t *testing.T) {
	tests := []struct {
		alg     jose.SignatureAlgorithm
		size    int
		wantErr bool
	}{
		{jose.ES256, 32, false},
		{jose.RS384, 48, false},
		{jose.PS512, 64, false},
		{jose.EdDSA, 0, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.alg), func(t *testing.T) {
			h, err := GetHashAlgorithm(tt.alg)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.size, h.Size())
		})
	}
}

func TestDigest(t *testing.T) {
	got, err := Digest(jose.ES256, []byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", hex.EncodeToString(got))
}

func TestHashString(t *testing.T) {
	assert.Equal(t, "plain", HashString(nil, "plain", false))
	full := HashString(sha256.New(), "abc", false)
	half := HashString(sha256.New(), "abc", true)
	assert.Equal(t, "ungWv48Bz-pBQUDeXa4iI7ADYaOWF3qctBD_YfIAFa0", full)
	assert.Len(t, half, 22)
}

func TestSign(t *testing.T) {
	_, err := Sign(map[string]any{"a": 1}, nil)
	assert.ErrorIs(t, err, ErrMissingSigner)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.ES256, Key: key}, (&jose.SignerOptions{}).WithType("test"))
	require.NoError(t, err)

	compact, err := Sign(map[string]any{"a": 1}, signer)
	require.NoError(t, err)
	jws, err := jose.ParseSigned(compact, []jose.SignatureAlgorithm{jose.ES256})
	require.NoError(t, err)
	payload, err := jws.Verify(&key.PublicKey)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(payload))
	assert.Equal(t, "test", jws.Signatures[0].Protected.ExtraHeaders[jose.HeaderType])
}
