package crypto

import (
	"encoding/json"
	"errors"

	jose "github.com/go-jose/go-jose/v4"
)

var ErrMissingSigner = errors.New("missing signer")

// Sign marshals object as JSON and returns the compact JWS.
func Sign(object any, signer jose.Signer) (string, error) {
	payload, err := json.Marshal(object)
	if err != nil {
		return "", err
	}
	return SignPayload(payload, signer)
}

func SignPayload(payload []byte, signer jose.Signer) (string, error) {
	if signer == nil {
		return "", ErrMissingSigner
	}
	result, err := signer.Sign(payload)
	if err != nil {
		return "", err
	}
	return result.CompactSerialize()
}

// NewOpaqueSigner returns a jose.Signer whose signature is produced by
// an opaque key, such as one held by a platform key store.
// headers are added to the protected header of every signature.
func NewOpaqueSigner(key jose.OpaqueSigner, alg jose.SignatureAlgorithm, headers map[jose.HeaderKey]any) (jose.Signer, error) {
	opts := &jose.SignerOptions{}
	for k, v := range headers {
		opts.WithHeader(k, v)
	}
	return jose.NewSigner(jose.SigningKey{Algorithm: alg, Key: key}, opts)
}
