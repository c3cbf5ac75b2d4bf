package keystore

import (
	"context"
	"fmt"

	jose "github.com/go-jose/go-jose/v4"
)

// OpaqueSigner adapts a key of a KeyStore to jose.OpaqueSigner.
// The context is captured because go-jose does not pass one through.
type OpaqueSigner struct {
	ctx   context.Context
	store KeyStore
	tag   string
	jwk   *jose.JSONWebKey
}

var _ jose.OpaqueSigner = (*OpaqueSigner)(nil)

func NewOpaqueSigner(ctx context.Context, store KeyStore, descriptor *Descriptor, keyID string) *OpaqueSigner {
	return &OpaqueSigner{
		ctx:   ctx,
		store: store,
		tag:   descriptor.Tag,
		jwk:   descriptor.JWK(keyID),
	}
}

func (s *OpaqueSigner) Public() *jose.JSONWebKey {
	return s.jwk
}

func (s *OpaqueSigner) Algs() []jose.SignatureAlgorithm {
	return []jose.SignatureAlgorithm{Algorithm}
}

func (s *OpaqueSigner) SignPayload(payload []byte, alg jose.SignatureAlgorithm) ([]byte, error) {
	if alg != Algorithm {
		return nil, fmt.Errorf("%w: %s", ErrNotSupported, alg)
	}
	return s.store.Sign(s.ctx, s.tag, payload)
}
