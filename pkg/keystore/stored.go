package keystore

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"fmt"

	"github.com/authgear/authgear-sdk-ios-sub000/pkg/credstore"
)

// StoredKeyStore keeps P-256 keys in a credstore.Store, so they outlive the
// process. Keys are written as base64 SEC 1 DER under namespace; use a
// sealing store to keep them encrypted at rest.
type StoredKeyStore struct {
	store     credstore.Store
	namespace string
}

func NewStoredKeyStore(store credstore.Store, namespace string) *StoredKeyStore {
	return &StoredKeyStore{store: store, namespace: namespace}
}

func (s *StoredKeyStore) Load(ctx context.Context, tag string) (*Descriptor, error) {
	key, err := s.privateKey(ctx, tag)
	if err != nil || key == nil {
		return nil, err
	}
	return &Descriptor{Tag: tag, PublicKey: &key.PublicKey}, nil
}

// Generate creates a new key under tag, replacing any existing one.
func (s *StoredKeyStore) Generate(ctx context.Context, tag string) (*Descriptor, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, err
	}
	if err := s.store.Set(ctx, s.namespace, credstore.Key(tag), base64.StdEncoding.EncodeToString(der)); err != nil {
		return nil, fmt.Errorf("storing key %s: %w", tag, err)
	}
	return &Descriptor{Tag: tag, PublicKey: &key.PublicKey}, nil
}

func (s *StoredKeyStore) Sign(ctx context.Context, tag string, data []byte) ([]byte, error) {
	key, err := s.privateKey(ctx, tag)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, &Error{Kind: ErrKeyNotFound}
	}
	return signES256(key, data)
}

func (s *StoredKeyStore) Delete(ctx context.Context, tag string) error {
	return s.store.Delete(ctx, s.namespace, credstore.Key(tag))
}

func (s *StoredKeyStore) privateKey(ctx context.Context, tag string) (*ecdsa.PrivateKey, error) {
	raw, err := s.store.Get(ctx, s.namespace, credstore.Key(tag))
	if err != nil {
		return nil, fmt.Errorf("loading key %s: %w", tag, err)
	}
	if raw == "" {
		return nil, nil
	}
	der, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding key %s: %w", tag, err)
	}
	key, err := x509.ParseECPrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parsing key %s: %w", tag, err)
	}
	return key, nil
}
