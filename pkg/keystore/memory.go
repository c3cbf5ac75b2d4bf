package keystore

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"sync"

	"github.com/authgear/authgear-sdk-ios-sub000/pkg/crypto"
)

// MemoryKeyStore keeps P-256 keys in process memory.
// It is safe for concurrent use.
type MemoryKeyStore struct {
	mu   sync.RWMutex
	keys map[string]*ecdsa.PrivateKey
}

func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{
		keys: make(map[string]*ecdsa.PrivateKey),
	}
}

func (s *MemoryKeyStore) Load(_ context.Context, tag string) (*Descriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[tag]
	if !ok {
		return nil, nil
	}
	return &Descriptor{Tag: tag, PublicKey: &key.PublicKey}, nil
}

// Generate creates a new key under tag, replacing any existing one.
func (s *MemoryKeyStore) Generate(_ context.Context, tag string) (*Descriptor, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.keys[tag] = key
	s.mu.Unlock()
	return &Descriptor{Tag: tag, PublicKey: &key.PublicKey}, nil
}

func (s *MemoryKeyStore) Sign(_ context.Context, tag string, data []byte) ([]byte, error) {
	s.mu.RLock()
	key, ok := s.keys[tag]
	s.mu.RUnlock()
	if !ok {
		return nil, &Error{Kind: ErrKeyNotFound}
	}
	return signES256(key, data)
}

func signES256(key *ecdsa.PrivateKey, data []byte) ([]byte, error) {
	digest, err := crypto.Digest(Algorithm, data)
	if err != nil {
		return nil, err
	}
	r, s, err := ecdsa.Sign(rand.Reader, key, digest)
	if err != nil {
		return nil, err
	}
	// JWS encodes ES256 signatures as the fixed size concatenation R || S.
	size := (key.Curve.Params().BitSize + 7) / 8
	sig := make([]byte, 2*size)
	r.FillBytes(sig[:size])
	s.FillBytes(sig[size:])
	return sig, nil
}

func (s *MemoryKeyStore) Delete(_ context.Context, tag string) error {
	s.mu.Lock()
	delete(s.keys, tag)
	s.mu.Unlock()
	return nil
}
