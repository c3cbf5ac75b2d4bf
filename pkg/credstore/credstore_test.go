package credstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

var (
	testHashKey  = []byte("0123456789abcdef0123456789abcdef")
	testBlockKey = []byte("fedcba9876543210")
)

func openTestBolt(t *testing.T, opts ...BoltOption) *BoltStore {
	t.Helper()
	s, err := OpenBolt(filepath.Join(t.TempDir(), "state", "credentials.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStores(t *testing.T) {
	tests := []struct {
		name  string
		store func(t *testing.T) Store
	}{
		{"memory", func(*testing.T) Store { return NewMemoryStore() }},
		{"bolt", func(t *testing.T) Store { return openTestBolt(t) }},
		{"bolt sealed", func(t *testing.T) Store { return openTestBolt(t, WithSealing(testHashKey, testBlockKey)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := tt.store(t)

			got, err := s.Get(ctx, "default", KeyRefreshToken)
			require.NoError(t, err)
			assert.Empty(t, got)

			require.NoError(t, s.Set(ctx, "default", KeyRefreshToken, "rt-1"))
			require.NoError(t, s.Set(ctx, "other", KeyRefreshToken, "rt-2"))

			got, err = s.Get(ctx, "default", KeyRefreshToken)
			require.NoError(t, err)
			assert.Equal(t, "rt-1", got)

			got, err = s.Get(ctx, "other", KeyRefreshToken)
			require.NoError(t, err)
			assert.Equal(t, "rt-2", got)

			require.NoError(t, s.Set(ctx, "default", KeyRefreshToken, "rt-3"))
			got, err = s.Get(ctx, "default", KeyRefreshToken)
			require.NoError(t, err)
			assert.Equal(t, "rt-3", got)

			require.NoError(t, s.Delete(ctx, "default", KeyRefreshToken))
			require.NoError(t, s.Delete(ctx, "default", KeyRefreshToken))
			require.NoError(t, s.Delete(ctx, "missing", KeyBiometricKeyID))

			got, err = s.Get(ctx, "default", KeyRefreshToken)
			require.NoError(t, err)
			assert.Empty(t, got)

			got, err = s.Get(ctx, "other", KeyRefreshToken)
			require.NoError(t, err)
			assert.Equal(t, "rt-2", got)
		})
	}
}

func TestBoltStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.db")

	s, err := OpenBolt(path, WithSealing(testHashKey, testBlockKey))
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "default", KeyAnonymousKeyID, "key-1"))
	require.NoError(t, s.Close())

	s, err = OpenBolt(path, WithSealing(testHashKey, testBlockKey))
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(ctx, "default", KeyAnonymousKeyID)
	require.NoError(t, err)
	assert.Equal(t, "key-1", got)
}

func TestBoltStore_Sealed(t *testing.T) {
	ctx := context.Background()
	s := openTestBolt(t, WithSealing(testHashKey, testBlockKey))
	require.NoError(t, s.Set(ctx, "default", KeyRefreshToken, "secret-refresh-token"))

	var raw string
	require.NoError(t, s.db.View(func(tx *bolt.Tx) error {
		raw = string(tx.Bucket(namespaceBucket("default")).Get([]byte(KeyRefreshToken)))
		return nil
	}))
	assert.NotEmpty(t, raw)
	assert.NotContains(t, raw, "secret-refresh-token")

	// A value sealed under one key cannot be opened under another.
	require.NoError(t, s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(namespaceBucket("default"))
		if err != nil {
			return err
		}
		return b.Put([]byte(KeyBiometricKeyID), []byte(raw))
	}))
	_, err := s.Get(ctx, "default", KeyBiometricKeyID)
	assert.Error(t, err)
}
