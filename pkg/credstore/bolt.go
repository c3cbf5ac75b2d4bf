package credstore

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/securecookie"
	bolt "go.etcd.io/bbolt"
)

const (
	// storeDirPerm is the permission mode for the directory holding the database.
	storeDirPerm = fs.FileMode(0o700)

	// storeFilePerm is the permission mode for the database file.
	storeFilePerm = fs.FileMode(0o600)

	// storeOpenTimeout is the maximum time to wait for the bolt database lock.
	storeOpenTimeout = 5 * time.Second
)

func namespaceBucket(namespace string) []byte {
	return []byte("namespace:" + namespace)
}

// BoltStore persists credentials in a bbolt database, one bucket per namespace.
// With sealing configured every value is authenticated and encrypted
// before it is written.
type BoltStore struct {
	db     *bolt.DB
	sealer *securecookie.SecureCookie
}

type BoltOption func(*BoltStore)

// WithSealing seals values with an HMAC hashKey (32 or 64 bytes) and an
// AES blockKey (16, 24 or 32 bytes).
func WithSealing(hashKey, blockKey []byte) BoltOption {
	return func(s *BoltStore) {
		s.sealer = securecookie.New(hashKey, blockKey).
			MaxAge(0).
			MaxLength(0)
	}
}

// OpenBolt opens or creates the database at path.
func OpenBolt(path string, opts ...BoltOption) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), storeDirPerm); err != nil {
		return nil, fmt.Errorf("creating credential store directory: %w", err)
	}
	db, err := bolt.Open(path, storeFilePerm, &bolt.Options{Timeout: storeOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening credential store: %w", err)
	}
	s := &BoltStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Get(_ context.Context, namespace string, key Key) (string, error) {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(namespaceBucket(namespace))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	if raw == nil {
		return "", nil
	}
	return s.open(namespace, key, string(raw))
}

func (s *BoltStore) Set(_ context.Context, namespace string, key Key, value string) error {
	sealed, err := s.seal(namespace, key, value)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(namespaceBucket(namespace))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), []byte(sealed))
	})
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (s *BoltStore) Delete(_ context.Context, namespace string, key Key) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(namespaceBucket(namespace))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

func (s *BoltStore) seal(namespace string, key Key, value string) (string, error) {
	if s.sealer == nil {
		return value, nil
	}
	sealed, err := s.sealer.Encode(storageKey(namespace, key), value)
	if err != nil {
		return "", fmt.Errorf("sealing %s: %w", key, err)
	}
	return sealed, nil
}

func (s *BoltStore) open(namespace string, key Key, raw string) (string, error) {
	if s.sealer == nil {
		return raw, nil
	}
	var value string
	if err := s.sealer.Decode(storageKey(namespace, key), raw, &value); err != nil {
		return "", fmt.Errorf("opening %s: %w", key, err)
	}
	return value, nil
}
