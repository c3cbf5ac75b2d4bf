// Package credstore persists the credentials of a session per namespace.
package credstore

import (
	"context"
)

// Key names a stored credential.
type Key string

const (
	KeyRefreshToken     Key = "refreshToken"
	KeyAnonymousKeyID   Key = "anonymousKeyID"
	KeyBiometricKeyID   Key = "biometricKeyID"
	KeyApp2AppDeviceKey Key = "app2appDeviceKeyID"
)

// Store is a durable, namespace scoped key value store.
// Get returns "" and no error for a missing value.
// Delete of a missing value is not an error.
type Store interface {
	Get(ctx context.Context, namespace string, key Key) (string, error)
	Set(ctx context.Context, namespace string, key Key, value string) error
	Delete(ctx context.Context, namespace string, key Key) error
}

// storageKey is the flat key used by stores without native namespaces.
func storageKey(namespace string, key Key) string {
	return namespace + "_" + string(key)
}
