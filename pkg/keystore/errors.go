package keystore

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrCanceled     = errors.New("keystore: canceled")
	ErrNotSupported = errors.New("keystore: not supported")
	ErrNoEnrollment = errors.New("keystore: no enrollment")
	ErrLockout      = errors.New("keystore: lockout")
	ErrKeyNotFound  = errors.New("keystore: key not found")
)

// Error wraps a platform specific cause with one of the sentinel errors of
// this package, so callers only match on Kind.
type Error struct {
	Kind  error
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
}

func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// StatusError is a numeric error of a platform security framework.
type StatusError struct {
	Domain string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s status %d", e.Domain, e.Code)
}

const (
	DomainLocalAuthentication = "LocalAuthentication"
	DomainSecurity            = "Security"
)

// statusKinds maps the well known platform status codes to a Kind.
// LocalAuthentication: userCancel, systemCancel, appCancel, biometryNotAvailable,
// biometryNotEnrolled, biometryLockout, passcodeNotSet.
// Security: errSecUserCanceled, errSecItemNotFound, errSecAuthFailed.
var statusKinds = map[string]map[int]error{
	DomainLocalAuthentication: {
		-2: ErrCanceled,
		-4: ErrCanceled,
		-9: ErrCanceled,
		-6: ErrNotSupported,
		-5: ErrNoEnrollment,
		-7: ErrNoEnrollment,
		-8: ErrLockout,
	},
	DomainSecurity: {
		-128:   ErrCanceled,
		-25300: ErrKeyNotFound,
		-25293: ErrLockout,
	},
}

// MapError normalizes err into an *Error. Errors which are already
// normalized are returned as is. Unknown causes are returned untouched.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var ksErr *Error
	if errors.As(err, &ksErr) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: ErrCanceled, Cause: err}
	}
	var status *StatusError
	if errors.As(err, &status) {
		if kind, ok := statusKinds[status.Domain][status.Code]; ok {
			return &Error{Kind: kind, Cause: err}
		}
	}
	return err
}

// WithErrorMapping wraps a platform KeyStore so every error it returns
// goes through MapError.
func WithErrorMapping(ks KeyStore) KeyStore {
	return &mappingKeyStore{inner: ks}
}

type mappingKeyStore struct {
	inner KeyStore
}

func (m *mappingKeyStore) Load(ctx context.Context, tag string) (*Descriptor, error) {
	d, err := m.inner.Load(ctx, tag)
	return d, MapError(err)
}

func (m *mappingKeyStore) Generate(ctx context.Context, tag string) (*Descriptor, error) {
	d, err := m.inner.Generate(ctx, tag)
	return d, MapError(err)
}

func (m *mappingKeyStore) Sign(ctx context.Context, tag string, data []byte) ([]byte, error) {
	sig, err := m.inner.Sign(ctx, tag, data)
	return sig, MapError(err)
}

func (m *mappingKeyStore) Delete(ctx context.Context, tag string) error {
	return MapError(m.inner.Delete(ctx, tag))
}
