package crypto

import (
	"crypto"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"hash"

	jose "github.com/go-jose/go-jose/v4"
)

var ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")

var digests = map[jose.SignatureAlgorithm]crypto.Hash{
	jose.ES256: crypto.SHA256,
	jose.RS256: crypto.SHA256,
	jose.PS256: crypto.SHA256,
	jose.ES384: crypto.SHA384,
	jose.RS384: crypto.SHA384,
	jose.PS384: crypto.SHA384,
	jose.ES512: crypto.SHA512,
	jose.RS512: crypto.SHA512,
	jose.PS512: crypto.SHA512,
}

// GetHashAlgorithm returns the digest a key store applies to the signing
// input of sigAlgorithm before computing the raw signature.
func GetHashAlgorithm(sigAlgorithm jose.SignatureAlgorithm) (hash.Hash, error) {
	h, ok := digests[sigAlgorithm]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, sigAlgorithm)
	}
	return h.New(), nil
}

// Digest hashes data with the digest of sigAlgorithm.
func Digest(sigAlgorithm jose.SignatureAlgorithm, data []byte) ([]byte, error) {
	h, err := GetHashAlgorithm(sigAlgorithm)
	if err != nil {
		return nil, err
	}
	//nolint:errcheck
	h.Write(data)
	return h.Sum(nil), nil
}

// HashString returns the unpadded base64url digest of s, or of its first
// half when firstHalf is set. A nil hash returns s unchanged.
func HashString(h hash.Hash, s string, firstHalf bool) string {
	if h == nil {
		return s
	}
	//nolint:errcheck
	h.Write([]byte(s))
	sum := h.Sum(nil)
	if firstHalf {
		sum = sum[:len(sum)/2]
	}
	return base64.RawURLEncoding.EncodeToString(sum)
}
