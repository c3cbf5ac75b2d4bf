package oidc

import (
	"crypto/sha256"

	"golang.org/x/oauth2"

	"github.com/authgear/authgear-sdk-ios-sub000/pkg/crypto"
)

const CodeChallengeMethodS256 CodeChallengeMethod = "S256"

type CodeChallengeMethod string

// CodeVerifier is the PKCE secret of one authorization attempt.
// It is kept in memory only and used once by the matching code exchange.
type CodeVerifier struct {
	Verifier  string
	Challenge string
}

// NewCodeVerifier returns 32 random bytes, base64url encoded,
// together with their S256 challenge.
func NewCodeVerifier() *CodeVerifier {
	verifier := oauth2.GenerateVerifier()
	return &CodeVerifier{
		Verifier:  verifier,
		Challenge: NewSHACodeChallenge(verifier),
	}
}

func NewSHACodeChallenge(code string) string {
	return crypto.HashString(sha256.New(), code, false)
}
