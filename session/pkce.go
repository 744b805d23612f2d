package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	mathrand "math/rand/v2"
)

// ChallengeMethodS256 is the only PKCE challenge method this client sends.
const ChallengeMethodS256 = "S256"

const (
	verifierBytes = 32
	stateLength   = 5
	stateAlphabet = "abcdefghijklmnopqrstuvwxyz"
)

// PKCEParams holds the code verifier and challenge for PKCE (RFC 7636).
type PKCEParams struct {
	Verifier  string
	Challenge string
	Method    string
}

// Base64URLEncode encodes b as base64url without padding (RFC 7636 appendix A).
func Base64URLEncode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// ChallengeS256 returns BASE64URL(SHA256(ASCII(verifier))).
func ChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return Base64URLEncode(sum[:])
}

// GeneratePKCE generates a cryptographically random code_verifier and computes
// the S256 code_challenge as defined in RFC 7636 §4.1 and §4.2.
//
// The verifier is a 32-byte random value base64url-encoded (43 chars, no padding).
func GeneratePKCE() (*PKCEParams, error) {
	b := make([]byte, verifierBytes)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}

	verifier := Base64URLEncode(b)
	return &PKCEParams{
		Verifier:  verifier,
		Challenge: ChallengeS256(verifier),
		Method:    ChallengeMethodS256,
	}, nil
}

// generateState returns a short lowercase correlation token. It is not a
// secret; the PKCE verifier is what binds the code to this client.
func generateState() string {
	b := make([]byte, stateLength)
	for i := range b {
		b[i] = stateAlphabet[mathrand.IntN(len(stateAlphabet))]
	}
	return string(b)
}
