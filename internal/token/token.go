// Package token generates the bearer tokens that gate one-time
// downloads and derives the one-way fingerprints stored in their
// place. Raw tokens never touch the database: a leaked table yields
// only SHA-256 fingerprints, which cannot be turned back into usable
// tokens.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// tokenBytes is the raw entropy per token: 32 bytes = 256 bits.
const tokenBytes = 32

// Generate returns a fresh bearer token and its fingerprint.
// The token is URL-safe (base64 raw URL alphabet) so it can live in a
// path segment without escaping.
func Generate() (bearer, fingerprint string) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing means the platform is broken; there is
		// no meaningful fallback for a security token.
		panic("token: crypto/rand unavailable: " + err.Error())
	}
	bearer = base64.RawURLEncoding.EncodeToString(b)
	return bearer, Fingerprint(bearer)
}

// Fingerprint derives the storage-safe lookup key for a bearer token.
// Deterministic: the same token always maps to the same fingerprint.
func Fingerprint(bearer string) string {
	sum := sha256.Sum256([]byte(bearer))
	return hex.EncodeToString(sum[:])
}

// FingerprintAddress anonymizes a client network address for audit
// correlation. The salt keeps fingerprints unlinkable across
// deployments; an empty salt is accepted.
func FingerprintAddress(addr, salt string) string {
	sum := sha256.Sum256([]byte(addr + salt))
	return hex.EncodeToString(sum[:])
}
