// Package token issues and verifies the bearer keys that protect monitors,
// status pages, probe locations and the admin surface. Only SHA-256 digests
// of keys are ever stored.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

// Prefix marks every key this service issues, so leaked keys are easy to
// attribute in scanners and logs.
const Prefix = "wp_"

// Generate returns a new plaintext key. The caller shows it once and stores
// only Hash of it.
func Generate() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return Prefix + hex.EncodeToString(b), nil
}

// Hash returns the hex SHA-256 digest of a plaintext key.
func Hash(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// Verify compares a plaintext key against a stored digest in constant time.
func Verify(key, storedHash string) bool {
	if key == "" || storedHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(Hash(key)), []byte(storedHash)) == 1
}

// FromRequest extracts the presented key. Authorization: Bearer wins, then
// X-API-Key, then the key query parameter. Empty string means none presented.
func FromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k
	}
	return r.URL.Query().Get("key")
}
