package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"strings"
	"sync/atomic"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingKey  = errors.New("no api key provided")
	ErrKeyMismatch = errors.New("api key not match")
)

// Verifier checks the API key presented in an Authorization header against
// either a plain shared key or a bcrypt hash of it.
type Verifier struct {
	key  []byte
	hash []byte

	// digest of the last key that passed bcrypt, so repeat callers skip
	// the expensive comparison.
	accepted atomic.Pointer[[sha256.Size]byte]
}

// NewVerifier prefers hash when both are set.
func NewVerifier(key, hash string) *Verifier {
	v := &Verifier{}
	if hash = strings.TrimSpace(hash); hash != "" {
		v.hash = []byte(hash)
	} else {
		v.key = []byte(key)
	}
	return v
}

func (v *Verifier) Verify(authHeader string) error {
	presented := PresentedKey(authHeader)
	if presented == "" {
		return ErrMissingKey
	}
	if v.hash == nil {
		if len(v.key) == 0 || subtle.ConstantTimeCompare([]byte(presented), v.key) != 1 {
			return ErrKeyMismatch
		}
		return nil
	}

	digest := sha256.Sum256([]byte(presented))
	if prev := v.accepted.Load(); prev != nil && subtle.ConstantTimeCompare(prev[:], digest[:]) == 1 {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(presented)); err != nil {
		return ErrKeyMismatch
	}
	v.accepted.Store(&digest)
	return nil
}

// HashKey returns a bcrypt hash suitable for auth.api_key_hash.
func HashKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrMissingKey
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// PresentedKey accepts both a bare key and "Bearer <key>".
func PresentedKey(authHeader string) string {
	if token := BearerToken(authHeader); token != "" {
		return token
	}
	return strings.TrimSpace(authHeader)
}

func BearerToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
