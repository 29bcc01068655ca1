package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// StateSigner issues OAuth state values of the form nonce.signature.
type StateSigner struct {
	secret []byte
}

func NewStateSigner(secret string) *StateSigner {
	return &StateSigner{secret: []byte(secret)}
}

// NewNonce returns 16 random bytes, hex encoded.
func NewNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func (s *StateSigner) Sign(nonce string) string {
	return nonce + "." + s.mac(nonce)
}

// Verify returns the nonce when the signature matches.
func (s *StateSigner) Verify(state string) (string, bool) {
	nonce, sig, ok := strings.Cut(state, ".")
	if !ok || nonce == "" {
		return "", false
	}
	if !hmac.Equal([]byte(sig), []byte(s.mac(nonce))) {
		return "", false
	}
	return nonce, true
}

func (s *StateSigner) mac(nonce string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(nonce))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
