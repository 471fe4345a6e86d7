package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Signer produces the HMAC-SHA256 signatures required by the private
// WebSocket auth handshake. The secret is held as []byte so it can be
// wiped once the session is over.
type Signer struct {
	secret []byte
}

// NewSigner creates a signer for the given API secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// SignExpiry signs the WebSocket auth payload "GET/realtime" + expires
// and returns the lower-case hex digest.
func (s *Signer) SignExpiry(expires int64) string {
	payload := "GET/realtime" + strconv.FormatInt(expires, 10)
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Wipe clears the secret from memory.
func (s *Signer) Wipe() {
	if s == nil {
		return
	}
	for i := range s.secret {
		s.secret[i] = 0
	}
}
