package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	apperrors "github.com/lorrc/coaching-realtime/internal/core/errors"
)

// Sign returns the hex-encoded HMAC-SHA256 of body under secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature and compares in constant time. A signature
// that is not valid hex never verifies.
func Verify(body []byte, signature, secret string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil || len(got) != sha256.Size {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// VerifySignature is Verify reporting ErrSignatureMismatch on failure.
func VerifySignature(body []byte, signature, secret string) error {
	if !Verify(body, signature, secret) {
		return apperrors.ErrSignatureMismatch
	}
	return nil
}
