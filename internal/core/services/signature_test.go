package services_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	apperrors "github.com/lorrc/coaching-realtime/internal/core/errors"
	"github.com/lorrc/coaching-realtime/internal/core/services"
	"github.com/stretchr/testify/assert"
)

func TestSign_MatchesHMACSHA256Hex(t *testing.T) {
	body := []byte(`{"id":"1","type":"message.sent"}`)
	secret := "super-secret-value"

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, services.Sign(body, secret))
	assert.Len(t, services.Sign(body, secret), 64)
}

func TestVerify_RoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte(""),
		[]byte("{}"),
		[]byte(`{"id":"evt_1","type":"appointment.created","data":{"x":1},"timestamp":1,"source":"coaching-app"}`),
		[]byte("\x00\xff binary"),
	}
	secrets := []string{"0123456789abcdef", "another-long-secret-value!"}

	for _, p := range payloads {
		for _, s := range secrets {
			sig := services.Sign(p, s)
			assert.True(t, services.Verify(p, sig, s))
			assert.NoError(t, services.VerifySignature(p, sig, s))
		}
	}
}

func TestVerify_FailsClosed(t *testing.T) {
	body := []byte(`{"id":"evt_1","type":"message.sent"}`)
	secret := "0123456789abcdef"
	sig := services.Sign(body, secret)

	t.Run("mutated body byte", func(t *testing.T) {
		for i := range body {
			mutated := append([]byte(nil), body...)
			mutated[i] ^= 0x01
			assert.False(t, services.Verify(mutated, sig, secret), "byte %d", i)
		}
	})

	t.Run("mutated signature char", func(t *testing.T) {
		for i := range sig {
			b := []byte(sig)
			if b[i] == '0' {
				b[i] = '1'
			} else {
				b[i] = '0'
			}
			assert.False(t, services.Verify(body, string(b), secret), "char %d", i)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		assert.False(t, services.Verify(body, sig, "fedcba9876543210"))
	})

	t.Run("malformed hex", func(t *testing.T) {
		assert.False(t, services.Verify(body, "zz"+sig[2:], secret))
		assert.False(t, services.Verify(body, sig[:63], secret))
		assert.False(t, services.Verify(body, "", secret))
		assert.False(t, services.Verify(body, sig[:32], secret))
	})

	t.Run("typed error", func(t *testing.T) {
		assert.ErrorIs(t, services.VerifySignature(body, "nope", secret), apperrors.ErrSignatureMismatch)
	})
}
