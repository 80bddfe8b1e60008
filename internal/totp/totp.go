// Package totp implements the RFC 6238 time-based one-time password
// generation the portals use as a second login factor.
package totp

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"teklif/internal/types"
)

const (
	// DefaultStep is the code rotation window shared by every portal seen
	// so far.
	DefaultStep = 30 * time.Second
	// DefaultDigits is the code length shared by every portal seen so far.
	DefaultDigits = 6
)

// Generate computes the TOTP code for the given shared secret at time t.
// Pure and deterministic: two calls within the same step window return the
// same code.
func Generate(secret string, t time.Time, step time.Duration, digits int) (string, error) {
	if step <= 0 {
		step = DefaultStep
	}
	if digits <= 0 {
		digits = DefaultDigits
	}
	key, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}

	counter := uint64(t.Unix() / int64(step/time.Second))
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	// Dynamic truncation per RFC 4226 §5.3.
	offset := sum[len(sum)-1] & 0x0f
	code := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	mod := uint32(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, code%mod), nil
}

// Now is a convenience wrapper with the default step and digit count.
func Now(secret string) (string, error) {
	return Generate(secret, time.Now(), DefaultStep, DefaultDigits)
}

func decodeSecret(secret string) ([]byte, error) {
	s := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(secret), " ", ""))
	s = strings.TrimRight(s, "=")
	if s == "" {
		return nil, types.ErrInvalidSecret
	}
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidSecret, err)
	}
	return key, nil
}
