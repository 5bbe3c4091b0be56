package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/BradenHooton/totpgate/internal/models"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
)

const (
	Period = 30 // seconds per time step
	Digits = 6
	Skew   = 1 // accepted steps either side of the current one
)

// TOTPCodec computes and checks RFC 6238 codes (SHA-1, 6 digits, 30s step).
type TOTPCodec struct {
	// hotpCode is swapped in tests to observe HMAC work.
	hotpCode func(secret string, counter uint64) (string, error)
}

// NewTOTPCodec creates a codec with the fixed authenticator-app parameters
func NewTOTPCodec() *TOTPCodec {
	return &TOTPCodec{hotpCode: generateHOTP}
}

func generateHOTP(secret string, counter uint64) (string, error) {
	return hotp.GenerateCodeCustom(secret, counter, hotp.ValidateOpts{
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
}

// Compute returns the code for the time step containing t
func (c *TOTPCodec) Compute(secret string, t time.Time) (string, error) {
	if err := checkSecret(secret); err != nil {
		return "", err
	}

	code, err := c.hotpCode(secret, counterAt(t))
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrMalformedSecret, err)
	}
	return code, nil
}

// Validate reports whether candidate matches the code at t or one step either side.
// A wrong code is (false, nil). Only an unusable secret returns an error.
// Malformed candidates are rejected before any HMAC is computed.
func (c *TOTPCodec) Validate(secret, candidate string, t time.Time) (bool, error) {
	if !IsWellFormedCode(candidate) {
		return false, nil
	}
	if err := checkSecret(secret); err != nil {
		return false, err
	}

	counter := counterAt(t)
	matched := 0
	// every slot is compared; no early exit on a match
	for offset := -Skew; offset <= Skew; offset++ {
		if offset < 0 && counter < uint64(-offset) {
			continue
		}
		code, err := c.hotpCode(secret, uint64(int64(counter)+int64(offset)))
		if err != nil {
			return false, fmt.Errorf("%w: %v", models.ErrMalformedSecret, err)
		}
		matched |= subtle.ConstantTimeCompare([]byte(code), []byte(candidate))
	}

	return matched == 1, nil
}

// IsWellFormedCode reports whether code is exactly six ASCII digits
func IsWellFormedCode(code string) bool {
	if len(code) != Digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

func counterAt(t time.Time) uint64 {
	unix := t.Unix()
	if unix < 0 {
		return 0
	}
	return uint64(unix) / Period
}

func checkSecret(secret string) error {
	if strings.TrimSpace(secret) == "" {
		return fmt.Errorf("%w: empty secret", models.ErrMalformedSecret)
	}
	return nil
}
