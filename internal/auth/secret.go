package auth

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// SecretSize is the shared secret length in bytes (160 bits).
const SecretSize = 20

// SecretGenerator creates Base32 TOTP secrets from a cryptographic random source
type SecretGenerator struct {
	issuer string
	rand   io.Reader
}

// NewSecretGenerator creates a generator backed by crypto/rand
func NewSecretGenerator(issuer string) *SecretGenerator {
	return &SecretGenerator{issuer: issuer, rand: rand.Reader}
}

// Generate returns an unpadded Base32 secret for the given account name.
func (g *SecretGenerator) Generate(accountName string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      g.issuer,
		AccountName: accountName,
		SecretSize:  SecretSize,
		Period:      Period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
		Rand:        g.rand,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate TOTP secret: %w", err)
	}

	return key.Secret(), nil
}

// CheckEntropy reads from the random source once. Called at startup: a process
// that cannot produce secrets must not serve traffic.
func CheckEntropy(r io.Reader) error {
	buf := make([]byte, SecretSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("entropy source unavailable: %w", err)
	}
	return nil
}
