package auth

import (
	"fmt"

	"github.com/BradenHooton/totpgate/pkg/clock"
)

// Enrollment is what a principal sees once when starting TOTP setup
type Enrollment struct {
	Secret string // Base32, shown for manual entry
	QRCode string // PNG data URI
}

// TOTPManager ties together secret generation, provisioning, validation and the vault
type TOTPManager struct {
	issuer    string
	generator *SecretGenerator
	codec     *TOTPCodec
	vault     *Vault
	clock     clock.Clocker
}

// NewTOTPManager creates a new TOTP manager
func NewTOTPManager(vault *Vault, issuer string, clk clock.Clocker) *TOTPManager {
	return &TOTPManager{
		issuer:    issuer,
		generator: NewSecretGenerator(issuer),
		codec:     NewTOTPCodec(),
		vault:     vault,
		clock:     clk,
	}
}

// NewEnrollment generates a fresh secret and its QR code for the given label
func (tm *TOTPManager) NewEnrollment(label string) (*Enrollment, error) {
	secret, err := tm.generator.Generate(label)
	if err != nil {
		return nil, err
	}

	qr, err := EncodeQRDataURI(secret, label, tm.issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create QR code: %w", err)
	}

	return &Enrollment{Secret: secret, QRCode: qr}, nil
}

// Validate checks a code against a plaintext secret at the current time
func (tm *TOTPManager) Validate(secret, code string) (bool, error) {
	return tm.codec.Validate(secret, code, tm.clock.Now())
}

// ValidateEncrypted decrypts a stored secret and checks the code against it
func (tm *TOTPManager) ValidateEncrypted(encryptedSecret, code string) (bool, error) {
	secret, err := tm.vault.Decrypt(encryptedSecret)
	if err != nil {
		return false, err
	}
	return tm.Validate(secret, code)
}

// EncryptSecret seals a secret for storage
func (tm *TOTPManager) EncryptSecret(secret string) (string, error) {
	return tm.vault.Encrypt(secret)
}

// DecryptSecret opens a stored secret
func (tm *TOTPManager) DecryptSecret(encrypted string) (string, error) {
	return tm.vault.Decrypt(encrypted)
}
