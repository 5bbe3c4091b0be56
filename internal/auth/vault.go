package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/BradenHooton/totpgate/internal/models"
)

// KeySize is the AES-256 key length in bytes
const KeySize = 32

// Vault encrypts TOTP secrets at rest with AES-256-GCM.
// Ciphertext is encoded as hex(nonce):hex(sealed).
//
// The key is process configuration. Rotating it makes every stored secret
// undecryptable unless they are re-encrypted first.
type Vault struct {
	aead cipher.AEAD
	rand io.Reader
}

// NewVault creates a vault. key must be exactly 32 bytes.
func NewVault(key []byte) (*Vault, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be exactly %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Vault{aead: gcm, rand: rand.Reader}, nil
}

// ParseVaultKey decodes a hex-encoded 32-byte key
func ParseVaultKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("encryption key must be hex encoded: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be exactly %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

// Encrypt seals plaintext under a fresh random nonce
func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(v.rand, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := v.aead.Seal(nil, nonce, []byte(plaintext), nil)

	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Every failure wraps models.ErrDecryption
// and yields no plaintext.
func (v *Vault) Decrypt(encoded string) (string, error) {
	nonceHex, sealedHex, ok := strings.Cut(encoded, ":")
	if !ok {
		return "", fmt.Errorf("%w: missing nonce separator", models.ErrDecryption)
	}

	nonce, err := hex.DecodeString(nonceHex)
	if err != nil || len(nonce) != v.aead.NonceSize() {
		return "", fmt.Errorf("%w: invalid nonce", models.ErrDecryption)
	}

	sealed, err := hex.DecodeString(sealedHex)
	if err != nil {
		return "", fmt.Errorf("%w: invalid ciphertext encoding", models.ErrDecryption)
	}

	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrDecryption, err)
	}

	return string(plaintext), nil
}
