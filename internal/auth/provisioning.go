package auth

import (
	"encoding/base64"
	"fmt"
	"net/url"

	"github.com/BradenHooton/totpgate/internal/models"
	qrcode "github.com/skip2/go-qrcode"
)

const qrImageSize = 256

// ProvisioningURI builds the otpauth:// URI scanned by authenticator apps.
func ProvisioningURI(secret, label, issuer string) string {
	return fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s&algorithm=SHA1&digits=%d&period=%d",
		url.PathEscape(issuer),
		url.PathEscape(label),
		url.QueryEscape(secret),
		url.QueryEscape(issuer),
		Digits,
		Period,
	)
}

// EncodeQRDataURI renders the provisioning URI as a PNG data URI
func EncodeQRDataURI(secret, label, issuer string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("%w: empty secret", models.ErrMalformedSecret)
	}

	png, err := qrcode.Encode(ProvisioningURI(secret, label, issuer), qrcode.Medium, qrImageSize)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
