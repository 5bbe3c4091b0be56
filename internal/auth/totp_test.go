package auth

import (
	"testing"
	"time"

	"github.com/BradenHooton/totpgate/internal/models"
	"github.com/BradenHooton/totpgate/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTOTPManager(t *testing.T, clk clock.Clocker) *TOTPManager {
	t.Helper()
	return NewTOTPManager(newTestVault(t), "PrimeGenesis", clk)
}

func TestTOTPManager_NewEnrollment(t *testing.T) {
	tm := newTestTOTPManager(t, clock.New())

	enrollment, err := tm.NewEnrollment("alice")
	require.NoError(t, err)

	assert.NotEmpty(t, enrollment.Secret)
	assert.Contains(t, enrollment.QRCode, "data:image/png;base64,")
}

func TestTOTPManager_ValidateUsesClock(t *testing.T) {
	clk := clock.NewFake(time.Unix(1234567890, 0))
	tm := newTestTOTPManager(t, clk)

	ok, err := tm.Validate(rfcSecret, "005924")
	require.NoError(t, err)
	assert.True(t, ok)

	clk.Advance(2 * time.Minute)

	ok, err = tm.Validate(rfcSecret, "005924")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTOTPManager_ValidateEncrypted(t *testing.T) {
	clk := clock.NewFake(time.Unix(1234567890, 0))
	tm := newTestTOTPManager(t, clk)

	enc, err := tm.EncryptSecret(rfcSecret)
	require.NoError(t, err)

	ok, err := tm.ValidateEncrypted(enc, "005924")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = tm.ValidateEncrypted("deadbeef:cafe", "005924")
	assert.ErrorIs(t, err, models.ErrDecryption)
}
