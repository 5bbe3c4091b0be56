package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizedEmail(t *testing.T) {
	assert.Equal(t, "a****@*******.com", SanitizedEmail("alice@example.com"))
	assert.Equal(t, "[invalid-email]", SanitizedEmail("not-an-email"))
}

func TestMaskIdentifier(t *testing.T) {
	assert.Equal(t, "RS**************", MaskIdentifier("RSSMRA85T10A562S"))
	assert.Equal(t, "**", MaskIdentifier("ab"))
	assert.Equal(t, "b**@*******.com", MaskIdentifier("bob@example.com"))
}

func TestSanitizeQueryString(t *testing.T) {
	assert.True(t, SanitizeQueryString("challenge_token=abc"))
	assert.True(t, SanitizeQueryString("code=123456"))
	assert.False(t, SanitizeQueryString("page=2"))
}

func TestAuditLogger_Log(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	al.Log(context.Background(), AuditEvent{
		EventType:     EventLoginTOTP,
		PrincipalID:   "p-1",
		Identifier:    "alice",
		Success:       false,
		FailureReason: "invalid_code",
	})

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "login_totp_verify", record["event_type"])
	assert.Equal(t, "al***", record["identifier"])
	assert.Equal(t, "invalid_code", record["failure_reason"])
}
