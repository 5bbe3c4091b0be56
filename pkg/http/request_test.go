package http

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractClientIP_NoConfig(t *testing.T) {
	req := httptest.NewRequest("POST", "/auth/login", nil)
	req.RemoteAddr = "203.0.113.7:5555"
	req.Header.Set("X-Forwarded-For", "198.51.100.1")

	assert.Equal(t, "203.0.113.7", ExtractClientIP(req, nil))
}

func TestExtractClientIP_UntrustedPeerIgnoresHeaders(t *testing.T) {
	cfg := &IPConfig{TrustedProxies: ParseTrustedProxies("10.0.0.0/8")}
	req := httptest.NewRequest("POST", "/auth/login", nil)
	req.RemoteAddr = "203.0.113.7:5555"
	req.Header.Set("X-Forwarded-For", "198.51.100.1")

	assert.Equal(t, "203.0.113.7", ExtractClientIP(req, cfg))
}

func TestExtractClientIP_TrustedProxy(t *testing.T) {
	cfg := &IPConfig{TrustedProxies: ParseTrustedProxies("10.0.0.0/8, bogus")}

	req := httptest.NewRequest("POST", "/auth/login", nil)
	req.RemoteAddr = "10.1.2.3:443"
	req.Header.Set("X-Forwarded-For", "not-an-ip, 198.51.100.1, 10.1.2.3")
	assert.Equal(t, "198.51.100.1", ExtractClientIP(req, cfg))

	req = httptest.NewRequest("POST", "/auth/login", nil)
	req.RemoteAddr = "10.1.2.3:443"
	req.Header.Set("X-Real-IP", "198.51.100.9")
	assert.Equal(t, "198.51.100.9", ExtractClientIP(req, cfg))
}

func TestParseTrustedProxies(t *testing.T) {
	assert.Len(t, ParseTrustedProxies("10.0.0.0/8,,192.168.0.0/16,nope"), 2)
	assert.Empty(t, ParseTrustedProxies(""))
}
