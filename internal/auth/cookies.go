package auth

import (
	"net/http"
	"time"
)

// ChallengeCookieName carries the pending login challenge between login and verify-login
const ChallengeCookieName = "totp_challenge"

// CookieConfig holds cookie configuration settings
type CookieConfig struct {
	Domain   string // Empty string = current host only
	Secure   bool   // HTTPS only
	SameSite string // "strict", "lax", or "none"
}

// SetChallengeCookie stores the login challenge token in an HttpOnly cookie scoped to /auth
func SetChallengeCookie(w http.ResponseWriter, token string, expiresAt time.Time, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     ChallengeCookieName,
		Value:    token,
		Path:     "/auth",
		Domain:   config.Domain,
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: parseSameSite(config.SameSite),
	})
}

// ClearChallengeCookie removes the challenge cookie
func ClearChallengeCookie(w http.ResponseWriter, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     ChallengeCookieName,
		Value:    "",
		Path:     "/auth",
		Domain:   config.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: parseSameSite(config.SameSite),
	})
}

// GetChallengeCookie returns the challenge token, or "" when absent
func GetChallengeCookie(r *http.Request) string {
	cookie, err := r.Cookie(ChallengeCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func parseSameSite(sameSite string) http.SameSite {
	switch sameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteDefaultMode
	}
}
