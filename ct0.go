package twitter

import (
	"crypto/rand"
	"encoding/hex"
)

// ct0Cookie is the anti-forgery cookie mirrored into the x-csrf-token header.
const ct0Cookie = "ct0"

// authTokenCookie marks an authenticated session.
const authTokenCookie = "auth_token"

// GenerateCT0 generates a random 32-byte hex string for use as a ct0 CSRF token.
func GenerateCT0() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "0000000000000000000000000000000000000000000000000000000000000000"
	}
	return hex.EncodeToString(b)
}

// ct0FromStore returns the store's ct0, generating and storing one if absent.
func ct0FromStore(s *CookieStore) string {
	if v, ok := s.Get(ct0Cookie); ok && v != "" {
		return v
	}
	v := GenerateCT0()
	s.Set(Cookie{Name: ct0Cookie, Value: v, Domain: ".x.com", Path: "/", Secure: true, SameSite: "Lax"})
	return v
}
