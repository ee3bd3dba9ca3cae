package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// SignResource binds the given parts together under secret.
func SignResource(secret string, parts ...string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(parts, ":")))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func VerifyResource(secret string, signature string, parts ...string) bool {
	expected := SignResource(secret, parts...)
	return hmac.Equal([]byte(signature), []byte(expected))
}
