package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

const (
	SignatureHeader = "x-webhook-signature"
	VersionHeader   = "x-webhook-version"
	TimestampHeader = "x-webhook-timestamp"
)

// Sign returns the base64 HMAC-SHA256 of rawBody, the encoding current Cashfree API versions send.
func Sign(rawBody []byte, secret string) string {
	return base64.StdEncoding.EncodeToString(digest(rawBody, secret))
}

// SignHex returns the hex HMAC-SHA256 of rawBody, as sent by older API versions.
func SignHex(rawBody []byte, secret string) string {
	return hex.EncodeToString(digest(rawBody, secret))
}

// Verify checks signature against the HMAC-SHA256 of the raw, unparsed body.
// Both base64 and hex encodings are accepted; each comparison is constant-time.
func Verify(rawBody []byte, signature, secret string) bool {
	signature = strings.TrimSpace(signature)
	if secret == "" || signature == "" {
		return false
	}

	sum := digest(rawBody, secret)
	b64 := base64.StdEncoding.EncodeToString(sum)
	hx := hex.EncodeToString(sum)

	matchB64 := constantTimeEqual(b64, signature)
	matchHex := constantTimeEqual(hx, strings.ToLower(signature))
	return matchB64 || matchHex
}

func digest(rawBody []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	return mac.Sum(nil)
}

// subtle.ConstantTimeCompare returns 0 on length mismatch, so this fails closed.
func constantTimeEqual(expected, provided string) bool {
	return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
}
