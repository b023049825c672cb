package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

const (
	// header carrying the payload signature on webhooks and test deliveries
	Header = "X-ISF-Signature"

	prefix = "sha256="
)

var (
	ErrMissingSecret    = errors.New("webhook secret not configured")
	ErrMissingSignature = errors.New("signature header missing")
	ErrMalformed        = errors.New("signature header malformed")
	ErrMismatch         = errors.New("signature mismatch")
)

// returns the hex HMAC-SHA256 of body keyed by secret
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body) //nolint:errcheck // hash writes never fail
	return hex.EncodeToString(mac.Sum(nil))
}

// returns the full header value ("sha256=<hex>")
func HeaderValue(secret string, body []byte) string {
	return prefix + Sign(secret, body)
}

// checks a "sha256=<hex>" header against body.
// with no secret configured the check passes only when optional is set.
func Verify(secret string, body []byte, header string, optional bool) error {
	if secret == "" {
		if optional {
			return nil
		}

		return ErrMissingSecret
	}

	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissingSignature
	}

	if !strings.HasPrefix(header, prefix) {
		return ErrMalformed
	}

	given, err := hex.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return ErrMalformed
	}

	expected, _ := hex.DecodeString(Sign(secret, body)) //nolint:errcheck // produced by Sign

	if !hmac.Equal(given, expected) {
		return ErrMismatch
	}

	return nil
}
