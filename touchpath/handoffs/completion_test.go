package handoffs

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "completion-secret"

func TestCompletionRedirect_RoundTrip(t *testing.T) {
	signed, err := SignCompletionRedirect(testSecret, CompletionClaims{
		HandoffToken:  "0123456789abcdef0123456789abcdef",
		AccountNumber: "ACC-1",
		Email:         "jane@example.com",
		RedirectTo:    "https://example.com/thanks",
	}, 0)
	require.NoError(t, err)

	claims, err := ParseCompletionRedirect(testSecret, signed)
	require.NoError(t, err)

	c := claims.Completion()
	assert.Equal(t, "0123456789abcdef0123456789abcdef", c.HandoffToken)
	assert.Equal(t, "ACC-1", c.AccountNumber)
	assert.Equal(t, "jane@example.com", c.Email)
	assert.Equal(t, "https://example.com/thanks", claims.RedirectTo)
	require.NotNil(t, claims.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(CompletionRedirectTTL), claims.ExpiresAt.Time, time.Minute)
}

func TestParseCompletionRedirect_Rejects(t *testing.T) {
	valid, err := SignCompletionRedirect(testSecret, CompletionClaims{AccountNumber: "A"}, time.Minute)
	require.NoError(t, err)

	expiredToken := jwt.NewWithClaims(jwt.SigningMethodHS256, CompletionClaims{
		AccountNumber: "A",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	expired, err := expiredToken.SignedString([]byte(testSecret))
	require.NoError(t, err)

	noExpiryToken := jwt.NewWithClaims(jwt.SigningMethodHS256, CompletionClaims{AccountNumber: "A"})
	noExpiry, err := noExpiryToken.SignedString([]byte(testSecret))
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, CompletionClaims{
		AccountNumber: "A",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		secret string
		token  string
	}{
		{"wrong secret", "other-secret", valid},
		{"expired", testSecret, expired},
		{"missing expiry", testSecret, noExpiry},
		{"alg none", testSecret, unsigned},
		{"garbage", testSecret, "not.a.jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCompletionRedirect(tt.secret, tt.token)
			assert.ErrorIs(t, err, ErrInvalidRedirectJWT)
		})
	}
}

func TestCompletionRedirect_MissingSecret(t *testing.T) {
	_, err := SignCompletionRedirect("", CompletionClaims{}, 0)
	assert.ErrorIs(t, err, ErrMissingSigningKey)

	_, err = ParseCompletionRedirect("", "x")
	assert.ErrorIs(t, err, ErrMissingSigningKey)
}
