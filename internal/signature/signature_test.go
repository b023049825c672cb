package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSign_KnownVector(t *testing.T) {
	// published HMAC-SHA256 example vector
	got := Sign("key", []byte("The quick brown fox jumps over the lazy dog"))
	assert.Equal(t, "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8", got)
}

func TestVerify(t *testing.T) {
	body := []byte(`{"handoff_token":"abc"}`)
	valid := HeaderValue("s3cret", body)

	tests := []struct {
		name     string
		secret   string
		header   string
		optional bool
		want     error
	}{
		{"valid", "s3cret", valid, false, nil},
		{"wrong secret", "other", valid, false, ErrMismatch},
		{"missing header", "s3cret", "", false, ErrMissingSignature},
		{"no prefix", "s3cret", Sign("s3cret", body), false, ErrMalformed},
		{"bad hex", "s3cret", "sha256=zz", false, ErrMalformed},
		{"no secret required", "", valid, false, ErrMissingSecret},
		{"no secret optional", "", "", true, nil},
		{"secret set ignores optional", "s3cret", "", true, ErrMissingSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.secret, body, tt.header, tt.optional)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}

			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestVerify_TamperedBody(t *testing.T) {
	header := HeaderValue("s3cret", []byte(`{"a":1}`))
	assert.ErrorIs(t, Verify("s3cret", []byte(`{"a":2}`), header, false), ErrMismatch)
}
