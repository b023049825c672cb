package handoffs

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// default lifetime of a signed completion redirect
const CompletionRedirectTTL = 15 * time.Minute

// payload of the signed token a partner appends when sending the visitor back
type CompletionClaims struct {
	HandoffToken  string `json:"isf_ref,omitempty"`
	ContextID     string `json:"context_id,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	Email         string `json:"email,omitempty"`
	ExternalID    string `json:"external_id,omitempty"`
	Source        string `json:"source,omitempty"`
	RedirectTo    string `json:"redirect_to,omitempty"`
	jwt.RegisteredClaims
}

// the completion described by the claims
func (c *CompletionClaims) Completion() *Completion {
	return &Completion{
		ContextID:     c.ContextID,
		AccountNumber: c.AccountNumber,
		Email:         c.Email,
		HandoffToken:  c.HandoffToken,
		ExternalID:    c.ExternalID,
		Source:        c.Source,
	}
}

// signs claims with HS256; ttl <= 0 uses CompletionRedirectTTL
func SignCompletionRedirect(secret string, claims CompletionClaims, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrMissingSigningKey
	}

	if ttl <= 0 {
		ttl = CompletionRedirectTTL
	}

	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// validates a signed completion redirect and returns its claims
func ParseCompletionRedirect(secret, tokenString string) (*CompletionClaims, error) {
	if secret == "" {
		return nil, ErrMissingSigningKey
	}

	token, err := jwt.ParseWithClaims(tokenString, &CompletionClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())

	if err != nil {
		return nil, errors.Join(ErrInvalidRedirectJWT, err)
	}

	if claims, ok := token.Claims.(*CompletionClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidRedirectJWT
}
