package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// Audience is the "aud" claim Apple expects in a client assertion.
	Audience = "https://account.apple.com/auth/oauth2/v2/token"

	// AssertionTTL is the validity window written into every assertion.
	AssertionTTL = 180 * 24 * time.Hour
)

// Credentials are the long-lived service account credentials issued in
// Apple Business Manager.
type Credentials struct {
	ClientID      string // e.g. BUSINESSAPI.xxxxxxxx
	KeyID         string // Key ID of the uploaded public key
	PrivateKeyPEM string // P-256 private key, PEM armored
}

// SignAssertion builds and signs an ES256 client assertion valid for
// AssertionTTL from now. The result differs on every call because of the
// random jti and the ECDSA nonce.
func SignAssertion(creds Credentials, now time.Time) (string, error) {
	key, err := ParsePrivateKey(creds.PrivateKeyPEM)
	if err != nil {
		return "", err
	}

	iat := now.Unix()
	claims := JWTClaims{
		Header: Header{
			Alg: "ES256",
			Kid: creds.KeyID,
			Typ: "JWT",
		},
		Payload: Payload{
			Subject:   creds.ClientID,
			Audience:  Audience,
			IssuedAt:  iat,
			ExpiresAt: iat + int64(AssertionTTL/time.Second),
			ID:        uuid.NewString(),
			Issuer:    creds.ClientID,
		},
	}

	return claims.SignedString(ES256Signer{Key: key})
}

// AssertionInfo describes the unverified contents of a client assertion.
type AssertionInfo struct {
	KeyID     string
	ClientID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the assertion is past its exp claim at now.
func (a AssertionInfo) Expired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// InspectAssertion decodes an assertion without verifying its signature.
// It is meant for displaying expiry to the user; the authorization server
// remains the authority on validity.
func InspectAssertion(assertion string) (*AssertionInfo, error) {
	claims := jwt.RegisteredClaims{}
	tok, _, err := jwt.NewParser().ParseUnverified(assertion, &claims)
	if err != nil {
		return nil, fmt.Errorf("failed to decode assertion: %w", err)
	}

	info := &AssertionInfo{ClientID: claims.Subject}
	if kid, ok := tok.Header["kid"].(string); ok {
		info.KeyID = kid
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}
