// Package token builds client assertions and exchanges them for Apple
// Business Manager access tokens.
package token

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Header is the JOSE header of a client assertion.
type Header struct {
	Alg string `json:"alg"` // Always ES256
	Kid string `json:"kid"` // Key ID registered for the service account
	Typ string `json:"typ"`
}

// Payload holds the client assertion claims. Field order is the order Apple
// documents and is kept on the wire.
type Payload struct {
	Subject   string `json:"sub"` // Client ID
	Audience  string `json:"aud"`
	IssuedAt  int64  `json:"iat"` // Unix seconds
	ExpiresAt int64  `json:"exp"` // Unix seconds
	ID        string `json:"jti"`
	Issuer    string `json:"iss"` // Client ID
}

// JWTClaims is an unsigned JWT. Header and Payload are marshaled with
// encoding/json, so any JSON-encodable value works.
type JWTClaims struct {
	Header  any
	Payload any
}

// SignedString returns the compact serialization header.payload.signature,
// every part base64url encoded without padding.
func (c *JWTClaims) SignedString(s Signer) (string, error) {
	header, err := encodeSegment("header", c.Header)
	if err != nil {
		return "", err
	}
	payload, err := encodeSegment("payload", c.Payload)
	if err != nil {
		return "", err
	}

	signingInput := header + "." + payload
	sig, err := s.Sign([]byte(signingInput))
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

func encodeSegment(part string, v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: JWT %s: %v", ErrEncodingFailure, part, err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
