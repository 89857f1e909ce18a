package token

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidKeyFormat is returned when a private key cannot be decoded
	// as a P-256 key in any supported encoding.
	ErrInvalidKeyFormat = errors.New("invalid private key format")

	// ErrEncodingFailure is returned when the assertion header or payload
	// cannot be encoded.
	ErrEncodingFailure = errors.New("assertion encoding failure")
)

// AuthenticationError is returned when the authorization server rejects a
// client assertion exchange.
type AuthenticationError struct {
	StatusCode  int    // HTTP status code returned by the token endpoint
	Code        string // OAuth2 "error" value, empty if the body did not parse
	Description string // OAuth2 "error_description" value
	Body        string // Raw response body, kept when Code is empty
}

func (e *AuthenticationError) Error() string {
	if e.Code != "" {
		if e.Description != "" {
			return fmt.Sprintf("authentication failed (status %d): %s - %s", e.StatusCode, e.Code, e.Description)
		}
		return fmt.Sprintf("authentication failed (status %d): %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("authentication failed (status %d): unknown error, response: %s", e.StatusCode, e.Body)
}
