package token

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
)

var _ Signer = ES256Signer{}

// Signer signs a JWT signing input (base64url header "." base64url payload).
type Signer interface {
	Sign(data []byte) ([]byte, error)
}

// es256SigLen is the length of a raw P-256 signature: 32-byte r then 32-byte s.
const es256SigLen = 2 * p256ScalarLen

// ES256Signer signs with ECDSA P-256 over SHA-256.
type ES256Signer struct {
	Key *ecdsa.PrivateKey
}

// Sign returns the fixed-width r||s signature JWS expects, not ASN.1 DER.
func (s ES256Signer) Sign(data []byte) ([]byte, error) {
	if s.Key == nil {
		return nil, errors.New("missing private key")
	}
	if s.Key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("unsupported curve: expected P-256, got %s", s.Key.Curve.Params().Name)
	}

	digest := sha256.Sum256(data)
	r, sv, err := ecdsa.Sign(rand.Reader, s.Key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("ecdsa sign failed: %w", err)
	}

	sig := make([]byte, es256SigLen)
	r.FillBytes(sig[:p256ScalarLen])
	sv.FillBytes(sig[p256ScalarLen:])
	return sig, nil
}
