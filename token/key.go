package token

import (
	"bytes"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"math/big"
	"os"
	"strings"
)

const (
	// pkcs8PrefixLen is the length of the PKCS#8 wrapper skipped before
	// trying the X9.63 representation.
	pkcs8PrefixLen = 36

	// x963MinLen is the total length the key data must exceed before the
	// X9.63 fallback is attempted.
	x963MinLen = 26

	p256ScalarLen = 32
	p256PointLen  = 1 + 2*p256ScalarLen
)

// ParsePrivateKey decodes a P-256 private key from PEM text.
//
// The armor lines and all whitespace are stripped and the remainder is
// base64-decoded. The key bytes are then tried, in order, as a DER
// container (PKCS#8, or SEC 1), as an X9.63 representation
// (04 || X || Y || D) following a 36-byte PKCS#8 prefix, and as a bare
// 32-byte scalar. The first encoding that parses wins.
func ParsePrivateKey(pemText string) (*ecdsa.PrivateKey, error) {
	der, err := decodeArmor(pemText)
	if err != nil {
		return nil, err
	}

	if key, err := parseDER(der); err == nil {
		return key, nil
	}

	if len(der) > x963MinLen && len(der) > pkcs8PrefixLen {
		if key, err := parseX963(der[pkcs8PrefixLen:]); err == nil {
			return key, nil
		}
	}

	if len(der) == p256ScalarLen {
		key, err := parseScalar(der)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKeyFormat, err)
		}
		return key, nil
	}

	return nil, fmt.Errorf("%w: unable to parse private key (%d bytes)", ErrInvalidKeyFormat, len(der))
}

// ReadKeyFile reads a PEM-encoded private key from path and checks that it
// decodes. The PEM text is returned unchanged for use in Credentials.
func ReadKeyFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file %q: %w", path, err)
	}
	if _, err := ParsePrivateKey(string(data)); err != nil {
		return "", fmt.Errorf("file %q: %w", path, err)
	}
	return string(data), nil
}

func decodeArmor(pemText string) ([]byte, error) {
	var b strings.Builder
	for _, line := range strings.Split(pemText, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "-----") {
			continue
		}
		b.WriteString(strings.Join(strings.Fields(line), ""))
	}
	if b.Len() == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidKeyFormat)
	}
	der, err := base64.StdEncoding.DecodeString(b.String())
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %v", ErrInvalidKeyFormat, err)
	}
	return der, nil
}

func parseDER(der []byte) (*ecdsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		ec, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("not an ECDSA key (actual type: %T)", key)
		}
		return checkCurve(ec)
	}
	ec, err := x509.ParseECPrivateKey(der)
	if err != nil {
		return nil, err
	}
	return checkCurve(ec)
}

func checkCurve(key *ecdsa.PrivateKey) (*ecdsa.PrivateKey, error) {
	if key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("unsupported curve %s", key.Curve.Params().Name)
	}
	return key, nil
}

// parseX963 accepts 04 || X || Y || D and checks that the public point
// matches the scalar.
func parseX963(data []byte) (*ecdsa.PrivateKey, error) {
	if len(data) != p256PointLen+p256ScalarLen || data[0] != 0x04 {
		return nil, fmt.Errorf("not an X9.63 P-256 private key")
	}
	key, err := parseScalar(data[p256PointLen:])
	if err != nil {
		return nil, err
	}
	pub := make([]byte, p256PointLen)
	pub[0] = 0x04
	key.X.FillBytes(pub[1 : 1+p256ScalarLen])
	key.Y.FillBytes(pub[1+p256ScalarLen:])
	if !bytes.Equal(pub, data[:p256PointLen]) {
		return nil, fmt.Errorf("public point does not match private scalar")
	}
	return key, nil
}

func parseScalar(d []byte) (*ecdsa.PrivateKey, error) {
	k, err := ecdh.P256().NewPrivateKey(d)
	if err != nil {
		return nil, err
	}
	pub := k.PublicKey().Bytes()
	return &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(pub[1 : 1+p256ScalarLen]),
			Y:     new(big.Int).SetBytes(pub[1+p256ScalarLen:]),
		},
		D: new(big.Int).SetBytes(d),
	}, nil
}
