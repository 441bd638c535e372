// internal/crypto/secret.go
//
// This package generates the secret key written into a deployment's
// environment hook. Keys are drawn from crypto/rand and are never
// regenerated once a target holds one.

package crypto

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

const (
	// SecretKeyLength is the number of characters in a generated key.
	SecretKeyLength = 50

	// SecretKeyAlphabet lists every character a key may contain.
	SecretKeyAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789!@#$%^&*(-_=+)"
)

// GenerateSecretKey returns a new key read from the system's secure
// random source.
func GenerateSecretKey() (string, error) {
	return GenerateSecretKeyFrom(rand.Reader)
}

// GenerateSecretKeyFrom draws each character independently and uniformly
// from SecretKeyAlphabet using the bytes of r.
func GenerateSecretKeyFrom(r io.Reader) (string, error) {
	max := big.NewInt(int64(len(SecretKeyAlphabet)))
	key := make([]byte, SecretKeyLength)
	for i := range key {
		n, err := rand.Int(r, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random source: %v", err)
		}
		key[i] = SecretKeyAlphabet[n.Int64()]
	}
	return string(key), nil
}
