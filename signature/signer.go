// Package signature signs and verifies webhook payloads with HMAC.
package signature

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // one provider still signs with HMAC-SHA1
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
)

// ErrInvalidSignature is returned when a signature is missing or does not
// match the payload.
var ErrInvalidSignature = errors.New("convene: invalid webhook signature")

// Algorithm selects the HMAC hash.
type Algorithm string

// Supported algorithms.
const (
	SHA256 Algorithm = "sha256"
	SHA1   Algorithm = "sha1"
)

func (a Algorithm) hasher() func() hash.Hash {
	if a == SHA1 {
		return sha1.New
	}
	return sha256.New
}

// Sign returns the hex HMAC of payload under secret.
func Sign(alg Algorithm, payload []byte, secret string) string {
	mac := hmac.New(alg.hasher(), []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Header returns the signature prefixed with the algorithm name, the form
// used by "sha256=<hex>" style headers.
func Header(alg Algorithm, payload []byte, secret string) string {
	return string(alg) + "=" + Sign(alg, payload, secret)
}
