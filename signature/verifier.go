package signature

import (
	"crypto/hmac"
	"strings"
)

// Verify checks header against the HMAC of payload. The header may be bare
// hex or carry an "<algorithm>=" prefix. Comparison is constant time.
func Verify(alg Algorithm, payload []byte, secret, header string) error {
	got := strings.TrimSpace(header)
	if prefix := string(alg) + "="; strings.HasPrefix(strings.ToLower(got), prefix) {
		got = got[len(prefix):]
	}
	if got == "" {
		return ErrInvalidSignature
	}
	want := Sign(alg, payload, secret)
	if !hmac.Equal([]byte(want), []byte(strings.ToLower(got))) {
		return ErrInvalidSignature
	}
	return nil
}
