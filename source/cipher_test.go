package source_test

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/xraph/convene/source"
)

func testKey() string {
	return base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
}

func TestCipherRoundTrip(t *testing.T) {
	c, err := source.NewCipher(testKey())
	if err != nil {
		t.Fatal(err)
	}
	enc, err := c.Encrypt("token-123")
	if err != nil {
		t.Fatal(err)
	}
	if enc == "token-123" {
		t.Fatal("expected ciphertext to differ from plaintext")
	}
	got, err := c.Credential(&source.EventSource{Credential: enc})
	if err != nil {
		t.Fatal(err)
	}
	if got != "token-123" {
		t.Fatalf("got %q", got)
	}
}

func TestCipherRejectsTamperedValue(t *testing.T) {
	c, err := source.NewCipher(testKey())
	if err != nil {
		t.Fatal(err)
	}
	enc, _ := c.Encrypt("token-123")
	raw, _ := base64.StdEncoding.DecodeString(enc)
	raw[len(raw)-1] ^= 0xff
	_, err = c.Decrypt(base64.StdEncoding.EncodeToString(raw))
	if !errors.Is(err, source.ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestNilCipherPassesThrough(t *testing.T) {
	c, err := source.NewCipher("")
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.Decrypt("plain")
	if err != nil || got != "plain" {
		t.Fatalf("Decrypt = %q, %v", got, err)
	}
}

func TestSyncIntervalDefault(t *testing.T) {
	src := &source.EventSource{}
	if src.SyncInterval().Minutes() != 60 {
		t.Fatalf("got %v", src.SyncInterval())
	}
	src.SyncFrequency = 15
	if src.SyncInterval().Minutes() != 15 {
		t.Fatalf("got %v", src.SyncInterval())
	}
}
