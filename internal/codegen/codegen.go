// Package codegen generates the opaque bearer codes (user_code, group_code)
// described in spec.md §6: a 64-hex-character SHA-256 digest of
// "name || millis || 16-char alphanumeric salt".
package codegen

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	saltLength  = 16
	saltAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Code derives a 64-hex-character opaque code from name and the given Unix
// millisecond timestamp, using a freshly generated random salt.
func Code(name string, millis int64) (string, error) {
	salt, err := randomSalt()
	if err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return code(name, millis, salt), nil
}

// code is the deterministic core, split out so tests can pin the salt.
func code(name string, millis int64, salt string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s%d%s", name, millis, salt)))
	return hex.EncodeToString(sum[:])
}

func randomSalt() (string, error) {
	buf := make([]byte, saltLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, saltLength)
	for i, b := range buf {
		out[i] = saltAlphabet[int(b)%len(saltAlphabet)]
	}
	return string(out), nil
}
