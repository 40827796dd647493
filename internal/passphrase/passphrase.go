// Package passphrase implements the optional group join passphrase
// supplemented feature (SPEC_FULL.md, supplemented feature 1): groups may be
// created with a passphrase that a joining user must present.
package passphrase

import (
	"fmt"

	"github.com/alexedwards/argon2id"
)

// params are the fixed argon2id cost parameters used for group passphrases.
// Lower than a typical login-password hash since the passphrase only guards
// entry to an ephemeral room, not a durable account.
var params = &argon2id.Params{
	Memory:      19 * 1024,
	Iterations:  2,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// Hash hashes a group join passphrase for storage.
func Hash(passphrase string) (string, error) {
	hash, err := argon2id.CreateHash(passphrase, params)
	if err != nil {
		return "", fmt.Errorf("hash passphrase: %w", err)
	}
	return hash, nil
}

// Verify checks whether a plaintext passphrase matches the given argon2id hash.
func Verify(passphrase, hash string) (bool, error) {
	match, err := argon2id.ComparePasswordAndHash(passphrase, hash)
	if err != nil {
		return false, fmt.Errorf("verify passphrase: %w", err)
	}
	return match, nil
}
