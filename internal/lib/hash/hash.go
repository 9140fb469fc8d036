// Package hash implements salted argon2id password hashing with a
// self-describing PHC digest, so verification needs no state besides
// the digest itself.
package hash

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// OWASP-recommended argon2id parameters.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
	argonSaltLen = 16
	argonKeyLen  = 32
)

var (
	ErrEmptyPassword = errors.New("password cannot be empty")
	ErrInvalidHash   = errors.New("invalid password hash")
)

// Password hashes a plaintext password into the PHC string format:
// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
func Password(plain string) (string, error) {
	const op = "hash.Password"

	if plain == "" {
		return "", fmt.Errorf("%s: %w", op, ErrEmptyPassword)
	}

	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	digest := argon2.IDKey([]byte(plain), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory,
		argonTime,
		argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	)

	return encoded, nil
}

// Verify reports whether plain matches the encoded digest. The digest
// parameters are taken from the digest itself, and the comparison is
// constant time.
func Verify(encoded, plain string) (bool, error) {
	const op = "hash.Verify"

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return false, fmt.Errorf("%s: %w", op, ErrInvalidHash)
	}

	if parts[1] != "argon2id" {
		return false, fmt.Errorf("%s: unsupported algorithm %q: %w", op, parts[1], ErrInvalidHash)
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("%s: %w", op, ErrInvalidHash)
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, fmt.Errorf("%s: %w", op, ErrInvalidHash)
	}
	if threads == 0 || threads > 255 {
		return false, fmt.Errorf("%s: %w", op, ErrInvalidHash)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, ErrInvalidHash)
	}

	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, ErrInvalidHash)
	}
	if len(want) == 0 || len(want) > 1<<10 {
		return false, fmt.Errorf("%s: %w", op, ErrInvalidHash)
	}

	got := argon2.IDKey([]byte(plain), salt, time, memory, uint8(threads), uint32(len(want)))

	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
