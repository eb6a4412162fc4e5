// Package password wraps bcrypt hashing for user credentials.
package password

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const hashCost = 12

// prepare works around bcrypt's 72-byte input ceiling: longer passwords are
// reduced to the hex digest of their SHA-256 first. Verify must apply the
// same rule or long passwords would never match.
func prepare(plain string) []byte {
	raw := []byte(plain)
	if len(raw) > 72 {
		sum := sha256.Sum256(raw)
		return []byte(hex.EncodeToString(sum[:]))
	}
	return raw
}

func Hash(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword(prepare(plain), hashCost)
	if err != nil {
		return "", fmt.Errorf("hash password failed: %w", err)
	}
	return string(hashed), nil
}

func Verify(plain, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), prepare(plain)) == nil
}
