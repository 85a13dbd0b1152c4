package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

const saltLen = 16

// HashPassword derives a salted digest suitable for storage. The format is
// hex(salt)$hex(digest).
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("unable to generate salt: %w", err)
	}

	return hex.EncodeToString(salt) + "$" + hex.EncodeToString(digest(salt, password)), nil
}

// VerifyPassword checks a password against a stored hash in constant time.
func VerifyPassword(stored, password string) bool {
	saltHex, digestHex, found := strings.Cut(stored, "$")
	if !found {
		return false
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil || len(salt) != saltLen {
		return false
	}
	expected, err := hex.DecodeString(digestHex)
	if err != nil {
		return false
	}

	return subtle.ConstantTimeCompare(expected, digest(salt, password)) == 1
}

func digest(salt []byte, password string) []byte {
	hasher := sha256.New()
	hasher.Write(salt)
	hasher.Write([]byte(password))
	return hasher.Sum(nil)
}
