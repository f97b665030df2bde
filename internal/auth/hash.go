package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashString returns the hex SHA-256 of s.
func HashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// emailKeyPart keys throttling state by address without storing the address.
func emailKeyPart(email string) string {
	return HashString(strings.ToLower(email))
}
