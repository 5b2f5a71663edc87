package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateToken returns a random 32-char hex token used to guard
// generated stream URLs.
func GenerateToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
