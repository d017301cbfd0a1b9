package model

import (
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// KeyPrefix is the literal prefix every issued key starts with.
	KeyPrefix = "marunose-"
	// KeyRandomLength is the number of random characters after the prefix.
	KeyRandomLength = 35

	keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	maskVisible = 5
	maskStars   = 25
)

// GenerateKey returns a new key of the form "marunose-" followed by 35 alphanumerics.
func GenerateKey() (string, error) {
	random, err := gonanoid.Generate(keyAlphabet, KeyRandomLength)
	if err != nil {
		return "", err
	}
	return KeyPrefix + random, nil
}

// MaskKey hides all but the first few characters of a key.
// Short values are returned unchanged.
func MaskKey(key string) string {
	if len(key) <= 10 {
		return key
	}
	return key[:maskVisible] + strings.Repeat("*", maskStars)
}
