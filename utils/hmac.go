package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Hmac256 is a function to generate HMAC256 hash.
func Hmac256(body, key []byte) string {
	hash := hmac.New(sha256.New, key)
	hash.Write(body)
	return hex.EncodeToString(hash.Sum(nil))
}

// HmacEqual compares two hex-encoded tags in constant time.
func HmacEqual(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
