package security

import "golang.org/x/crypto/bcrypt"

// GenerateKeyHash hashes a scanner API key for storage.
func GenerateKeyHash(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CompareKeyHash reports whether the presented key matches the stored hash.
func CompareKeyHash(hash, key string) bool {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
		return false
	}
	return true
}
