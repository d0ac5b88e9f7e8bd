// Package credential encodes a ticket's access claim into a compact,
// tamper-evident payload and decodes it back at the gate. The codec is a
// pure function over its inputs plus the shared keys; single-use enforcement
// lives in the redeem package.
package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"ticket-exchange/internal/clock"
	"ticket-exchange/models"
	"ticket-exchange/utils"
)

var (
	// ErrMalformed means the payload could not be parsed at all.
	ErrMalformed = errors.New("credential: malformed payload")

	// ErrTampered means the integrity tag did not match. A mismatch is
	// always treated as invalid, never partially trusted.
	ErrTampered = errors.New("credential: integrity check failed")
)

type Codec struct {
	encKey []byte
	macKey []byte
	ttl    int64 // seconds
	clock  clock.Clock
}

// NewCodec builds a codec from a 32-byte AES key, a MAC key and the
// credential TTL in seconds.
func NewCodec(encKey, macKey []byte, ttlSeconds int64, clk clock.Clock) (*Codec, error) {
	if len(encKey) != 32 {
		return nil, fmt.Errorf("credential: encryption key must be 32 bytes, got %d", len(encKey))
	}
	if len(macKey) == 0 {
		return nil, errors.New("credential: mac key must not be empty")
	}
	if ttlSeconds <= 0 {
		return nil, errors.New("credential: ttl must be positive")
	}
	return &Codec{
		encKey: encKey,
		macKey: macKey,
		ttl:    ttlSeconds,
		clock:  clk,
	}, nil
}

// Issue serializes the claim, encrypts it and stamps the validity window.
// The integrity tag covers the ciphertext and both timestamps, so flipping
// any byte of the payload invalidates it.
func (c *Codec) Issue(claim models.CredentialClaim) (models.Credential, error) {
	plaintext := canonicalClaim(claim)

	encrypted, err := c.encrypt(plaintext)
	if err != nil {
		return models.Credential{}, fmt.Errorf("credential: encrypt: %w", err)
	}

	issuedAt := c.clock.Now().Unix()
	expiresAt := issuedAt + c.ttl

	return models.Credential{
		Encrypted: encrypted,
		HMAC:      utils.Hmac256(macInput(encrypted, issuedAt, expiresAt), c.macKey),
		Timestamp: issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Decode recomputes the integrity tag and, only if it matches, decrypts and
// parses the claim. The window check against the current time belongs to the
// caller; Decode itself is time-independent.
func (c *Codec) Decode(cred models.Credential) (models.CredentialClaim, error) {
	expected := utils.Hmac256(macInput(cred.Encrypted, cred.Timestamp, cred.ExpiresAt), c.macKey)
	if !utils.HmacEqual(cred.HMAC, expected) {
		return models.CredentialClaim{}, ErrTampered
	}

	plaintext, err := c.decrypt(cred.Encrypted)
	if err != nil {
		return models.CredentialClaim{}, err
	}

	var claim models.CredentialClaim
	if err := json.Unmarshal(plaintext, &claim); err != nil {
		return models.CredentialClaim{}, ErrMalformed
	}
	if claim.TicketID == "" {
		return models.CredentialClaim{}, ErrMalformed
	}

	return claim, nil
}

// canonicalClaim produces the deterministic byte-serialization the MAC and
// the cipher operate on. Field order is fixed; price is rendered as its
// exact decimal string.
func canonicalClaim(claim models.CredentialClaim) []byte {
	return []byte(fmt.Sprintf(`{"ticket":%q,"event":%q,"section":%q,"price":%q}`,
		claim.TicketID, claim.EventID, claim.Section, claim.Price.String()))
}

func macInput(encrypted string, issuedAt, expiresAt int64) []byte {
	return []byte(fmt.Sprintf("%s|%d|%d", encrypted, issuedAt, expiresAt))
}

func (c *Codec) encrypt(plaintext []byte) (string, error) {
	block, err := aes.NewCipher(c.encKey)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *Codec) decrypt(encoded string) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrMalformed
	}

	block, err := aes.NewCipher(c.encKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, ErrMalformed
	}

	plaintext, err := gcm.Open(nil, sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():], nil)
	if err != nil {
		// The MAC already matched, so a GCM failure means the inner
		// blob never matched the tag inputs. Treat as tampering.
		return nil, ErrTampered
	}
	return plaintext, nil
}
