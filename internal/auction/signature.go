package auction

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"time"

	"ticket-exchange/internal/clock"
	"ticket-exchange/models"
)

// KeyResolver maps a bidder address to its registered verification key.
type KeyResolver interface {
	ResolveKey(ctx context.Context, address string) (ed25519.PublicKey, error)
}

// SignatureVerifier checks that a bid was authorized by the claimed bidder.
// Verification is pure and side-effect free; verdicts are booleans so every
// caller has to branch.
type SignatureVerifier struct {
	keys  KeyResolver
	skew  time.Duration
	clock clock.Clock
}

func NewSignatureVerifier(keys KeyResolver, skew time.Duration, clk clock.Clock) *SignatureVerifier {
	return &SignatureVerifier{keys: keys, skew: skew, clock: clk}
}

// SigningBytes is the canonical byte-serialization a bid signature covers.
// Field order is fixed and the amount is rendered as its exact decimal
// string, so signer and verifier always agree byte for byte.
func SigningBytes(bid models.BidSubmission) []byte {
	return []byte(fmt.Sprintf(`{"auction":%q,"bidder":%q,"amount":%q,"timestamp":%d}`,
		bid.AuctionID, bid.BidderAddress, bid.Amount.String(), bid.Timestamp))
}

// Fresh reports whether the declared bid timestamp is within the allowed
// skew of the server clock. Stale signed bids cannot be replayed later.
func (v *SignatureVerifier) Fresh(bid models.BidSubmission) bool {
	drift := v.clock.Now().Unix() - bid.Timestamp
	if drift < 0 {
		drift = -drift
	}
	return drift <= int64(v.skew.Seconds())
}

// Verify checks the signature against the registered key for the bidder
// address. Any resolution or decoding failure is a plain false.
func (v *SignatureVerifier) Verify(ctx context.Context, bid models.BidSubmission) bool {
	key, err := v.keys.ResolveKey(ctx, bid.BidderAddress)
	if err != nil || len(key) != ed25519.PublicKeySize {
		return false
	}

	sig, err := hex.DecodeString(bid.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}

	return ed25519.Verify(key, SigningBytes(bid), sig)
}
