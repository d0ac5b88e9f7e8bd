package models

import (
	"github.com/shopspring/decimal"
)

// CredentialClaim is the set of ticket facts encoded into a credential.
// The owner's wallet address is deliberately not part of the claim so that
// capturing a QR image never leaks wallet identity; ownership is resolved
// server-side from the ticket id at scan time.
type CredentialClaim struct {
	TicketID string          `json:"ticket"`
	EventID  string          `json:"event"`
	Section  string          `json:"section"`
	Price    decimal.Decimal `json:"price"`
}

// Credential is the wire form of a ticket credential, embedded in a QR image.
type Credential struct {
	Encrypted string `json:"encrypted"`
	HMAC      string `json:"hmac"`
	Timestamp int64  `json:"timestamp"`
	ExpiresAt int64  `json:"expiresAt"`
}
