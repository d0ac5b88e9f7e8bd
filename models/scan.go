package models

import (
	"time"
)

// ScanOutcome is the recorded verdict of a single scan attempt.
type ScanOutcome string

const (
	ScanOutcomeAccepted  ScanOutcome = "accepted"
	ScanOutcomeDuplicate ScanOutcome = "duplicate"
	ScanOutcomeExpired   ScanOutcome = "expired"
	ScanOutcomeInvalid   ScanOutcome = "invalid"
)

// ScanRecord is an append-only audit row. At most one accepted record may
// ever exist per ticket; records are never mutated or deleted.
type ScanRecord struct {
	TicketID  string      `json:"ticket_id"`
	Scanner   string      `json:"scanner"`
	ScannedAt time.Time   `json:"scanned_at"`
	Outcome   ScanOutcome `json:"outcome"`
	Reason    string      `json:"reason,omitempty"`
}

// RedeemStatus is the closed set of redemption verdicts. Every caller must
// branch on the status explicitly; there is no truthy shortcut.
type RedeemStatus int

const (
	RedeemAccepted RedeemStatus = iota
	RedeemAlreadyScanned
	RedeemExpired
	RedeemTampered
	RedeemMalformed
	RedeemInvalid
)

func (s RedeemStatus) String() string {
	switch s {
	case RedeemAccepted:
		return "accepted"
	case RedeemAlreadyScanned:
		return "already_scanned"
	case RedeemExpired:
		return "expired"
	case RedeemTampered:
		return "tampered"
	case RedeemMalformed:
		return "malformed"
	default:
		return "invalid"
	}
}

// Outcome maps the verdict onto the persisted ScanOutcome taxonomy.
// Tampered and malformed payloads are both recorded as invalid; the
// distinction survives in the record's reason and the API error.
func (s RedeemStatus) Outcome() ScanOutcome {
	switch s {
	case RedeemAccepted:
		return ScanOutcomeAccepted
	case RedeemAlreadyScanned:
		return ScanOutcomeDuplicate
	case RedeemExpired:
		return ScanOutcomeExpired
	default:
		return ScanOutcomeInvalid
	}
}

// RedeemResult is the discriminated result of a redemption attempt.
type RedeemResult struct {
	Status RedeemStatus
	Claim  *CredentialClaim // set only when the payload decoded cleanly
	// ScannedBy holds the terminal that consumed the ticket when the
	// status is RedeemAlreadyScanned.
	ScannedBy string
	Err       error
}
