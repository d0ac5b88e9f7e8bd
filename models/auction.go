package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AuctionStatus string

const (
	AuctionOpen   AuctionStatus = "open"
	AuctionClosed AuctionStatus = "closed"
)

// AuctionState is the authoritative per-auction record. The hot copy lives
// in a Redis hash keyed by auction id and is only ever mutated through the
// bid acceptance script, so the highest bid is monotonically non-decreasing
// and frozen once the auction closes.
type AuctionState struct {
	AuctionID            string           `json:"auction_id"`
	TicketID             string           `json:"ticket_id"`
	SellerAddress        string           `json:"seller_address"`
	StartBid             decimal.Decimal  `json:"start_bid"`
	ReservePrice         *decimal.Decimal `json:"reserve_price,omitempty"`
	CurrentHighestBid    decimal.Decimal  `json:"current_highest_bid"`
	CurrentHighestBidder string           `json:"current_highest_bidder"`
	BidCount             int              `json:"bid_count"`
	CreatedAt            time.Time        `json:"created_at"`
	EndTime              time.Time        `json:"end_time"`
	Status               AuctionStatus    `json:"status"`
}

// ReserveMet reports whether the reserve price (if any) has been reached.
func (a *AuctionState) ReserveMet() bool {
	if a.ReservePrice == nil {
		return true
	}
	return a.BidCount > 0 && a.CurrentHighestBid.Cmp(*a.ReservePrice) >= 0
}

// BidSubmission is one signed bid as received from a bidder. The signature
// covers the canonical serialization of the other fields and must verify
// against the registered key for the bidder address.
type BidSubmission struct {
	AuctionID     string          `json:"auction_id"`
	BidderAddress string          `json:"bidder_address"`
	Amount        decimal.Decimal `json:"amount"`
	Timestamp     int64           `json:"timestamp"`
	Signature     string          `json:"signature"` // hex encoded
}

// SubmitStatus is the closed set of bid submission verdicts.
type SubmitStatus int

const (
	BidAccepted SubmitStatus = iota
	BidAuctionClosed
	BidAuctionNotFound
	BidBadSignature
	BidStaleTimestamp
	BidBelowMinimum
	BidOutbid
	BidStoreError
)

func (s SubmitStatus) String() string {
	switch s {
	case BidAccepted:
		return "accepted"
	case BidAuctionClosed:
		return "auction_closed"
	case BidAuctionNotFound:
		return "auction_not_found"
	case BidBadSignature:
		return "bad_signature"
	case BidStaleTimestamp:
		return "stale_timestamp"
	case BidBelowMinimum:
		return "below_minimum"
	case BidOutbid:
		return "outbid"
	default:
		return "store_error"
	}
}

// SubmitResult carries the verdict plus the data a client needs to retry
// correctly: on any pricing rejection the computed minimum is included, not
// a bare refusal.
type SubmitResult struct {
	Status          SubmitStatus
	CurrentHighest  decimal.Decimal
	MinimumRequired decimal.Decimal
	BidCount        int
	Err             error
}
