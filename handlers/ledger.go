package handlers

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"ticket-exchange/models"
)

// RecordLedger backs the durable side of both engines with PocketBase
// collections: scan audit rows, bid audit rows, the auction projection and
// the bidder key registry.
type RecordLedger struct {
	app core.App
}

func NewRecordLedger(app core.App) *RecordLedger {
	return &RecordLedger{app: app}
}

// Append writes one scan audit row. The partial unique index on accepted
// rows makes a second accepted insert for the same ticket fail, so the
// durable store can never disagree with the hot claim.
func (l *RecordLedger) Append(ctx context.Context, rec models.ScanRecord) error {
	collection, err := l.app.FindCollectionByNameOrId("scan_records")
	if err != nil {
		return fmt.Errorf("ledger: scan_records collection: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("ticket", rec.TicketID)
	record.Set("scanner", rec.Scanner)
	record.Set("scanned_at", rec.ScannedAt.UTC())
	record.Set("outcome", string(rec.Outcome))
	record.Set("reason", rec.Reason)

	if err := l.app.Save(record); err != nil {
		return fmt.Errorf("ledger: append scan record: %w", err)
	}
	return nil
}

// AppendBid writes one bid audit row, accepted bids only.
func (l *RecordLedger) AppendBid(ctx context.Context, bid models.BidSubmission) error {
	collection, err := l.app.FindCollectionByNameOrId("bids")
	if err != nil {
		return fmt.Errorf("ledger: bids collection: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("auction", bid.AuctionID)
	record.Set("bidder", bid.BidderAddress)
	record.Set("amount", bid.Amount.String())
	record.Set("bid_timestamp", bid.Timestamp)
	record.Set("signature", bid.Signature)

	if err := l.app.Save(record); err != nil {
		return fmt.Errorf("ledger: append bid: %w", err)
	}
	return nil
}

// UpdateAuction mirrors the hot state into the auction projection record.
func (l *RecordLedger) UpdateAuction(ctx context.Context, auctionID string, highest decimal.Decimal, bidder string, bidCount int) error {
	record, err := l.findAuction(auctionID)
	if err != nil {
		return err
	}

	record.Set("highest_bid", highest.String())
	record.Set("highest_bidder", bidder)
	record.Set("bid_count", bidCount)

	if err := l.app.Save(record); err != nil {
		return fmt.Errorf("ledger: update auction %s: %w", auctionID, err)
	}
	return nil
}

// MarkClosed flips the auction projection to closed. Idempotent.
func (l *RecordLedger) MarkClosed(ctx context.Context, auctionID string) error {
	record, err := l.findAuction(auctionID)
	if err != nil {
		return err
	}

	if record.GetString("status") != string(models.AuctionOpen) {
		return nil
	}

	record.Set("status", string(models.AuctionClosed))

	if err := l.app.Save(record); err != nil {
		return fmt.Errorf("ledger: close auction %s: %w", auctionID, err)
	}
	return nil
}

// MarkSettled records a confirmed payment against a closed auction.
func (l *RecordLedger) MarkSettled(ctx context.Context, auctionID, reference string) error {
	record, err := l.findAuction(auctionID)
	if err != nil {
		return err
	}

	record.Set("status", "settled")
	record.Set("settlement_ref", reference)

	if err := l.app.Save(record); err != nil {
		return fmt.Errorf("ledger: settle auction %s: %w", auctionID, err)
	}
	return nil
}

// ResolveKey returns the registered ed25519 public key for a bidder address.
func (l *RecordLedger) ResolveKey(ctx context.Context, address string) (ed25519.PublicKey, error) {
	record, err := l.app.FindFirstRecordByFilter("wallet_keys",
		"address = {:address}", dbx.Params{"address": address})
	if err != nil {
		return nil, fmt.Errorf("ledger: no key registered for %s: %w", address, err)
	}

	raw, err := hex.DecodeString(record.GetString("public_key"))
	if err != nil {
		return nil, fmt.Errorf("ledger: bad public key for %s: %w", address, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("ledger: public key for %s has size %d", address, len(raw))
	}

	return ed25519.PublicKey(raw), nil
}

func (l *RecordLedger) findAuction(auctionID string) (*core.Record, error) {
	record, err := l.app.FindFirstRecordByFilter("auctions",
		"auction_id = {:id}", dbx.Params{"id": auctionID})
	if err != nil {
		return nil, fmt.Errorf("ledger: auction %s: %w", auctionID, err)
	}
	return record, nil
}
