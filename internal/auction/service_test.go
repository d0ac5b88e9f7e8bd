package auction

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-exchange/internal/clock"
	"ticket-exchange/models"
)

type fakeBidLedger struct {
	bids    []models.BidSubmission
	updates int
	closed  []string
}

func (f *fakeBidLedger) AppendBid(_ context.Context, bid models.BidSubmission) error {
	f.bids = append(f.bids, bid)
	return nil
}

func (f *fakeBidLedger) UpdateAuction(_ context.Context, _ string, _ decimal.Decimal, _ string, _ int) error {
	f.updates++
	return nil
}

func (f *fakeBidLedger) MarkClosed(_ context.Context, auctionID string) error {
	f.closed = append(f.closed, auctionID)
	return nil
}

type serviceFixture struct {
	svc    *Service
	mock   redismock.ClientMock
	ledger *fakeBidLedger
	clock  *clock.Fake
	priv   ed25519.PrivateKey
	now    time.Time
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	db, mock := redismock.NewClientMock()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFake(now)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	verifier := NewSignatureVerifier(staticKeys{"alice": pub, "bob": pub}, 2*time.Minute, clk)
	ledger := &fakeBidLedger{}

	svc := NewService(db, verifier, testPolicy(), ledger, clk, nil, nil, time.Minute)

	return &serviceFixture{
		svc:    svc,
		mock:   mock,
		ledger: ledger,
		clock:  clk,
		priv:   priv,
		now:    now,
	}
}

func (f *serviceFixture) auctionHash(highest string, bidCount int) map[string]string {
	return map[string]string{
		"ticket":         "ticket-001",
		"seller":         "seller-1",
		"status":         "open",
		"created_at":     fmt.Sprint(f.now.Add(-time.Hour).Unix()),
		"end_time":       fmt.Sprint(f.now.Add(time.Hour).Unix()),
		"start_bid":      "0.10",
		"reserve_price":  "",
		"highest_bid":    highest,
		"highest_bidder": "",
		"bid_count":      fmt.Sprint(bidCount),
	}
}

func (f *serviceFixture) bid(t *testing.T, amount string) models.BidSubmission {
	t.Helper()
	return signedBid(t, f.priv, amount, f.now.Unix())
}

func TestSubmitBid_FirstBidAccepted(t *testing.T) {
	f := newServiceFixture(t)
	key := "auction:auc-1"

	// Amounts reach Redis as Decimal.String(), which drops trailing zeros;
	// the script argument must be the canonical rendering.
	f.mock.ExpectHGetAll(key).SetVal(f.auctionHash("", 0))
	f.mock.ExpectEval(submitBidScript, []string{key},
		"", "0.12", "alice", f.now.Unix()).
		SetVal([]any{"accepted", int64(1)})

	res := f.svc.SubmitBid(context.Background(), f.bid(t, "0.12"))

	assert.Equal(t, models.BidAccepted, res.Status)
	assert.Equal(t, 1, res.BidCount)
	assert.True(t, res.CurrentHighest.Equal(decimal.RequireFromString("0.12")))
	assert.True(t, res.MinimumRequired.Equal(decimal.RequireFromString("0.13")))

	require.Len(t, f.ledger.bids, 1)
	assert.Equal(t, 1, f.ledger.updates)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSubmitBid_FirstBidBelowStartIsRejected(t *testing.T) {
	f := newServiceFixture(t)
	key := "auction:auc-1"

	f.mock.ExpectHGetAll(key).SetVal(f.auctionHash("", 0))

	res := f.svc.SubmitBid(context.Background(), f.bid(t, "0.05"))

	assert.Equal(t, models.BidBelowMinimum, res.Status)
	assert.True(t, res.MinimumRequired.Equal(decimal.RequireFromString("0.10")))
	assert.Empty(t, f.ledger.bids)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSubmitBid_BelowMinimumOverCurrentHighest(t *testing.T) {
	f := newServiceFixture(t)
	key := "auction:auc-1"

	f.mock.ExpectHGetAll(key).SetVal(f.auctionHash("0.06", 3))

	res := f.svc.SubmitBid(context.Background(), f.bid(t, "0.065"))

	assert.Equal(t, models.BidBelowMinimum, res.Status)
	assert.True(t, res.CurrentHighest.Equal(decimal.RequireFromString("0.06")))
	assert.True(t, res.MinimumRequired.Equal(decimal.RequireFromString("0.07")))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSubmitBid_StaleTimestamp(t *testing.T) {
	f := newServiceFixture(t)
	key := "auction:auc-1"

	f.mock.ExpectHGetAll(key).SetVal(f.auctionHash("", 0))

	bid := signedBid(t, f.priv, "0.20", f.now.Add(-10*time.Minute).Unix())
	res := f.svc.SubmitBid(context.Background(), bid)

	assert.Equal(t, models.BidStaleTimestamp, res.Status)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSubmitBid_BadSignature(t *testing.T) {
	f := newServiceFixture(t)
	key := "auction:auc-1"

	f.mock.ExpectHGetAll(key).SetVal(f.auctionHash("", 0))

	bid := f.bid(t, "0.20")
	bid.Amount = decimal.RequireFromString("0.30") // no longer matches the signature

	res := f.svc.SubmitBid(context.Background(), bid)

	assert.Equal(t, models.BidBadSignature, res.Status)
	assert.Empty(t, f.ledger.bids)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSubmitBid_PastDeadlineClosesLazily(t *testing.T) {
	f := newServiceFixture(t)
	key := "auction:auc-1"

	h := f.auctionHash("0.50", 4)
	h["end_time"] = fmt.Sprint(f.now.Add(-time.Minute).Unix())

	f.mock.ExpectHGetAll(key).SetVal(h)
	f.mock.ExpectEval(closeAuctionScript, []string{key}, f.now.Unix()).
		SetVal("closed")

	res := f.svc.SubmitBid(context.Background(), f.bid(t, "1.00"))

	assert.Equal(t, models.BidAuctionClosed, res.Status)
	assert.True(t, res.CurrentHighest.Equal(decimal.RequireFromString("0.50")))
	assert.Equal(t, []string{"auc-1"}, f.ledger.closed)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSubmitBid_UnknownAuction(t *testing.T) {
	f := newServiceFixture(t)

	f.mock.ExpectHGetAll("auction:auc-1").SetVal(map[string]string{})

	res := f.svc.SubmitBid(context.Background(), f.bid(t, "0.20"))

	assert.Equal(t, models.BidAuctionNotFound, res.Status)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSubmitBid_ConflictRetriesAgainstFreshHighest(t *testing.T) {
	f := newServiceFixture(t)
	key := "auction:auc-1"

	// First read sees 0.10; the CAS loses to a concurrent 0.12 bid. The
	// retry re-reads and finds the amount now below the fresh minimum,
	// which is an outbid, not a generic rejection.
	f.mock.ExpectHGetAll(key).SetVal(f.auctionHash("0.10", 1))
	f.mock.ExpectEval(submitBidScript, []string{key},
		"0.10", "0.11", "alice", f.now.Unix()).
		SetVal([]any{"conflict", "0.12"})
	f.mock.ExpectHGetAll(key).SetVal(f.auctionHash("0.12", 2))

	res := f.svc.SubmitBid(context.Background(), f.bid(t, "0.11"))

	assert.Equal(t, models.BidOutbid, res.Status)
	assert.True(t, res.CurrentHighest.Equal(decimal.RequireFromString("0.12")))
	assert.True(t, res.MinimumRequired.Equal(decimal.RequireFromString("0.13")))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSubmitBid_ConflictRetrySucceedsWhenStillAboveMinimum(t *testing.T) {
	f := newServiceFixture(t)
	key := "auction:auc-1"

	// Two concurrent valid bids: the loser of the first CAS still clears
	// the raised minimum, so both land and the count advances twice.
	f.mock.ExpectHGetAll(key).SetVal(f.auctionHash("0.10", 1))
	f.mock.ExpectEval(submitBidScript, []string{key},
		"0.10", "0.25", "alice", f.now.Unix()).
		SetVal([]any{"conflict", "0.12"})
	f.mock.ExpectHGetAll(key).SetVal(f.auctionHash("0.12", 2))
	f.mock.ExpectEval(submitBidScript, []string{key},
		"0.12", "0.25", "alice", f.now.Unix()).
		SetVal([]any{"accepted", int64(3)})

	res := f.svc.SubmitBid(context.Background(), f.bid(t, "0.25"))

	assert.Equal(t, models.BidAccepted, res.Status)
	assert.Equal(t, 3, res.BidCount)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCloseIfExpired_FlipsOnFirstObservation(t *testing.T) {
	f := newServiceFixture(t)
	key := "auction:auc-1"

	h := f.auctionHash("0.50", 4)
	h["end_time"] = fmt.Sprint(f.now.Add(-time.Minute).Unix())
	state, err := stateFromHash("auc-1", h)
	require.NoError(t, err)

	f.mock.ExpectEval(closeAuctionScript, []string{key}, f.now.Unix()).
		SetVal("closed")

	observed := f.svc.CloseIfExpired(context.Background(), state, f.now)

	assert.Equal(t, models.AuctionClosed, observed.Status)
	assert.Equal(t, []string{"auc-1"}, f.ledger.closed)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCloseIfExpired_LeavesRunningAuctionAlone(t *testing.T) {
	f := newServiceFixture(t)

	state, err := stateFromHash("auc-1", f.auctionHash("0.50", 4))
	require.NoError(t, err)

	// still before the deadline: no store round trip at all
	observed := f.svc.CloseIfExpired(context.Background(), state, f.now)

	assert.Equal(t, models.AuctionOpen, observed.Status)
	assert.Empty(t, f.ledger.closed)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSeedAuction(t *testing.T) {
	f := newServiceFixture(t)

	// Trailing zeros in the listing do not survive Decimal.String(); the
	// hash must hold the canonical forms or re-reads would never compare
	// equal inside the CAS script.
	reserve := decimal.RequireFromString("2.50")
	state := models.AuctionState{
		AuctionID:     "auc-9",
		TicketID:      "ticket-009",
		SellerAddress: "seller-1",
		StartBid:      decimal.RequireFromString("0.10"),
		ReservePrice:  &reserve,
		CreatedAt:     f.now,
		EndTime:       f.now.Add(time.Hour),
		Status:        models.AuctionOpen,
	}

	f.mock.ExpectHSet("auction:auc-9", map[string]any{
		"ticket":         "ticket-009",
		"seller":         "seller-1",
		"status":         "open",
		"created_at":     f.now.Unix(),
		"end_time":       f.now.Add(time.Hour).Unix(),
		"start_bid":      "0.1",
		"reserve_price":  "2.5",
		"highest_bid":    "",
		"highest_bidder": "",
		"bid_count":      0,
	}).SetVal(10)

	require.NoError(t, f.svc.SeedAuction(context.Background(), state))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestLoadState(t *testing.T) {
	f := newServiceFixture(t)

	f.mock.ExpectHGetAll("auction:auc-1").SetVal(f.auctionHash("0.30", 2))

	state, err := f.svc.LoadState(context.Background(), "auc-1")
	require.NoError(t, err)

	assert.Equal(t, "auc-1", state.AuctionID)
	assert.Equal(t, "ticket-001", state.TicketID)
	assert.True(t, state.CurrentHighestBid.Equal(decimal.RequireFromString("0.30")))
	assert.Equal(t, 2, state.BidCount)
	assert.Equal(t, models.AuctionOpen, state.Status)

	f.mock.ExpectHGetAll("auction:missing").SetVal(map[string]string{})
	_, err = f.svc.LoadState(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrAuctionNotFound)
}
