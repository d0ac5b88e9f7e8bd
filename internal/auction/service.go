// Package auction accepts cryptographically signed bids against a tiered
// minimum-increment schedule and maintains the authoritative current-highest
// bid under concurrency. The Redis hash per auction is the single source of
// truth for the outcome; it is only mutated through the acceptance script.
package auction

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"strconv"
	"sync"
	"time"

	pubnub "github.com/pubnub/go"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"ticket-exchange/internal/clock"
	"ticket-exchange/models"
	"ticket-exchange/monitoring"
)

var ErrAuctionNotFound = errors.New("auction: not found")

// maxCASRetries bounds the optimistic read-modify-write loop. A conflict
// means another bid landed between our read and our write; the retry
// re-validates against the fresh highest.
const maxCASRetries = 3

// BidLedger is the durable, append-only side of the engine: bid audit rows
// and the auction projection kept for display and settlement.
type BidLedger interface {
	AppendBid(ctx context.Context, bid models.BidSubmission) error
	UpdateAuction(ctx context.Context, auctionID string, highest decimal.Decimal, bidder string, bidCount int) error
	MarkClosed(ctx context.Context, auctionID string) error
}

// submitBidScript performs the atomic read-modify-write for one bid. The
// deadline check, the compare-and-swap on the stored highest and the counter
// increment happen in a single script execution, so two concurrent bids can
// never both win against a stale read.
const submitBidScript = `
local key = KEYS[1]
if redis.call("EXISTS", key) == 0 then
	return {"missing"}
end
local status = redis.call("HGET", key, "status")
local endTime = tonumber(redis.call("HGET", key, "end_time"))
if status ~= "open" or tonumber(ARGV[4]) >= endTime then
	redis.call("HSET", key, "status", "closed")
	return {"closed"}
end
local current = redis.call("HGET", key, "highest_bid")
if current ~= ARGV[1] then
	return {"conflict", current}
end
redis.call("HSET", key, "highest_bid", ARGV[2], "highest_bidder", ARGV[3])
local count = redis.call("HINCRBY", key, "bid_count", 1)
return {"accepted", count}
`

// closeAuctionScript flips an auction past its deadline to closed. Safe to
// run redundantly; a closed auction stays closed.
const closeAuctionScript = `
local key = KEYS[1]
if redis.call("EXISTS", key) == 0 then
	return "missing"
end
local status = redis.call("HGET", key, "status")
if status ~= "open" then
	return status
end
if tonumber(ARGV[1]) >= tonumber(redis.call("HGET", key, "end_time")) then
	redis.call("HSET", key, "status", "closed")
	return "closed"
end
return "open"
`

type Service struct {
	Redis    *redis.Client
	verifier *SignatureVerifier
	policy   *IncrementPolicy
	ledger   BidLedger
	clock    clock.Clock
	pubnub   *pubnub.PubNub
	monitor  *monitoring.Monitor

	sweepEvery time.Duration
	stopChan   chan struct{}
	wg         sync.WaitGroup
}

func NewService(redisClient *redis.Client, verifier *SignatureVerifier, policy *IncrementPolicy,
	ledger BidLedger, clk clock.Clock, pn *pubnub.PubNub, monitor *monitoring.Monitor,
	sweepEvery time.Duration) *Service {
	return &Service{
		Redis:      redisClient,
		verifier:   verifier,
		policy:     policy,
		ledger:     ledger,
		clock:      clk,
		pubnub:     pn,
		monitor:    monitor,
		sweepEvery: sweepEvery,
		stopChan:   make(chan struct{}),
	}
}

// SeedAuction writes the hot state hash for a newly listed auction.
func (s *Service) SeedAuction(ctx context.Context, state models.AuctionState) error {
	reserve := ""
	if state.ReservePrice != nil {
		reserve = state.ReservePrice.String()
	}

	err := s.Redis.HSet(ctx, auctionKey(state.AuctionID), map[string]any{
		"ticket":         state.TicketID,
		"seller":         state.SellerAddress,
		"status":         string(models.AuctionOpen),
		"created_at":     state.CreatedAt.Unix(),
		"end_time":       state.EndTime.Unix(),
		"start_bid":      state.StartBid.String(),
		"reserve_price":  reserve,
		"highest_bid":    "",
		"highest_bidder": "",
		"bid_count":      0,
	}).Err()
	if err != nil {
		return fmt.Errorf("auction: seed %s: %w", state.AuctionID, err)
	}
	return nil
}

// LoadState reads the authoritative auction state.
func (s *Service) LoadState(ctx context.Context, auctionID string) (models.AuctionState, error) {
	h, err := s.Redis.HGetAll(ctx, auctionKey(auctionID)).Result()
	if err != nil {
		return models.AuctionState{}, fmt.Errorf("auction: load %s: %w", auctionID, err)
	}
	if len(h) == 0 {
		return models.AuctionState{}, ErrAuctionNotFound
	}
	return stateFromHash(auctionID, h)
}

// SubmitBid validates and, when everything holds, atomically installs the
// bid as the new highest. Every rejection that involves pricing carries the
// computed minimum so the client can retry correctly.
func (s *Service) SubmitBid(ctx context.Context, bid models.BidSubmission) models.SubmitResult {
	res := s.submit(ctx, bid)
	if s.monitor != nil {
		s.monitor.TrackBid(bid.AuctionID, res.Status.String())
	}
	return res
}

func (s *Service) submit(ctx context.Context, bid models.BidSubmission) models.SubmitResult {
	now := s.clock.Now()
	verified := false

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		h, err := s.Redis.HGetAll(ctx, auctionKey(bid.AuctionID)).Result()
		if err != nil {
			return models.SubmitResult{Status: models.BidStoreError, Err: err}
		}
		if len(h) == 0 {
			return models.SubmitResult{Status: models.BidAuctionNotFound}
		}

		state, err := stateFromHash(bid.AuctionID, h)
		if err != nil {
			return models.SubmitResult{Status: models.BidStoreError, Err: err}
		}

		if !IsOpen(state, now) {
			s.closeNow(ctx, state, now)
			return models.SubmitResult{
				Status:         models.BidAuctionClosed,
				CurrentHighest: state.CurrentHighestBid,
				BidCount:       state.BidCount,
			}
		}

		// Signature and freshness only need to be checked once per
		// submission; a CAS retry does not change the payload.
		if !verified {
			if !s.verifier.Fresh(bid) {
				return models.SubmitResult{Status: models.BidStaleTimestamp}
			}
			if !s.verifier.Verify(ctx, bid) {
				slog.Warn("bid failed signature verification",
					"auction", bid.AuctionID, "bidder", bid.BidderAddress)
				return models.SubmitResult{Status: models.BidBadSignature}
			}
			verified = true
		}

		minimum := s.MinimumFor(state)
		if bid.Amount.Cmp(minimum) < 0 {
			status := models.BidBelowMinimum
			if attempt > 0 {
				// The amount was fine against the pre-race highest;
				// a concurrent bid raised the bar.
				status = models.BidOutbid
			}
			return models.SubmitResult{
				Status:          status,
				CurrentHighest:  state.CurrentHighestBid,
				MinimumRequired: minimum,
				BidCount:        state.BidCount,
			}
		}

		reply, err := s.Redis.Eval(ctx, submitBidScript,
			[]string{auctionKey(bid.AuctionID)},
			h["highest_bid"], bid.Amount.String(), bid.BidderAddress, now.Unix(),
		).Result()
		if err != nil {
			return models.SubmitResult{Status: models.BidStoreError, Err: err}
		}

		verdict, args, err := parseScriptReply(reply)
		if err != nil {
			return models.SubmitResult{Status: models.BidStoreError, Err: err}
		}

		switch verdict {
		case "accepted":
			count := state.BidCount + 1
			if len(args) > 0 {
				if n, ok := args[0].(int64); ok {
					count = int(n)
				}
			}
			s.recordAccepted(ctx, bid, count, state.CurrentHighestBidder)
			return models.SubmitResult{
				Status:          models.BidAccepted,
				CurrentHighest:  bid.Amount,
				MinimumRequired: s.policy.MinimumNextBid(bid.Amount),
				BidCount:        count,
			}

		case "closed":
			s.markClosedDurable(ctx, state)
			return models.SubmitResult{
				Status:         models.BidAuctionClosed,
				CurrentHighest: state.CurrentHighestBid,
				BidCount:       state.BidCount,
			}

		case "missing":
			return models.SubmitResult{Status: models.BidAuctionNotFound}

		case "conflict":
			// Another bid won the write; loop and re-validate.
			continue

		default:
			return models.SubmitResult{
				Status: models.BidStoreError,
				Err:    fmt.Errorf("auction: unexpected verdict %q", verdict),
			}
		}
	}

	// Retries exhausted under sustained contention. Report the fresh
	// minimum rather than a generic failure.
	state, err := s.LoadState(ctx, bid.AuctionID)
	if err != nil {
		return models.SubmitResult{Status: models.BidStoreError, Err: err}
	}
	return models.SubmitResult{
		Status:          models.BidOutbid,
		CurrentHighest:  state.CurrentHighestBid,
		MinimumRequired: s.MinimumFor(state),
		BidCount:        state.BidCount,
	}
}

// MinimumFor computes the lowest acceptable bid for the current state. The
// first bid is validated against the start bid, not against a zero highest.
func (s *Service) MinimumFor(state models.AuctionState) decimal.Decimal {
	if state.BidCount == 0 {
		return state.StartBid
	}
	return s.policy.MinimumNextBid(state.CurrentHighestBid)
}

func (s *Service) recordAccepted(ctx context.Context, bid models.BidSubmission, count int, previousBidder string) {
	if err := s.ledger.AppendBid(ctx, bid); err != nil {
		slog.Error("bid audit append failed", "auction", bid.AuctionID, "error", err)
	}
	if err := s.ledger.UpdateAuction(ctx, bid.AuctionID, bid.Amount, bid.BidderAddress, count); err != nil {
		slog.Error("auction projection update failed", "auction", bid.AuctionID, "error", err)
	}

	if s.pubnub != nil && previousBidder != "" && previousBidder != bid.BidderAddress {
		channel := fmt.Sprintf("user-%s", previousBidder)
		s.pubnub.Publish().
			Channel(channel).
			Message(map[string]any{
				"type":        "outbid",
				"auction_id":  bid.AuctionID,
				"new_highest": bid.Amount.String(),
				"minimum":     s.policy.MinimumNextBid(bid.Amount).String(),
			}).
			Execute()
	}
}

// CloseIfExpired flips an auction whose deadline has passed but whose stored
// status is still open, and returns the state as observed. Every read path
// calls this, so the first observation of an expired auction performs the
// transition rather than waiting for a bid attempt or the sweep.
func (s *Service) CloseIfExpired(ctx context.Context, state models.AuctionState, now time.Time) models.AuctionState {
	if state.Status == models.AuctionOpen && !IsOpen(state, now) {
		s.closeNow(ctx, state, now)
		state.Status = models.AuctionClosed
	}
	return state
}

// closeNow flips the hot state to closed when a deadline is observed and
// mirrors the flip into the durable store.
func (s *Service) closeNow(ctx context.Context, state models.AuctionState, now time.Time) {
	verdict, err := s.Redis.Eval(ctx, closeAuctionScript,
		[]string{auctionKey(state.AuctionID)}, now.Unix(),
	).Result()
	if err != nil {
		slog.Error("auction close failed", "auction", state.AuctionID, "error", err)
		return
	}
	if verdict == "closed" && state.Status == models.AuctionOpen {
		s.markClosedDurable(ctx, state)
	}
}

func (s *Service) markClosedDurable(ctx context.Context, state models.AuctionState) {
	if err := s.ledger.MarkClosed(ctx, state.AuctionID); err != nil {
		slog.Error("auction close projection failed", "auction", state.AuctionID, "error", err)
	}

	if s.pubnub != nil {
		s.pubnub.Publish().
			Channel(fmt.Sprintf("auction-%s", state.AuctionID)).
			Message(map[string]any{
				"type":        "auction_closed",
				"auction_id":  state.AuctionID,
				"winner":      state.CurrentHighestBidder,
				"amount":      state.CurrentHighestBid.String(),
				"reserve_met": state.ReserveMet(),
			}).
			Execute()
	}
}

// StartSweeper launches the periodic deadline sweep. The sweep is
// idempotent and merely accelerates what every access path already does
// lazily, so it is safe to run redundantly or skip.
func (s *Service) StartSweeper() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.sweepEvery)
		defer ticker.Stop()

		log.Println("Auction sweeper started")

		for {
			select {
			case <-ticker.C:
				s.CloseExpired(context.Background())
			case <-s.stopChan:
				log.Println("Auction sweeper stopping")
				return
			}
		}
	}()
}

// CloseExpired flips every auction past its deadline to closed.
func (s *Service) CloseExpired(ctx context.Context) {
	now := s.clock.Now()

	keys, err := s.Redis.Keys(ctx, "auction:*").Result()
	if err != nil {
		log.Printf("Error listing auctions: %v", err)
		return
	}

	closed := 0
	for _, key := range keys {
		auctionID := key[len("auction:"):]

		state, err := s.LoadState(ctx, auctionID)
		if err != nil || state.Status != models.AuctionOpen {
			continue
		}
		if now.Before(state.EndTime) {
			continue
		}

		s.closeNow(ctx, state, now)
		closed++
	}

	if closed > 0 {
		log.Printf("Sweep closed %d auctions past deadline", closed)
	}
}

// Shutdown stops the background sweep and waits for it to finish.
func (s *Service) Shutdown() {
	close(s.stopChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Println("Timeout waiting for auction sweeper to stop")
	}
}

func auctionKey(auctionID string) string {
	return fmt.Sprintf("auction:%s", auctionID)
}

func parseScriptReply(reply any) (string, []any, error) {
	values, ok := reply.([]any)
	if !ok || len(values) == 0 {
		return "", nil, fmt.Errorf("auction: unexpected script reply: %v", reply)
	}
	verdict, ok := values[0].(string)
	if !ok {
		return "", nil, fmt.Errorf("auction: unexpected script verdict: %v", values[0])
	}
	return verdict, values[1:], nil
}

func stateFromHash(auctionID string, h map[string]string) (models.AuctionState, error) {
	startBid, err := decimal.NewFromString(h["start_bid"])
	if err != nil {
		return models.AuctionState{}, fmt.Errorf("auction: bad start_bid for %s: %w", auctionID, err)
	}

	var reserve *decimal.Decimal
	if h["reserve_price"] != "" {
		r, err := decimal.NewFromString(h["reserve_price"])
		if err != nil {
			return models.AuctionState{}, fmt.Errorf("auction: bad reserve_price for %s: %w", auctionID, err)
		}
		reserve = &r
	}

	highest := decimal.Zero
	if h["highest_bid"] != "" {
		highest, err = decimal.NewFromString(h["highest_bid"])
		if err != nil {
			return models.AuctionState{}, fmt.Errorf("auction: bad highest_bid for %s: %w", auctionID, err)
		}
	}

	bidCount, _ := strconv.Atoi(h["bid_count"])
	createdAt, _ := strconv.ParseInt(h["created_at"], 10, 64)
	endTime, err := strconv.ParseInt(h["end_time"], 10, 64)
	if err != nil {
		return models.AuctionState{}, fmt.Errorf("auction: bad end_time for %s: %w", auctionID, err)
	}

	return models.AuctionState{
		AuctionID:            auctionID,
		TicketID:             h["ticket"],
		SellerAddress:        h["seller"],
		StartBid:             startBid,
		ReservePrice:         reserve,
		CurrentHighestBid:    highest,
		CurrentHighestBidder: h["highest_bidder"],
		BidCount:             bidCount,
		CreatedAt:            time.Unix(createdAt, 0),
		EndTime:              time.Unix(endTime, 0),
		Status:               models.AuctionStatus(h["status"]),
	}, nil
}
