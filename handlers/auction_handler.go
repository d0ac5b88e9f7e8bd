package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"ticket-exchange/internal/auction"
	"ticket-exchange/internal/clock"
	"ticket-exchange/models"
	"ticket-exchange/utils"
)

type AuctionHandler struct {
	app            *pocketbase.PocketBase
	auctionService *auction.Service
	clock          clock.Clock
}

func NewAuctionHandler(app *pocketbase.PocketBase, auctionService *auction.Service, clk clock.Clock) *AuctionHandler {
	return &AuctionHandler{
		app:            app,
		auctionService: auctionService,
		clock:          clk,
	}
}

// CreateAuction lists a ticket for auction: a durable projection record plus
// the hot state hash that bids are applied against.
func (h *AuctionHandler) CreateAuction(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		TicketID      string `json:"ticket_id"`
		SellerAddress string `json:"seller_address"`
		StartBid      string `json:"start_bid"`
		ReservePrice  string `json:"reserve_price"`
		DurationHours int    `json:"duration_hours"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	startBid, err := decimal.NewFromString(req.StartBid)
	if err != nil || startBid.Sign() <= 0 {
		return apis.NewBadRequestError("start_bid must be a positive decimal", err)
	}

	var reserve *decimal.Decimal
	if req.ReservePrice != "" {
		r, err := decimal.NewFromString(req.ReservePrice)
		if err != nil || r.Cmp(startBid) < 0 {
			return apis.NewBadRequestError("reserve_price must be a decimal >= start_bid", err)
		}
		reserve = &r
	}

	if req.DurationHours <= 0 || req.DurationHours > 24*14 {
		return apis.NewBadRequestError("duration_hours must be between 1 and 336", nil)
	}

	ticket, err := h.app.FindFirstRecordByFilter("tickets",
		"ticket_id = {:id}", dbx.Params{"id": req.TicketID})
	if err != nil {
		return apis.NewNotFoundError("Ticket not found", err)
	}
	if err := requireTicketOwner(ticket, e.Auth.Id); err != nil {
		return err
	}

	auctionID, err := utils.GenerateCode(8)
	if err != nil {
		return apis.NewBadRequestError("Failed to allocate auction id", err)
	}

	now := h.clock.Now()
	state := models.AuctionState{
		AuctionID:     auctionID,
		TicketID:      req.TicketID,
		SellerAddress: req.SellerAddress,
		StartBid:      startBid,
		ReservePrice:  reserve,
		CreatedAt:     now,
		EndTime:       now.Add(time.Duration(req.DurationHours) * time.Hour),
		Status:        models.AuctionOpen,
	}

	collection, err := h.app.FindCollectionByNameOrId("auctions")
	if err != nil {
		return apis.NewBadRequestError("Auctions collection missing", err)
	}

	record := core.NewRecord(collection)
	record.Set("auction_id", state.AuctionID)
	record.Set("ticket", state.TicketID)
	record.Set("seller", state.SellerAddress)
	record.Set("start_bid", state.StartBid.String())
	if reserve != nil {
		record.Set("reserve_price", reserve.String())
	}
	record.Set("end_time", state.EndTime.UTC())
	record.Set("status", string(models.AuctionOpen))
	record.Set("bid_count", 0)

	if err := h.app.Save(record); err != nil {
		return apis.NewBadRequestError("Failed to create auction", err)
	}

	if err := h.auctionService.SeedAuction(e.Request.Context(), state); err != nil {
		return apis.NewBadRequestError("Failed to open auction", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"auction_id": state.AuctionID,
		"start_bid":  state.StartBid.String(),
		"end_time":   state.EndTime,
	})
}

// SubmitBid accepts one signed bid and maps the engine verdict onto the
// HTTP surface. Pricing rejections always include the current highest and
// the computed minimum so a client can immediately re-bid correctly.
func (h *AuctionHandler) SubmitBid(e *core.RequestEvent) error {
	auctionID := e.Request.PathValue("auctionId")
	if auctionID == "" {
		return apis.NewBadRequestError("auctionId is required", nil)
	}

	var req struct {
		BidderAddress string `json:"bidder_address"`
		Amount        string `json:"amount"`
		Timestamp     int64  `json:"timestamp"`
		Signature     string `json:"signature"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.Sign() <= 0 {
		return apis.NewBadRequestError("amount must be a positive decimal", err)
	}

	result := h.auctionService.SubmitBid(e.Request.Context(), models.BidSubmission{
		AuctionID:     auctionID,
		BidderAddress: req.BidderAddress,
		Amount:        amount,
		Timestamp:     req.Timestamp,
		Signature:     req.Signature,
	})

	switch result.Status {
	case models.BidAccepted:
		return e.JSON(http.StatusOK, map[string]any{
			"accepted":        true,
			"current_highest": result.CurrentHighest.String(),
			"bid_count":       result.BidCount,
			"minimum_next":    result.MinimumRequired.String(),
		})

	case models.BidAuctionNotFound:
		return apis.NewNotFoundError("Auction not found", nil)

	case models.BidAuctionClosed:
		return e.JSON(http.StatusConflict, map[string]any{
			"accepted":        false,
			"error":           "auction_closed",
			"current_highest": result.CurrentHighest.String(),
		})

	case models.BidBadSignature:
		return apis.NewUnauthorizedError("Bid signature verification failed", nil)

	case models.BidStaleTimestamp:
		return e.JSON(http.StatusUnprocessableEntity, map[string]any{
			"accepted": false,
			"error":    "stale_timestamp",
		})

	case models.BidBelowMinimum, models.BidOutbid:
		return e.JSON(http.StatusUnprocessableEntity, map[string]any{
			"accepted":         false,
			"error":            result.Status.String(),
			"current_highest":  result.CurrentHighest.String(),
			"minimum_required": result.MinimumRequired.String(),
		})

	default:
		return apis.NewBadRequestError("Failed to place bid", result.Err)
	}
}

// GetAuction returns the public auction view. Bidder signatures and key
// material never appear here.
func (h *AuctionHandler) GetAuction(e *core.RequestEvent) error {
	auctionID := e.Request.PathValue("auctionId")
	if auctionID == "" {
		return apis.NewBadRequestError("auctionId is required", nil)
	}

	state, err := h.auctionService.LoadState(e.Request.Context(), auctionID)
	if err != nil {
		if errors.Is(err, auction.ErrAuctionNotFound) {
			return apis.NewNotFoundError("Auction not found", nil)
		}
		return apis.NewBadRequestError("Failed to load auction", err)
	}

	// Observing an expired auction closes it; the stored status never lags
	// behind what this response reports.
	now := h.clock.Now()
	state = h.auctionService.CloseIfExpired(e.Request.Context(), state, now)

	remaining, percent := auction.Progress(state, now)

	resp := map[string]any{
		"auction_id":       state.AuctionID,
		"ticket":           state.TicketID,
		"status":           string(state.Status),
		"open":             auction.IsOpen(state, now),
		"start_bid":        state.StartBid.String(),
		"current_highest":  state.CurrentHighestBid.String(),
		"highest_bidder":   state.CurrentHighestBidder,
		"bid_count":        state.BidCount,
		"minimum_next":     h.auctionService.MinimumFor(state).String(),
		"reserve_met":      state.ReserveMet(),
		"end_time":         state.EndTime,
		"remaining":        remaining,
		"progress_percent": percent,
	}
	if state.BidCount == 0 {
		resp["current_highest"] = ""
		resp["highest_bidder"] = ""
	}

	return e.JSON(http.StatusOK, resp)
}
