package handlers

import (
	"net/http"
	"strings"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-exchange/internal/auction"
	"ticket-exchange/internal/clock"
	"ticket-exchange/security"
)

type AdminHandler struct {
	app            *pocketbase.PocketBase
	auctionService *auction.Service
	clock          clock.Clock
}

func NewAdminHandler(app *pocketbase.PocketBase, auctionService *auction.Service, clk clock.Clock) *AdminHandler {
	return &AdminHandler{
		app:            app,
		auctionService: auctionService,
		clock:          clk,
	}
}

// GetAuctionDashboard - live view over every auction in the hot store
func (h *AdminHandler) GetAuctionDashboard(e *core.RequestEvent) error {
	if err := requireAdmin(e); err != nil {
		return err
	}

	ctx := e.Request.Context()

	keys, err := h.auctionService.Redis.Keys(ctx, "auction:*").Result()
	if err != nil {
		return apis.NewBadRequestError("Failed to list auctions", err)
	}

	now := h.clock.Now()
	dashboard := []map[string]any{}
	openCount := 0

	for _, key := range keys {
		auctionID := strings.TrimPrefix(key, "auction:")

		state, err := h.auctionService.LoadState(ctx, auctionID)
		if err != nil {
			continue
		}
		state = h.auctionService.CloseIfExpired(ctx, state, now)

		open := auction.IsOpen(state, now)
		if open {
			openCount++
		}

		remaining, percent := auction.Progress(state, now)

		dashboard = append(dashboard, map[string]any{
			"auction_id":       state.AuctionID,
			"ticket":           state.TicketID,
			"seller":           state.SellerAddress,
			"status":           string(state.Status),
			"open":             open,
			"current_highest":  state.CurrentHighestBid.String(),
			"bid_count":        state.BidCount,
			"reserve_met":      state.ReserveMet(),
			"remaining":        remaining,
			"progress_percent": percent,
		})
	}

	return e.JSON(http.StatusOK, map[string]any{
		"total_auctions": len(dashboard),
		"open_auctions":  openCount,
		"auctions":       dashboard,
	})
}

// CloseExpiredAuctions - manually trigger the deadline sweep
func (h *AdminHandler) CloseExpiredAuctions(e *core.RequestEvent) error {
	if err := requireAdmin(e); err != nil {
		return err
	}

	h.auctionService.CloseExpired(e.Request.Context())

	return e.JSON(http.StatusOK, map[string]any{
		"message": "Deadline sweep triggered",
	})
}

// RegisterScanner - provision a gate terminal and return its API key once
func (h *AdminHandler) RegisterScanner(e *core.RequestEvent) error {
	if err := requireAdmin(e); err != nil {
		return err
	}

	var req struct {
		Identity string `json:"identity"`
		Key      string `json:"key"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Identity == "" || len(req.Key) < 16 {
		return apis.NewBadRequestError("identity and a key of at least 16 characters are required", nil)
	}

	hash, err := security.GenerateKeyHash(req.Key)
	if err != nil {
		return apis.NewBadRequestError("Failed to hash key", err)
	}

	collection, err := h.app.FindCollectionByNameOrId("scanners")
	if err != nil {
		return apis.NewBadRequestError("Scanners collection missing", err)
	}

	record := core.NewRecord(collection)
	record.Set("identity", req.Identity)
	record.Set("key_hash", hash)
	record.Set("active", true)

	if err := h.app.Save(record); err != nil {
		return apis.NewBadRequestError("Failed to register scanner", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"identity": req.Identity,
	})
}

// RegisterWalletKey - bind an ed25519 public key to a bidder address
func (h *AdminHandler) RegisterWalletKey(e *core.RequestEvent) error {
	if err := requireAdmin(e); err != nil {
		return err
	}

	var req struct {
		Address   string `json:"address"`
		PublicKey string `json:"public_key"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Address == "" || len(req.PublicKey) != 64 {
		return apis.NewBadRequestError("address and a 32-byte hex public key are required", nil)
	}

	collection, err := h.app.FindCollectionByNameOrId("wallet_keys")
	if err != nil {
		return apis.NewBadRequestError("Wallet keys collection missing", err)
	}

	record := core.NewRecord(collection)
	record.Set("address", req.Address)
	record.Set("public_key", strings.ToLower(req.PublicKey))

	if err := h.app.Save(record); err != nil {
		return apis.NewBadRequestError("Failed to register key", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"address": req.Address,
	})
}

func requireAdmin(e *core.RequestEvent) error {
	if e.Auth == nil || !e.Auth.IsSuperuser() {
		return apis.NewUnauthorizedError("Admin access required", nil)
	}
	return nil
}
