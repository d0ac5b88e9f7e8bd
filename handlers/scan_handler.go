package handlers

import (
	"net/http"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-exchange/internal/redeem"
	"ticket-exchange/models"
	"ticket-exchange/security"
)

type ScanHandler struct {
	app           *pocketbase.PocketBase
	redeemService *redeem.Service
}

func NewScanHandler(app *pocketbase.PocketBase, redeemService *redeem.Service) *ScanHandler {
	return &ScanHandler{
		app:           app,
		redeemService: redeemService,
	}
}

// Scan validates and redeems one presented credential. The response always
// carries a boolean verdict plus a machine-readable reason; claim data is
// returned only on acceptance.
func (h *ScanHandler) Scan(e *core.RequestEvent) error {
	scannerID, err := h.authenticateScanner(e)
	if err != nil {
		return err
	}

	var req struct {
		Credential models.Credential `json:"credential"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	result := h.redeemService.Redeem(e.Request.Context(), req.Credential, scannerID)

	switch result.Status {
	case models.RedeemAccepted:
		return e.JSON(http.StatusOK, map[string]any{
			"valid": true,
			"data": map[string]any{
				"ticket":  result.Claim.TicketID,
				"event":   result.Claim.EventID,
				"section": result.Claim.Section,
				"price":   result.Claim.Price.String(),
			},
		})

	case models.RedeemAlreadyScanned:
		return e.JSON(http.StatusOK, map[string]any{
			"valid":      false,
			"error":      "already_scanned",
			"scanned_by": result.ScannedBy,
		})

	case models.RedeemExpired:
		return e.JSON(http.StatusOK, map[string]any{
			"valid": false,
			"error": "expired",
		})

	case models.RedeemTampered:
		return e.JSON(http.StatusOK, map[string]any{
			"valid": false,
			"error": "tampered",
		})

	case models.RedeemMalformed:
		return e.JSON(http.StatusOK, map[string]any{
			"valid": false,
			"error": "malformed",
		})

	default:
		return e.JSON(http.StatusOK, map[string]any{
			"valid": false,
			"error": "invalid",
		})
	}
}

// authenticateScanner resolves the gate terminal from its API key header.
// Keys are stored bcrypt-hashed; a stolen database dump yields no keys.
func (h *ScanHandler) authenticateScanner(e *core.RequestEvent) (string, error) {
	identity := e.Request.Header.Get("X-Scanner-Id")
	key := e.Request.Header.Get("X-Scanner-Key")
	if identity == "" || key == "" {
		return "", apis.NewUnauthorizedError("Scanner credentials required", nil)
	}

	record, err := h.app.FindFirstRecordByFilter("scanners",
		"identity = {:identity} && active = true", dbx.Params{"identity": identity})
	if err != nil {
		return "", apis.NewUnauthorizedError("Unknown scanner", nil)
	}

	if !security.CompareKeyHash(record.GetString("key_hash"), key) {
		return "", apis.NewUnauthorizedError("Invalid scanner key", nil)
	}

	return identity, nil
}
