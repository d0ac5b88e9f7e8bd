package handlers

import (
	"net/http"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"ticket-exchange/internal/credential"
	"ticket-exchange/models"
)

type CredentialHandler struct {
	app   *pocketbase.PocketBase
	codec *credential.Codec
}

func NewCredentialHandler(app *pocketbase.PocketBase, codec *credential.Codec) *CredentialHandler {
	return &CredentialHandler{
		app:   app,
		codec: codec,
	}
}

// IssueCredential mints a fresh time-boxed credential for a ticket the
// caller owns. The payload is what the client renders into the QR image;
// clients are expected to call again near expiry rather than cache it.
func (h *CredentialHandler) IssueCredential(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		TicketID string `json:"ticket_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.TicketID == "" {
		return apis.NewBadRequestError("ticket_id is required", nil)
	}

	ticket, err := h.app.FindFirstRecordByFilter("tickets",
		"ticket_id = {:id}", dbx.Params{"id": req.TicketID})
	if err != nil {
		return apis.NewNotFoundError("Ticket not found", err)
	}
	if err := requireTicketOwner(ticket, e.Auth.Id); err != nil {
		return err
	}

	price, err := decimal.NewFromString(ticket.GetString("price"))
	if err != nil {
		return apis.NewBadRequestError("Ticket has no valid price", err)
	}

	cred, err := h.codec.Issue(models.CredentialClaim{
		TicketID: ticket.GetString("ticket_id"),
		EventID:  ticket.GetString("event"),
		Section:  ticket.GetString("section"),
		Price:    price,
	})
	if err != nil {
		return apis.NewBadRequestError("Failed to issue credential", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"credential": cred,
	})
}
