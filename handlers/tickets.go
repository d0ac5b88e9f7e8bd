package handlers

import (
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// requireTicketOwner guards operations acting on a ticket on the holder's
// behalf: issuing a credential and listing an auction both require the
// authenticated caller to own it.
func requireTicketOwner(ticket *core.Record, userID string) error {
	if ticket.GetString("owner") != userID {
		return apis.NewForbiddenError("Not your ticket", nil)
	}
	return nil
}
