package handlers

import (
	"testing"

	"github.com/pocketbase/pocketbase/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ticketRecord(t *testing.T, owner string) *core.Record {
	t.Helper()

	collection := core.NewBaseCollection("tickets")
	collection.Fields.Add(&core.TextField{Name: "owner"})

	record := core.NewRecord(collection)
	record.Set("owner", owner)

	return record
}

func TestRequireTicketOwner(t *testing.T) {
	record := ticketRecord(t, "user-1")

	assert.NoError(t, requireTicketOwner(record, "user-1"))

	err := requireTicketOwner(record, "user-2")
	require.Error(t, err)

	// a record with no owner can never pass for anyone
	err = requireTicketOwner(ticketRecord(t, ""), "user-1")
	require.Error(t, err)
}
