package migrations

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		// The partial unique index is the durable half of the exactly-once
		// guarantee: at most one accepted row can ever exist per ticket.
		jsonData := `{
			"id": "tkx4scanrec0001",
			"name": "scan_records",
			"type": "base",
			"system": false,
			"fields": [
				{"id": "scr_ticket", "name": "ticket", "type": "text", "required": true},
				{"id": "scr_scanner", "name": "scanner", "type": "text", "required": true},
				{"id": "scr_scanned_at", "name": "scanned_at", "type": "date", "required": true},
				{"id": "scr_outcome", "name": "outcome", "type": "select", "required": true, "maxSelect": 1, "values": ["accepted", "duplicate", "expired", "invalid"]},
				{"id": "scr_reason", "name": "reason", "type": "text"},
				{"id": "scr_created", "name": "created", "type": "autodate", "onCreate": true}
			],
			"indexes": [
				"CREATE UNIQUE INDEX idx_scan_records_accepted ON scan_records (ticket) WHERE outcome = 'accepted'",
				"CREATE INDEX idx_scan_records_ticket ON scan_records (ticket)"
			],
			"listRule": null,
			"viewRule": null,
			"createRule": null,
			"updateRule": null,
			"deleteRule": null
		}`

		collection := &core.Collection{}
		if err := json.Unmarshal([]byte(jsonData), &collection); err != nil {
			return err
		}

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("tkx4scanrec0001")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
