package migrations

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		jsonData := `{
			"id": "tkx1ticket00001",
			"name": "tickets",
			"type": "base",
			"system": false,
			"fields": [
				{"id": "tkt_ticket_id", "name": "ticket_id", "type": "text", "required": true},
				{"id": "tkt_event", "name": "event", "type": "text", "required": true},
				{"id": "tkt_section", "name": "section", "type": "text", "required": false},
				{"id": "tkt_price", "name": "price", "type": "text", "required": true},
				{"id": "tkt_owner", "name": "owner", "type": "text", "required": true},
				{"id": "tkt_created", "name": "created", "type": "autodate", "onCreate": true},
				{"id": "tkt_updated", "name": "updated", "type": "autodate", "onCreate": true, "onUpdate": true}
			],
			"indexes": [
				"CREATE UNIQUE INDEX idx_tickets_ticket_id ON tickets (ticket_id)"
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
		collection, err := app.FindCollectionByNameOrId("tkx1ticket00001")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
