package migrations

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		jsonData := `{
			"id": "tkx6bids0000001",
			"name": "bids",
			"type": "base",
			"system": false,
			"fields": [
				{"id": "bid_auction", "name": "auction", "type": "text", "required": true},
				{"id": "bid_bidder", "name": "bidder", "type": "text", "required": true},
				{"id": "bid_amount", "name": "amount", "type": "text", "required": true},
				{"id": "bid_timestamp", "name": "bid_timestamp", "type": "number", "onlyInt": true, "required": true},
				{"id": "bid_signature", "name": "signature", "type": "text", "required": true, "hidden": true},
				{"id": "bid_created", "name": "created", "type": "autodate", "onCreate": true}
			],
			"indexes": [
				"CREATE INDEX idx_bids_auction ON bids (auction)"
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
		collection, err := app.FindCollectionByNameOrId("tkx6bids0000001")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
