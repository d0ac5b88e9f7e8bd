package migrations

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		jsonData := `{
			"id": "tkx5auction0001",
			"name": "auctions",
			"type": "base",
			"system": false,
			"fields": [
				{"id": "auc_auction_id", "name": "auction_id", "type": "text", "required": true},
				{"id": "auc_ticket", "name": "ticket", "type": "text", "required": true},
				{"id": "auc_seller", "name": "seller", "type": "text", "required": true},
				{"id": "auc_start_bid", "name": "start_bid", "type": "text", "required": true},
				{"id": "auc_reserve_price", "name": "reserve_price", "type": "text"},
				{"id": "auc_highest_bid", "name": "highest_bid", "type": "text"},
				{"id": "auc_highest_bidder", "name": "highest_bidder", "type": "text"},
				{"id": "auc_bid_count", "name": "bid_count", "type": "number", "onlyInt": true},
				{"id": "auc_end_time", "name": "end_time", "type": "date", "required": true},
				{"id": "auc_status", "name": "status", "type": "select", "required": true, "maxSelect": 1, "values": ["open", "closed", "settled"]},
				{"id": "auc_settlement_ref", "name": "settlement_ref", "type": "text"},
				{"id": "auc_created", "name": "created", "type": "autodate", "onCreate": true},
				{"id": "auc_updated", "name": "updated", "type": "autodate", "onCreate": true, "onUpdate": true}
			],
			"indexes": [
				"CREATE UNIQUE INDEX idx_auctions_auction_id ON auctions (auction_id)",
				"CREATE INDEX idx_auctions_status ON auctions (status)"
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
		collection, err := app.FindCollectionByNameOrId("tkx5auction0001")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
