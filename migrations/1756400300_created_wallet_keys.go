package migrations

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		jsonData := `{
			"id": "tkx3wallet00001",
			"name": "wallet_keys",
			"type": "base",
			"system": false,
			"fields": [
				{"id": "wlk_address", "name": "address", "type": "text", "required": true},
				{"id": "wlk_public_key", "name": "public_key", "type": "text", "required": true},
				{"id": "wlk_created", "name": "created", "type": "autodate", "onCreate": true},
				{"id": "wlk_updated", "name": "updated", "type": "autodate", "onCreate": true, "onUpdate": true}
			],
			"indexes": [
				"CREATE UNIQUE INDEX idx_wallet_keys_address ON wallet_keys (address)"
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
		collection, err := app.FindCollectionByNameOrId("tkx3wallet00001")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
