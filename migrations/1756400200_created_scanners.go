package migrations

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		jsonData := `{
			"id": "tkx2scanner0001",
			"name": "scanners",
			"type": "base",
			"system": false,
			"fields": [
				{"id": "scn_identity", "name": "identity", "type": "text", "required": true},
				{"id": "scn_key_hash", "name": "key_hash", "type": "text", "required": true, "hidden": true},
				{"id": "scn_active", "name": "active", "type": "bool"},
				{"id": "scn_created", "name": "created", "type": "autodate", "onCreate": true},
				{"id": "scn_updated", "name": "updated", "type": "autodate", "onCreate": true, "onUpdate": true}
			],
			"indexes": [
				"CREATE UNIQUE INDEX idx_scanners_identity ON scanners (identity)"
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
		collection, err := app.FindCollectionByNameOrId("tkx2scanner0001")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
