package postgres

import "github.com/fieldstore/fieldstore/fieldstore/storage"

const pathCols = "id, blueprint_id, parent_id, name, full_path, data_type, cardinality, is_indexed, is_required, validation_rules, embedded_blueprint_id, source_component_id, source_path_id, embedded_root_path_id, tombstoned"

var SQLTemplates = storage.SQL{
	GetMeta: "SELECT value FROM meta WHERE key = $1",
	SetMeta: "INSERT INTO meta(key,value) VALUES($1,$2) ON CONFLICT(key) DO UPDATE SET value=excluded.value",

	Savepoint:           "SAVEPOINT cascade_refresh",
	ReleaseSavepoint:    "RELEASE SAVEPOINT cascade_refresh",
	RollbackToSavepoint: "ROLLBACK TO SAVEPOINT cascade_refresh",

	InsertBlueprint:    "INSERT INTO blueprints(name, kind, created_at, updated_at) VALUES($1,$2,$3,$4) RETURNING id",
	GetBlueprint:       "SELECT id, name, kind, created_at, updated_at FROM blueprints WHERE id = $1",
	GetBlueprintByName: "SELECT id, name, kind, created_at, updated_at FROM blueprints WHERE name = $1",
	ListBlueprints:     "SELECT id, name, kind, created_at, updated_at FROM blueprints ORDER BY name",
	TouchBlueprint:     "UPDATE blueprints SET updated_at = $2 WHERE id = $1",
	DeleteBlueprint:    "DELETE FROM blueprints WHERE id = $1",

	InsertPath: "INSERT INTO paths(blueprint_id, parent_id, name, full_path, data_type, cardinality, is_indexed, is_required, validation_rules, embedded_blueprint_id, source_component_id, source_path_id, embedded_root_path_id, tombstoned) " +
		"VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,FALSE) RETURNING id",
	GetPath:            "SELECT " + pathCols + " FROM paths WHERE id = $1",
	ListPaths:          "SELECT " + pathCols + " FROM paths WHERE blueprint_id = $1 AND tombstoned = FALSE ORDER BY full_path",
	ListAuthoredPaths:  "SELECT " + pathCols + " FROM paths WHERE blueprint_id = $1 AND tombstoned = FALSE AND source_component_id IS NULL AND embedded_root_path_id IS NULL ORDER BY full_path",
	FindPathByFullPath: "SELECT " + pathCols + " FROM paths WHERE blueprint_id = $1 AND full_path = $2 AND tombstoned = FALSE",
	ListPathsByPrefix:  "SELECT " + pathCols + " FROM paths WHERE blueprint_id = $1 AND full_path LIKE $2 AND tombstoned = FALSE ORDER BY full_path",
	UpdatePathMeta:     "UPDATE paths SET name = $2, full_path = $3, data_type = $4, cardinality = $5, is_indexed = $6, is_required = $7, validation_rules = $8 WHERE id = $1",
	UpdatePathFullPath: "UPDATE paths SET full_path = $2 WHERE id = $1",
	UpdatePathCopy:     "UPDATE paths SET name = $2, full_path = $3, data_type = $4, cardinality = $5, is_indexed = $6, is_required = $7, validation_rules = $8, embedded_blueprint_id = $9, tombstoned = FALSE WHERE id = $1",
	SetPathEmbedTarget: "UPDATE paths SET embedded_blueprint_id = $2 WHERE id = $1",

	TombstonePath:        "UPDATE paths SET tombstoned = TRUE WHERE id = $1",
	TombstoneByComponent: "UPDATE paths SET tombstoned = TRUE WHERE blueprint_id = $1 AND source_component_id = $2",
	TombstoneByEmbedRoot: "UPDATE paths SET tombstoned = TRUE WHERE embedded_root_path_id = $1",

	ListCopiesByComponent: "SELECT " + pathCols + " FROM paths WHERE blueprint_id = $1 AND source_component_id = $2",
	ListCopiesByEmbedRoot: "SELECT " + pathCols + " FROM paths WHERE embedded_root_path_id = $1",
	ListTombstonedPathIDs: "SELECT id FROM paths WHERE tombstoned = TRUE",
	DeletePathRow:         "DELETE FROM paths WHERE id = $1",

	InsertAttachment:    "INSERT INTO blueprint_components(blueprint_id, component_id, path_prefix) VALUES($1,$2,$3)",
	DeleteAttachment:    "DELETE FROM blueprint_components WHERE blueprint_id = $1 AND component_id = $2",
	GetAttachment:       "SELECT path_prefix FROM blueprint_components WHERE blueprint_id = $1 AND component_id = $2",
	ListAttachments:     "SELECT component_id, path_prefix FROM blueprint_components WHERE blueprint_id = $1 ORDER BY component_id",
	ListAttachmentHosts: "SELECT blueprint_id FROM blueprint_components WHERE component_id = $1",
	ListEmbeddingHosts:  "SELECT DISTINCT blueprint_id FROM paths WHERE embedded_blueprint_id = $1 AND tombstoned = FALSE AND source_component_id IS NULL AND embedded_root_path_id IS NULL",
	ListEmbeddingPathsFor: "SELECT " + pathCols + " FROM paths WHERE blueprint_id = $1 AND embedded_blueprint_id = $2 AND tombstoned = FALSE AND source_component_id IS NULL AND embedded_root_path_id IS NULL ORDER BY full_path",
	ListDependencies: "SELECT component_id FROM blueprint_components WHERE blueprint_id = $1 " +
		"UNION SELECT embedded_blueprint_id FROM paths WHERE blueprint_id = $1 AND embedded_blueprint_id IS NOT NULL AND tombstoned = FALSE AND source_component_id IS NULL AND embedded_root_path_id IS NULL",

	InsertEntry:             "INSERT INTO entries(id, blueprint_id, data_json, created_at, updated_at) VALUES($1,$2,$3,$4,$5)",
	UpdateEntry:             "UPDATE entries SET data_json = $2, updated_at = $3 WHERE id = $1",
	GetEntry:                "SELECT id, blueprint_id, data_json, created_at, updated_at FROM entries WHERE id = $1",
	DeleteEntry:             "DELETE FROM entries WHERE id = $1",
	ListEntryIDsByBlueprint: "SELECT id FROM entries WHERE blueprint_id = $1 ORDER BY id",
	CountEntriesByBlueprint: "SELECT COUNT(*) FROM entries WHERE blueprint_id = $1",

	InsertDocValue: "INSERT INTO doc_values(entry_id, path_id, idx, value_string, value_int, value_float, value_bool, value_text, value_json, value_datetime) " +
		"VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)",
	InsertDocRef:        "INSERT INTO doc_refs(entry_id, path_id, idx, target_id) VALUES($1,$2,$3,$4)",
	DeleteValuesByEntry: "DELETE FROM doc_values WHERE entry_id = $1",
	DeleteRefsByEntry:   "DELETE FROM doc_refs WHERE entry_id = $1",
	DeleteValuesByPath:  "DELETE FROM doc_values WHERE path_id = $1",
	DeleteRefsByPath:    "DELETE FROM doc_refs WHERE path_id = $1",
}
