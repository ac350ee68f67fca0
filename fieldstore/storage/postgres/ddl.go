package postgres

const ddlBase = `
CREATE TABLE IF NOT EXISTS meta (
  key   TEXT PRIMARY KEY,
  value TEXT
);

CREATE TABLE IF NOT EXISTS blueprints (
  id         BIGSERIAL PRIMARY KEY,
  name       TEXT NOT NULL UNIQUE,
  kind       TEXT NOT NULL CHECK (kind IN ('full','component')),
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS paths (
  id                    BIGSERIAL PRIMARY KEY,
  blueprint_id          BIGINT NOT NULL REFERENCES blueprints(id) ON DELETE CASCADE,
  parent_id             BIGINT REFERENCES paths(id) ON DELETE SET NULL,
  name                  TEXT NOT NULL,
  full_path             TEXT NOT NULL,
  data_type             TEXT NOT NULL,
  cardinality           TEXT NOT NULL DEFAULT 'one',
  is_indexed            BOOLEAN NOT NULL DEFAULT FALSE,
  is_required           BOOLEAN NOT NULL DEFAULT FALSE,
  validation_rules      TEXT,
  embedded_blueprint_id BIGINT REFERENCES blueprints(id),
  source_component_id   BIGINT REFERENCES blueprints(id),
  source_path_id        BIGINT,
  embedded_root_path_id BIGINT,
  tombstoned            BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_paths_full_path ON paths(blueprint_id, full_path) WHERE tombstoned = FALSE;
CREATE INDEX IF NOT EXISTS idx_paths_blueprint  ON paths(blueprint_id);
CREATE INDEX IF NOT EXISTS idx_paths_component  ON paths(source_component_id);
CREATE INDEX IF NOT EXISTS idx_paths_embed_root ON paths(embedded_root_path_id);
CREATE INDEX IF NOT EXISTS idx_paths_embed_tgt  ON paths(embedded_blueprint_id);

CREATE TABLE IF NOT EXISTS blueprint_components (
  blueprint_id BIGINT NOT NULL REFERENCES blueprints(id) ON DELETE CASCADE,
  component_id BIGINT NOT NULL REFERENCES blueprints(id) ON DELETE CASCADE,
  path_prefix  TEXT NOT NULL,
  PRIMARY KEY (blueprint_id, component_id)
);
CREATE INDEX IF NOT EXISTS idx_attach_component ON blueprint_components(component_id);

CREATE TABLE IF NOT EXISTS entries (
  id           TEXT PRIMARY KEY,
  blueprint_id BIGINT NOT NULL REFERENCES blueprints(id),
  data_json    JSONB NOT NULL,
  created_at   BIGINT NOT NULL,
  updated_at   BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_blueprint ON entries(blueprint_id);

CREATE TABLE IF NOT EXISTS doc_values (
  entry_id       TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
  path_id        BIGINT NOT NULL REFERENCES paths(id) ON DELETE CASCADE,
  idx            BIGINT NOT NULL,
  value_string   TEXT,
  value_int      BIGINT,
  value_float    DOUBLE PRECISION,
  value_bool     BOOLEAN,
  value_text     TEXT,
  value_json     JSONB,
  value_datetime BIGINT,
  PRIMARY KEY (entry_id, path_id, idx)
);
CREATE INDEX IF NOT EXISTS idx_values_path_string ON doc_values(path_id, value_string);
CREATE INDEX IF NOT EXISTS idx_values_path_int    ON doc_values(path_id, value_int);
CREATE INDEX IF NOT EXISTS idx_values_path_float  ON doc_values(path_id, value_float);
CREATE INDEX IF NOT EXISTS idx_values_path_dt     ON doc_values(path_id, value_datetime);

CREATE TABLE IF NOT EXISTS doc_refs (
  entry_id  TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
  path_id   BIGINT NOT NULL REFERENCES paths(id) ON DELETE CASCADE,
  idx       BIGINT NOT NULL,
  target_id TEXT NOT NULL,
  PRIMARY KEY (entry_id, path_id, idx)
);
CREATE INDEX IF NOT EXISTS idx_refs_path_target ON doc_refs(path_id, target_id);
`
