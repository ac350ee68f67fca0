package fieldstore

import (
	"context"
	"database/sql"
	"reflect"
	"strings"

	"github.com/google/uuid"

	"github.com/fieldstore/fieldstore/fieldstore/ops"
	"github.com/fieldstore/fieldstore/fieldstore/storage"
)

// Entry is one JSON document stored under a blueprint.
type Entry struct {
	ID          string
	BlueprintID int64
	Payload     []byte
	CreatedAtMS int64
	UpdatedAtMS int64
}

// PutEntry stores a new document and projects its indexed fields in the
// same transaction. Only full blueprints hold entries directly; component
// blueprints contribute their fields through embedding. An empty id gets
// a generated UUID. Fields that do not match their path's type are
// skipped and reported, never fatal.
func (e *Engine) PutEntry(ctx context.Context, blueprintID int64, id string, payload []byte) (*Entry, []ops.SkippedField, error) {
	bp, err := e.GetBlueprint(ctx, blueprintID)
	if err != nil {
		return nil, nil, err
	}
	if bp.Kind != KindFull {
		return nil, nil, SchemaError("component blueprint " + bp.Name + " cannot hold entries")
	}
	if id == "" {
		id = uuid.NewString()
	}
	var doc map[string]any
	if err := unmarshalJSON(payload, &doc); err != nil {
		return nil, nil, err
	}
	specs, err := e.indexedSpecs(ctx, blueprintID)
	if err != nil {
		return nil, nil, err
	}
	prep, err := ops.PrepareSync(specs, payload)
	if err != nil {
		return nil, nil, err
	}

	now := e.nowMS()
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, Wrap(ErrSQL, "begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, e.sqlt.InsertEntry, id, blueprintID, string(payload), now, now); err != nil {
		return nil, nil, Wrap(ErrConflict, "insert entry", err)
	}
	if err := ops.ExecuteSync(ctx, tx, e.sqlt, id, prep); err != nil {
		return nil, nil, Wrap(ErrSQL, "sync entry", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, Wrap(ErrSQL, "commit", err)
	}

	ops.LogSkipped(e.log, id, prep.Skipped)
	entry := &Entry{ID: id, BlueprintID: blueprintID, Payload: payload, CreatedAtMS: now, UpdatedAtMS: now}
	return entry, prep.Skipped, nil
}

// UpdateEntry replaces a document's payload. The index projection is only
// re-run when the change touches an indexed path; payload-only edits skip
// the row churn.
func (e *Engine) UpdateEntry(ctx context.Context, id string, payload []byte) (*Entry, []ops.SkippedField, error) {
	old, err := e.GetEntry(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	var doc map[string]any
	if err := unmarshalJSON(payload, &doc); err != nil {
		return nil, nil, err
	}
	specs, err := e.indexedSpecs(ctx, old.BlueprintID)
	if err != nil {
		return nil, nil, err
	}

	resync := touchesIndexed(old.Payload, payload, specs)
	var prep *ops.SyncPrepared
	if resync {
		prep, err = ops.PrepareSync(specs, payload)
		if err != nil {
			return nil, nil, err
		}
	}

	now := e.nowMS()
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, Wrap(ErrSQL, "begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, e.sqlt.UpdateEntry, id, string(payload), now); err != nil {
		return nil, nil, Wrap(ErrSQL, "update entry", err)
	}
	if resync {
		if err := ops.ExecuteSync(ctx, tx, e.sqlt, id, prep); err != nil {
			return nil, nil, Wrap(ErrSQL, "sync entry", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, Wrap(ErrSQL, "commit", err)
	}

	var skipped []ops.SkippedField
	if prep != nil {
		skipped = prep.Skipped
		ops.LogSkipped(e.log, id, skipped)
	}
	entry := &Entry{ID: id, BlueprintID: old.BlueprintID, Payload: payload, CreatedAtMS: old.CreatedAtMS, UpdatedAtMS: now}
	return entry, skipped, nil
}

// GetEntry loads a document by id.
func (e *Engine) GetEntry(ctx context.Context, id string) (*Entry, error) {
	var entry Entry
	var payload string
	err := e.db.QueryRowContext(ctx, e.sqlt.GetEntry, id).Scan(
		&entry.ID, &entry.BlueprintID, &payload, &entry.CreatedAtMS, &entry.UpdatedAtMS,
	)
	if err == sql.ErrNoRows {
		return nil, NotFoundError("entry " + id)
	}
	if err != nil {
		return nil, Wrap(ErrSQL, "load entry", err)
	}
	entry.Payload = []byte(payload)
	return &entry, nil
}

// DeleteEntry removes a document and all of its index rows.
func (e *Engine) DeleteEntry(ctx context.Context, id string) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return Wrap(ErrSQL, "begin transaction", err)
	}
	defer tx.Rollback()

	if err := ops.DeleteEntryRows(ctx, tx, e.sqlt, id); err != nil {
		return Wrap(ErrSQL, "delete index rows", err)
	}
	res, err := tx.ExecContext(ctx, e.sqlt.DeleteEntry, id)
	if err != nil {
		return Wrap(ErrSQL, "delete entry", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return NotFoundError("entry " + id)
	}
	if err := tx.Commit(); err != nil {
		return Wrap(ErrSQL, "commit", err)
	}
	return nil
}

// ListEntryIDs returns the ids of all entries under a blueprint.
func (e *Engine) ListEntryIDs(ctx context.Context, blueprintID int64) ([]string, error) {
	rows, err := e.db.QueryContext(ctx, e.sqlt.ListEntryIDsByBlueprint, blueprintID)
	if err != nil {
		return nil, Wrap(ErrSQL, "list entries", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, Wrap(ErrSQL, "scan entry id", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, Wrap(ErrSQL, "iterate entries", err)
	}
	return out, nil
}

// touchesIndexed reports whether any indexed path's top-level segment
// differs between the old and new payload. False negatives are avoided by
// treating undecodable payloads as touched.
func touchesIndexed(oldPayload, newPayload []byte, specs []storage.PathSpec) bool {
	if len(specs) == 0 {
		return false
	}
	var oldDoc, newDoc map[string]any
	if unmarshalJSON(oldPayload, &oldDoc) != nil || unmarshalJSON(newPayload, &newDoc) != nil {
		return true
	}
	checked := make(map[string]bool)
	for _, spec := range specs {
		root := spec.FullPath
		if i := strings.IndexByte(root, '.'); i >= 0 {
			root = root[:i]
		}
		if checked[root] {
			continue
		}
		checked[root] = true
		if !reflect.DeepEqual(oldDoc[root], newDoc[root]) {
			return true
		}
	}
	return false
}
