package fieldstore

import (
	"context"
	"database/sql"

	"github.com/fieldstore/fieldstore/fieldstore/ops"
	"github.com/fieldstore/fieldstore/fieldstore/storage"
)

// copyOrigin identifies where a materialized copy came from: exactly one
// of component or embedRoot is set.
type copyOrigin struct {
	component *int64 // source component blueprint id
	embedRoot *int64 // embedding anchor path id
}

// materializeComponent copies the component's resolved path list onto
// the host under the attachment prefix. The resolved list includes the
// component's own materialized copies, so nested composition flattens
// onto the host; the cascade refreshes a dependent only after its own
// sources, which keeps the list it reads current. Idempotent; existing
// copies are updated in place so their ids (and any index rows
// referencing them) survive.
func materializeComponent(ctx context.Context, tx *sql.Tx, sqlt storage.SQL, hostID, componentID int64, prefix string) error {
	sources, err := loadPaths(ctx, tx, sqlt.ListPaths, componentID)
	if err != nil {
		return Wrap(ErrSQL, "load component paths", err)
	}
	existing, err := loadPaths(ctx, tx, sqlt.ListCopiesByComponent, hostID, componentID)
	if err != nil {
		return Wrap(ErrSQL, "load materialized copies", err)
	}
	origin := copyOrigin{component: &componentID}
	return syncCopies(ctx, tx, sqlt, hostID, prefix, sources, existing, origin)
}

// dematerializeComponent tombstones every copy the host holds for the
// component and removes their index rows in the same transaction.
// Physical path removal happens at compaction.
func dematerializeComponent(ctx context.Context, tx *sql.Tx, sqlt storage.SQL, hostID, componentID int64) error {
	copies, err := loadPaths(ctx, tx, sqlt.ListCopiesByComponent, hostID, componentID)
	if err != nil {
		return Wrap(ErrSQL, "load materialized copies", err)
	}
	if _, err := tx.ExecContext(ctx, sqlt.TombstoneByComponent, hostID, componentID); err != nil {
		return Wrap(ErrSQL, "tombstone component copies", err)
	}
	for _, c := range copies {
		if err := ops.DeleteRowsForPath(ctx, tx, sqlt, c.ID); err != nil {
			return Wrap(ErrSQL, "drop rows for detached copy", err)
		}
	}
	return nil
}

// materializeEmbedding copies the target blueprint's resolved path list
// (authored plus the target's own materialized copies) under the
// embedding anchor's full path.
func materializeEmbedding(ctx context.Context, tx *sql.Tx, sqlt storage.SQL, anchor Path) error {
	if anchor.EmbeddedBlueprintID == nil {
		return SchemaError("path has no embedded blueprint target")
	}
	sources, err := loadPaths(ctx, tx, sqlt.ListPaths, *anchor.EmbeddedBlueprintID)
	if err != nil {
		return Wrap(ErrSQL, "load embedded blueprint paths", err)
	}
	existing, err := loadPaths(ctx, tx, sqlt.ListCopiesByEmbedRoot, anchor.ID)
	if err != nil {
		return Wrap(ErrSQL, "load embedded copies", err)
	}
	anchorID := anchor.ID
	origin := copyOrigin{embedRoot: &anchorID}
	return syncCopies(ctx, tx, sqlt, anchor.BlueprintID, anchor.FullPath, sources, existing, origin)
}

// dematerializeEmbedding tombstones every copy hanging off the anchor and
// removes their index rows in the same transaction.
func dematerializeEmbedding(ctx context.Context, tx *sql.Tx, sqlt storage.SQL, anchorID int64) error {
	copies, err := loadPaths(ctx, tx, sqlt.ListCopiesByEmbedRoot, anchorID)
	if err != nil {
		return Wrap(ErrSQL, "load embedded copies", err)
	}
	if _, err := tx.ExecContext(ctx, sqlt.TombstoneByEmbedRoot, anchorID); err != nil {
		return Wrap(ErrSQL, "tombstone embedded copies", err)
	}
	for _, c := range copies {
		if err := ops.DeleteRowsForPath(ctx, tx, sqlt, c.ID); err != nil {
			return Wrap(ErrSQL, "drop rows for detached copy", err)
		}
	}
	return nil
}

// syncCopies reconciles the host's copies with the source list: create
// missing copies, refresh (and revive) existing ones in place, tombstone
// copies whose source vanished. Copies are flat; the dotted full_path
// carries the structure.
func syncCopies(ctx context.Context, tx *sql.Tx, sqlt storage.SQL, hostID int64, prefix string, sources, existing []Path, origin copyOrigin) error {
	bySource := make(map[int64]Path, len(existing))
	for _, c := range existing {
		if c.SourcePathID != nil {
			bySource[*c.SourcePathID] = c
		}
	}

	seen := make(map[int64]bool, len(sources))
	for _, src := range sources {
		seen[src.ID] = true
		fullPath := joinPath(prefix, src.FullPath)

		cur, ok := bySource[src.ID]
		if !ok {
			srcID := src.ID
			err := tx.QueryRowContext(ctx, sqlt.InsertPath,
				hostID, nil, src.Name, fullPath, src.DataType, src.Cardinality,
				src.Indexed, src.Required, src.ValidationRules,
				src.EmbeddedBlueprintID, origin.component, &srcID, origin.embedRoot,
			).Scan(new(int64))
			if err != nil {
				return Wrap(ErrSQL, "insert materialized copy", err)
			}
			continue
		}

		// Update in place; ids stay stable for dependent index rows.
		if _, err := tx.ExecContext(ctx, sqlt.UpdatePathCopy,
			cur.ID, src.Name, fullPath, src.DataType, src.Cardinality,
			src.Indexed, src.Required, src.ValidationRules, src.EmbeddedBlueprintID,
		); err != nil {
			return Wrap(ErrSQL, "update materialized copy", err)
		}
		if cur.Indexed && !src.Indexed {
			if err := ops.DeleteRowsForPath(ctx, tx, sqlt, cur.ID); err != nil {
				return Wrap(ErrSQL, "drop rows for unindexed copy", err)
			}
		}
	}

	for _, c := range existing {
		if c.SourcePathID != nil && seen[*c.SourcePathID] {
			continue
		}
		if _, err := tx.ExecContext(ctx, sqlt.TombstonePath, c.ID); err != nil {
			return Wrap(ErrSQL, "tombstone stale copy", err)
		}
		if err := ops.DeleteRowsForPath(ctx, tx, sqlt, c.ID); err != nil {
			return Wrap(ErrSQL, "drop rows for stale copy", err)
		}
	}
	return nil
}
