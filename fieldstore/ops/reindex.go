package ops

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fieldstore/fieldstore/fieldstore/storage"
)

// ReindexBlueprint re-syncs every entry of a blueprint against the given
// resolved indexed path specs. Each entry is replaced in its own
// transaction, so a failure on one entry does not hold locks across the
// whole set; the operation is idempotent and safe to re-run.
func ReindexBlueprint(ctx context.Context, db *sql.DB, sqlt storage.SQL, blueprintID int64, specs []storage.PathSpec, log zerolog.Logger) (int, error) {
	rows, err := db.QueryContext(ctx, sqlt.ListEntryIDsByBlueprint, blueprintID)
	if err != nil {
		return 0, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("scan entry id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate entries: %w", err)
	}

	count := 0
	for _, id := range ids {
		if err := ReindexEntry(ctx, db, sqlt, id, specs, log); err != nil {
			return count, fmt.Errorf("reindex entry %s: %w", id, err)
		}
		count++
	}
	return count, nil
}

// ReindexEntry re-syncs a single entry. A missing entry is not an error:
// the task may race a delete, and re-running it must stay idempotent.
func ReindexEntry(ctx context.Context, db *sql.DB, sqlt storage.SQL, entryID string, specs []storage.PathSpec, log zerolog.Logger) error {
	var id string
	var blueprintID int64
	var payload []byte
	var createdAt, updatedAt int64
	err := db.QueryRowContext(ctx, sqlt.GetEntry, entryID).Scan(&id, &blueprintID, &payload, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load entry: %w", err)
	}

	_, err = SyncEntry(ctx, db, sqlt, entryID, specs, payload, log)
	return err
}
