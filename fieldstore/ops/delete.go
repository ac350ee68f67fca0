package ops

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fieldstore/fieldstore/fieldstore/storage"
)

// DeleteEntryRows removes every index row (values and refs) for an entry.
func DeleteEntryRows(ctx context.Context, tx *sql.Tx, sqlt storage.SQL, entryID string) error {
	if _, err := tx.ExecContext(ctx, sqlt.DeleteValuesByEntry, entryID); err != nil {
		return fmt.Errorf("delete doc values: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqlt.DeleteRefsByEntry, entryID); err != nil {
		return fmt.Errorf("delete doc refs: %w", err)
	}
	return nil
}

// DeleteRowsForPath removes all index rows emitted for one path, used when
// a path stops being indexed or is compacted away.
func DeleteRowsForPath(ctx context.Context, tx *sql.Tx, sqlt storage.SQL, pathID int64) error {
	if _, err := tx.ExecContext(ctx, sqlt.DeleteValuesByPath, pathID); err != nil {
		return fmt.Errorf("delete doc values for path: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqlt.DeleteRefsByPath, pathID); err != nil {
		return fmt.Errorf("delete doc refs for path: %w", err)
	}
	return nil
}
