package fieldstore

import (
	"context"
	"database/sql"
)

// cascadeLimit bounds the number of blueprints one cascade may visit.
// The visited set already guarantees termination on cyclic graphs; the
// limit is a backstop against pathological fan-out.
const cascadeLimit = 1024

// CascadeFailure records one dependent that could not be rematerialized.
// The cascade keeps going past failures so a single bad dependent does
// not wedge the whole graph.
type CascadeFailure struct {
	BlueprintID int64
	Err         error
}

// CascadeResult summarizes one structural mutation: every blueprint the
// cascade touched, the subset whose entries need reindexing, and any
// dependents that failed to rematerialize.
type CascadeResult struct {
	Visited  []int64
	Reindex  []int64
	Failures []CascadeFailure
}

// OK reports whether the cascade completed with no failures.
func (r *CascadeResult) OK() bool {
	return len(r.Failures) == 0
}

// structureChanged propagates a structural change at rootID to every
// transitive dependent inside the caller's transaction. The affected
// subgraph is discovered first, then each dependent is refreshed only
// after all of its affected sources, so a diamond dependent reads fully
// updated copies from every side. Each blueprint is visited at most
// once, so cycles that slipped past the write-time check cannot loop.
func (e *Engine) structureChanged(ctx context.Context, tx *sql.Tx, rootID int64, visited map[int64]bool, res *CascadeResult) error {
	// Affected sources per dependent, discovered breadth-first.
	sources := make(map[int64][]int64)
	visited[rootID] = true
	queue := []int64{rootID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		res.Visited = append(res.Visited, cur)
		if len(res.Visited) > cascadeLimit {
			return CycleError("cascade visited too many blueprints")
		}
		deps, err := directDependents(ctx, tx, e.sqlt, cur)
		if err != nil {
			return Wrap(ErrSQL, "list dependents", err)
		}
		for _, dep := range deps {
			sources[dep] = append(sources[dep], cur)
			if !visited[dep] {
				visited[dep] = true
				queue = append(queue, dep)
			}
		}
	}

	processed := map[int64]bool{rootID: true}
	// Each dependent's refresh runs under a savepoint so a failed
	// statement rolls back that dependent only; postgres aborts the
	// whole transaction otherwise and no sibling could be refreshed.
	refresh := func(dep int64) error {
		if _, err := tx.ExecContext(ctx, e.sqlt.Savepoint); err != nil {
			return Wrap(ErrSQL, "savepoint", err)
		}
		for _, src := range sources[dep] {
			if err := e.rematerializeFrom(ctx, tx, dep, src); err != nil {
				e.log.Warn().
					Int64("blueprint_id", dep).
					Int64("source_id", src).
					Err(err).
					Msg("cascade: rematerialize failed")
				res.Failures = append(res.Failures, CascadeFailure{BlueprintID: dep, Err: err})
				if _, rbErr := tx.ExecContext(ctx, e.sqlt.RollbackToSavepoint); rbErr != nil {
					return Wrap(ErrSQL, "rollback to savepoint", rbErr)
				}
				if _, relErr := tx.ExecContext(ctx, e.sqlt.ReleaseSavepoint); relErr != nil {
					return Wrap(ErrSQL, "release savepoint", relErr)
				}
				return nil
			}
		}
		if _, err := tx.ExecContext(ctx, e.sqlt.TouchBlueprint, dep, e.nowMS()); err != nil {
			return Wrap(ErrSQL, "touch dependent", err)
		}
		if _, err := tx.ExecContext(ctx, e.sqlt.ReleaseSavepoint); err != nil {
			return Wrap(ErrSQL, "release savepoint", err)
		}
		return nil
	}

	for progress := true; progress; {
		progress = false
		for _, dep := range res.Visited {
			if processed[dep] {
				continue
			}
			ready := true
			for _, src := range sources[dep] {
				if !processed[src] {
					ready = false
					break
				}
			}
			if !ready {
				continue
			}
			if err := refresh(dep); err != nil {
				return err
			}
			processed[dep] = true
			progress = true
		}
	}

	// Anything left sits on a residual cycle in the stored graph.
	// Refresh it once so the cascade still converges.
	for _, dep := range res.Visited {
		if processed[dep] {
			continue
		}
		if err := refresh(dep); err != nil {
			return err
		}
		processed[dep] = true
	}
	return nil
}

// rematerializeFrom refreshes every copy the dependent blueprint holds of
// the changed source: its attachment of the source as a component, and
// every authored path embedding the source.
func (e *Engine) rematerializeFrom(ctx context.Context, tx *sql.Tx, dependentID, sourceID int64) error {
	var prefix string
	err := tx.QueryRowContext(ctx, e.sqlt.GetAttachment, dependentID, sourceID).Scan(&prefix)
	switch {
	case err == sql.ErrNoRows:
		// not attached as a component
	case err != nil:
		return Wrap(ErrSQL, "load attachment", err)
	default:
		if err := materializeComponent(ctx, tx, e.sqlt, dependentID, sourceID, prefix); err != nil {
			return err
		}
	}

	anchors, err := loadPaths(ctx, tx, e.sqlt.ListEmbeddingPathsFor, dependentID, sourceID)
	if err != nil {
		return Wrap(ErrSQL, "load embedding anchors", err)
	}
	for _, anchor := range anchors {
		if err := materializeEmbedding(ctx, tx, e.sqlt, anchor); err != nil {
			return err
		}
	}
	return nil
}
