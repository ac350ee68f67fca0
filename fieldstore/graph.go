package fieldstore

import (
	"context"
	"sort"

	"github.com/fieldstore/fieldstore/fieldstore/storage"
)

// directDependents returns the ids of blueprints that attach or embed the
// given blueprint. Pure read; deduplicated and sorted for deterministic
// cascade order.
func directDependents(ctx context.Context, q querier, sqlt storage.SQL, blueprintID int64) ([]int64, error) {
	seen := make(map[int64]bool)

	for _, query := range []string{sqlt.ListAttachmentHosts, sqlt.ListEmbeddingHosts} {
		rows, err := q.QueryContext(ctx, query, blueprintID)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			seen[id] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}

	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// DirectDependents exposes the dependency graph read.
func (e *Engine) DirectDependents(ctx context.Context, blueprintID int64) ([]int64, error) {
	deps, err := directDependents(ctx, e.db, e.sqlt, blueprintID)
	if err != nil {
		return nil, Wrap(ErrSQL, "list dependents", err)
	}
	return deps, nil
}

// wouldCreateCycle reports whether making host depend on source would
// close a loop, i.e. whether source already (transitively) depends on
// host.
func wouldCreateCycle(ctx context.Context, q querier, sqlt storage.SQL, hostID, sourceID int64) (bool, error) {
	if hostID == sourceID {
		return true, nil
	}
	visited := make(map[int64]bool)
	stack := []int64{sourceID}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true

		rows, err := q.QueryContext(ctx, sqlt.ListDependencies, cur)
		if err != nil {
			return false, err
		}
		for rows.Next() {
			var dep int64
			if err := rows.Scan(&dep); err != nil {
				rows.Close()
				return false, err
			}
			if dep == hostID {
				rows.Close()
				return true, nil
			}
			if !visited[dep] {
				stack = append(stack, dep)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return false, err
		}
		rows.Close()
	}
	return false, nil
}
