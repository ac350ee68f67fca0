package fieldstore

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"

	"github.com/fieldstore/fieldstore/fieldstore/ops"
	"github.com/fieldstore/fieldstore/fieldstore/storage"
	"github.com/fieldstore/fieldstore/fieldstore/tasks"
)

// Engine is an open fieldstore: blueprint composition, materialization and
// the document index over one storage backend.
type Engine struct {
	adapter storage.Adapter
	db      *sql.DB
	sqlt    storage.SQL
	opts    Options
	cache   *pathCache
	queue   *tasks.Queue
	log     zerolog.Logger
}

// Create initializes a new store and opens an engine on it.
func Create(ctx context.Context, adapter storage.Adapter, opts Options) (*Engine, error) {
	db, err := adapter.Connect(ctx)
	if err != nil {
		return nil, Wrap(ErrIO, "connect to database", err)
	}
	if err := adapter.CreateStore(ctx, db); err != nil {
		db.Close()
		return nil, Wrap(ErrSQL, "create store", err)
	}
	return newEngine(adapter, db, opts), nil
}

// Open opens an existing store.
func Open(ctx context.Context, adapter storage.Adapter, opts Options) (*Engine, error) {
	db, err := adapter.Connect(ctx)
	if err != nil {
		return nil, Wrap(ErrIO, "connect to database", err)
	}
	if err := adapter.OpenStore(ctx, db); err != nil {
		db.Close()
		return nil, Wrap(ErrSQL, "open store", err)
	}
	return newEngine(adapter, db, opts), nil
}

func newEngine(adapter storage.Adapter, db *sql.DB, opts Options) *Engine {
	e := &Engine{
		adapter: adapter,
		db:      db,
		sqlt:    adapter.SQL(),
		opts:    opts,
		cache:   newPathCache(),
		log:     opts.Logger,
	}
	e.queue = tasks.New(e, opts.Queue, opts.Logger)
	return e
}

// Close drains the task queue and releases the database.
func (e *Engine) Close() error {
	if e.queue != nil {
		e.queue.Close()
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			return Wrap(ErrIO, "close database", err)
		}
	}
	return e.adapter.Close()
}

// DB returns the underlying database connection (for advanced use)
func (e *Engine) DB() *sql.DB {
	return e.db
}

// Adapter returns the underlying storage adapter
func (e *Engine) Adapter() storage.Adapter {
	return e.adapter
}

// Queue exposes the background task queue.
func (e *Engine) Queue() *tasks.Queue {
	return e.queue
}

func (e *Engine) nowMS() int64 {
	return e.opts.Now().UnixMilli()
}

// ResolvedPaths returns the full live path list of a blueprint, authored
// plus all materialized copies, memoized until the next structural
// mutation.
func (e *Engine) ResolvedPaths(ctx context.Context, blueprintID int64) ([]Path, error) {
	if paths, ok := e.cache.get(blueprintID); ok {
		return paths, nil
	}
	paths, err := loadPaths(ctx, e.db, e.sqlt.ListPaths, blueprintID)
	if err != nil {
		return nil, Wrap(ErrSQL, "load resolved paths", err)
	}
	e.cache.put(blueprintID, paths)
	return paths, nil
}

// AuthoredPaths returns only the paths authored directly on the
// blueprint, without materialized copies. Schema editing operates on
// this list.
func (e *Engine) AuthoredPaths(ctx context.Context, blueprintID int64) ([]Path, error) {
	paths, err := loadPaths(ctx, e.db, e.sqlt.ListAuthoredPaths, blueprintID)
	if err != nil {
		return nil, Wrap(ErrSQL, "load authored paths", err)
	}
	return paths, nil
}

// indexedSpecs projects the resolved path list down to what the indexing
// engine consumes.
func (e *Engine) indexedSpecs(ctx context.Context, blueprintID int64) ([]storage.PathSpec, error) {
	paths, err := e.ResolvedPaths(ctx, blueprintID)
	if err != nil {
		return nil, err
	}
	return indexedSpecsOf(paths), nil
}

func indexedSpecsOf(paths []Path) []storage.PathSpec {
	var specs []storage.PathSpec
	for _, p := range paths {
		if !p.Indexed || p.DataType == TypeBlueprint {
			continue
		}
		specs = append(specs, storage.PathSpec{
			ID:          p.ID,
			FullPath:    p.FullPath,
			Type:        p.DataType,
			Cardinality: p.Cardinality,
		})
	}
	return specs
}

// mutateStructure runs a structural mutation and the resulting cascade in
// one transaction, then invalidates caches and schedules deferred reindex
// work for every blueprint the cascade visited. reindexRoot controls
// whether the mutated blueprint itself warrants a reindex of its entries.
func (e *Engine) mutateStructure(ctx context.Context, rootID int64, reindexRoot bool, fn func(tx *sql.Tx) error) (*CascadeResult, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, Wrap(ErrSQL, "begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return nil, err
	}

	res := &CascadeResult{}
	visited := make(map[int64]bool)
	if err := e.structureChanged(ctx, tx, rootID, visited, res); err != nil {
		return nil, err
	}

	for _, id := range res.Visited {
		if id == rootID && !reindexRoot {
			continue
		}
		needs, err := blueprintNeedsReindex(ctx, tx, e.sqlt, id)
		if err != nil {
			return nil, Wrap(ErrSQL, "check reindex need", err)
		}
		if needs {
			res.Reindex = append(res.Reindex, id)
		}
	}

	if _, err := tx.ExecContext(ctx, e.sqlt.TouchBlueprint, rootID, e.nowMS()); err != nil {
		return nil, Wrap(ErrSQL, "touch blueprint", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, Wrap(ErrSQL, "commit", err)
	}

	for _, id := range res.Visited {
		e.cache.invalidate(id)
	}
	for _, id := range res.Reindex {
		e.queue.Enqueue(tasks.Task{Kind: tasks.KindReindexBlueprint, BlueprintID: id})
	}
	return res, nil
}

// blueprintNeedsReindex reports whether a blueprint has entries and at
// least one live indexed value path, i.e. whether re-projection is worth
// scheduling.
func blueprintNeedsReindex(ctx context.Context, q querier, sqlt storage.SQL, blueprintID int64) (bool, error) {
	var count int64
	if err := q.QueryRowContext(ctx, sqlt.CountEntriesByBlueprint, blueprintID).Scan(&count); err != nil {
		return false, err
	}
	if count == 0 {
		return false, nil
	}
	paths, err := loadPaths(ctx, q, sqlt.ListPaths, blueprintID)
	if err != nil {
		return false, err
	}
	return len(indexedSpecsOf(paths)) > 0, nil
}

// ReindexBlueprint re-syncs every entry of a blueprint. Implements
// tasks.Runner.
func (e *Engine) ReindexBlueprint(ctx context.Context, blueprintID int64) error {
	specs, err := e.indexedSpecs(ctx, blueprintID)
	if err != nil {
		return err
	}
	if _, err := ops.ReindexBlueprint(ctx, e.db, e.sqlt, blueprintID, specs, e.log); err != nil {
		return Wrap(ErrSQL, "reindex blueprint", err)
	}
	return nil
}

// ReindexEntry re-syncs a single entry. Implements tasks.Runner.
func (e *Engine) ReindexEntry(ctx context.Context, entryID string) error {
	entry, err := e.GetEntry(ctx, entryID)
	if err != nil {
		if IsKind(err, ErrNotFound) {
			return nil
		}
		return err
	}
	specs, err := e.indexedSpecs(ctx, entry.BlueprintID)
	if err != nil {
		return err
	}
	if err := ops.ReindexEntry(ctx, e.db, e.sqlt, entryID, specs, e.log); err != nil {
		return Wrap(ErrSQL, "reindex entry", err)
	}
	return nil
}

// Find returns ids of entries matching `op value` on one indexed path.
// Read-only query surface; see ops.Op for the operator set.
func (e *Engine) Find(ctx context.Context, blueprintID int64, fullPath string, op ops.Op, value any) ([]string, error) {
	paths, err := e.ResolvedPaths(ctx, blueprintID)
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		if p.FullPath != fullPath {
			continue
		}
		if !p.Indexed {
			return nil, SchemaError("path is not indexed: " + fullPath)
		}
		spec := storage.PathSpec{ID: p.ID, FullPath: p.FullPath, Type: p.DataType, Cardinality: p.Cardinality}
		ids, err := ops.Find(ctx, e.db, e.adapter.PlaceholderStyle(), spec, op, value)
		if err != nil {
			return nil, Wrap(ErrSQL, "find", err)
		}
		return ids, nil
	}
	return nil, NotFoundError("path " + fullPath)
}

// Compact permanently removes tombstoned paths and any index rows still
// referencing them.
func (e *Engine) Compact(ctx context.Context) (int, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, Wrap(ErrSQL, "begin transaction", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, e.sqlt.ListTombstonedPathIDs)
	if err != nil {
		return 0, Wrap(ErrSQL, "list tombstoned paths", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, Wrap(ErrSQL, "scan path id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, Wrap(ErrSQL, "iterate tombstoned paths", err)
	}
	rows.Close()

	for _, id := range ids {
		if err := ops.DeleteRowsForPath(ctx, tx, e.sqlt, id); err != nil {
			return 0, Wrap(ErrSQL, "delete index rows", err)
		}
		if _, err := tx.ExecContext(ctx, e.sqlt.DeletePathRow, id); err != nil {
			return 0, Wrap(ErrSQL, "delete path row", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, Wrap(ErrSQL, "commit", err)
	}
	return len(ids), nil
}

// Optimize runs backend-specific maintenance.
func (e *Engine) Optimize(ctx context.Context) error {
	return e.adapter.Optimize(ctx, e.db)
}
