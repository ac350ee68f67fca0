package fieldstore_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fieldstore/fieldstore/fieldstore"
	"github.com/fieldstore/fieldstore/fieldstore/ops"
	"github.com/fieldstore/fieldstore/fieldstore/storage/sqlite"
	_ "modernc.org/sqlite"
)

func monotonicNow(start time.Time) func() time.Time {
	var mu sync.Mutex
	t := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Millisecond)
		return t
	}
}

func newEngine(t *testing.T) *fieldstore.Engine {
	t.Helper()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	opts := fieldstore.DefaultOptions()
	opts.Now = monotonicNow(time.Unix(1700000000, 0)) // deterministic ordering
	opts.Queue.Workers = 0                            // inline tasks, deterministic tests

	e, err := fieldstore.Create(context.Background(), sqlite.New(dbPath), opts)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func mustBlueprint(t *testing.T, e *fieldstore.Engine, name string, kind fieldstore.BlueprintKind) *fieldstore.Blueprint {
	t.Helper()
	b, err := e.CreateBlueprint(context.Background(), name, kind)
	if err != nil {
		t.Fatalf("CreateBlueprint %s: %v", name, err)
	}
	return b
}

func mustPath(t *testing.T, e *fieldstore.Engine, in fieldstore.PathInput) fieldstore.Path {
	t.Helper()
	p, err := e.CreatePath(context.Background(), in)
	if err != nil {
		t.Fatalf("CreatePath %s: %v", in.Name, err)
	}
	return p
}

func mustPut(t *testing.T, e *fieldstore.Engine, blueprintID int64, doc map[string]any) *fieldstore.Entry {
	t.Helper()
	payload, _ := json.Marshal(doc)
	entry, skipped, err := e.PutEntry(context.Background(), blueprintID, "", payload)
	if err != nil {
		t.Fatalf("PutEntry: %v", err)
	}
	if len(skipped) != 0 {
		t.Fatalf("unexpected skipped fields: %+v", skipped)
	}
	return entry
}

func resolvedPathSet(t *testing.T, e *fieldstore.Engine, blueprintID int64) map[string]fieldstore.Path {
	t.Helper()
	paths, err := e.ResolvedPaths(context.Background(), blueprintID)
	if err != nil {
		t.Fatalf("ResolvedPaths: %v", err)
	}
	out := make(map[string]fieldstore.Path, len(paths))
	for _, p := range paths {
		out[p.FullPath] = p
	}
	return out
}

func countRows(t *testing.T, e *fieldstore.Engine, query string, args ...any) int {
	t.Helper()
	var n int
	if err := e.DB().QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count query: %v", err)
	}
	return n
}

func TestPutFindDelete(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	b := mustBlueprint(t, e, "article", fieldstore.KindFull)
	mustPath(t, e, fieldstore.PathInput{BlueprintID: b.ID, Name: "title", DataType: fieldstore.TypeString, Indexed: true})
	mustPath(t, e, fieldstore.PathInput{BlueprintID: b.ID, Name: "rating", DataType: fieldstore.TypeInt, Indexed: true})
	mustPath(t, e, fieldstore.PathInput{BlueprintID: b.ID, Name: "draft", DataType: fieldstore.TypeBool, Indexed: true})
	mustPath(t, e, fieldstore.PathInput{BlueprintID: b.ID, Name: "body", DataType: fieldstore.TypeText}) // not indexed

	entry := mustPut(t, e, b.ID, map[string]any{
		"title":  "hello",
		"rating": 7,
		"draft":  false,
		"body":   "long text",
	})

	ids, err := e.Find(ctx, b.ID, "title", ops.OpEq, "hello")
	if err != nil {
		t.Fatalf("Find title: %v", err)
	}
	if len(ids) != 1 || ids[0] != entry.ID {
		t.Fatalf("unexpected find result: %v", ids)
	}

	ids, err = e.Find(ctx, b.ID, "rating", ops.OpGt, 5)
	if err != nil {
		t.Fatalf("Find rating: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected 1 match, got %v", ids)
	}

	// Non-indexed path refuses queries.
	if _, err := e.Find(ctx, b.ID, "body", ops.OpEq, "long text"); err == nil {
		t.Fatalf("expected error querying non-indexed path")
	}

	// Non-indexed fields emit no rows.
	bodyPath, err := e.FindPath(ctx, b.ID, "body")
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	if n := countRows(t, e, "SELECT COUNT(*) FROM doc_values WHERE path_id = ?", bodyPath.ID); n != 0 {
		t.Fatalf("expected no rows for non-indexed path, got %d", n)
	}

	if err := e.DeleteEntry(ctx, entry.ID); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	if n := countRows(t, e, "SELECT COUNT(*) FROM doc_values WHERE entry_id = ?", entry.ID); n != 0 {
		t.Fatalf("expected no orphan value rows, got %d", n)
	}
	if n := countRows(t, e, "SELECT COUNT(*) FROM doc_refs WHERE entry_id = ?", entry.ID); n != 0 {
		t.Fatalf("expected no orphan ref rows, got %d", n)
	}
	if _, err := e.GetEntry(ctx, entry.ID); !fieldstore.IsKind(err, fieldstore.ErrNotFound) {
		t.Fatalf("expected not found, got: %v", err)
	}
}

func TestCreatePathDefaultsToScalar(t *testing.T) {
	e := newEngine(t)

	b := mustBlueprint(t, e, "doc", fieldstore.KindFull)
	p := mustPath(t, e, fieldstore.PathInput{BlueprintID: b.ID, Name: "title", DataType: fieldstore.TypeString})
	if p.Cardinality != fieldstore.One {
		t.Fatalf("expected default cardinality one, got %s", p.Cardinality)
	}
}

func TestPutEntryRequiresFullBlueprint(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	comp := mustBlueprint(t, e, "part", fieldstore.KindComponent)
	mustPath(t, e, fieldstore.PathInput{BlueprintID: comp.ID, Name: "x", DataType: fieldstore.TypeString})

	payload, _ := json.Marshal(map[string]any{"x": "v"})
	if _, _, err := e.PutEntry(ctx, comp.ID, "", payload); !fieldstore.IsKind(err, fieldstore.ErrSchema) {
		t.Fatalf("expected schema error for component blueprint, got: %v", err)
	}
	if _, _, err := e.PutEntry(ctx, comp.ID+999, "", payload); !fieldstore.IsKind(err, fieldstore.ErrNotFound) {
		t.Fatalf("expected not found for missing blueprint, got: %v", err)
	}
}

func TestManyCardinalityRows(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	b := mustBlueprint(t, e, "doc", fieldstore.KindFull)
	tags := mustPath(t, e, fieldstore.PathInput{
		BlueprintID: b.ID, Name: "tags", DataType: fieldstore.TypeString,
		Cardinality: fieldstore.Many, Indexed: true,
	})

	entry := mustPut(t, e, b.ID, map[string]any{"tags": []any{"a", "b", "c"}})

	if n := countRows(t, e, "SELECT COUNT(*) FROM doc_values WHERE entry_id = ? AND path_id = ?", entry.ID, tags.ID); n != 3 {
		t.Fatalf("expected 3 rows, got %d", n)
	}
	// idx is contiguous from zero.
	var maxIdx int
	if err := e.DB().QueryRow("SELECT MAX(idx) FROM doc_values WHERE entry_id = ?", entry.ID).Scan(&maxIdx); err != nil {
		t.Fatalf("max idx: %v", err)
	}
	if maxIdx != 2 {
		t.Fatalf("expected max idx 2, got %d", maxIdx)
	}

	// Re-syncing the same payload keeps the row count stable.
	if err := e.ReindexEntry(ctx, entry.ID); err != nil {
		t.Fatalf("ReindexEntry: %v", err)
	}
	if n := countRows(t, e, "SELECT COUNT(*) FROM doc_values WHERE entry_id = ?", entry.ID); n != 3 {
		t.Fatalf("expected 3 rows after resync, got %d", n)
	}

	// A bare scalar counts as a one-element sequence for many.
	scalar := mustPut(t, e, b.ID, map[string]any{"tags": "solo"})
	if n := countRows(t, e, "SELECT COUNT(*) FROM doc_values WHERE entry_id = ?", scalar.ID); n != 1 {
		t.Fatalf("expected 1 row for scalar payload, got %d", n)
	}

	ids, err := e.Find(ctx, b.ID, "tags", ops.OpEq, "b")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(ids) != 1 || ids[0] != entry.ID {
		t.Fatalf("unexpected match: %v", ids)
	}
}

func TestTypeMismatchSkipsFieldOnly(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	b := mustBlueprint(t, e, "doc", fieldstore.KindFull)
	mustPath(t, e, fieldstore.PathInput{BlueprintID: b.ID, Name: "count", DataType: fieldstore.TypeInt, Indexed: true})
	mustPath(t, e, fieldstore.PathInput{BlueprintID: b.ID, Name: "name", DataType: fieldstore.TypeString, Indexed: true})

	payload, _ := json.Marshal(map[string]any{"count": true, "name": "ok"})
	entry, skipped, err := e.PutEntry(ctx, b.ID, "", payload)
	if err != nil {
		t.Fatalf("PutEntry: %v", err)
	}
	if len(skipped) != 1 || skipped[0].FullPath != "count" {
		t.Fatalf("expected count to be skipped, got %+v", skipped)
	}

	// The rest of the record is indexed normally.
	ids, err := e.Find(ctx, b.ID, "name", ops.OpEq, "ok")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(ids) != 1 || ids[0] != entry.ID {
		t.Fatalf("unexpected match: %v", ids)
	}
}

func TestComponentMaterialization(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	comp := mustBlueprint(t, e, "address", fieldstore.KindComponent)
	city := mustPath(t, e, fieldstore.PathInput{BlueprintID: comp.ID, Name: "city", DataType: fieldstore.TypeString, Indexed: true})
	mustPath(t, e, fieldstore.PathInput{BlueprintID: comp.ID, Name: "zip", DataType: fieldstore.TypeString})

	host := mustBlueprint(t, e, "person", fieldstore.KindFull)
	mustPath(t, e, fieldstore.PathInput{BlueprintID: host.ID, Name: "name", DataType: fieldstore.TypeString, Indexed: true})

	res, err := e.AttachComponent(ctx, host.ID, comp.ID, "home")
	if err != nil {
		t.Fatalf("AttachComponent: %v", err)
	}
	if !res.OK() {
		t.Fatalf("cascade failures: %+v", res.Failures)
	}

	resolved := resolvedPathSet(t, e, host.ID)
	copyPath, ok := resolved["home.city"]
	if !ok {
		t.Fatalf("expected materialized copy home.city, have %v", keys(resolved))
	}
	if !copyPath.Materialized() || copyPath.SourceComponentID == nil || *copyPath.SourceComponentID != comp.ID {
		t.Fatalf("copy not marked as materialized from component: %+v", copyPath)
	}
	if !copyPath.Indexed {
		t.Fatalf("copy should inherit is_indexed")
	}
	if _, ok := resolved["home.zip"]; !ok {
		t.Fatalf("expected materialized copy home.zip")
	}

	// The authored list stays free of copies.
	authored, err := e.AuthoredPaths(ctx, host.ID)
	if err != nil {
		t.Fatalf("AuthoredPaths: %v", err)
	}
	if len(authored) != 1 || authored[0].FullPath != "name" {
		t.Fatalf("unexpected authored paths: %+v", authored)
	}

	// Entries index through the copies.
	entry := mustPut(t, e, host.ID, map[string]any{
		"name": "ada",
		"home": map[string]any{"city": "lisbon", "zip": "1000"},
	})
	ids, err := e.Find(ctx, host.ID, "home.city", ops.OpEq, "lisbon")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(ids) != 1 || ids[0] != entry.ID {
		t.Fatalf("unexpected match: %v", ids)
	}

	// Editing the component cascades into the host; the copy id is stable.
	if _, err := e.UpdatePath(ctx, city.ID, fieldstore.PathUpdate{Name: strPtr("town")}); err != nil {
		t.Fatalf("UpdatePath: %v", err)
	}
	after := resolvedPathSet(t, e, host.ID)
	renamed, ok := after["home.town"]
	if !ok {
		t.Fatalf("expected renamed copy home.town, have %v", keys(after))
	}
	if renamed.ID != copyPath.ID {
		t.Fatalf("copy id changed across rematerialization: %d -> %d", copyPath.ID, renamed.ID)
	}
	if _, stale := after["home.city"]; stale {
		t.Fatalf("stale copy home.city still resolved")
	}

	// New component paths show up on the host too.
	mustPath(t, e, fieldstore.PathInput{BlueprintID: comp.ID, Name: "country", DataType: fieldstore.TypeString})
	if _, ok := resolvedPathSet(t, e, host.ID)["home.country"]; !ok {
		t.Fatalf("expected cascaded copy home.country")
	}

	// Detach removes every copy from the resolved list.
	if _, err := e.DetachComponent(ctx, host.ID, comp.ID); err != nil {
		t.Fatalf("DetachComponent: %v", err)
	}
	final := resolvedPathSet(t, e, host.ID)
	for fp := range final {
		if fp != "name" {
			t.Fatalf("unexpected surviving path %s after detach", fp)
		}
	}
}

func TestDetachDropsIndexRows(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	comp := mustBlueprint(t, e, "address", fieldstore.KindComponent)
	mustPath(t, e, fieldstore.PathInput{BlueprintID: comp.ID, Name: "city", DataType: fieldstore.TypeString, Indexed: true})
	host := mustBlueprint(t, e, "person", fieldstore.KindFull)
	if _, err := e.AttachComponent(ctx, host.ID, comp.ID, "home"); err != nil {
		t.Fatalf("AttachComponent: %v", err)
	}
	copyPath, ok := resolvedPathSet(t, e, host.ID)["home.city"]
	if !ok {
		t.Fatalf("expected materialized copy home.city")
	}

	mustPut(t, e, host.ID, map[string]any{"home": map[string]any{"city": "oslo"}})
	if n := countRows(t, e, "SELECT COUNT(*) FROM doc_values WHERE path_id = ?", copyPath.ID); n != 1 {
		t.Fatalf("expected 1 row through the copy, got %d", n)
	}

	// Detach drops the copies' rows in the same transaction; the host has
	// no indexed paths left afterwards, so no reindex would clean up.
	if _, err := e.DetachComponent(ctx, host.ID, comp.ID); err != nil {
		t.Fatalf("DetachComponent: %v", err)
	}
	if n := countRows(t, e, "SELECT COUNT(*) FROM doc_values WHERE path_id = ?", copyPath.ID); n != 0 {
		t.Fatalf("index rows survived detach: %d", n)
	}
}

func TestEmbedding(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	meta := mustBlueprint(t, e, "meta", fieldstore.KindFull)
	mustPath(t, e, fieldstore.PathInput{BlueprintID: meta.ID, Name: "author", DataType: fieldstore.TypeString, Indexed: true})

	page := mustBlueprint(t, e, "page", fieldstore.KindFull)
	anchor := mustPath(t, e, fieldstore.PathInput{BlueprintID: page.ID, Name: "info", DataType: fieldstore.TypeBlueprint})

	if _, err := e.SetEmbeddedBlueprint(ctx, anchor.ID, meta.ID); err != nil {
		t.Fatalf("SetEmbeddedBlueprint: %v", err)
	}

	resolved := resolvedPathSet(t, e, page.ID)
	copyPath, ok := resolved["info.author"]
	if !ok {
		t.Fatalf("expected embedded copy info.author, have %v", keys(resolved))
	}
	if copyPath.EmbeddedRootPathID == nil || *copyPath.EmbeddedRootPathID != anchor.ID {
		t.Fatalf("copy not anchored to embedding path: %+v", copyPath)
	}

	entry := mustPut(t, e, page.ID, map[string]any{
		"info": map[string]any{"author": "grace"},
	})
	ids, err := e.Find(ctx, page.ID, "info.author", ops.OpEq, "grace")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(ids) != 1 || ids[0] != entry.ID {
		t.Fatalf("unexpected match: %v", ids)
	}

	// Authoring a new path on the target cascades to the embedder.
	mustPath(t, e, fieldstore.PathInput{BlueprintID: meta.ID, Name: "year", DataType: fieldstore.TypeInt, Indexed: true})
	if _, ok := resolvedPathSet(t, e, page.ID)["info.year"]; !ok {
		t.Fatalf("expected cascaded embedded copy info.year")
	}

	if _, err := e.ClearEmbeddedBlueprint(ctx, anchor.ID); err != nil {
		t.Fatalf("ClearEmbeddedBlueprint: %v", err)
	}
	after := resolvedPathSet(t, e, page.ID)
	if _, ok := after["info.author"]; ok {
		t.Fatalf("embedded copies survived clear")
	}
	if _, ok := after["info"]; !ok {
		t.Fatalf("anchor path should survive clear")
	}
	if n := countRows(t, e, "SELECT COUNT(*) FROM doc_values WHERE path_id = ?", copyPath.ID); n != 0 {
		t.Fatalf("index rows survived clear: %d", n)
	}
}

func TestCascadeDiamondVisitsOnce(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	base := mustBlueprint(t, e, "base", fieldstore.KindComponent)
	field := mustPath(t, e, fieldstore.PathInput{BlueprintID: base.ID, Name: "v", DataType: fieldstore.TypeString})

	left := mustBlueprint(t, e, "left", fieldstore.KindComponent)
	right := mustBlueprint(t, e, "right", fieldstore.KindComponent)
	top := mustBlueprint(t, e, "top", fieldstore.KindFull)

	for _, attach := range []struct {
		host, comp int64
		prefix     string
	}{
		{left.ID, base.ID, "b"},
		{right.ID, base.ID, "b"},
		{top.ID, left.ID, "l"},
		{top.ID, right.ID, "r"},
	} {
		if _, err := e.AttachComponent(ctx, attach.host, attach.comp, attach.prefix); err != nil {
			t.Fatalf("AttachComponent: %v", err)
		}
	}

	// Editing the shared base reaches every dependent exactly once.
	if _, err := e.UpdatePath(ctx, field.ID, fieldstore.PathUpdate{Name: strPtr("w")}); err != nil {
		t.Fatalf("UpdatePath: %v", err)
	}

	resolved := resolvedPathSet(t, e, top.ID)
	if _, ok := resolved["l.b.w"]; !ok {
		t.Fatalf("expected l.b.w on top, have %v", keys(resolved))
	}
	if _, ok := resolved["r.b.w"]; !ok {
		t.Fatalf("expected r.b.w on top, have %v", keys(resolved))
	}
}

func TestCycleRejected(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	a := mustBlueprint(t, e, "a", fieldstore.KindComponent)
	b := mustBlueprint(t, e, "b", fieldstore.KindComponent)

	if _, err := e.AttachComponent(ctx, a.ID, b.ID, "x"); err != nil {
		t.Fatalf("AttachComponent: %v", err)
	}
	_, err := e.AttachComponent(ctx, b.ID, a.ID, "y")
	if !fieldstore.IsKind(err, fieldstore.ErrCycle) {
		t.Fatalf("expected cycle error, got: %v", err)
	}

	// Self attachment is the degenerate cycle.
	if _, err := e.AttachComponent(ctx, a.ID, a.ID, "z"); !fieldstore.IsKind(err, fieldstore.ErrCycle) {
		t.Fatalf("expected cycle error on self attach, got: %v", err)
	}

	// Embedding back into a dependency is rejected too.
	anchor := mustPath(t, e, fieldstore.PathInput{BlueprintID: b.ID, Name: "loop", DataType: fieldstore.TypeBlueprint})
	if _, err := e.SetEmbeddedBlueprint(ctx, anchor.ID, a.ID); !fieldstore.IsKind(err, fieldstore.ErrCycle) {
		t.Fatalf("expected cycle error on embed, got: %v", err)
	}
}

func TestIndexToggleAndCompact(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	b := mustBlueprint(t, e, "doc", fieldstore.KindFull)
	p := mustPath(t, e, fieldstore.PathInput{BlueprintID: b.ID, Name: "flag", DataType: fieldstore.TypeBool, Indexed: true})
	entry := mustPut(t, e, b.ID, map[string]any{"flag": true})

	if n := countRows(t, e, "SELECT COUNT(*) FROM doc_values WHERE path_id = ?", p.ID); n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}

	// Toggling off drops the rows immediately.
	off := false
	if _, err := e.UpdatePath(ctx, p.ID, fieldstore.PathUpdate{Indexed: &off}); err != nil {
		t.Fatalf("UpdatePath: %v", err)
	}
	if n := countRows(t, e, "SELECT COUNT(*) FROM doc_values WHERE path_id = ?", p.ID); n != 0 {
		t.Fatalf("expected rows dropped after unindex, got %d", n)
	}

	// Toggling back on reprojects existing entries via the inline queue.
	on := true
	if _, err := e.UpdatePath(ctx, p.ID, fieldstore.PathUpdate{Indexed: &on}); err != nil {
		t.Fatalf("UpdatePath: %v", err)
	}
	ids, err := e.Find(ctx, b.ID, "flag", ops.OpEq, true)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(ids) != 1 || ids[0] != entry.ID {
		t.Fatalf("expected entry reprojected, got %v", ids)
	}

	// Deleting the path tombstones it; compaction removes the row.
	if _, err := e.DeletePath(ctx, p.ID); err != nil {
		t.Fatalf("DeletePath: %v", err)
	}
	if n := countRows(t, e, "SELECT COUNT(*) FROM doc_values WHERE path_id = ?", p.ID); n != 0 {
		t.Fatalf("expected rows dropped on path delete, got %d", n)
	}
	removed, err := e.Compact(ctx)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 compacted path, got %d", removed)
	}
	if n := countRows(t, e, "SELECT COUNT(*) FROM paths WHERE id = ?", p.ID); n != 0 {
		t.Fatalf("tombstoned path survived compaction")
	}
}

func TestRenamePropagatesToSubtree(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	b := mustBlueprint(t, e, "doc", fieldstore.KindFull)
	parent := mustPath(t, e, fieldstore.PathInput{BlueprintID: b.ID, Name: "outer", DataType: fieldstore.TypeJSON})
	child := mustPath(t, e, fieldstore.PathInput{
		BlueprintID: b.ID, ParentID: &parent.ID, Name: "inner",
		DataType: fieldstore.TypeString, Indexed: true,
	})
	if child.FullPath != "outer.inner" {
		t.Fatalf("unexpected child full path: %s", child.FullPath)
	}

	entry := mustPut(t, e, b.ID, map[string]any{"outer": map[string]any{"inner": "x"}})

	if _, err := e.UpdatePath(ctx, parent.ID, fieldstore.PathUpdate{Name: strPtr("wrapper")}); err != nil {
		t.Fatalf("UpdatePath: %v", err)
	}

	got, err := e.GetPath(ctx, child.ID)
	if err != nil {
		t.Fatalf("GetPath: %v", err)
	}
	if got.FullPath != "wrapper.inner" {
		t.Fatalf("child full path not rewritten: %s", got.FullPath)
	}

	// Rows are keyed by path id, so old rows still answer under the new
	// name without a reindex.
	ids, err := e.Find(ctx, b.ID, "wrapper.inner", ops.OpEq, "x")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(ids) != 1 || ids[0] != entry.ID {
		t.Fatalf("unexpected match: %v", ids)
	}
}

func TestUpdateEntrySkipsUntouchedProjection(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	b := mustBlueprint(t, e, "doc", fieldstore.KindFull)
	mustPath(t, e, fieldstore.PathInput{BlueprintID: b.ID, Name: "key", DataType: fieldstore.TypeString, Indexed: true})
	mustPath(t, e, fieldstore.PathInput{BlueprintID: b.ID, Name: "note", DataType: fieldstore.TypeText})

	entry := mustPut(t, e, b.ID, map[string]any{"key": "k1", "note": "v1"})

	payload, _ := json.Marshal(map[string]any{"key": "k1", "note": "v2"})
	updated, _, err := e.UpdateEntry(ctx, entry.ID, payload)
	if err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}
	if updated.UpdatedAtMS <= entry.UpdatedAtMS {
		t.Fatalf("updated_at did not advance")
	}

	// Changing an indexed field re-projects.
	payload, _ = json.Marshal(map[string]any{"key": "k2", "note": "v2"})
	if _, _, err := e.UpdateEntry(ctx, entry.ID, payload); err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}
	ids, err := e.Find(ctx, b.ID, "key", ops.OpEq, "k2")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected re-projected match, got %v", ids)
	}
}

func TestRefsAndDatetime(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	b := mustBlueprint(t, e, "doc", fieldstore.KindFull)
	mustPath(t, e, fieldstore.PathInput{BlueprintID: b.ID, Name: "link", DataType: fieldstore.TypeRef, Indexed: true})
	mustPath(t, e, fieldstore.PathInput{BlueprintID: b.ID, Name: "due", DataType: fieldstore.TypeDate, Indexed: true})

	entry := mustPut(t, e, b.ID, map[string]any{
		"link": "target-1",
		"due":  "2025-06-01",
	})

	ids, err := e.Find(ctx, b.ID, "link", ops.OpEq, "target-1")
	if err != nil {
		t.Fatalf("Find ref: %v", err)
	}
	if len(ids) != 1 || ids[0] != entry.ID {
		t.Fatalf("unexpected ref match: %v", ids)
	}

	cutoff := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	ids, err = e.Find(ctx, b.ID, "due", ops.OpGt, cutoff)
	if err != nil {
		t.Fatalf("Find due: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected date match, got %v", ids)
	}
}

func TestDeleteBlueprintGuards(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	comp := mustBlueprint(t, e, "part", fieldstore.KindComponent)
	mustPath(t, e, fieldstore.PathInput{BlueprintID: comp.ID, Name: "x", DataType: fieldstore.TypeString})
	host := mustBlueprint(t, e, "whole", fieldstore.KindFull)
	if _, err := e.AttachComponent(ctx, host.ID, comp.ID, "p"); err != nil {
		t.Fatalf("AttachComponent: %v", err)
	}

	if err := e.DeleteBlueprint(ctx, comp.ID); !fieldstore.IsKind(err, fieldstore.ErrConflict) {
		t.Fatalf("expected conflict deleting attached component, got: %v", err)
	}

	mustPut(t, e, host.ID, map[string]any{"p": map[string]any{"x": "v"}})
	if err := e.DeleteBlueprint(ctx, host.ID); !fieldstore.IsKind(err, fieldstore.ErrConflict) {
		t.Fatalf("expected conflict deleting blueprint with entries, got: %v", err)
	}
}

func keys(m map[string]fieldstore.Path) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func strPtr(s string) *string { return &s }
