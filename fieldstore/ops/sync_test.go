package ops

import (
	"encoding/json"
	"testing"

	"github.com/fieldstore/fieldstore/fieldstore/storage"
)

func mustPrepare(t *testing.T, specs []storage.PathSpec, doc map[string]any) *SyncPrepared {
	t.Helper()
	payload, _ := json.Marshal(doc)
	prep, err := PrepareSync(specs, payload)
	if err != nil {
		t.Fatalf("PrepareSync: %v", err)
	}
	return prep
}

func TestPrepareSyncScalars(t *testing.T) {
	specs := []storage.PathSpec{
		{ID: 1, FullPath: "title", Type: storage.TypeString, Cardinality: storage.One},
		{ID: 2, FullPath: "count", Type: storage.TypeInt, Cardinality: storage.One},
		{ID: 3, FullPath: "score", Type: storage.TypeFloat, Cardinality: storage.One},
		{ID: 4, FullPath: "done", Type: storage.TypeBool, Cardinality: storage.One},
	}
	prep := mustPrepare(t, specs, map[string]any{
		"title": "x",
		"count": 41,
		"score": 2.5,
		"done":  true,
	})

	if len(prep.Skipped) != 0 {
		t.Fatalf("unexpected skips: %+v", prep.Skipped)
	}
	if len(prep.Values) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(prep.Values))
	}
	byPath := map[int64]ValueRow{}
	for _, v := range prep.Values {
		byPath[v.PathID] = v
	}
	if byPath[1].Str == nil || *byPath[1].Str != "x" {
		t.Fatalf("bad string row: %+v", byPath[1])
	}
	if byPath[2].Int == nil || *byPath[2].Int != 41 {
		t.Fatalf("bad int row: %+v", byPath[2])
	}
	if byPath[3].Float == nil || *byPath[3].Float != 2.5 {
		t.Fatalf("bad float row: %+v", byPath[3])
	}
	if byPath[4].Bool == nil || *byPath[4].Bool != true {
		t.Fatalf("bad bool row: %+v", byPath[4])
	}
}

func TestPrepareSyncNestedAndFanOut(t *testing.T) {
	specs := []storage.PathSpec{
		{ID: 1, FullPath: "meta.author", Type: storage.TypeString, Cardinality: storage.One},
		{ID: 2, FullPath: "items.sku", Type: storage.TypeString, Cardinality: storage.Many},
	}
	prep := mustPrepare(t, specs, map[string]any{
		"meta": map[string]any{"author": "ada"},
		"items": []any{
			map[string]any{"sku": "a1"},
			map[string]any{"sku": "a2"},
			map[string]any{"other": true},
		},
	})

	if len(prep.Skipped) != 0 {
		t.Fatalf("unexpected skips: %+v", prep.Skipped)
	}
	var skus []string
	for _, v := range prep.Values {
		if v.PathID == 2 {
			skus = append(skus, *v.Str)
			if v.Idx != len(skus)-1 {
				t.Fatalf("idx not contiguous: got %d at position %d", v.Idx, len(skus)-1)
			}
		}
	}
	if len(skus) != 2 || skus[0] != "a1" || skus[1] != "a2" {
		t.Fatalf("unexpected fan-out values: %v", skus)
	}
}

func TestPrepareSyncCardinalityRules(t *testing.T) {
	one := []storage.PathSpec{{ID: 1, FullPath: "v", Type: storage.TypeString, Cardinality: storage.One}}
	many := []storage.PathSpec{{ID: 1, FullPath: "v", Type: storage.TypeString, Cardinality: storage.Many}}

	// An array under cardinality one is a mismatch, not an error.
	prep := mustPrepare(t, one, map[string]any{"v": []any{"a", "b"}})
	if len(prep.Values) != 0 || len(prep.Skipped) != 1 {
		t.Fatalf("expected skip for array under one, got %+v", prep)
	}

	// A bare scalar under many indexes as a one-element sequence.
	prep = mustPrepare(t, many, map[string]any{"v": "solo"})
	if len(prep.Values) != 1 || prep.Values[0].Idx != 0 {
		t.Fatalf("expected singleton row, got %+v", prep.Values)
	}

	// Null elements inside an array are dropped, idx stays contiguous.
	prep = mustPrepare(t, many, map[string]any{"v": []any{"a", nil, "b"}})
	if len(prep.Values) != 2 || prep.Values[1].Idx != 1 {
		t.Fatalf("expected nulls dropped with contiguous idx, got %+v", prep.Values)
	}
}

func TestPrepareSyncMissingAndNull(t *testing.T) {
	specs := []storage.PathSpec{
		{ID: 1, FullPath: "a", Type: storage.TypeString, Cardinality: storage.One},
		{ID: 2, FullPath: "b", Type: storage.TypeString, Cardinality: storage.One},
	}
	prep := mustPrepare(t, specs, map[string]any{"b": nil})
	if len(prep.Values) != 0 || len(prep.Skipped) != 0 {
		t.Fatalf("missing and null must emit nothing, got %+v", prep)
	}
}

func TestPrepareSyncMismatchRollsBackField(t *testing.T) {
	specs := []storage.PathSpec{
		{ID: 1, FullPath: "nums", Type: storage.TypeInt, Cardinality: storage.Many},
		{ID: 2, FullPath: "name", Type: storage.TypeString, Cardinality: storage.One},
	}
	// Second element mismatches; the whole field is skipped but the other
	// field survives.
	prep := mustPrepare(t, specs, map[string]any{
		"nums": []any{1, true, 3},
		"name": "keep",
	})
	if len(prep.Skipped) != 1 || prep.Skipped[0].FullPath != "nums" {
		t.Fatalf("expected nums skipped, got %+v", prep.Skipped)
	}
	for _, v := range prep.Values {
		if v.PathID == 1 {
			t.Fatalf("partial rows leaked for skipped field: %+v", v)
		}
	}
	if len(prep.Values) != 1 || *prep.Values[0].Str != "keep" {
		t.Fatalf("expected surviving row for name, got %+v", prep.Values)
	}
}

func TestPrepareSyncRefs(t *testing.T) {
	specs := []storage.PathSpec{
		{ID: 9, FullPath: "links", Type: storage.TypeRef, Cardinality: storage.Many},
	}
	prep := mustPrepare(t, specs, map[string]any{"links": []any{"e1", "e2"}})
	if len(prep.Refs) != 2 || prep.Refs[0].TargetID != "e1" || prep.Refs[1].Idx != 1 {
		t.Fatalf("unexpected ref rows: %+v", prep.Refs)
	}

	// Empty string is not a valid target.
	prep = mustPrepare(t, specs, map[string]any{"links": []any{""}})
	if len(prep.Refs) != 0 || len(prep.Skipped) != 1 {
		t.Fatalf("expected empty ref skipped, got %+v", prep)
	}
}

func TestCoerceTemporal(t *testing.T) {
	cases := []struct {
		in   any
		want int64
	}{
		{"2025-01-02", 1735776000000},
		{"2025-01-02T00:00:00Z", 1735776000000},
		{"2025-01-02 00:00:00", 1735776000000},
		{float64(1735776000000), 1735776000000},
	}
	for _, c := range cases {
		got, err := coerceTemporal(c.in)
		if err != nil {
			t.Fatalf("coerceTemporal(%v): %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("coerceTemporal(%v) = %d, want %d", c.in, got, c.want)
		}
	}
	if _, err := coerceTemporal("not a date"); err == nil {
		t.Fatalf("expected error for junk date")
	}
}

func TestCoerceInt(t *testing.T) {
	if n, err := coerceInt(float64(42)); err != nil || n != 42 {
		t.Fatalf("integral float: n=%d err=%v", n, err)
	}
	if _, err := coerceInt(float64(4.2)); err == nil {
		t.Fatalf("fractional float must fail")
	}
	if n, err := coerceInt("17"); err != nil || n != 17 {
		t.Fatalf("numeric string: n=%d err=%v", n, err)
	}
	if _, err := coerceInt(true); err == nil {
		t.Fatalf("bool must fail")
	}
}
