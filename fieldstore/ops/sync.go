package ops

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/fieldstore/fieldstore/fieldstore/storage"
)

// ValueRow is one typed index row destined for doc_values. Exactly one of
// the value pointers is set, selected by the path's data type.
type ValueRow struct {
	PathID     int64
	Idx        int
	Str        *string
	Int        *int64
	Float      *float64
	Bool       *bool
	Text       *string
	JSON       *string
	DatetimeMS *int64
}

// RefRow is one index row destined for doc_refs.
type RefRow struct {
	PathID   int64
	Idx      int
	TargetID string
}

// SkippedField records a field whose payload value did not match its
// declared type. The field emits no rows; the rest of the record is
// unaffected.
type SkippedField struct {
	FullPath string
	Err      error
}

// SyncPrepared holds the replacement row set for one entry.
type SyncPrepared struct {
	Values  []ValueRow
	Refs    []RefRow
	Skipped []SkippedField
}

// PrepareSync extracts typed index rows from an entry payload. specs is the
// resolved, indexed path list of the entry's blueprint. Missing or null
// values emit no row. Extraction never fails on a single field; mismatches
// are collected in Skipped.
func PrepareSync(specs []storage.PathSpec, docJSON []byte) (*SyncPrepared, error) {
	var doc map[string]any
	if err := json.Unmarshal(docJSON, &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON payload: %w", err)
	}

	prep := &SyncPrepared{}
	for _, spec := range specs {
		if spec.Type == storage.TypeBlueprint {
			// Embedding anchors structure the path tree; they hold no value.
			continue
		}
		values, err := resolveCardinality(doc, spec)
		if err != nil {
			prep.Skipped = append(prep.Skipped, SkippedField{FullPath: spec.FullPath, Err: err})
			continue
		}
		if err := appendRows(prep, spec, values); err != nil {
			// Roll back any rows this field already contributed.
			prep.Values = trimRows(prep.Values, spec.ID)
			prep.Refs = trimRefs(prep.Refs, spec.ID)
			prep.Skipped = append(prep.Skipped, SkippedField{FullPath: spec.FullPath, Err: err})
		}
	}
	return prep, nil
}

// ExecuteSync replaces all index rows for the entry inside the given
// transaction: full delete followed by inserts, so a reader never observes
// a partially replaced row set.
func ExecuteSync(ctx context.Context, tx *sql.Tx, sqlt storage.SQL, entryID string, prep *SyncPrepared) error {
	if err := DeleteEntryRows(ctx, tx, sqlt, entryID); err != nil {
		return err
	}
	for _, v := range prep.Values {
		if _, err := tx.ExecContext(ctx, sqlt.InsertDocValue,
			entryID, v.PathID, v.Idx,
			v.Str, v.Int, v.Float, v.Bool, v.Text, v.JSON, v.DatetimeMS); err != nil {
			return fmt.Errorf("insert doc value: %w", err)
		}
	}
	for _, r := range prep.Refs {
		if _, err := tx.ExecContext(ctx, sqlt.InsertDocRef, entryID, r.PathID, r.Idx, r.TargetID); err != nil {
			return fmt.Errorf("insert doc ref: %w", err)
		}
	}
	return nil
}

// SyncEntry runs PrepareSync + ExecuteSync for one entry in its own
// transaction. Skipped fields are logged and returned; they never fail the
// sync.
func SyncEntry(ctx context.Context, db *sql.DB, sqlt storage.SQL, entryID string, specs []storage.PathSpec, payload []byte, log zerolog.Logger) (*SyncPrepared, error) {
	prep, err := PrepareSync(specs, payload)
	if err != nil {
		return nil, err
	}
	LogSkipped(log, entryID, prep.Skipped)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := ExecuteSync(ctx, tx, sqlt, entryID, prep); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return prep, nil
}

// LogSkipped reports type-mismatched fields through the operational log.
func LogSkipped(log zerolog.Logger, entryID string, skipped []SkippedField) {
	for _, s := range skipped {
		log.Warn().
			Str("entry_id", entryID).
			Str("full_path", s.FullPath).
			Err(s.Err).
			Msg("index value skipped: type mismatch")
	}
}

// resolveCardinality walks the payload and shapes the result per the
// path's cardinality: a single value for one, an ordered slice for many.
func resolveCardinality(doc map[string]any, spec storage.PathSpec) ([]any, error) {
	leaves := resolveLeaves(doc, strings.Split(spec.FullPath, "."))
	if len(leaves) == 0 {
		return nil, nil
	}

	if spec.Cardinality == storage.Many {
		var out []any
		for _, leaf := range leaves {
			if arr, ok := leaf.([]any); ok {
				for _, el := range arr {
					if el != nil {
						out = append(out, el)
					}
				}
				continue
			}
			// A bare scalar counts as a one-element sequence.
			out = append(out, leaf)
		}
		return out, nil
	}

	if len(leaves) > 1 {
		return nil, fmt.Errorf("multiple values for cardinality one")
	}
	if _, ok := leaves[0].([]any); ok {
		return nil, fmt.Errorf("array value for cardinality one")
	}
	return leaves[:1], nil
}

// resolveLeaves walks a dotted path through nested objects. Arrays met
// mid-path fan out in order; missing keys and nulls resolve to nothing.
func resolveLeaves(cur any, segs []string) []any {
	if cur == nil {
		return nil
	}
	if len(segs) == 0 {
		return []any{cur}
	}
	switch v := cur.(type) {
	case map[string]any:
		return resolveLeaves(v[segs[0]], segs[1:])
	case []any:
		var out []any
		for _, el := range v {
			out = append(out, resolveLeaves(el, segs)...)
		}
		return out
	default:
		return nil
	}
}

func appendRows(prep *SyncPrepared, spec storage.PathSpec, values []any) error {
	for i, v := range values {
		if spec.Type == storage.TypeRef {
			target, err := coerceRef(v)
			if err != nil {
				return err
			}
			prep.Refs = append(prep.Refs, RefRow{PathID: spec.ID, Idx: i, TargetID: target})
			continue
		}
		row := ValueRow{PathID: spec.ID, Idx: i}
		if err := fillValue(&row, spec.Type, v); err != nil {
			return err
		}
		prep.Values = append(prep.Values, row)
	}
	return nil
}

func trimRows(rows []ValueRow, pathID int64) []ValueRow {
	out := rows[:0]
	for _, r := range rows {
		if r.PathID != pathID {
			out = append(out, r)
		}
	}
	return out
}

func trimRefs(rows []RefRow, pathID int64) []RefRow {
	out := rows[:0]
	for _, r := range rows {
		if r.PathID != pathID {
			out = append(out, r)
		}
	}
	return out
}

// fillValue dispatches on the declared data type and sets exactly one
// typed cell.
func fillValue(row *ValueRow, t storage.DataType, v any) error {
	switch t {
	case storage.TypeString:
		s, err := coerceString(v)
		if err != nil {
			return err
		}
		row.Str = &s
	case storage.TypeText:
		s, err := coerceString(v)
		if err != nil {
			return err
		}
		row.Text = &s
	case storage.TypeInt:
		n, err := coerceInt(v)
		if err != nil {
			return err
		}
		row.Int = &n
	case storage.TypeFloat:
		f, err := coerceFloat(v)
		if err != nil {
			return err
		}
		row.Float = &f
	case storage.TypeBool:
		b, err := coerceBool(v)
		if err != nil {
			return err
		}
		row.Bool = &b
	case storage.TypeDate, storage.TypeDatetime:
		ms, err := coerceTemporal(v)
		if err != nil {
			return err
		}
		row.DatetimeMS = &ms
	case storage.TypeJSON:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal json value: %w", err)
		}
		s := string(raw)
		row.JSON = &s
	default:
		return fmt.Errorf("unsupported data type %q", t)
	}
	return nil
}

func coerceString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", v)
	}
	return s, nil
}

func coerceInt(v any) (int64, error) {
	switch n := v.(type) {
	case float64:
		i := int64(n)
		if float64(i) != n {
			return 0, fmt.Errorf("expected integer, got %v", n)
		}
		return i, nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q as integer", n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

func coerceFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q as number", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

func coerceBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch b {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return false, fmt.Errorf("invalid bool string %q", b)
	default:
		return false, fmt.Errorf("expected bool, got %T", v)
	}
}

// coerceTemporal parses date and datetime values to epoch milliseconds.
func coerceTemporal(v any) (int64, error) {
	switch d := v.(type) {
	case string:
		if t, err := time.Parse("2006-01-02", d); err == nil {
			return t.UnixMilli(), nil
		}
		if t, err := time.Parse(time.RFC3339, d); err == nil {
			return t.UnixMilli(), nil
		}
		if t, err := time.Parse("2006-01-02 15:04:05", d); err == nil {
			return t.UnixMilli(), nil
		}
		return 0, fmt.Errorf("invalid date format %q", d)
	case float64:
		// epoch milliseconds
		return int64(d), nil
	default:
		return 0, fmt.Errorf("expected date string, got %T", v)
	}
}

func coerceRef(v any) (string, error) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("expected non-empty record id string, got %T", v)
	}
	return s, nil
}
