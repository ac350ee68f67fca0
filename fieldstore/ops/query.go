package ops

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fieldstore/fieldstore/fieldstore/storage"
	"github.com/fieldstore/fieldstore/fieldstore/storage/sqlbuilder"
)

// Op is a comparison operator for index lookups.
type Op string

const (
	OpEq Op = "eq"
	OpNe Op = "ne"
	OpLt Op = "lt"
	OpLe Op = "le"
	OpGt Op = "gt"
	OpGe Op = "ge"
)

func (o Op) sqlOp() (string, bool) {
	switch o {
	case OpEq:
		return "=", true
	case OpNe:
		return "<>", true
	case OpLt:
		return "<", true
	case OpLe:
		return "<=", true
	case OpGt:
		return ">", true
	case OpGe:
		return ">=", true
	}
	return "", false
}

// columnFor maps a data type to its doc_values column.
func columnFor(t storage.DataType) (string, error) {
	switch t {
	case storage.TypeString:
		return "value_string", nil
	case storage.TypeText:
		return "value_text", nil
	case storage.TypeInt:
		return "value_int", nil
	case storage.TypeFloat:
		return "value_float", nil
	case storage.TypeBool:
		return "value_bool", nil
	case storage.TypeDate, storage.TypeDatetime:
		return "value_datetime", nil
	case storage.TypeJSON:
		return "value_json", nil
	default:
		return "", fmt.Errorf("data type %q is not queryable", t)
	}
}

// Find returns the ids of entries whose index rows for the given path
// satisfy `op value`. Read-only; runs on either backend via the
// placeholder builder.
func Find(ctx context.Context, db *sql.DB, style sqlbuilder.PlaceholderStyle, spec storage.PathSpec, op Op, value any) ([]string, error) {
	sqlOp, ok := op.sqlOp()
	if !ok {
		return nil, fmt.Errorf("unknown operator %q", op)
	}

	b := sqlbuilder.New(style)
	var query string
	if spec.Type == storage.TypeRef {
		target, err := coerceRef(value)
		if err != nil {
			return nil, err
		}
		query = "SELECT DISTINCT entry_id FROM doc_refs WHERE path_id = " + b.Arg(spec.ID) +
			" AND target_id " + sqlOp + " " + b.Arg(target) + " ORDER BY entry_id"
	} else {
		col, err := columnFor(spec.Type)
		if err != nil {
			return nil, err
		}
		arg, err := coerceQueryArg(spec.Type, value)
		if err != nil {
			return nil, err
		}
		query = "SELECT DISTINCT entry_id FROM doc_values WHERE path_id = " + b.Arg(spec.ID) +
			" AND " + col + " " + sqlOp + " " + b.Arg(arg) + " ORDER BY entry_id"
	}

	rows, err := db.QueryContext(ctx, query, b.Args()...)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan entry id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// coerceQueryArg converts a caller-supplied comparison value into the
// representation stored in the typed column.
func coerceQueryArg(t storage.DataType, value any) (any, error) {
	switch t {
	case storage.TypeString, storage.TypeText, storage.TypeJSON:
		return coerceString(value)
	case storage.TypeInt:
		return coerceInt(value)
	case storage.TypeFloat:
		return coerceFloat(value)
	case storage.TypeBool:
		return coerceBool(value)
	case storage.TypeDate, storage.TypeDatetime:
		switch v := value.(type) {
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		default:
			return coerceTemporal(value)
		}
	default:
		return nil, fmt.Errorf("data type %q is not queryable", t)
	}
}
