package fieldstore

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
)

// Blueprint is a content schema: a named tree of typed paths plus the
// components attached to it.
type Blueprint struct {
	ID          int64
	Name        string
	Kind        BlueprintKind
	CreatedAtMS int64
	UpdatedAtMS int64
}

// Path is one field of a blueprint. A path is either authored directly on
// its blueprint, or a materialized copy: of an attached component's field
// (SourceComponentID set) or of an embedded blueprint's field
// (EmbeddedRootPathID set, pointing at the embedding anchor path).
type Path struct {
	ID          int64
	BlueprintID int64
	ParentID    *int64
	Name        string
	FullPath    string
	DataType    DataType
	Cardinality Cardinality
	Indexed     bool
	Required    bool

	// ValidationRules is an opaque JSON document interpreted by callers.
	ValidationRules *string

	// EmbeddedBlueprintID is set on paths of DataType blueprint and makes
	// the path an embedding anchor.
	EmbeddedBlueprintID *int64

	SourceComponentID  *int64
	SourcePathID       *int64
	EmbeddedRootPathID *int64

	Tombstoned bool
}

// Materialized reports whether the path is a derived copy rather than an
// authored field.
func (p Path) Materialized() bool {
	return p.SourceComponentID != nil || p.EmbeddedRootPathID != nil
}

// Attachment links a component blueprint into a host blueprint under a
// path prefix.
type Attachment struct {
	BlueprintID int64
	ComponentID int64
	PathPrefix  string
}

var validNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validateName(name string) error {
	if !validNameRe.MatchString(name) {
		return SchemaError("invalid name: " + name + " (must match ^[A-Za-z_][A-Za-z0-9_]*$)")
	}
	return nil
}

// validatePrefix accepts a dotted sequence of valid names.
func validatePrefix(prefix string) error {
	if prefix == "" {
		return SchemaError("path prefix must not be empty")
	}
	for _, seg := range strings.Split(prefix, ".") {
		if err := validateName(seg); err != nil {
			return SchemaError("invalid path prefix segment: " + seg)
		}
	}
	return nil
}

func joinPath(prefix, rel string) string {
	if prefix == "" {
		return rel
	}
	return prefix + "." + rel
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPath(row rowScanner) (Path, error) {
	var p Path
	var parentID, embedTarget, srcComponent, srcPath, embedRoot sql.NullInt64
	var rules sql.NullString
	err := row.Scan(
		&p.ID, &p.BlueprintID, &parentID, &p.Name, &p.FullPath,
		&p.DataType, &p.Cardinality, &p.Indexed, &p.Required, &rules,
		&embedTarget, &srcComponent, &srcPath, &embedRoot, &p.Tombstoned,
	)
	if err != nil {
		return Path{}, err
	}
	p.ParentID = nullableInt(parentID)
	p.EmbeddedBlueprintID = nullableInt(embedTarget)
	p.SourceComponentID = nullableInt(srcComponent)
	p.SourcePathID = nullableInt(srcPath)
	p.EmbeddedRootPathID = nullableInt(embedRoot)
	if rules.Valid {
		s := rules.String
		p.ValidationRules = &s
	}
	return p, nil
}

func nullableInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func loadPaths(ctx context.Context, q querier, query string, args ...any) ([]Path, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Path
	for rows.Next() {
		p, err := scanPath(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanBlueprint(row rowScanner) (Blueprint, error) {
	var b Blueprint
	err := row.Scan(&b.ID, &b.Name, &b.Kind, &b.CreatedAtMS, &b.UpdatedAtMS)
	return b, err
}
