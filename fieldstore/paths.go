package fieldstore

import (
	"context"
	"database/sql"
	"strings"

	"github.com/fieldstore/fieldstore/fieldstore/ops"
)

// PathInput describes a new authored path.
type PathInput struct {
	BlueprintID     int64
	ParentID        *int64
	Name            string
	DataType        DataType
	Cardinality     Cardinality
	Indexed         bool
	Required        bool
	ValidationRules *string
}

// PathUpdate carries the mutable attributes of an authored path. Nil
// fields are left unchanged.
type PathUpdate struct {
	Name            *string
	DataType        *DataType
	Cardinality     *Cardinality
	Indexed         *bool
	Required        *bool
	ValidationRules *string
}

func (e *Engine) getPath(ctx context.Context, id int64) (Path, error) {
	p, err := scanPath(e.db.QueryRowContext(ctx, e.sqlt.GetPath, id))
	if err == sql.ErrNoRows {
		return Path{}, NotFoundError("path")
	}
	if err != nil {
		return Path{}, Wrap(ErrSQL, "load path", err)
	}
	return p, nil
}

// GetPath loads a single path by id.
func (e *Engine) GetPath(ctx context.Context, id int64) (Path, error) {
	return e.getPath(ctx, id)
}

// FindPath resolves a path by its dotted full path within a blueprint.
func (e *Engine) FindPath(ctx context.Context, blueprintID int64, fullPath string) (Path, error) {
	p, err := scanPath(e.db.QueryRowContext(ctx, e.sqlt.FindPathByFullPath, blueprintID, fullPath))
	if err == sql.ErrNoRows {
		return Path{}, NotFoundError("path " + fullPath)
	}
	if err != nil {
		return Path{}, Wrap(ErrSQL, "load path", err)
	}
	return p, nil
}

// CreatePath adds an authored path to a blueprint. If the new path is
// indexed, existing entries are scheduled for reindexing so its rows get
// projected.
func (e *Engine) CreatePath(ctx context.Context, in PathInput) (Path, error) {
	if err := validateName(in.Name); err != nil {
		return Path{}, err
	}
	if !in.DataType.Valid() {
		return Path{}, SchemaError("invalid data type: " + string(in.DataType))
	}
	if in.Cardinality == "" {
		in.Cardinality = One
	}
	if !in.Cardinality.Valid() {
		return Path{}, SchemaError("invalid cardinality: " + string(in.Cardinality))
	}
	if in.DataType == TypeBlueprint && in.Indexed {
		return Path{}, SchemaError("blueprint-typed paths cannot be indexed")
	}

	fullPath := in.Name
	if in.ParentID != nil {
		parent, err := e.getPath(ctx, *in.ParentID)
		if err != nil {
			return Path{}, err
		}
		if parent.BlueprintID != in.BlueprintID {
			return Path{}, SchemaError("parent path belongs to a different blueprint")
		}
		if parent.Materialized() {
			return Path{}, SchemaError("cannot author paths under a materialized copy")
		}
		fullPath = joinPath(parent.FullPath, in.Name)
	}

	var id int64
	_, err := e.mutateStructure(ctx, in.BlueprintID, in.Indexed, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, e.sqlt.InsertPath,
			in.BlueprintID, in.ParentID, in.Name, fullPath, in.DataType, in.Cardinality,
			in.Indexed, in.Required, in.ValidationRules, nil, nil, nil, nil,
		).Scan(&id)
		if err != nil {
			return Wrap(ErrConflict, "insert path "+fullPath, err)
		}
		return nil
	})
	if err != nil {
		return Path{}, err
	}
	return e.getPath(ctx, id)
}

// UpdatePath edits an authored path. Renames rewrite the dotted full
// paths of the whole subtree; type, cardinality and index changes
// schedule a reindex where entry rows are affected.
func (e *Engine) UpdatePath(ctx context.Context, id int64, upd PathUpdate) (Path, error) {
	p, err := e.getPath(ctx, id)
	if err != nil {
		return Path{}, err
	}
	if p.Materialized() {
		return Path{}, SchemaError("materialized copies are edited through their source")
	}

	name := p.Name
	if upd.Name != nil {
		if err := validateName(*upd.Name); err != nil {
			return Path{}, err
		}
		name = *upd.Name
	}
	dataType := p.DataType
	if upd.DataType != nil {
		if !upd.DataType.Valid() {
			return Path{}, SchemaError("invalid data type: " + string(*upd.DataType))
		}
		dataType = *upd.DataType
	}
	cardinality := p.Cardinality
	if upd.Cardinality != nil {
		if !upd.Cardinality.Valid() {
			return Path{}, SchemaError("invalid cardinality: " + string(*upd.Cardinality))
		}
		cardinality = *upd.Cardinality
	}
	indexed := p.Indexed
	if upd.Indexed != nil {
		indexed = *upd.Indexed
	}
	required := p.Required
	if upd.Required != nil {
		required = *upd.Required
	}
	rules := p.ValidationRules
	if upd.ValidationRules != nil {
		rules = upd.ValidationRules
	}
	if dataType == TypeBlueprint && indexed {
		return Path{}, SchemaError("blueprint-typed paths cannot be indexed")
	}
	if dataType != TypeBlueprint && p.EmbeddedBlueprintID != nil {
		return Path{}, SchemaError("clear the embedding before changing the path type")
	}

	fullPath := p.FullPath
	renamed := name != p.Name
	if renamed {
		fullPath = name
		if i := strings.LastIndex(p.FullPath, "."); i >= 0 {
			fullPath = p.FullPath[:i+1] + name
		}
	}

	needsReindex := indexed && (dataType != p.DataType || cardinality != p.Cardinality || !p.Indexed)

	_, err = e.mutateStructure(ctx, p.BlueprintID, needsReindex, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, e.sqlt.UpdatePathMeta,
			p.ID, name, fullPath, dataType, cardinality, indexed, required, rules,
		); err != nil {
			return Wrap(ErrConflict, "update path "+fullPath, err)
		}
		if renamed {
			if err := renameSubtree(ctx, tx, e, p.BlueprintID, p.FullPath, fullPath); err != nil {
				return err
			}
		}
		if p.Indexed && !indexed {
			if err := ops.DeleteRowsForPath(ctx, tx, e.sqlt, p.ID); err != nil {
				return Wrap(ErrSQL, "drop index rows", err)
			}
		}
		return nil
	})
	if err != nil {
		return Path{}, err
	}
	return e.getPath(ctx, id)
}

// renameSubtree rewrites the full_path prefix of every live descendant.
// Prefix matching is done in Go so underscores in names are not treated
// as wildcards.
func renameSubtree(ctx context.Context, tx *sql.Tx, e *Engine, blueprintID int64, oldPrefix, newPrefix string) error {
	candidates, err := loadPaths(ctx, tx, e.sqlt.ListPathsByPrefix, blueprintID, oldPrefix+".%")
	if err != nil {
		return Wrap(ErrSQL, "list subtree", err)
	}
	for _, c := range candidates {
		if !strings.HasPrefix(c.FullPath, oldPrefix+".") {
			continue
		}
		rewritten := newPrefix + c.FullPath[len(oldPrefix):]
		if _, err := tx.ExecContext(ctx, e.sqlt.UpdatePathFullPath, c.ID, rewritten); err != nil {
			return Wrap(ErrSQL, "rewrite full path", err)
		}
	}
	return nil
}

// DeletePath tombstones an authored path and its whole subtree, removing
// their index rows immediately. Physical row removal happens at
// compaction.
func (e *Engine) DeletePath(ctx context.Context, id int64) (*CascadeResult, error) {
	p, err := e.getPath(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Materialized() {
		return nil, SchemaError("materialized copies are removed through their source")
	}

	return e.mutateStructure(ctx, p.BlueprintID, false, func(tx *sql.Tx) error {
		subtree, err := loadPaths(ctx, tx, e.sqlt.ListPathsByPrefix, p.BlueprintID, p.FullPath+".%")
		if err != nil {
			return Wrap(ErrSQL, "list subtree", err)
		}
		doomed := []Path{p}
		for _, c := range subtree {
			if strings.HasPrefix(c.FullPath, p.FullPath+".") {
				doomed = append(doomed, c)
			}
		}
		for _, d := range doomed {
			if _, err := tx.ExecContext(ctx, e.sqlt.TombstonePath, d.ID); err != nil {
				return Wrap(ErrSQL, "tombstone path", err)
			}
			if err := ops.DeleteRowsForPath(ctx, tx, e.sqlt, d.ID); err != nil {
				return Wrap(ErrSQL, "delete index rows", err)
			}
		}
		return nil
	})
}
