package fieldstore

import (
	"context"
	"database/sql"
)

// CreateBlueprint registers a new named blueprint.
func (e *Engine) CreateBlueprint(ctx context.Context, name string, kind BlueprintKind) (*Blueprint, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, SchemaError("invalid blueprint kind: " + string(kind))
	}
	now := e.nowMS()
	var id int64
	err := e.db.QueryRowContext(ctx, e.sqlt.InsertBlueprint, name, kind, now, now).Scan(&id)
	if err != nil {
		return nil, Wrap(ErrSQL, "insert blueprint", err)
	}
	return &Blueprint{ID: id, Name: name, Kind: kind, CreatedAtMS: now, UpdatedAtMS: now}, nil
}

// GetBlueprint loads a blueprint by id.
func (e *Engine) GetBlueprint(ctx context.Context, id int64) (*Blueprint, error) {
	b, err := scanBlueprint(e.db.QueryRowContext(ctx, e.sqlt.GetBlueprint, id))
	if err == sql.ErrNoRows {
		return nil, NotFoundError("blueprint")
	}
	if err != nil {
		return nil, Wrap(ErrSQL, "load blueprint", err)
	}
	return &b, nil
}

// GetBlueprintByName loads a blueprint by its unique name.
func (e *Engine) GetBlueprintByName(ctx context.Context, name string) (*Blueprint, error) {
	b, err := scanBlueprint(e.db.QueryRowContext(ctx, e.sqlt.GetBlueprintByName, name))
	if err == sql.ErrNoRows {
		return nil, NotFoundError("blueprint " + name)
	}
	if err != nil {
		return nil, Wrap(ErrSQL, "load blueprint", err)
	}
	return &b, nil
}

// ListBlueprints returns all blueprints ordered by name.
func (e *Engine) ListBlueprints(ctx context.Context) ([]Blueprint, error) {
	rows, err := e.db.QueryContext(ctx, e.sqlt.ListBlueprints)
	if err != nil {
		return nil, Wrap(ErrSQL, "list blueprints", err)
	}
	defer rows.Close()

	var out []Blueprint
	for rows.Next() {
		b, err := scanBlueprint(rows)
		if err != nil {
			return nil, Wrap(ErrSQL, "scan blueprint", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, Wrap(ErrSQL, "iterate blueprints", err)
	}
	return out, nil
}

// DeleteBlueprint removes a blueprint. Refused while entries exist or
// while other blueprints still depend on it; detach or clear embeddings
// first.
func (e *Engine) DeleteBlueprint(ctx context.Context, id int64) error {
	var count int64
	if err := e.db.QueryRowContext(ctx, e.sqlt.CountEntriesByBlueprint, id).Scan(&count); err != nil {
		return Wrap(ErrSQL, "count entries", err)
	}
	if count > 0 {
		return New(ErrConflict, "blueprint still has entries")
	}
	dependents, err := directDependents(ctx, e.db, e.sqlt, id)
	if err != nil {
		return Wrap(ErrSQL, "list dependents", err)
	}
	if len(dependents) > 0 {
		return New(ErrConflict, "blueprint is still attached or embedded elsewhere")
	}
	if _, err := e.db.ExecContext(ctx, e.sqlt.DeleteBlueprint, id); err != nil {
		return Wrap(ErrSQL, "delete blueprint", err)
	}
	e.cache.invalidate(id)
	return nil
}

// ListAttachments returns the host's component attachments.
func (e *Engine) ListAttachments(ctx context.Context, hostID int64) ([]Attachment, error) {
	rows, err := e.db.QueryContext(ctx, e.sqlt.ListAttachments, hostID)
	if err != nil {
		return nil, Wrap(ErrSQL, "list attachments", err)
	}
	defer rows.Close()

	var out []Attachment
	for rows.Next() {
		a := Attachment{BlueprintID: hostID}
		if err := rows.Scan(&a.ComponentID, &a.PathPrefix); err != nil {
			return nil, Wrap(ErrSQL, "scan attachment", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, Wrap(ErrSQL, "iterate attachments", err)
	}
	return out, nil
}

// AttachComponent links a component blueprint into a host under a path
// prefix and materializes its fields. The change cascades to the host's
// own dependents.
func (e *Engine) AttachComponent(ctx context.Context, hostID, componentID int64, prefix string) (*CascadeResult, error) {
	if err := validatePrefix(prefix); err != nil {
		return nil, err
	}
	component, err := e.GetBlueprint(ctx, componentID)
	if err != nil {
		return nil, err
	}
	if component.Kind != KindComponent {
		return nil, SchemaError("blueprint " + component.Name + " is not a component")
	}
	cyclic, err := wouldCreateCycle(ctx, e.db, e.sqlt, hostID, componentID)
	if err != nil {
		return nil, Wrap(ErrSQL, "cycle check", err)
	}
	if cyclic {
		return nil, CycleError("attaching would create a dependency cycle")
	}

	return e.mutateStructure(ctx, hostID, true, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, e.sqlt.InsertAttachment, hostID, componentID, prefix); err != nil {
			return Wrap(ErrConflict, "attach component", err)
		}
		return materializeComponent(ctx, tx, e.sqlt, hostID, componentID, prefix)
	})
}

// DetachComponent removes an attachment and tombstones its materialized
// copies.
func (e *Engine) DetachComponent(ctx context.Context, hostID, componentID int64) (*CascadeResult, error) {
	var prefix string
	err := e.db.QueryRowContext(ctx, e.sqlt.GetAttachment, hostID, componentID).Scan(&prefix)
	if err == sql.ErrNoRows {
		return nil, NotFoundError("attachment")
	}
	if err != nil {
		return nil, Wrap(ErrSQL, "load attachment", err)
	}

	return e.mutateStructure(ctx, hostID, true, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, e.sqlt.DeleteAttachment, hostID, componentID); err != nil {
			return Wrap(ErrSQL, "delete attachment", err)
		}
		return dematerializeComponent(ctx, tx, e.sqlt, hostID, componentID)
	})
}

// SetEmbeddedBlueprint points a blueprint-typed path at a target
// blueprint and materializes the target's resolved fields under it.
func (e *Engine) SetEmbeddedBlueprint(ctx context.Context, pathID, targetID int64) (*CascadeResult, error) {
	anchor, err := e.getPath(ctx, pathID)
	if err != nil {
		return nil, err
	}
	if anchor.DataType != TypeBlueprint {
		return nil, SchemaError("path " + anchor.FullPath + " is not blueprint-typed")
	}
	if anchor.Materialized() {
		return nil, SchemaError("cannot embed through a materialized copy")
	}
	if _, err := e.GetBlueprint(ctx, targetID); err != nil {
		return nil, err
	}
	cyclic, err := wouldCreateCycle(ctx, e.db, e.sqlt, anchor.BlueprintID, targetID)
	if err != nil {
		return nil, Wrap(ErrSQL, "cycle check", err)
	}
	if cyclic {
		return nil, CycleError("embedding would create a dependency cycle")
	}

	return e.mutateStructure(ctx, anchor.BlueprintID, true, func(tx *sql.Tx) error {
		if anchor.EmbeddedBlueprintID != nil && *anchor.EmbeddedBlueprintID != targetID {
			if err := dematerializeEmbedding(ctx, tx, e.sqlt, anchor.ID); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, e.sqlt.SetPathEmbedTarget, anchor.ID, targetID); err != nil {
			return Wrap(ErrSQL, "set embed target", err)
		}
		anchor.EmbeddedBlueprintID = &targetID
		return materializeEmbedding(ctx, tx, e.sqlt, anchor)
	})
}

// ClearEmbeddedBlueprint detaches an embedding anchor from its target and
// tombstones the copies.
func (e *Engine) ClearEmbeddedBlueprint(ctx context.Context, pathID int64) (*CascadeResult, error) {
	anchor, err := e.getPath(ctx, pathID)
	if err != nil {
		return nil, err
	}
	if anchor.EmbeddedBlueprintID == nil {
		return nil, NotFoundError("embedding")
	}

	return e.mutateStructure(ctx, anchor.BlueprintID, true, func(tx *sql.Tx) error {
		if err := dematerializeEmbedding(ctx, tx, e.sqlt, anchor.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, e.sqlt.SetPathEmbedTarget, anchor.ID, nil); err != nil {
			return Wrap(ErrSQL, "clear embed target", err)
		}
		return nil
	})
}
