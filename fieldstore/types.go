package fieldstore

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldstore/fieldstore/fieldstore/storage"
	"github.com/fieldstore/fieldstore/fieldstore/tasks"
)

// DataType and Cardinality live in the storage package so the ops layer
// can share them without importing this package; they are aliased here for
// the public API.
type (
	DataType    = storage.DataType
	Cardinality = storage.Cardinality
)

const (
	TypeString    = storage.TypeString
	TypeText      = storage.TypeText
	TypeInt       = storage.TypeInt
	TypeFloat     = storage.TypeFloat
	TypeBool      = storage.TypeBool
	TypeDate      = storage.TypeDate
	TypeDatetime  = storage.TypeDatetime
	TypeJSON      = storage.TypeJSON
	TypeRef       = storage.TypeRef
	TypeBlueprint = storage.TypeBlueprint

	One  = storage.One
	Many = storage.Many
)

// BlueprintKind distinguishes blueprints usable directly by entries from
// components only usable via embedding.
type BlueprintKind string

const (
	KindFull      BlueprintKind = "full"
	KindComponent BlueprintKind = "component"
)

func (k BlueprintKind) Valid() bool {
	return k == KindFull || k == KindComponent
}

// Options configures engine behavior.
type Options struct {
	Now    func() time.Time
	Logger zerolog.Logger
	Queue  tasks.Options
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Now:    time.Now,
		Logger: zerolog.Nop(),
		Queue:  tasks.DefaultOptions(),
	}
}
