package storage

import (
	"context"
	"database/sql"

	"github.com/fieldstore/fieldstore/fieldstore/storage/sqlbuilder"
)

type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

// Adapter abstracts database-specific operations
type Adapter interface {
	Backend() Backend
	PlaceholderStyle() sqlbuilder.PlaceholderStyle
	StoreID() string

	Connect(ctx context.Context) (*sql.DB, error)
	Close() error

	CreateStore(ctx context.Context, db *sql.DB) error
	OpenStore(ctx context.Context, db *sql.DB) error
	Optimize(ctx context.Context, db *sql.DB) error

	SQL() SQL
}

// DataType is the declared type of a blueprint path. The set is closed;
// every switch over it must handle all variants or fail loudly.
type DataType string

const (
	TypeString    DataType = "string"
	TypeText      DataType = "text"
	TypeInt       DataType = "int"
	TypeFloat     DataType = "float"
	TypeBool      DataType = "bool"
	TypeDate      DataType = "date"
	TypeDatetime  DataType = "datetime"
	TypeJSON      DataType = "json"
	TypeRef       DataType = "ref"
	TypeBlueprint DataType = "blueprint"
)

// Valid reports whether t is one of the supported data types.
func (t DataType) Valid() bool {
	switch t {
	case TypeString, TypeText, TypeInt, TypeFloat, TypeBool,
		TypeDate, TypeDatetime, TypeJSON, TypeRef, TypeBlueprint:
		return true
	}
	return false
}

type Cardinality string

const (
	One  Cardinality = "one"
	Many Cardinality = "many"
)

func (c Cardinality) Valid() bool {
	return c == One || c == Many
}

// PathSpec is the minimal view of an indexed path the ops package needs.
// It exists so ops does not depend on the root package (same split as the
// schema interface between the engine and its storage backends).
type PathSpec struct {
	ID          int64
	FullPath    string
	Type        DataType
	Cardinality Cardinality
}

// SQL holds the SQL templates for one backend. Only placeholder syntax and
// minor type spellings differ between backends; the statements are otherwise
// kept in lockstep.
type SQL struct {
	GetMeta string
	SetMeta string

	Savepoint           string
	ReleaseSavepoint    string
	RollbackToSavepoint string

	InsertBlueprint    string
	GetBlueprint       string
	GetBlueprintByName string
	ListBlueprints     string
	TouchBlueprint     string
	DeleteBlueprint    string

	InsertPath            string
	GetPath               string
	ListPaths             string
	ListAuthoredPaths     string
	FindPathByFullPath    string
	ListPathsByPrefix     string
	UpdatePathMeta        string
	UpdatePathFullPath    string
	UpdatePathCopy        string
	SetPathEmbedTarget    string
	TombstonePath         string
	TombstoneByComponent  string
	TombstoneByEmbedRoot  string
	ListCopiesByComponent string
	ListCopiesByEmbedRoot string
	ListTombstonedPathIDs string
	DeletePathRow         string

	InsertAttachment      string
	DeleteAttachment      string
	GetAttachment         string
	ListAttachments       string
	ListAttachmentHosts   string
	ListEmbeddingHosts    string
	ListEmbeddingPathsFor string
	ListDependencies      string

	InsertEntry             string
	UpdateEntry             string
	GetEntry                string
	DeleteEntry             string
	ListEntryIDsByBlueprint string
	CountEntriesByBlueprint string

	InsertDocValue      string
	InsertDocRef        string
	DeleteValuesByEntry string
	DeleteRefsByEntry   string
	DeleteValuesByPath  string
	DeleteRefsByPath    string
}
