// Package flowsql is an embedded, schema-governed data-access layer. Callers
// declare tables and typed columns, including many-to-many array-reference
// columns, and read or write rows through a small typed filter language. The
// schema document lives inside the database it describes.
//
//	db, err := flowsql.Open(ctx, flowsql.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//
//	err = db.AddTable(ctx, "Tag", &flowsql.TableSchema{Columns: map[string]*flowsql.ColumnSchema{
//		"label": {Type: flowsql.TypeString, Unique: true, Label: true},
//	}})
package flowsql

import (
	"context"

	"go.uber.org/zap"

	"github.com/koba/flowsql/internal/database"
	"github.com/koba/flowsql/internal/dberr"
	"github.com/koba/flowsql/internal/diff"
	"github.com/koba/flowsql/internal/engine"
	"github.com/koba/flowsql/internal/filter"
	"github.com/koba/flowsql/internal/schema"
)

type (
	Engine          = engine.Engine
	DefaultProvider = engine.DefaultProvider
	Config          = database.Config
	Schema          = schema.Schema
	TableSchema     = schema.TableSchema
	ColumnSchema    = schema.ColumnSchema
	ColumnType      = schema.ColumnType
	Row             = schema.Row
	Filter          = schema.Filter
	Operator        = schema.Operator
	PhysicalTable   = schema.PhysicalTable
	DriftResult     = diff.Result
	Error           = dberr.Error
)

// Column types.
const (
	TypeBoolean         = schema.TypeBoolean
	TypeInteger         = schema.TypeInteger
	TypeReal            = schema.TypeReal
	TypeString          = schema.TypeString
	TypeBlob            = schema.TypeBlob
	TypeDate            = schema.TypeDate
	TypeDatetime        = schema.TypeDatetime
	TypeObject          = schema.TypeObject
	TypeArray           = schema.TypeArray
	TypeObjectReference = schema.TypeObjectReference
	TypeArrayReference  = schema.TypeArrayReference
)

// Filter operators.
const (
	OpEqual        = schema.OpEqual
	OpNotEqual     = schema.OpNotEqual
	OpLess         = schema.OpLess
	OpLessEqual    = schema.OpLessEqual
	OpGreater      = schema.OpGreater
	OpGreaterEqual = schema.OpGreaterEqual
	OpIsNull       = schema.OpIsNull
	OpIsNotNull    = schema.OpIsNotNull
	OpIsIn         = schema.OpIsIn
	OpIsNotIn      = schema.OpIsNotIn
	OpIsLike       = schema.OpIsLike
	OpIsNotLike    = schema.OpIsNotLike
	OpHas          = schema.OpHas
	OpHasNot       = schema.OpHasNot
)

// Error kinds, for use with errors.Is.
var (
	ErrPrecondition     = dberr.ErrPrecondition
	ErrValidation       = dberr.ErrValidation
	ErrUnsupported      = dberr.ErrUnsupported
	ErrExecution        = dberr.ErrExecution
	ErrMigrationAborted = dberr.ErrMigrationAborted
)

// DefaultConfig returns a configuration for a local SQLite file.
func DefaultConfig() Config {
	return database.DefaultConfig()
}

// ParseFilters parses a textual predicate such as
// `name = 'Ann' and tags has [1, 2]`.
func ParseFilters(text string) ([]Filter, error) {
	return filter.Parse(text)
}

type options struct {
	logger *zap.Logger
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger the engine reports to. The default discards
// everything.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Open creates an engine for config and connects it.
func Open(ctx context.Context, config Config, opts ...Option) (*Engine, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	e, err := engine.New(config, o.logger)
	if err != nil {
		return nil, err
	}
	if err := e.Connect(ctx); err != nil {
		return nil, err
	}
	return e, nil
}
