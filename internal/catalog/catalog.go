// Package catalog stores the schema document inside the database it
// describes, as a single row of the metadata table.
package catalog

import (
	"context"
	"fmt"

	"github.com/koba/flowsql/internal/database"
	"github.com/koba/flowsql/internal/dberr"
	"github.com/koba/flowsql/internal/generator"
	"github.com/koba/flowsql/internal/schema"
)

const defaultDocument = `{"version":0,"tables":{}}`

// Ensure creates the metadata table if needed and seeds it with an empty
// schema document. Running it again is a no-op.
func Ensure(ctx context.Context, x *database.Executor) error {
	ddlGen := generator.NewDDLGenerator(x.Type())
	dmlGen := generator.NewDMLGenerator(x.Type())

	if err := x.Run(ctx, ddlGen.CreateMetadataTable()); err != nil {
		return err
	}

	rows, err := x.Fetch(ctx, dmlGen.SelectMetadata(schema.SchemaKey))
	if err != nil {
		return err
	}
	switch len(rows) {
	case 0:
		return x.Run(ctx, dmlGen.InsertMetadata(schema.SchemaKey, defaultDocument))
	case 1:
		return nil
	default:
		return dberr.Preconditionf("ensureMetadata", schema.SchemaKey, "expected at most one schema row, found %d", len(rows))
	}
}

// Load reads and validates the stored schema document.
func Load(ctx context.Context, x *database.Executor) (*schema.Schema, error) {
	dmlGen := generator.NewDMLGenerator(x.Type())

	rows, err := x.Fetch(ctx, dmlGen.SelectMetadata(schema.SchemaKey))
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, dberr.Preconditionf("loadSchema", schema.SchemaKey, "expected exactly one schema row, found %d", len(rows))
	}

	var raw []byte
	switch v := rows[0]["value"].(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return nil, dberr.Validationf("loadSchema", schema.SchemaKey, "unexpected stored value of type %T", v)
	}

	return schema.ValidateDocument(raw)
}

// Persist bumps the document version and overwrites the stored document.
func Persist(ctx context.Context, x *database.Executor, s *schema.Schema) error {
	s.Version++
	data, err := s.MarshalDocument()
	if err != nil {
		s.Version--
		return fmt.Errorf("failed to persist schema: %w", err)
	}

	dmlGen := generator.NewDMLGenerator(x.Type())
	if err := x.Run(ctx, dmlGen.UpdateMetadata(schema.SchemaKey, string(data))); err != nil {
		s.Version--
		return err
	}
	return nil
}
