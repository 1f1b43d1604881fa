package engine

import (
	"context"
	"fmt"

	"github.com/koba/flowsql/internal/diff"
	"github.com/koba/flowsql/internal/schema"
)

// ExtractSchema reads the shape of every table present in the live database.
func (e *Engine) ExtractSchema(ctx context.Context) (map[string]*schema.PhysicalTable, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trace("extractSchema")

	return e.extractSchema(ctx)
}

func (e *Engine) extractSchema(ctx context.Context) (map[string]*schema.PhysicalTable, error) {
	if err := e.connected("extractSchema"); err != nil {
		return nil, err
	}
	names, err := e.db.GetAllTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	tables := make(map[string]*schema.PhysicalTable, len(names))
	for _, name := range names {
		table, err := e.db.GetTableSchema(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to get schema for table %s: %w", name, err)
		}
		tables[name] = table
	}
	return tables, nil
}

// ValidateSchema checks a candidate schema document: its structure, with
// references resolved against the candidate and the current schema, and its
// default expressions.
func (e *Engine) ValidateSchema(candidate *schema.Schema) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trace("validateSchema")

	if err := schema.ValidateSchema(candidate, e.schema); err != nil {
		return err
	}
	return e.compileDefaults("validateSchema", candidate)
}

// Check compares the tables the schema implies with the live database.
func (e *Engine) Check(ctx context.Context) (*diff.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trace("check")

	actual, err := e.extractSchema(ctx)
	if err != nil {
		return nil, err
	}
	return diff.Compare(diff.Expected(e.schema), actual), nil
}
