package engine

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/koba/flowsql/internal/dberr"
	"github.com/koba/flowsql/internal/schema"
)

// DefaultProvider computes the value of a column missing from a candidate
// row. It receives the table identifier and the row as given so far.
type DefaultProvider func(table string, row schema.Row) (interface{}, error)

// RegisterDefault installs a provider for table.column. A provider takes
// precedence over a defaultByExpr declared on the same column. Passing nil
// removes it.
//
// Providers run while the engine lock is held. A provider must not call any
// method of the engine; doing so deadlocks. It receives a copy of the row, so
// changes it makes to that row are discarded.
func (e *Engine) RegisterDefault(table, column string, provider DefaultProvider) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trace("registerDefault")

	ts, ok := e.schema.Table(table)
	if !ok {
		return dberr.Preconditionf("registerDefault", "table", "must be a schema table, got %q", table)
	}
	col, ok := ts.Columns[column]
	if !ok {
		return dberr.Preconditionf("registerDefault", "column", "must be a column of %q, got %q", table, column)
	}
	if col.Type.IsRelation() {
		return dberr.Preconditionf("registerDefault", "column", "%s columns take no default", col.Type)
	}

	if provider == nil {
		delete(e.providers[table], column)
		return nil
	}
	if e.providers[table] == nil {
		e.providers[table] = make(map[string]DefaultProvider)
	}
	e.providers[table][column] = provider
	return nil
}

// defaultEnv is the only state a default expression can see.
func defaultEnv(table string, values schema.Row) map[string]interface{} {
	return map[string]interface{}{
		"table":  table,
		"values": map[string]interface{}(values),
	}
}

// programCache holds compiled default expressions keyed by their source.
type programCache struct {
	mu       sync.Mutex
	programs map[string]*vm.Program
}

func newProgramCache() *programCache {
	return &programCache{programs: make(map[string]*vm.Program)}
}

func (c *programCache) compile(source string) (*vm.Program, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if program, ok := c.programs[source]; ok {
		return program, nil
	}
	program, err := expr.Compile(source, expr.Env(defaultEnv("", schema.Row{})))
	if err != nil {
		return nil, err
	}
	c.programs[source] = program
	return program, nil
}

// compileDefaults compiles every defaultByExpr of s, so a broken expression is
// rejected when the schema is registered rather than on first insert.
func (e *Engine) compileDefaults(op string, s *schema.Schema) error {
	for _, table := range s.TableNames() {
		if err := e.compileTableDefaults(op, table, s.Tables[table]); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) compileTableDefaults(op, table string, ts *schema.TableSchema) error {
	for _, columnID := range ts.ColumnIDs() {
		source := ts.Columns[columnID].DefaultByExpr
		if source == "" {
			continue
		}
		if _, err := e.programs.compile(source); err != nil {
			return dberr.Validationf(op, "tables."+table+".columns."+columnID+".defaultByExpr", "does not compile: %v", err)
		}
	}
	return nil
}

// defaultFor computes the default of one column, reporting false when the
// column has none.
func (e *Engine) defaultFor(table, columnID string, col *schema.ColumnSchema, values schema.Row) (interface{}, bool, error) {
	if provider, ok := e.providers[table][columnID]; ok {
		row := make(schema.Row, len(values))
		for k, v := range values {
			row[k] = v
		}
		v, err := provider(table, row)
		if err != nil {
			return nil, false, fmt.Errorf("failed to compute default of %s.%s: %w", table, columnID, err)
		}
		return v, true, nil
	}
	if col.DefaultByExpr == "" {
		return nil, false, nil
	}

	program, err := e.programs.compile(col.DefaultByExpr)
	if err != nil {
		return nil, false, dberr.Validationf("defaultByExpr", table+"."+columnID, "does not compile: %v", err)
	}
	v, err := expr.Run(program, defaultEnv(table, values))
	if err != nil {
		return nil, false, fmt.Errorf("failed to evaluate default of %s.%s: %w", table, columnID, err)
	}
	return v, true, nil
}
