package engine

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/koba/flowsql/internal/database"
	"github.com/koba/flowsql/internal/dberr"
	"github.com/koba/flowsql/internal/schema"
)

// AddTable creates a table with its junction tables and records it in the
// schema.
func (e *Engine) AddTable(ctx context.Context, table string, ts *schema.TableSchema) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trace("addTable")

	return e.addTable(ctx, table, ts)
}

func (e *Engine) addTable(ctx context.Context, table string, ts *schema.TableSchema) error {
	const op = "addTable"
	if err := e.writable(op); err != nil {
		return err
	}
	if p := schema.TableNameProblem(table); p != "" {
		return dberr.Preconditionf(op, "table", "table name %s", p)
	}
	if _, ok := e.schema.Table(table); ok {
		return dberr.Preconditionf(op, "table", "table %q already exists", table)
	}
	if ts == nil {
		return dberr.Preconditionf(op, "tableSchema", "must not be nil")
	}

	ts = ts.Clone()
	if err := schema.ValidateTable(table, ts, e.schema); err != nil {
		return err
	}
	if err := e.compileTableDefaults(op, table, ts); err != nil {
		return err
	}
	stmts, err := e.ddlGen.CreateTable(table, ts)
	if err != nil {
		return err
	}

	next := e.schema.Clone()
	next.Tables[table] = ts
	err = e.migrate(ctx, op, next, func(m *migration) error {
		return m.run(ctx, "CreatingTable", stmts...)
	})
	if err != nil {
		return err
	}
	e.commit(next)
	return nil
}

// AddColumn adds a column to an existing table. On SQLite the table is
// rebuilt; array-reference columns only get their junction table.
func (e *Engine) AddColumn(ctx context.Context, table, column string, col *schema.ColumnSchema) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trace("addColumn")

	return e.addColumn(ctx, table, column, col)
}

func (e *Engine) addColumn(ctx context.Context, table, column string, col *schema.ColumnSchema) error {
	const op = "addColumn"
	if err := e.writable(op); err != nil {
		return err
	}
	ts, err := e.table(op, table)
	if err != nil {
		return err
	}
	if p := schema.ColumnNameProblem(column); p != "" {
		return dberr.Preconditionf(op, "column", "column name %s", p)
	}
	if _, ok := ts.Columns[column]; ok {
		return dberr.Preconditionf(op, "column", "column %q already exists in %q", column, table)
	}
	if col == nil {
		return dberr.Preconditionf(op, "columnSchema", "must not be nil")
	}

	declared := *col
	next := e.schema.Clone()
	nextTable := next.Tables[table]
	nextTable.Columns[column] = &declared
	if err := schema.ValidateTable(table, nextTable, e.schema); err != nil {
		return err
	}
	if err := e.compileTableDefaults(op, table, nextTable); err != nil {
		return err
	}

	apply := func() error {
		return e.migrate(ctx, op, next, func(m *migration) error {
			switch {
			case declared.Type.IsRelation():
				return m.run(ctx, "CreatingJunction", e.ddlGen.CreateJunctionTable(table, column, declared.ReferredTable))
			case e.db.Type() == database.TypeSQLite:
				return e.runRebuild(ctx, m, newRebuild(table, nextTable, ts.PlainColumns()))
			default:
				stmt, err := e.ddlGen.AddColumn(table, column, &declared)
				if err != nil {
					return err
				}
				return m.run(ctx, "AddingColumn", stmt)
			}
		})
	}

	if e.db.Type() == database.TypeSQLite && !declared.Type.IsRelation() {
		err = e.withRebuildPragmas(ctx, apply)
	} else {
		err = apply()
	}
	if err != nil {
		return err
	}
	e.commit(next)
	return nil
}

// RenameTable renames a table and its junction tables, and rewrites every
// reference to it.
func (e *Engine) RenameTable(ctx context.Context, oldName, newName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trace("renameTable")

	const op = "renameTable"
	if err := e.writable(op); err != nil {
		return err
	}
	ts, err := e.table(op, oldName)
	if err != nil {
		return err
	}
	if p := schema.TableNameProblem(newName); p != "" {
		return dberr.Preconditionf(op, "newName", "table name %s", p)
	}
	if _, ok := e.schema.Table(newName); ok {
		return dberr.Preconditionf(op, "newName", "table %q already exists", newName)
	}

	stmts := []string{e.ddlGen.RenameTable(oldName, newName)}
	for _, columnID := range ts.RelationColumns() {
		stmts = append(stmts, e.ddlGen.RenameTable(schema.JunctionTable(oldName, columnID), schema.JunctionTable(newName, columnID)))
	}

	next := e.schema.Clone()
	next.Tables[newName] = next.Tables[oldName]
	delete(next.Tables, oldName)
	for _, other := range next.Tables {
		for _, col := range other.Columns {
			if col.Type.IsReference() && col.ReferredTable == oldName {
				col.ReferredTable = newName
			}
		}
	}

	err = e.migrate(ctx, op, next, func(m *migration) error {
		return m.run(ctx, "RenamingTable", stmts...)
	})
	if err != nil {
		return err
	}
	e.commit(next)

	if providers, ok := e.providers[oldName]; ok {
		e.providers[newName] = providers
		delete(e.providers, oldName)
	}
	return nil
}

// RenameColumn renames a column, or the junction table of an array-reference
// column.
func (e *Engine) RenameColumn(ctx context.Context, table, oldName, newName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trace("renameColumn")

	const op = "renameColumn"
	if err := e.writable(op); err != nil {
		return err
	}
	ts, err := e.table(op, table)
	if err != nil {
		return err
	}
	col, ok := ts.Columns[oldName]
	if !ok {
		return dberr.Preconditionf(op, "oldName", "must be a column of %q, got %q", table, oldName)
	}
	if p := schema.ColumnNameProblem(newName); p != "" {
		return dberr.Preconditionf(op, "newName", "column name %s", p)
	}
	if _, ok := ts.Columns[newName]; ok {
		return dberr.Preconditionf(op, "newName", "column %q already exists in %q", newName, table)
	}

	var stmt string
	if col.Type.IsRelation() {
		stmt = e.ddlGen.RenameTable(schema.JunctionTable(table, oldName), schema.JunctionTable(table, newName))
	} else {
		stmt = e.ddlGen.RenameColumn(table, oldName, newName)
	}

	next := e.schema.Clone()
	columns := next.Tables[table].Columns
	columns[newName] = columns[oldName]
	delete(columns, oldName)

	err = e.migrate(ctx, op, next, func(m *migration) error {
		return m.run(ctx, "RenamingColumn", stmt)
	})
	if err != nil {
		return err
	}
	e.commit(next)

	if provider, ok := e.providers[table][oldName]; ok {
		e.providers[table][newName] = provider
		delete(e.providers[table], oldName)
	}
	return nil
}

// DropTable drops a table and its junction tables. A table still referenced
// by another table cannot be dropped.
func (e *Engine) DropTable(ctx context.Context, table string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trace("dropTable")

	const op = "dropTable"
	if err := e.writable(op); err != nil {
		return err
	}
	ts, err := e.table(op, table)
	if err != nil {
		return err
	}
	if refs := e.schema.ReferencingColumns(table); len(refs) > 0 {
		return dberr.Preconditionf(op, "table", "table %q is referenced by %s", table, strings.Join(refs, ", "))
	}

	var stmts []string
	for _, columnID := range ts.RelationColumns() {
		stmts = append(stmts, e.ddlGen.DropTable(schema.JunctionTable(table, columnID)))
	}
	stmts = append(stmts, e.ddlGen.DropTable(table))

	next := e.schema.Clone()
	delete(next.Tables, table)

	err = e.migrate(ctx, op, next, func(m *migration) error {
		return m.run(ctx, "DroppingTable", stmts...)
	})
	if err != nil {
		return err
	}
	e.commit(next)
	delete(e.providers, table)
	return nil
}

// DropColumn removes a column. On SQLite the table is rebuilt without it;
// array-reference columns only lose their junction table.
func (e *Engine) DropColumn(ctx context.Context, table, column string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trace("dropColumn")

	const op = "dropColumn"
	if err := e.writable(op); err != nil {
		return err
	}
	ts, err := e.table(op, table)
	if err != nil {
		return err
	}
	col, ok := ts.Columns[column]
	if !ok {
		return dberr.Preconditionf(op, "column", "must be a column of %q, got %q", table, column)
	}

	next := e.schema.Clone()
	nextTable := next.Tables[table]
	delete(nextTable.Columns, column)

	var stmts []string
	if !col.Type.IsRelation() && e.db.Type() != database.TypeSQLite {
		if stmts, err = e.dropColumnStatements(ctx, table, column, col); err != nil {
			return err
		}
	}

	apply := func() error {
		return e.migrate(ctx, op, next, func(m *migration) error {
			switch {
			case col.Type.IsRelation():
				return m.run(ctx, "DroppingJunction", e.ddlGen.DropTable(schema.JunctionTable(table, column)))
			case e.db.Type() == database.TypeSQLite:
				return e.runRebuild(ctx, m, newRebuild(table, nextTable, nextTable.PlainColumns()))
			default:
				return m.run(ctx, "DroppingColumn", stmts...)
			}
		})
	}

	if e.db.Type() == database.TypeSQLite && !col.Type.IsRelation() {
		err = e.withRebuildPragmas(ctx, apply)
	} else {
		err = apply()
	}
	if err != nil {
		return err
	}
	e.commit(next)
	delete(e.providers[table], column)
	return nil
}

// Apply brings the engine schema up to declared: missing tables are added in
// dependency order, then missing columns of existing tables. Every change is
// persisted on its own. Declared columns already present are left untouched.
// It returns a line per applied change.
func (e *Engine) Apply(ctx context.Context, declared *schema.Schema) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trace("apply")

	if err := schema.ValidateSchema(declared, e.schema); err != nil {
		return nil, err
	}

	var applied []string
	for _, table := range declared.CreationOrder() {
		ts := declared.Tables[table]
		current, ok := e.schema.Table(table)
		if !ok {
			if err := e.addTable(ctx, table, ts); err != nil {
				return applied, err
			}
			applied = append(applied, "added table "+table)
			continue
		}
		for _, columnID := range ts.ColumnIDs() {
			if _, ok := current.Columns[columnID]; ok {
				continue
			}
			if err := e.addColumn(ctx, table, columnID, ts.Columns[columnID]); err != nil {
				return applied, err
			}
			applied = append(applied, "added column "+table+"."+columnID)
		}
	}

	e.logger.Info("schema applied", zap.Int("changes", len(applied)), zap.Int64("version", e.schema.Version))
	return applied, nil
}

// dropColumnStatements drops a physical column in place. MySQL refuses to
// drop a column its foreign key still uses, so that key is dropped first.
func (e *Engine) dropColumnStatements(ctx context.Context, table, column string, col *schema.ColumnSchema) ([]string, error) {
	stmts := []string{e.ddlGen.DropColumn(table, column)}
	if e.db.Type() != database.TypeMySQL || col.Type != schema.TypeObjectReference {
		return stmts, nil
	}
	physical, err := e.db.GetTableSchema(ctx, table)
	if err != nil {
		return nil, err
	}
	if fk := physical.ForeignKeyFor(column); fk != nil {
		stmts = append([]string{e.ddlGen.DropForeignKey(table, fk.Name)}, stmts...)
	}
	return stmts, nil
}
