package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/koba/flowsql/internal/schema"
)

// catalogQueries list the tables of a database and the columns, indexes and
// foreign keys of one table. Every dialect answers with the same result
// shapes, so one catalogReader serves them all:
//
//	tables:      name
//	columns:     name, native type, is nullable (YES/NO), default, auto increment, primary key, position
//	indexes:     index name, column, unique, primary, index type (one row per indexed column, in order)
//	foreignKeys: name, column, referenced table, referenced column, on update, on delete
type catalogQueries struct {
	tables      string
	columns     string
	indexes     string
	foreignKeys string
}

// catalogReader runs catalogQueries. args are bound ahead of the table name,
// e.g. the schema name on MySQL.
type catalogReader struct {
	q       Querier
	queries catalogQueries
	args    []any
}

func (r catalogReader) bind(tableName string) []any {
	return append(append([]any{}, r.args...), tableName)
}

func (r catalogReader) tableNames(ctx context.Context) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, r.queries.tables, r.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, tableName)
	}

	return tables, rows.Err()
}

// table reads the complete physical shape of one table.
func (r catalogReader) table(ctx context.Context, tableName string) (*schema.PhysicalTable, error) {
	table := &schema.PhysicalTable{
		Name:        tableName,
		Columns:     []schema.PhysicalColumn{},
		Indexes:     []schema.Index{},
		ForeignKeys: []schema.ForeignKey{},
	}

	columns, err := r.columns(ctx, tableName)
	if err != nil {
		return nil, err
	}
	table.Columns = columns

	indexes, err := r.indexes(ctx, tableName)
	if err != nil {
		return nil, err
	}
	table.Indexes = indexes

	foreignKeys, err := r.foreignKeys(ctx, tableName)
	if err != nil {
		return nil, err
	}
	table.ForeignKeys = foreignKeys

	markPrimaryKeys(table)
	return table, nil
}

func (r catalogReader) columns(ctx context.Context, tableName string) ([]schema.PhysicalColumn, error) {
	rows, err := r.q.QueryContext(ctx, r.queries.columns, r.bind(tableName)...)
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	defer rows.Close()

	var columns []schema.PhysicalColumn
	for rows.Next() {
		var col schema.PhysicalColumn
		var nullable string
		var defaultValue sql.NullString

		if err := rows.Scan(&col.Name, &col.Type, &nullable, &defaultValue, &col.AutoIncrement, &col.PrimaryKey, &col.Position); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		col.Nullable = nullable == "YES" && !col.PrimaryKey
		if defaultValue.Valid {
			col.DefaultValue = &defaultValue.String
		}
		col.ColumnType = ColumnTypeOf(col.Type)

		columns = append(columns, col)
	}

	return columns, rows.Err()
}

// indexRow is one indexed column as the catalog lists it.
type indexRow struct {
	name    string
	column  string
	unique  bool
	primary bool
	kind    string
}

func (r catalogReader) indexes(ctx context.Context, tableName string) ([]schema.Index, error) {
	rows, err := r.q.QueryContext(ctx, r.queries.indexes, r.bind(tableName)...)
	if err != nil {
		return nil, fmt.Errorf("failed to get indexes: %w", err)
	}
	defer rows.Close()

	var listed []indexRow
	for rows.Next() {
		var row indexRow
		if err := rows.Scan(&row.name, &row.column, &row.unique, &row.primary, &row.kind); err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}
		listed = append(listed, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get indexes: %w", err)
	}

	return groupIndexes(listed), nil
}

// groupIndexes folds per-column rows into indexes sorted by name. Columns keep
// the order of the rows.
func groupIndexes(listed []indexRow) []schema.Index {
	byName := make(map[string]*schema.Index)
	for _, row := range listed {
		if idx, ok := byName[row.name]; ok {
			idx.Columns = append(idx.Columns, row.column)
			continue
		}
		byName[row.name] = &schema.Index{
			Name:    row.name,
			Columns: []string{row.column},
			Unique:  row.unique || row.primary,
			Primary: row.primary,
			Type:    strings.ToUpper(row.kind),
		}
	}

	indexes := make([]schema.Index, 0, len(byName))
	for _, idx := range byName {
		indexes = append(indexes, *idx)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i].Name < indexes[j].Name })
	return indexes
}

func (r catalogReader) foreignKeys(ctx context.Context, tableName string) ([]schema.ForeignKey, error) {
	rows, err := r.q.QueryContext(ctx, r.queries.foreignKeys, r.bind(tableName)...)
	if err != nil {
		return nil, fmt.Errorf("failed to get foreign keys: %w", err)
	}
	defer rows.Close()

	var foreignKeys []schema.ForeignKey
	for rows.Next() {
		var fk schema.ForeignKey
		if err := rows.Scan(&fk.Name, &fk.Column, &fk.ReferencedTable, &fk.ReferencedColumn, &fk.OnUpdate, &fk.OnDelete); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key: %w", err)
		}
		foreignKeys = append(foreignKeys, fk)
	}

	return foreignKeys, rows.Err()
}

// markPrimaryKeys flags the columns covered by the primary index. Catalogs
// that report primary keys per column already agree with it.
func markPrimaryKeys(table *schema.PhysicalTable) {
	for _, idx := range table.Indexes {
		if !idx.Primary {
			continue
		}
		for _, name := range idx.Columns {
			if col := table.Column(name); col != nil {
				col.PrimaryKey = true
				col.Nullable = false
			}
		}
	}
}

// ColumnTypeOf maps a native storage type, as the catalog reports it, onto
// the storage class of the declared column types. Types no column is declared
// with map to schema.TypeUnknown.
func ColumnTypeOf(nativeType string) schema.ColumnType {
	base := strings.ToUpper(strings.TrimSpace(nativeType))
	if i := strings.IndexByte(base, '('); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	base = strings.TrimSuffix(base, " UNSIGNED")

	switch base {
	case "INTEGER", "INT", "BIGINT", "SMALLINT", "TINYINT", "MEDIUMINT":
		return schema.TypeInteger
	case "REAL", "DOUBLE", "DOUBLE PRECISION", "FLOAT":
		return schema.TypeReal
	case "TEXT", "MEDIUMTEXT", "LONGTEXT", "VARCHAR", "CHARACTER VARYING":
		return schema.TypeString
	case "BLOB", "MEDIUMBLOB", "LONGBLOB", "BYTEA":
		return schema.TypeBlob
	case "DATE":
		return schema.TypeDate
	case "DATETIME", "TIMESTAMP", "TIMESTAMP WITHOUT TIME ZONE":
		return schema.TypeDatetime
	}
	return schema.TypeUnknown
}
