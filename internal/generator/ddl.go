package generator

import (
	"fmt"
	"strings"

	"github.com/koba/flowsql/internal/database"
	"github.com/koba/flowsql/internal/dberr"
	"github.com/koba/flowsql/internal/schema"
)

// DDLGenerator generates DDL statements
type DDLGenerator struct {
	dialect
}

// NewDDLGenerator creates a new DDL generator
func NewDDLGenerator(dbType string) *DDLGenerator {
	return &DDLGenerator{dialect{dbType: dbType}}
}

// SQLType maps a declared column onto its storage type. Array-references have
// no storage type and are rejected, as is any type outside the known set.
func (g *DDLGenerator) SQLType(col *schema.ColumnSchema) (string, error) {
	switch col.Type {
	case schema.TypeString:
		if col.MaxLength > 0 {
			return fmt.Sprintf("VARCHAR(%d)", col.MaxLength), nil
		}
		if g.dbType == database.TypeMySQL && col.Unique {
			// MySQL cannot index TEXT without a prefix length
			return "VARCHAR(255)", nil
		}
		return "TEXT", nil
	case schema.TypeInteger, schema.TypeBoolean:
		return "INTEGER", nil
	case schema.TypeReal:
		switch g.dbType {
		case database.TypeMySQL:
			return "DOUBLE", nil
		case database.TypePostgres:
			return "DOUBLE PRECISION", nil
		}
		return "REAL", nil
	case schema.TypeBlob:
		if g.dbType == database.TypePostgres {
			return "BYTEA", nil
		}
		return "BLOB", nil
	case schema.TypeDate:
		return "DATE", nil
	case schema.TypeDatetime:
		if g.dbType == database.TypePostgres {
			return "TIMESTAMP", nil
		}
		return "DATETIME", nil
	case schema.TypeObject, schema.TypeArray:
		return "TEXT", nil
	case schema.TypeObjectReference:
		if g.dbType == database.TypeMySQL {
			// InnoDB ignores inline REFERENCES, see foreignKeyClause
			return "INTEGER", nil
		}
		return "INTEGER REFERENCES " + g.QuoteIdentifier(col.ReferredTable) + " (" + g.QuoteIdentifier(schema.IDColumn) + ")", nil
	}
	return "", dberr.Unsupportedf("sqlTypeFor", "no storage type for column type %v", col.Type)
}

// ColumnDefinition returns the column clause. For array-references it returns
// junction=true and no clause: the column is realized as a junction table.
func (g *DDLGenerator) ColumnDefinition(columnID string, col *schema.ColumnSchema) (clause string, junction bool, err error) {
	if col.Type.IsRelation() {
		return "", true, nil
	}

	sqlType, err := g.SQLType(col)
	if err != nil {
		return "", false, err
	}

	def := g.QuoteIdentifier(columnID) + " " + sqlType
	if col.Unique {
		def += " UNIQUE"
	}
	if !col.Nullable {
		def += " NOT NULL"
	}
	if col.DefaultBySQL != "" {
		def += " DEFAULT " + col.DefaultBySQL
	}
	return def, false, nil
}

func (g *DDLGenerator) idDefinition() string {
	id := g.QuoteIdentifier(schema.IDColumn)
	switch g.dbType {
	case database.TypeMySQL:
		return id + " INTEGER PRIMARY KEY AUTO_INCREMENT"
	case database.TypePostgres:
		return id + " SERIAL PRIMARY KEY"
	}
	return id + " INTEGER PRIMARY KEY AUTOINCREMENT"
}

func (g *DDLGenerator) foreignKeyClause(column, referredTable string) string {
	return fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
		g.QuoteIdentifier(column),
		g.QuoteIdentifier(referredTable),
		g.QuoteIdentifier(schema.IDColumn),
	)
}

func (g *DDLGenerator) createStatement(table string, parts []string) string {
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", g.QuoteIdentifier(table), strings.Join(parts, ",\n  "))
}

// CreateBaseTable returns the CREATE TABLE statement for the surrogate id and
// every non-relation column, in sorted column order.
func (g *DDLGenerator) CreateBaseTable(table string, ts *schema.TableSchema) (string, error) {
	parts := []string{g.idDefinition()}
	var constraints []string

	for _, columnID := range ts.ColumnIDs() {
		col := ts.Columns[columnID]
		def, junction, err := g.ColumnDefinition(columnID, col)
		if err != nil {
			return "", err
		}
		if junction {
			continue
		}
		parts = append(parts, def)
		if g.dbType == database.TypeMySQL && col.Type == schema.TypeObjectReference {
			constraints = append(constraints, g.foreignKeyClause(columnID, col.ReferredTable))
		}
	}

	return g.createStatement(table, append(parts, constraints...)), nil
}

// CreateTable returns the CREATE TABLE statement followed by one junction
// table per array-reference column.
func (g *DDLGenerator) CreateTable(table string, ts *schema.TableSchema) ([]string, error) {
	stmt, err := g.CreateBaseTable(table, ts)
	if err != nil {
		return nil, err
	}

	statements := []string{stmt}
	for _, columnID := range ts.RelationColumns() {
		statements = append(statements, g.CreateJunctionTable(table, columnID, ts.Columns[columnID].ReferredTable))
	}
	return statements, nil
}

// CreateJunctionTable declares the table realizing one array-reference column.
func (g *DDLGenerator) CreateJunctionTable(table, column, referredTable string) string {
	source := g.QuoteIdentifier(schema.JunctionSource)
	destination := g.QuoteIdentifier(schema.JunctionDestination)
	parts := []string{g.idDefinition()}

	if g.dbType == database.TypeMySQL {
		parts = append(parts,
			source+" INTEGER",
			destination+" INTEGER",
			g.QuoteIdentifier(schema.JunctionSorter)+" INTEGER DEFAULT 1",
			g.foreignKeyClause(schema.JunctionSource, table),
			g.foreignKeyClause(schema.JunctionDestination, referredTable),
		)
	} else {
		ref := " (" + g.QuoteIdentifier(schema.IDColumn) + ")"
		parts = append(parts,
			source+" INTEGER REFERENCES "+g.QuoteIdentifier(table)+ref,
			destination+" INTEGER REFERENCES "+g.QuoteIdentifier(referredTable)+ref,
			g.QuoteIdentifier(schema.JunctionSorter)+" INTEGER DEFAULT 1",
		)
	}

	return g.createStatement(schema.JunctionTable(table, column), parts)
}

// CreateMetadataTable declares the table holding the schema document.
func (g *DDLGenerator) CreateMetadataTable() string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s,\n  %s VARCHAR(255) UNIQUE NOT NULL,\n  %s TEXT\n)",
		g.QuoteIdentifier(schema.MetadataTable),
		g.idDefinition(),
		g.QuoteIdentifier("name"),
		g.QuoteIdentifier("value"),
	)
}

// DropTable returns the DROP TABLE statement
func (g *DDLGenerator) DropTable(table string) string {
	return fmt.Sprintf("DROP TABLE %s", g.QuoteIdentifier(table))
}

// RenameTable returns the statement renaming a table
func (g *DDLGenerator) RenameTable(oldName, newName string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", g.QuoteIdentifier(oldName), g.QuoteIdentifier(newName))
}

// RenameColumn returns the statement renaming a physical column
func (g *DDLGenerator) RenameColumn(table, oldName, newName string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
		g.QuoteIdentifier(table),
		g.QuoteIdentifier(oldName),
		g.QuoteIdentifier(newName),
	)
}

// AddColumn returns the ALTER TABLE statement adding a physical column. It is
// only used where the engine supports full column redefinition.
func (g *DDLGenerator) AddColumn(table, columnID string, col *schema.ColumnSchema) (string, error) {
	def, junction, err := g.ColumnDefinition(columnID, col)
	if err != nil {
		return "", err
	}
	if junction {
		return "", dberr.Unsupportedf("addColumn", "%s columns have no physical column", col.Type)
	}

	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", g.QuoteIdentifier(table), def)
	if g.dbType == database.TypeMySQL && col.Type == schema.TypeObjectReference {
		stmt += ", ADD " + g.foreignKeyClause(columnID, col.ReferredTable)
	}
	return stmt, nil
}

// DropColumn returns the ALTER TABLE statement dropping a physical column
func (g *DDLGenerator) DropColumn(table, columnID string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", g.QuoteIdentifier(table), g.QuoteIdentifier(columnID))
}

// CopyRows copies the surrogate id and the given columns from one table into
// another with the same columns.
func (g *DDLGenerator) CopyRows(from, to string, columns []string) string {
	cols := strings.Join(g.quoteIdentifiers(append([]string{schema.IDColumn}, columns...)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s)\n  SELECT %s FROM %s",
		g.QuoteIdentifier(to),
		cols,
		cols,
		g.QuoteIdentifier(from),
	)
}

// CarrySequence moves the AUTOINCREMENT high-water mark of from onto to so
// ids of deleted rows are never reused after a rebuild. SQLite only.
func (g *DDLGenerator) CarrySequence(from, to string) []string {
	return []string{
		fmt.Sprintf("DELETE FROM sqlite_sequence WHERE name = %s", g.quoteString(to)),
		fmt.Sprintf("INSERT INTO sqlite_sequence (name, seq) SELECT %s, seq FROM sqlite_sequence WHERE name = %s",
			g.quoteString(to),
			g.quoteString(from),
		),
	}
}

// DropForeignKey returns the statement removing a named foreign key. MySQL
// refuses to drop a column that still carries one.
func (g *DDLGenerator) DropForeignKey(table, name string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", g.QuoteIdentifier(table), g.QuoteIdentifier(name))
}

// ForeignKeyCheck lists the rows of table violating a foreign key. SQLite only.
func (g *DDLGenerator) ForeignKeyCheck(table string) string {
	return fmt.Sprintf("PRAGMA foreign_key_check(%s)", g.QuoteIdentifier(table))
}
