package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/koba/flowsql/internal/schema"
)

// SQLite implements the Database interface for a local SQLite file
type SQLite struct {
	config Config
	db     *sql.DB
}

// NewSQLite creates a new SQLite database connection
func NewSQLite(config Config) *SQLite {
	return &SQLite{config: config}
}

func (s *SQLite) dsn() string {
	if s.config.Filename == ":memory:" {
		return s.config.Filename
	}
	if s.config.ReadOnly {
		return "file:" + s.config.Filename + "?mode=ro"
	}
	return s.config.Filename
}

// Connect opens the file and applies the connection pragmas. The pool is
// pinned to one connection so pragma state and :memory: databases hold.
func (s *SQLite) Connect(ctx context.Context) error {
	db, err := sql.Open(sqliteDriverName, s.dsn())
	if err != nil {
		return fmt.Errorf("failed to open SQLite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping SQLite: %w", err)
	}

	pragmas := []string{fmt.Sprintf("PRAGMA busy_timeout = %d", s.config.BusyTimeout)}
	if s.config.ForeignKeys {
		pragmas = append(pragmas, "PRAGMA foreign_keys = ON")
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s.db = db
	return nil
}

// Close closes the SQLite connection
func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLite) Type() string { return TypeSQLite }

func (s *SQLite) DB() *sql.DB { return s.db }

// sqliteCatalog reads the schema through the table-valued pragma functions.
var sqliteCatalog = catalogQueries{
	tables: `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`,
	// an INTEGER PRIMARY KEY is an alias for the rowid
	columns: `
		SELECT
			name,
			type,
			CASE WHEN "notnull" = 0 THEN 'YES' ELSE 'NO' END,
			dflt_value,
			pk > 0 AND upper(type) = 'INTEGER',
			pk > 0,
			cid
		FROM pragma_table_info(?)
		ORDER BY cid
	`,
	indexes: `
		SELECT
			il.name,
			COALESCE(ii.name, ''),
			il."unique",
			il.origin = 'pk',
			'BTREE'
		FROM pragma_index_list(?) AS il
		JOIN pragma_index_info(il.name) AS ii
		ORDER BY il.name, ii.seqno
	`,
	foreignKeys: `
		SELECT
			'fk_' || id,
			"from",
			"table",
			COALESCE("to", ''),
			on_update,
			on_delete
		FROM pragma_foreign_key_list(?)
		ORDER BY id, seq
	`,
}

func (s *SQLite) catalog() catalogReader {
	return catalogReader{q: s.db, queries: sqliteCatalog}
}

// GetAllTables retrieves all user table names
func (s *SQLite) GetAllTables(ctx context.Context) ([]string, error) {
	return s.catalog().tableNames(ctx)
}

// GetTableSchema retrieves the schema for a specific table
func (s *SQLite) GetTableSchema(ctx context.Context, tableName string) (*schema.PhysicalTable, error) {
	return s.catalog().table(ctx, tableName)
}
