package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/koba/flowsql/internal/schema"
)

// MySQL implements the Database interface for MySQL
type MySQL struct {
	config Config
	db     *sql.DB
}

// NewMySQL creates a new MySQL database connection
func NewMySQL(config Config) *MySQL {
	return &MySQL{config: config}
}

// mysqlDSN builds the driver DSN. Times are read back in UTC, the zone
// datetimes are written in.
func mysqlDSN(config Config) string {
	cfg := mysql.NewConfig()
	cfg.User = config.User
	cfg.Passwd = config.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(config.Host, config.Port)
	cfg.DBName = config.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN()
}

// Connect establishes a connection to MySQL
func (m *MySQL) Connect(ctx context.Context) error {
	db, err := sql.Open("mysql", mysqlDSN(m.config))
	if err != nil {
		return fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping MySQL: %w", err)
	}

	m.db = db
	return nil
}

// Close closes the MySQL connection
func (m *MySQL) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

func (m *MySQL) Type() string { return TypeMySQL }

func (m *MySQL) DB() *sql.DB { return m.db }

// mysqlCatalog reads information_schema. The first argument is the schema
// name.
var mysqlCatalog = catalogQueries{
	tables: `
		SELECT TABLE_NAME
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME
	`,
	columns: `
		SELECT
			COLUMN_NAME,
			COLUMN_TYPE,
			IS_NULLABLE,
			COLUMN_DEFAULT,
			EXTRA LIKE '%auto_increment%',
			COLUMN_KEY = 'PRI',
			ORDINAL_POSITION
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`,
	indexes: `
		SELECT
			INDEX_NAME,
			COLUMN_NAME,
			NON_UNIQUE = 0,
			INDEX_NAME = 'PRIMARY',
			INDEX_TYPE
		FROM information_schema.STATISTICS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY INDEX_NAME, SEQ_IN_INDEX
	`,
	foreignKeys: `
		SELECT
			k.CONSTRAINT_NAME,
			k.COLUMN_NAME,
			k.REFERENCED_TABLE_NAME,
			k.REFERENCED_COLUMN_NAME,
			r.UPDATE_RULE,
			r.DELETE_RULE
		FROM information_schema.KEY_COLUMN_USAGE k
		JOIN information_schema.REFERENTIAL_CONSTRAINTS r
			ON r.CONSTRAINT_SCHEMA = k.CONSTRAINT_SCHEMA
			AND r.CONSTRAINT_NAME = k.CONSTRAINT_NAME
		WHERE k.TABLE_SCHEMA = ? AND k.TABLE_NAME = ? AND k.REFERENCED_TABLE_NAME IS NOT NULL
		ORDER BY k.CONSTRAINT_NAME, k.ORDINAL_POSITION
	`,
}

func (m *MySQL) catalog() catalogReader {
	return catalogReader{q: m.db, queries: mysqlCatalog, args: []any{m.config.Database}}
}

// GetAllTables retrieves all table names in the database
func (m *MySQL) GetAllTables(ctx context.Context) ([]string, error) {
	return m.catalog().tableNames(ctx)
}

// GetTableSchema retrieves the schema for a specific table
func (m *MySQL) GetTableSchema(ctx context.Context, tableName string) (*schema.PhysicalTable, error) {
	return m.catalog().table(ctx, tableName)
}
