package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"

	_ "github.com/lib/pq"

	"github.com/koba/flowsql/internal/schema"
)

// Postgres implements the Database interface for PostgreSQL
type Postgres struct {
	config Config
	db     *sql.DB
}

// NewPostgres creates a new PostgreSQL database connection
func NewPostgres(config Config) *Postgres {
	return &Postgres{config: config}
}

// postgresDSN builds a connection URL, which keeps passwords with spaces or
// quotes intact.
func postgresDSN(config Config) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(config.User, config.Password),
		Host:     net.JoinHostPort(config.Host, config.Port),
		Path:     "/" + config.Database,
		RawQuery: url.Values{"sslmode": {"disable"}}.Encode(),
	}
	return u.String()
}

// Connect establishes a connection to PostgreSQL
func (p *Postgres) Connect(ctx context.Context) error {
	db, err := sql.Open("postgres", postgresDSN(p.config))
	if err != nil {
		return fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	p.db = db
	return nil
}

// Close closes the PostgreSQL connection
func (p *Postgres) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

func (p *Postgres) Type() string { return TypePostgres }

func (p *Postgres) DB() *sql.DB { return p.db }

// postgresCatalog reads the public schema. Serial and identity columns count
// as auto increment.
var postgresCatalog = catalogQueries{
	tables: `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`,
	columns: `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable,
			c.column_default,
			COALESCE(c.column_default, '') LIKE 'nextval(%' OR c.is_identity = 'YES',
			EXISTS (
				SELECT 1
				FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage k
					ON k.constraint_name = tc.constraint_name
					AND k.table_schema = tc.table_schema
				WHERE tc.constraint_type = 'PRIMARY KEY'
					AND tc.table_schema = c.table_schema
					AND tc.table_name = c.table_name
					AND k.column_name = c.column_name
			),
			c.ordinal_position
		FROM information_schema.columns c
		WHERE c.table_schema = 'public' AND c.table_name = $1
		ORDER BY c.ordinal_position
	`,
	indexes: `
		SELECT
			i.relname,
			a.attname,
			ix.indisunique,
			ix.indisprimary,
			am.amname
		FROM pg_class t
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_index ix ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_am am ON am.oid = i.relam
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		WHERE n.nspname = 'public' AND t.relname = $1 AND t.relkind = 'r'
		ORDER BY i.relname, array_position(ix.indkey::int2[], a.attnum)
	`,
	foreignKeys: `
		SELECT
			tc.constraint_name,
			kcu.column_name,
			ccu.table_name,
			ccu.column_name,
			rc.update_rule,
			rc.delete_rule
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.table_schema = tc.table_schema
		JOIN information_schema.referential_constraints rc
			ON rc.constraint_name = tc.constraint_name
			AND rc.constraint_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema = 'public'
			AND tc.table_name = $1
		ORDER BY tc.constraint_name
	`,
}

func (p *Postgres) catalog() catalogReader {
	return catalogReader{q: p.db, queries: postgresCatalog}
}

// GetAllTables retrieves all table names in the public schema
func (p *Postgres) GetAllTables(ctx context.Context) ([]string, error) {
	return p.catalog().tableNames(ctx)
}

// GetTableSchema retrieves the schema for a specific table
func (p *Postgres) GetTableSchema(ctx context.Context, tableName string) (*schema.PhysicalTable, error) {
	return p.catalog().table(ctx, tableName)
}
