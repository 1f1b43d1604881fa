package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/koba/flowsql/internal/schema"
)

// Supported database types.
const (
	TypeSQLite   = "sqlite"
	TypeMySQL    = "mysql"
	TypePostgres = "postgres"
)

// Config holds database connection configuration
type Config struct {
	Type     string `yaml:"type"` // "sqlite", "mysql" or "postgres"
	Filename string `yaml:"filename"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`

	ReadOnly    bool `yaml:"read_only"`
	BusyTimeout int  `yaml:"busy_timeout"` // milliseconds, SQLite only
	ForeignKeys bool `yaml:"foreign_keys"` // SQLite only
	TraceSQL    bool `yaml:"trace_sql"`
}

// DefaultConfig returns a configuration for a local SQLite file.
func DefaultConfig() Config {
	return Config{
		Type:        TypeSQLite,
		Filename:    "flowsql.db",
		BusyTimeout: 5000,
		ForeignKeys: true,
	}
}

// Database interface defines operations for database connections
type Database interface {
	Connect(ctx context.Context) error
	Close() error
	Type() string
	DB() *sql.DB
	GetAllTables(ctx context.Context) ([]string, error)
	GetTableSchema(ctx context.Context, tableName string) (*schema.PhysicalTable, error)
}

// NewDatabase creates a new database connection based on type
func NewDatabase(config Config) (Database, error) {
	dbType, err := NormalizeType(config.Type)
	if err != nil {
		return nil, err
	}
	config.Type = dbType

	switch dbType {
	case TypeMySQL:
		return NewMySQL(config), nil
	case TypePostgres:
		return NewPostgres(config), nil
	default:
		return NewSQLite(config), nil
	}
}

// NormalizeType maps the accepted spellings of a database type onto one of
// the Type constants.
func NormalizeType(dbType string) (string, error) {
	switch dbType {
	case "", "sqlite", "SQLite", "sqlite3":
		return TypeSQLite, nil
	case "mysql", "MySQL":
		return TypeMySQL, nil
	case "postgres", "Postgres", "PostgreSQL", "postgresql":
		return TypePostgres, nil
	default:
		return "", fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// TransactionalDDL reports whether schema statements can be rolled back.
func TransactionalDDL(dbType string) bool {
	return dbType != TypeMySQL
}

// LoadConfigFile reads a YAML configuration file over the defaults.
func LoadConfigFile(path string) (Config, error) {
	config := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// ApplyEnv overrides config fields with the environment variables that are set.
func ApplyEnv(config Config) (Config, error) {
	if v := os.Getenv("FLOWSQL_DB_TYPE"); v != "" {
		config.Type = v
	} else if v := os.Getenv("DB_TYPE"); v != "" {
		config.Type = v
	}
	if v := os.Getenv("FLOWSQL_DB_FILE"); v != "" {
		config.Filename = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		config.Host = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		config.Database = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		config.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		config.Password = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		config.Port = v
	}
	if v := os.Getenv("FLOWSQL_TRACE_SQL"); v != "" {
		trace, err := strconv.ParseBool(v)
		if err != nil {
			return config, fmt.Errorf("invalid FLOWSQL_TRACE_SQL: %w", err)
		}
		config.TraceSQL = trace
	}

	dbType, err := NormalizeType(config.Type)
	if err != nil {
		return config, err
	}
	config.Type = dbType

	if dbType != TypeSQLite {
		if config.Host == "" {
			config.Host = "localhost"
		}
		if config.Port == "" {
			if dbType == TypeMySQL {
				config.Port = "3306"
			} else {
				config.Port = "5432"
			}
		}
	}
	return config, nil
}

// LoadConfigFromEnv loads database configuration from environment variables
func LoadConfigFromEnv() (Config, error) {
	config, err := ApplyEnv(DefaultConfig())
	if err != nil {
		return config, err
	}
	if config.Type != TypeSQLite && config.Database == "" {
		return Config{}, fmt.Errorf("DB_NAME environment variable is required")
	}
	return config, nil
}
