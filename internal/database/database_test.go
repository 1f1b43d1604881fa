package database

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/koba/flowsql/internal/dberr"
	"github.com/koba/flowsql/internal/schema"
)

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	config := DefaultConfig()
	config.Filename = filepath.Join(t.TempDir(), "test.db")
	db := NewSQLite(config)
	require.NoError(t, db.Connect(context.Background()))
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNormalizeType(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", TypeSQLite, false},
		{"sqlite3", TypeSQLite, false},
		{"MySQL", TypeMySQL, false},
		{"PostgreSQL", TypePostgres, false},
		{"oracle", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewDatabase(t *testing.T) {
	db, err := NewDatabase(Config{Type: "postgres"})
	require.NoError(t, err)
	assert.Equal(t, TypePostgres, db.Type())

	db, err = NewDatabase(Config{})
	require.NoError(t, err)
	assert.Equal(t, TypeSQLite, db.Type())

	_, err = NewDatabase(Config{Type: "oracle"})
	assert.Error(t, err)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowsql.yaml")
	require.NoError(t, os.WriteFile(path, []byte("type: sqlite\nfilename: data.db\ntrace_sql: true\n"), 0o644))

	config, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "data.db", config.Filename)
	assert.True(t, config.TraceSQL)
	assert.Equal(t, 5000, config.BusyTimeout)
	assert.True(t, config.ForeignKeys)

	_, err = LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("FLOWSQL_DB_TYPE", "mysql")
	t.Setenv("DB_NAME", "app")
	t.Setenv("DB_USER", "root")
	t.Setenv("FLOWSQL_TRACE_SQL", "true")

	config, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, TypeMySQL, config.Type)
	assert.Equal(t, "localhost", config.Host)
	assert.Equal(t, "3306", config.Port)
	assert.Equal(t, "app", config.Database)
	assert.True(t, config.TraceSQL)
}

func TestApplyEnvRequiresDatabaseName(t *testing.T) {
	t.Setenv("FLOWSQL_DB_TYPE", "postgres")
	t.Setenv("DB_NAME", "")

	_, err := LoadConfigFromEnv()
	assert.Error(t, err)
}

func TestExecutor(t *testing.T) {
	db := openTestSQLite(t)
	ctx := context.Background()
	x := NewExecutor(db.DB(), TypeSQLite, zap.NewNop(), true)

	require.NoError(t, x.Run(ctx, "CREATE TABLE `T` (`id` INTEGER PRIMARY KEY AUTOINCREMENT, `name` TEXT, `data` BLOB)"))
	id, err := x.Insert(ctx, "INSERT INTO `T` (`name`, `data`) VALUES ('a''b', X'0102')")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	rows, err := x.Fetch(ctx, "SELECT * FROM `T`")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0]["id"])
	assert.Equal(t, "a'b", rows[0]["name"])
	assert.Equal(t, []byte{1, 2}, rows[0]["data"])
	assert.Equal(t, 3, x.Executed())

	rows, err = x.Fetch(ctx, "SELECT * FROM `T` WHERE `id` = 42")
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestExecutorWrapsDriverErrors(t *testing.T) {
	db := openTestSQLite(t)
	x := NewExecutor(db.DB(), TypeSQLite, nil, false)

	err := x.Run(context.Background(), "SELECT * FROM missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, dberr.ErrExecution))
	assert.Contains(t, err.Error(), "SELECT * FROM missing")
	assert.Equal(t, 0, x.Executed())
}

func TestWithTxRollsBack(t *testing.T) {
	db := openTestSQLite(t)
	ctx := context.Background()
	x := NewExecutor(db.DB(), TypeSQLite, nil, false)
	require.NoError(t, x.Run(ctx, "CREATE TABLE `T` (`id` INTEGER PRIMARY KEY AUTOINCREMENT, `n` INTEGER)"))

	boom := errors.New("boom")
	err := WithTx(ctx, db.DB(), func(tx *sql.Tx) error {
		if err := x.With(tx).Run(ctx, "INSERT INTO `T` (`n`) VALUES (1)"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	rows, err := x.Fetch(ctx, "SELECT * FROM `T`")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSQLiteIntrospection(t *testing.T) {
	db := openTestSQLite(t)
	ctx := context.Background()
	x := NewExecutor(db.DB(), TypeSQLite, nil, false)

	require.NoError(t, x.RunAll(ctx, []string{
		"CREATE TABLE `Tag` (`id` INTEGER PRIMARY KEY AUTOINCREMENT, `label` TEXT NOT NULL UNIQUE)",
		"CREATE TABLE `Note` (`id` INTEGER PRIMARY KEY AUTOINCREMENT, `tag` INTEGER REFERENCES `Tag` (`id`), `body` TEXT)",
	}))

	tables, err := db.GetAllTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Note", "Tag"}, tables)

	note, err := db.GetTableSchema(ctx, "Note")
	require.NoError(t, err)
	require.Len(t, note.Columns, 3)

	id := note.Column("id")
	require.NotNil(t, id)
	assert.True(t, id.PrimaryKey)
	assert.True(t, id.AutoIncrement)
	assert.False(t, id.Nullable)
	assert.True(t, note.Column("body").Nullable)

	assert.Equal(t, schema.TypeInteger, id.ColumnType)
	assert.Equal(t, schema.TypeInteger, note.Column("tag").ColumnType)
	assert.Equal(t, schema.TypeString, note.Column("body").ColumnType)

	fk := note.ForeignKeyFor("tag")
	require.NotNil(t, fk)
	assert.Equal(t, "fk_0", fk.Name)
	assert.Equal(t, "Tag", fk.ReferencedTable)
	assert.Equal(t, "id", fk.ReferencedColumn)
	assert.Equal(t, "NO ACTION", fk.OnDelete)

	tag, err := db.GetTableSchema(ctx, "Tag")
	require.NoError(t, err)
	assert.False(t, tag.Column("label").Nullable)
	require.Len(t, tag.Indexes, 1)
	assert.True(t, tag.Indexes[0].Unique)
	assert.False(t, tag.Indexes[0].Primary)
	assert.Equal(t, "BTREE", tag.Indexes[0].Type)
	assert.Equal(t, []string{"label"}, tag.Indexes[0].Columns)
}

func TestSQLiteIntrospectsCompositeKeys(t *testing.T) {
	db := openTestSQLite(t)
	ctx := context.Background()
	x := NewExecutor(db.DB(), TypeSQLite, nil, false)

	require.NoError(t, x.RunAll(ctx, []string{
		"CREATE TABLE `Pair` (`b` VARCHAR(20), `a` TEXT, `at` DATETIME, `n` NUMERIC, PRIMARY KEY (`b`, `a`))",
		"CREATE INDEX `pair_at` ON `Pair` (`at`, `b`)",
	}))

	pair, err := db.GetTableSchema(ctx, "Pair")
	require.NoError(t, err)
	for _, name := range []string{"a", "b"} {
		col := pair.Column(name)
		require.NotNil(t, col, name)
		assert.True(t, col.PrimaryKey, name)
		assert.False(t, col.Nullable, name)
		assert.False(t, col.AutoIncrement, name)
	}
	assert.Equal(t, schema.TypeString, pair.Column("b").ColumnType)
	assert.Equal(t, schema.TypeDatetime, pair.Column("at").ColumnType)
	assert.Equal(t, schema.TypeUnknown, pair.Column("n").ColumnType)

	require.Len(t, pair.Indexes, 2)
	assert.Equal(t, "pair_at", pair.Indexes[0].Name)
	assert.Equal(t, []string{"at", "b"}, pair.Indexes[0].Columns)
	assert.False(t, pair.Indexes[0].Unique)
	assert.True(t, pair.Indexes[1].Primary)
	assert.True(t, pair.Indexes[1].Unique)
	assert.Equal(t, []string{"b", "a"}, pair.Indexes[1].Columns)
}

func TestGroupIndexes(t *testing.T) {
	got := groupIndexes([]indexRow{
		{name: "PRIMARY", column: "id", primary: true, kind: "BTREE"},
		{name: "name_age", column: "name", kind: "btree"},
		{name: "name_age", column: "age", kind: "btree"},
		{name: "label", column: "label", unique: true, kind: "hash"},
	})
	want := []schema.Index{
		{Name: "PRIMARY", Columns: []string{"id"}, Unique: true, Primary: true, Type: "BTREE"},
		{Name: "label", Columns: []string{"label"}, Unique: true, Type: "HASH"},
		{Name: "name_age", Columns: []string{"name", "age"}, Type: "BTREE"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("indexes mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, groupIndexes(nil))
}

func TestMarkPrimaryKeys(t *testing.T) {
	table := &schema.PhysicalTable{
		Columns: []schema.PhysicalColumn{{Name: "id", Nullable: true}, {Name: "name", Nullable: true}},
		Indexes: []schema.Index{
			{Name: "t_pkey", Columns: []string{"id"}, Unique: true, Primary: true},
			{Name: "t_name_key", Columns: []string{"name"}, Unique: true},
		},
	}
	markPrimaryKeys(table)
	assert.True(t, table.Column("id").PrimaryKey)
	assert.False(t, table.Column("id").Nullable)
	assert.False(t, table.Column("name").PrimaryKey)
	assert.True(t, table.Column("name").Nullable)
}

func TestColumnTypeOf(t *testing.T) {
	tests := []struct {
		native string
		want   schema.ColumnType
	}{
		{"INTEGER", schema.TypeInteger},
		{"int(11)", schema.TypeInteger},
		{"int unsigned", schema.TypeInteger},
		{"bigint(20) unsigned", schema.TypeInteger},
		{"double", schema.TypeReal},
		{"double precision", schema.TypeReal},
		{"REAL", schema.TypeReal},
		{"text", schema.TypeString},
		{"varchar(255)", schema.TypeString},
		{"character varying", schema.TypeString},
		{"bytea", schema.TypeBlob},
		{"BLOB", schema.TypeBlob},
		{"date", schema.TypeDate},
		{"datetime", schema.TypeDatetime},
		{"timestamp without time zone", schema.TypeDatetime},
		{"numeric", schema.TypeUnknown},
		{"", schema.TypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.native, func(t *testing.T) {
			assert.Equal(t, tt.want, ColumnTypeOf(tt.native))
		})
	}
}

// Every declared type must read back as its storage class on each dialect.
func TestColumnTypeOfDeclaredStorage(t *testing.T) {
	native := map[string]map[schema.ColumnType]string{
		TypeSQLite: {
			schema.TypeInteger: "INTEGER", schema.TypeReal: "REAL", schema.TypeString: "TEXT",
			schema.TypeBlob: "BLOB", schema.TypeDate: "DATE", schema.TypeDatetime: "DATETIME",
		},
		TypeMySQL: {
			schema.TypeInteger: "int", schema.TypeReal: "double", schema.TypeString: "varchar(255)",
			schema.TypeBlob: "blob", schema.TypeDate: "date", schema.TypeDatetime: "datetime",
		},
		TypePostgres: {
			schema.TypeInteger: "integer", schema.TypeReal: "double precision", schema.TypeString: "text",
			schema.TypeBlob: "bytea", schema.TypeDate: "date", schema.TypeDatetime: "timestamp without time zone",
		},
	}
	for dbType, byType := range native {
		for _, typ := range schema.KnownTypes() {
			class := typ.StorageClass()
			if class == schema.TypeUnknown {
				continue
			}
			assert.Equal(t, class, ColumnTypeOf(byType[class]), "%s %s", dbType, typ)
		}
	}
}

func TestDSN(t *testing.T) {
	config := Config{Host: "db.local", Port: "3307", User: "app", Password: "p@ss word's", Database: "flow"}

	parsed, err := mysql.ParseDSN(mysqlDSN(config))
	require.NoError(t, err)
	assert.Equal(t, "app", parsed.User)
	assert.Equal(t, "p@ss word's", parsed.Passwd)
	assert.Equal(t, "tcp", parsed.Net)
	assert.Equal(t, "db.local:3307", parsed.Addr)
	assert.Equal(t, "flow", parsed.DBName)
	assert.True(t, parsed.ParseTime)
	assert.Equal(t, time.UTC, parsed.Loc)

	u, err := url.Parse(postgresDSN(config))
	require.NoError(t, err)
	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "db.local:3307", u.Host)
	assert.Equal(t, "/flow", u.Path)
	password, _ := u.User.Password()
	assert.Equal(t, "p@ss word's", password)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
}

func TestSQLiteReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ro.db")
	rw := NewSQLite(Config{Filename: path, BusyTimeout: 100})
	require.NoError(t, rw.Connect(context.Background()))
	_, err := rw.DB().Exec("CREATE TABLE t (id INTEGER)")
	require.NoError(t, err)
	require.NoError(t, rw.Close())

	ro := NewSQLite(Config{Filename: path, ReadOnly: true, BusyTimeout: 100})
	require.NoError(t, ro.Connect(context.Background()))
	defer ro.Close()

	_, err = ro.DB().Exec("INSERT INTO t (id) VALUES (1)")
	assert.Error(t, err)
}
