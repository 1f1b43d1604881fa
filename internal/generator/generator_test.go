package generator

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koba/flowsql/internal/database"
	"github.com/koba/flowsql/internal/dberr"
	"github.com/koba/flowsql/internal/schema"
)

func personTable() *schema.TableSchema {
	return &schema.TableSchema{Columns: map[string]*schema.ColumnSchema{
		"name":   {Type: schema.TypeString, Unique: true, Label: true},
		"nick":   {Type: schema.TypeString, MaxLength: 20, Nullable: true},
		"tags":   {Type: schema.TypeArrayReference, ReferredTable: "Tag"},
		"score":  {Type: schema.TypeReal, Nullable: true, DefaultBySQL: "0"},
		"parent": {Type: schema.TypeObjectReference, ReferredTable: "Person", Nullable: true},
	}}
}

func TestSQLType(t *testing.T) {
	tests := []struct {
		dbType string
		col    schema.ColumnSchema
		want   string
	}{
		{database.TypeSQLite, schema.ColumnSchema{Type: schema.TypeString}, "TEXT"},
		{database.TypeSQLite, schema.ColumnSchema{Type: schema.TypeString, MaxLength: 12}, "VARCHAR(12)"},
		{database.TypeMySQL, schema.ColumnSchema{Type: schema.TypeString, Unique: true}, "VARCHAR(255)"},
		{database.TypeSQLite, schema.ColumnSchema{Type: schema.TypeBoolean}, "INTEGER"},
		{database.TypeSQLite, schema.ColumnSchema{Type: schema.TypeInteger}, "INTEGER"},
		{database.TypeSQLite, schema.ColumnSchema{Type: schema.TypeReal}, "REAL"},
		{database.TypeMySQL, schema.ColumnSchema{Type: schema.TypeReal}, "DOUBLE"},
		{database.TypePostgres, schema.ColumnSchema{Type: schema.TypeReal}, "DOUBLE PRECISION"},
		{database.TypeSQLite, schema.ColumnSchema{Type: schema.TypeBlob}, "BLOB"},
		{database.TypePostgres, schema.ColumnSchema{Type: schema.TypeBlob}, "BYTEA"},
		{database.TypeSQLite, schema.ColumnSchema{Type: schema.TypeDate}, "DATE"},
		{database.TypeSQLite, schema.ColumnSchema{Type: schema.TypeDatetime}, "DATETIME"},
		{database.TypePostgres, schema.ColumnSchema{Type: schema.TypeDatetime}, "TIMESTAMP"},
		{database.TypeSQLite, schema.ColumnSchema{Type: schema.TypeObject}, "TEXT"},
		{database.TypeSQLite, schema.ColumnSchema{Type: schema.TypeArray}, "TEXT"},
		{database.TypeSQLite, schema.ColumnSchema{Type: schema.TypeObjectReference, ReferredTable: "Tag"}, "INTEGER REFERENCES `Tag` (`id`)"},
		{database.TypePostgres, schema.ColumnSchema{Type: schema.TypeObjectReference, ReferredTable: "Tag"}, `INTEGER REFERENCES "Tag" ("id")`},
		{database.TypeMySQL, schema.ColumnSchema{Type: schema.TypeObjectReference, ReferredTable: "Tag"}, "INTEGER"},
	}

	for _, tt := range tests {
		t.Run(tt.dbType+"/"+tt.col.Type.String(), func(t *testing.T) {
			got, err := NewDDLGenerator(tt.dbType).SQLType(&tt.col)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSQLTypeRejectsUnknown(t *testing.T) {
	g := NewDDLGenerator(database.TypeSQLite)
	for _, typ := range []schema.ColumnType{schema.TypeUnknown, schema.TypeArrayReference, schema.ColumnType(99)} {
		_, err := g.SQLType(&schema.ColumnSchema{Type: typ})
		assert.True(t, dberr.Is(err, dberr.ErrUnsupported), "Expected unsupported for %v, got %v", typ, err)
	}
}

func TestColumnDefinition(t *testing.T) {
	g := NewDDLGenerator(database.TypeSQLite)

	def, junction, err := g.ColumnDefinition("name", &schema.ColumnSchema{Type: schema.TypeString, Unique: true})
	require.NoError(t, err)
	assert.False(t, junction)
	assert.Equal(t, "`name` TEXT UNIQUE NOT NULL", def)

	def, _, err = g.ColumnDefinition("created", &schema.ColumnSchema{Type: schema.TypeDatetime, Nullable: true, DefaultBySQL: "CURRENT_TIMESTAMP"})
	require.NoError(t, err)
	assert.Equal(t, "`created` DATETIME DEFAULT CURRENT_TIMESTAMP", def)

	def, junction, err = g.ColumnDefinition("tags", &schema.ColumnSchema{Type: schema.TypeArrayReference, ReferredTable: "Tag"})
	require.NoError(t, err)
	assert.True(t, junction)
	assert.Empty(t, def)
}

func TestCreateTable(t *testing.T) {
	stmts, err := NewDDLGenerator(database.TypeSQLite).CreateTable("Person", personTable())
	require.NoError(t, err)
	require.Len(t, stmts, 2)

	assert.Equal(t, "CREATE TABLE `Person` (\n"+
		"  `id` INTEGER PRIMARY KEY AUTOINCREMENT,\n"+
		"  `name` TEXT UNIQUE NOT NULL,\n"+
		"  `nick` VARCHAR(20),\n"+
		"  `parent` INTEGER REFERENCES `Person` (`id`),\n"+
		"  `score` REAL DEFAULT 0\n"+
		")", stmts[0])
	assert.Equal(t, "CREATE TABLE `Rel_x_Person_x_tags` (\n"+
		"  `id` INTEGER PRIMARY KEY AUTOINCREMENT,\n"+
		"  `id_source` INTEGER REFERENCES `Person` (`id`),\n"+
		"  `id_destination` INTEGER REFERENCES `Tag` (`id`),\n"+
		"  `sorter` INTEGER DEFAULT 1\n"+
		")", stmts[1])
}

func TestCreateTableMySQLForeignKeys(t *testing.T) {
	stmts, err := NewDDLGenerator(database.TypeMySQL).CreateTable("Person", personTable())
	require.NoError(t, err)
	assert.Contains(t, stmts[0], "`id` INTEGER PRIMARY KEY AUTO_INCREMENT")
	assert.Contains(t, stmts[0], "FOREIGN KEY (`parent`) REFERENCES `Person` (`id`)")
	assert.Contains(t, stmts[1], "FOREIGN KEY (`id_destination`) REFERENCES `Tag` (`id`)")
}

func TestCreateTablePostgres(t *testing.T) {
	stmts, err := NewDDLGenerator(database.TypePostgres).CreateTable("Tag", &schema.TableSchema{Columns: map[string]*schema.ColumnSchema{
		"label": {Type: schema.TypeString},
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"CREATE TABLE \"Tag\" (\n  \"id\" SERIAL PRIMARY KEY,\n  \"label\" TEXT NOT NULL\n)"}, stmts)
}

func TestMigrationStatements(t *testing.T) {
	g := NewDDLGenerator(database.TypeSQLite)

	assert.Equal(t, "DROP TABLE `T`", g.DropTable("T"))
	assert.Equal(t, "ALTER TABLE `A` RENAME TO `B`", g.RenameTable("A", "B"))
	assert.Equal(t, "ALTER TABLE `T` RENAME COLUMN `a` TO `b`", g.RenameColumn("T", "a", "b"))
	assert.Equal(t, "ALTER TABLE `T` DROP COLUMN `a`", g.DropColumn("T", "a"))
	assert.Equal(t, "INSERT INTO `T` (`id`, `a`, `b`)\n  SELECT `id`, `a`, `b` FROM `T_tmp`", g.CopyRows("T_tmp", "T", []string{"a", "b"}))

	stmt, err := g.AddColumn("T", "n", &schema.ColumnSchema{Type: schema.TypeInteger, Nullable: true})
	require.NoError(t, err)
	assert.Equal(t, "ALTER TABLE `T` ADD COLUMN `n` INTEGER", stmt)

	_, err = g.AddColumn("T", "tags", &schema.ColumnSchema{Type: schema.TypeArrayReference, ReferredTable: "T"})
	assert.Error(t, err)

	assert.Equal(t, []string{
		"DELETE FROM sqlite_sequence WHERE name = 'T'",
		"INSERT INTO sqlite_sequence (name, seq) SELECT 'T', seq FROM sqlite_sequence WHERE name = 'T_tmp'",
	}, g.CarrySequence("T_tmp", "T"))
}

func TestFormatValue(t *testing.T) {
	sqlite := NewDMLGenerator(database.TypeSQLite)
	mysql := NewDMLGenerator(database.TypeMySQL)
	postgres := NewDMLGenerator(database.TypePostgres)

	tests := []struct {
		name string
		g    *DMLGenerator
		in   interface{}
		want string
	}{
		{"nil", sqlite, nil, "NULL"},
		{"string", sqlite, "O'Brien", "'O''Brien'"},
		{"mysql backslash", mysql, `a\'b`, `'a\\''b'`},
		{"postgres backslash", postgres, `a\b`, `'a\b'`},
		{"true", sqlite, true, "1"},
		{"false", sqlite, false, "0"},
		{"int", sqlite, 42, "42"},
		{"negative", sqlite, int64(-7), "-7"},
		{"uint", sqlite, uint8(255), "255"},
		{"float", sqlite, 1.5, "1.5"},
		{"whole float", sqlite, float64(3), "3"},
		{"blob", sqlite, []byte{0xab, 0x01}, "X'AB01'"},
		{"postgres blob", postgres, []byte{0xab, 0x01}, `'\xab01'`},
		{"time", sqlite, time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC), "'2024-03-01 12:30:00'"},
		{"time with offset", sqlite, time.Date(2024, 3, 1, 12, 30, 0, 0, time.FixedZone("", 2*3600)), "'2024-03-01 10:30:00'"},
		{"object", sqlite, map[string]interface{}{"k": "it's"}, `'{"k":"it''s"}'`},
		{"array", sqlite, []interface{}{1, "a"}, `'[1,"a"]'`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.g.FormatValue(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := sqlite.FormatValue(math.Inf(1))
	assert.True(t, dberr.Is(err, dberr.ErrUnsupported))
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, "`a``b`", NewDMLGenerator(database.TypeSQLite).QuoteIdentifier("a`b"))
	assert.Equal(t, `"a""b"`, NewDMLGenerator(database.TypePostgres).QuoteIdentifier(`a"b`))
}

func TestWhere(t *testing.T) {
	g := NewDMLGenerator(database.TypeSQLite)
	tests := []struct {
		name    string
		filters []schema.Filter
		want    string
	}{
		{"none", nil, ""},
		{"equal", []schema.Filter{{Column: "name", Op: schema.OpEqual, Value: "Ann"}}, "\n  WHERE `name` = 'Ann'"},
		{"not equal", []schema.Filter{{Column: "n", Op: schema.OpNotEqual, Value: 1}}, "\n  WHERE `n` <> 1"},
		{"and", []schema.Filter{
			{Column: "n", Op: schema.OpGreaterEqual, Value: 1},
			{Column: "n", Op: schema.OpLess, Value: 2.5},
		}, "\n  WHERE `n` >= 1\n    AND `n` < 2.5"},
		{"null", []schema.Filter{{Column: "n", Op: schema.OpIsNull}}, "\n  WHERE `n` IS NULL"},
		{"not null", []schema.Filter{{Column: "n", Op: schema.OpIsNotNull}}, "\n  WHERE `n` IS NOT NULL"},
		{"like", []schema.Filter{{Column: "s", Op: schema.OpIsLike, Value: "A%"}}, "\n  WHERE `s` LIKE 'A%'"},
		{"not like", []schema.Filter{{Column: "s", Op: schema.OpIsNotLike, Value: "A%"}}, "\n  WHERE `s` NOT LIKE 'A%'"},
		{"in", []schema.Filter{{Column: "id", Op: schema.OpIsIn, Value: []int{1, 2}}}, "\n  WHERE `id` IN (1, 2)"},
		{"not in", []schema.Filter{{Column: "s", Op: schema.OpIsNotIn, Value: []string{"a", "b'"}}}, "\n  WHERE `s` NOT IN ('a', 'b''')"},
		{"empty in", []schema.Filter{{Column: "id", Op: schema.OpIsIn, Value: []int{}}}, "\n  WHERE 1 = 0"},
		{"empty not in", []schema.Filter{{Column: "id", Op: schema.OpIsNotIn, Value: []int{}}}, "\n  WHERE 1 = 1"},
		{"has skipped", []schema.Filter{
			{Column: "tags", Op: schema.OpHas, Value: 2},
			{Column: "id", Op: schema.OpGreater, Value: 0},
		}, "\n  WHERE `id` > 0"},
		{"only has", []schema.Filter{{Column: "tags", Op: schema.OpHasNot, Value: 2}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.Where(tt.filters)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWhereUnsupportedOperator(t *testing.T) {
	_, err := NewDMLGenerator(database.TypeSQLite).Where([]schema.Filter{{Column: "n", Op: schema.Operator(99)}})
	assert.True(t, dberr.Is(err, dberr.ErrUnsupported))
}

func TestWhereInNeedsSequence(t *testing.T) {
	g := NewDMLGenerator(database.TypeSQLite)
	for _, value := range []interface{}{1, "a", []byte("ab"), nil} {
		_, err := g.Where([]schema.Filter{{Column: "id", Op: schema.OpIsIn, Value: value}})
		assert.True(t, dberr.Is(err, dberr.ErrValidation), "Expected validation error for %#v, got %v", value, err)
	}
}

func TestPostFetch(t *testing.T) {
	filters := []schema.Filter{
		{Column: "tags", Op: schema.OpHas, Value: 2},
		{Column: "id", Op: schema.OpGreater, Value: 0},
		{Column: "tags", Op: schema.OpHasNot, Value: []int{3}},
	}
	assert.Equal(t, []schema.Filter{filters[0], filters[2]}, PostFetch(filters))
}

func TestDML(t *testing.T) {
	g := NewDMLGenerator(database.TypeSQLite)

	stmt, err := g.Insert("T", schema.Row{"a": "x", "b": nil}, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO `T` (`a`, `b`) VALUES ('x', NULL)", stmt)

	stmt, err = g.Insert("T", schema.Row{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO `T` DEFAULT VALUES", stmt)

	stmt, err = NewDMLGenerator(database.TypePostgres).Insert("T", schema.Row{"a": 1}, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "T" ("a") VALUES (1) RETURNING "id"`, stmt)

	stmt, err = g.Update("T", schema.Row{"a": "y"}, []string{"a"}, []int64{1, 3})
	require.NoError(t, err)
	assert.Equal(t, "UPDATE `T` SET `a` = 'y'\n  WHERE `id` IN (1, 3)", stmt)

	assert.Equal(t, "DELETE FROM `T`\n  WHERE `id` IN (4)", g.Delete("T", []int64{4}))
	assert.Equal(t, "SELECT * FROM `T`\n  WHERE `a` = 1\n  ORDER BY `id`", g.Select("T", "\n  WHERE `a` = 1"))
}

func TestLinks(t *testing.T) {
	g := NewDMLGenerator(database.TypeSQLite)

	assert.Equal(t, "INSERT INTO `J` (`id_source`, `id_destination`, `sorter`) VALUES (7, 2, 2), (7, 1, 1)",
		g.InsertLinks("J", 7, []int64{2, 1}))
	assert.Empty(t, g.InsertLinks("J", 7, nil))
	assert.Equal(t, "SELECT `id_source`, `id_destination` FROM `J`\n  WHERE `id_source` IN (1, 2)\n  ORDER BY `sorter` DESC, `id` ASC",
		g.SelectLinks("J", []int64{1, 2}))
	assert.Equal(t, "DELETE FROM `J`\n  WHERE `id_destination` IN (5)", g.DeleteLinks("J", schema.JunctionDestination, []int64{5}))
}

func TestGenerateSchemaDDL(t *testing.T) {
	s := schema.New()
	s.Tables["Person"] = personTable()
	s.Tables["Tag"] = &schema.TableSchema{Columns: map[string]*schema.ColumnSchema{
		"label": {Type: schema.TypeString},
	}}
	s.Tables["Address"] = &schema.TableSchema{Columns: map[string]*schema.ColumnSchema{
		"owner": {Type: schema.TypeObjectReference, ReferredTable: "Person"},
	}}

	ddl, err := GenerateSchemaDDL(s, database.TypeSQLite)
	require.NoError(t, err)

	metadata := strings.Index(ddl, "CREATE TABLE IF NOT EXISTS `Database_metadata`")
	person := strings.Index(ddl, "CREATE TABLE `Person`")
	address := strings.Index(ddl, "CREATE TABLE `Address`")
	junction := strings.Index(ddl, "CREATE TABLE `Rel_x_Person_x_tags`")
	require.True(t, metadata >= 0 && person >= 0 && address >= 0 && junction >= 0, ddl)
	assert.Less(t, metadata, person)
	assert.Less(t, person, address)
	assert.Less(t, address, junction)
}
