package diff

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koba/flowsql/internal/schema"
)

func sampleSchema() *schema.Schema {
	s := schema.New()
	s.Tables["Tag"] = &schema.TableSchema{Columns: map[string]*schema.ColumnSchema{
		"label": {Type: schema.TypeString, Unique: true, Label: true},
	}}
	s.Tables["Person"] = &schema.TableSchema{Columns: map[string]*schema.ColumnSchema{
		"age":      {Type: schema.TypeInteger, Nullable: true},
		"favorite": {Type: schema.TypeObjectReference, ReferredTable: "Tag", Nullable: true},
		"tags":     {Type: schema.TypeArrayReference, ReferredTable: "Tag"},
	}}
	return s
}

func TestExpected(t *testing.T) {
	tables := Expected(sampleSchema())

	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	assert.ElementsMatch(t, []string{schema.MetadataTable, "Person", "Tag", "Rel_x_Person_x_tags"}, names)

	person := tables["Person"]
	require.Len(t, person.Columns, 3)
	assert.Equal(t, "id", person.Columns[0].Name)
	assert.True(t, person.Columns[0].PrimaryKey)
	assert.Equal(t, "age", person.Columns[1].Name)
	assert.True(t, person.Columns[1].Nullable)
	assert.Equal(t, "favorite", person.Columns[2].Name)
	assert.Equal(t, schema.TypeInteger, person.Columns[1].ColumnType)
	assert.Equal(t, schema.TypeInteger, person.Columns[2].ColumnType)
	require.NotNil(t, person.ForeignKeyFor("favorite"))
	assert.Equal(t, "Tag", person.ForeignKeyFor("favorite").ReferencedTable)
	assert.Nil(t, person.Column("tags"))

	tag := tables["Tag"]
	assert.True(t, isUnique(tag, "label"))
	assert.False(t, tag.Column("label").Nullable)
	assert.Equal(t, schema.TypeString, tag.Column("label").ColumnType)

	junction := tables["Rel_x_Person_x_tags"]
	require.Len(t, junction.ForeignKeys, 2)
	assert.Equal(t, "Person", junction.ForeignKeyFor(schema.JunctionSource).ReferencedTable)
	assert.Equal(t, "Tag", junction.ForeignKeyFor(schema.JunctionDestination).ReferencedTable)
}

func TestCompareIdentical(t *testing.T) {
	expected := Expected(sampleSchema())
	actual := Expected(sampleSchema())

	result := Compare(expected, actual)
	assert.True(t, result.Clean())
	assert.Empty(t, result.TableNames())
}

func TestCompareTables(t *testing.T) {
	expected := Expected(sampleSchema())
	actual := Expected(sampleSchema())

	delete(actual, "Rel_x_Person_x_tags")
	actual["Stray"] = &schema.PhysicalTable{Name: "Stray", Columns: []schema.PhysicalColumn{idColumn()}}

	result := Compare(expected, actual)
	assert.Equal(t, []string{"Rel_x_Person_x_tags", "Stray"}, result.TableNames())
	assert.Equal(t, ActionMissing, result.TableDiffs["Rel_x_Person_x_tags"].Action)
	assert.Equal(t, ActionUnexpected, result.TableDiffs["Stray"].Action)
}

func TestCompareColumns(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(pt *schema.PhysicalTable)
		column  string
		action  Action
		detail  string
		fkDrift bool
	}{
		{
			name: "missing column",
			mutate: func(pt *schema.PhysicalTable) {
				pt.Columns = pt.Columns[:2]
				pt.ForeignKeys = nil
			},
			column:  "favorite",
			action:  ActionMissing,
			fkDrift: true,
		},
		{
			name: "unexpected column",
			mutate: func(pt *schema.PhysicalTable) {
				pt.Columns = append(pt.Columns, schema.PhysicalColumn{Name: "extra", Nullable: true})
			},
			column: "extra",
			action: ActionUnexpected,
		},
		{
			name: "nullability",
			mutate: func(pt *schema.PhysicalTable) {
				pt.Columns[1].Nullable = false
			},
			column: "age",
			action: ActionModify,
			detail: "expected nullable, found NOT NULL",
		},
		{
			name: "unique index",
			mutate: func(pt *schema.PhysicalTable) {
				pt.Indexes = append(pt.Indexes, schema.Index{Name: "age_idx", Columns: []string{"age"}, Unique: true})
			},
			column: "age",
			action: ActionModify,
			detail: "unexpected unique index",
		},
		{
			name: "storage class",
			mutate: func(pt *schema.PhysicalTable) {
				pt.Columns[1].Type = "TEXT"
				pt.Columns[1].ColumnType = schema.TypeString
			},
			column: "age",
			action: ActionModify,
			detail: "expected integer storage, found string (TEXT)",
		},
		{
			name: "native names are not compared",
			mutate: func(pt *schema.PhysicalTable) {
				def := "'x'"
				pt.Columns[1].Type = "BIGINT"
				pt.Columns[1].DefaultValue = &def
			},
		},
		{
			name: "unknown storage is not compared",
			mutate: func(pt *schema.PhysicalTable) {
				pt.Columns[1].Type = "NUMERIC"
				pt.Columns[1].ColumnType = schema.TypeUnknown
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expected := Expected(sampleSchema())
			actual := Expected(sampleSchema())
			tt.mutate(actual["Person"])

			result := Compare(expected, actual)
			if tt.column == "" {
				assert.True(t, result.Clean())
				return
			}
			require.Equal(t, []string{"Person"}, result.TableNames())
			tableDiff := result.TableDiffs["Person"]
			assert.Equal(t, ActionModify, tableDiff.Action)
			require.Len(t, tableDiff.ColumnChanges, 1)
			change := tableDiff.ColumnChanges[0]
			assert.Equal(t, tt.column, change.ColumnName)
			assert.Equal(t, tt.action, change.Action)
			assert.Equal(t, tt.detail, change.Detail)
			assert.Equal(t, tt.fkDrift, len(tableDiff.ForeignKeyChanges) > 0)
		})
	}
}

func TestCompareForeignKeys(t *testing.T) {
	expected := Expected(sampleSchema())
	actual := Expected(sampleSchema())

	junction := actual["Rel_x_Person_x_tags"]
	junction.ForeignKeys[1].ReferencedTable = "Tag_tmp_0badc0de"
	junction.ForeignKeys[0].ReferencedColumn = ""
	actual["Tag"].ForeignKeys = []schema.ForeignKey{{Name: "fk", Column: "label", ReferencedTable: "Person"}}

	result := Compare(expected, actual)
	assert.Equal(t, []string{"Rel_x_Person_x_tags", "Tag"}, result.TableNames())

	changes := result.TableDiffs["Rel_x_Person_x_tags"].ForeignKeyChanges
	require.Len(t, changes, 1)
	assert.Equal(t, schema.JunctionDestination, changes[0].Column)
	assert.Equal(t, ActionModify, changes[0].Action)

	changes = result.TableDiffs["Tag"].ForeignKeyChanges
	require.Len(t, changes, 1)
	assert.Equal(t, ActionUnexpected, changes[0].Action)
}

func TestDisplay(t *testing.T) {
	var buf bytes.Buffer
	Display(&buf, &Result{TableDiffs: map[string]*TableDiff{}})
	assert.Equal(t, "No drift found.\n", buf.String())

	expected := Expected(sampleSchema())
	actual := Expected(sampleSchema())
	delete(actual, "Tag")
	actual["Person"].Columns[1].Nullable = false
	actual["Person"].ForeignKeys = nil
	actual["Stray"] = &schema.PhysicalTable{Name: "Stray"}

	buf.Reset()
	Display(&buf, Compare(expected, actual))
	want := `=== Schema Drift ===

Table: Person
  Action: MODIFY
  Column changes:
    - age: MODIFY (expected nullable, found NOT NULL)
  Foreign key changes:
    - favorite: MISSING

Table: Stray
  Action: UNEXPECTED (in database, not declared)

Table: Tag
  Action: MISSING (declared, not in database)
  Columns: 2

`
	assert.Equal(t, want, buf.String())
}
