package diff

import (
	"fmt"
	"sort"

	"github.com/koba/flowsql/internal/schema"
)

// Action represents the type of drift
type Action string

const (
	// ActionMissing marks something the schema document declares but the
	// database lacks.
	ActionMissing Action = "MISSING"
	// ActionUnexpected marks something the database has but the schema
	// document does not declare.
	ActionUnexpected Action = "UNEXPECTED"
	// ActionModify marks something present on both sides that differs.
	ActionModify Action = "MODIFY"
)

// TableDiff represents the drift of one table
type TableDiff struct {
	TableName         string
	Action            Action
	Expected          *schema.PhysicalTable
	Actual            *schema.PhysicalTable
	ColumnChanges     []ColumnChange
	ForeignKeyChanges []ForeignKeyChange
}

// ColumnChange represents the drift of a column
type ColumnChange struct {
	ColumnName string
	Action     Action
	Detail     string
	Expected   *schema.PhysicalColumn
	Actual     *schema.PhysicalColumn
}

// ForeignKeyChange represents the drift of the foreign key of a column
type ForeignKeyChange struct {
	Column   string
	Action   Action
	Expected *schema.ForeignKey
	Actual   *schema.ForeignKey
}

// compareTables compares the expected and the live shape of one table. It
// returns nil when they agree.
func compareTables(expected, actual *schema.PhysicalTable) *TableDiff {
	diff := &TableDiff{
		TableName:         expected.Name,
		Action:            ActionModify,
		Expected:          expected,
		Actual:            actual,
		ColumnChanges:     []ColumnChange{},
		ForeignKeyChanges: []ForeignKeyChange{},
	}

	for i := range expected.Columns {
		want := &expected.Columns[i]
		got := actual.Column(want.Name)
		if got == nil {
			diff.ColumnChanges = append(diff.ColumnChanges, ColumnChange{
				ColumnName: want.Name,
				Action:     ActionMissing,
				Expected:   want,
			})
			continue
		}
		if detail := columnDrift(want, got, isUnique(expected, want.Name), isUnique(actual, got.Name)); detail != "" {
			diff.ColumnChanges = append(diff.ColumnChanges, ColumnChange{
				ColumnName: want.Name,
				Action:     ActionModify,
				Detail:     detail,
				Expected:   want,
				Actual:     got,
			})
		}
	}

	for i := range actual.Columns {
		got := &actual.Columns[i]
		if expected.Column(got.Name) == nil {
			diff.ColumnChanges = append(diff.ColumnChanges, ColumnChange{
				ColumnName: got.Name,
				Action:     ActionUnexpected,
				Actual:     got,
			})
		}
	}

	for i := range expected.ForeignKeys {
		want := &expected.ForeignKeys[i]
		got := actual.ForeignKeyFor(want.Column)
		switch {
		case got == nil:
			diff.ForeignKeyChanges = append(diff.ForeignKeyChanges, ForeignKeyChange{
				Column:   want.Column,
				Action:   ActionMissing,
				Expected: want,
			})
		case !foreignKeysEqual(want, got):
			diff.ForeignKeyChanges = append(diff.ForeignKeyChanges, ForeignKeyChange{
				Column:   want.Column,
				Action:   ActionModify,
				Expected: want,
				Actual:   got,
			})
		}
	}

	for i := range actual.ForeignKeys {
		got := &actual.ForeignKeys[i]
		if expected.ForeignKeyFor(got.Column) == nil {
			diff.ForeignKeyChanges = append(diff.ForeignKeyChanges, ForeignKeyChange{
				Column: got.Column,
				Action: ActionUnexpected,
				Actual: got,
			})
		}
	}

	// Return nil if no changes
	if len(diff.ColumnChanges) == 0 && len(diff.ForeignKeyChanges) == 0 {
		return nil
	}

	sort.Slice(diff.ColumnChanges, func(i, j int) bool {
		return diff.ColumnChanges[i].ColumnName < diff.ColumnChanges[j].ColumnName
	})
	sort.Slice(diff.ForeignKeyChanges, func(i, j int) bool {
		return diff.ForeignKeyChanges[i].Column < diff.ForeignKeyChanges[j].Column
	})
	return diff
}

// columnDrift describes how got departs from want. Native type names and
// default texts are dialect-specific; only the storage classes they map to
// are compared, and only when both sides know theirs.
func columnDrift(want, got *schema.PhysicalColumn, wantUnique, gotUnique bool) string {
	if want.PrimaryKey || got.PrimaryKey {
		if want.PrimaryKey != got.PrimaryKey {
			return "primary key mismatch"
		}
		return ""
	}
	if want.ColumnType.Known() && got.ColumnType.Known() && want.ColumnType != got.ColumnType {
		return fmt.Sprintf("expected %s storage, found %s (%s)", want.ColumnType, got.ColumnType, got.Type)
	}
	if want.Nullable != got.Nullable {
		if want.Nullable {
			return "expected nullable, found NOT NULL"
		}
		return "expected NOT NULL, found nullable"
	}
	if wantUnique != gotUnique {
		if wantUnique {
			return "expected UNIQUE, found no unique index"
		}
		return "unexpected unique index"
	}
	return ""
}

// isUnique reports whether a unique, non-primary index covers exactly column.
func isUnique(table *schema.PhysicalTable, column string) bool {
	for _, idx := range table.Indexes {
		if idx.Unique && !idx.Primary && len(idx.Columns) == 1 && idx.Columns[0] == column {
			return true
		}
	}
	return false
}

func foreignKeysEqual(want, got *schema.ForeignKey) bool {
	if want.ReferencedTable != got.ReferencedTable {
		return false
	}
	return got.ReferencedColumn == "" || want.ReferencedColumn == got.ReferencedColumn
}
