// Package diff reports the drift between the tables a schema document implies
// and the tables present in the live database.
package diff

import (
	"fmt"
	"io"
	"sort"

	"github.com/koba/flowsql/internal/schema"
)

// Result holds the complete comparison result
type Result struct {
	TableDiffs map[string]*TableDiff
}

// Clean reports whether no drift was found.
func (r *Result) Clean() bool {
	return len(r.TableDiffs) == 0
}

// TableNames returns the drifting tables in sorted order.
func (r *Result) TableNames() []string {
	names := make([]string, 0, len(r.TableDiffs))
	for name := range r.TableDiffs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compare compares the expected tables with the live ones and returns the
// differences
func Compare(expected, actual map[string]*schema.PhysicalTable) *Result {
	result := &Result{TableDiffs: make(map[string]*TableDiff)}

	for name, want := range expected {
		got, ok := actual[name]
		if !ok {
			result.TableDiffs[name] = &TableDiff{
				TableName: name,
				Action:    ActionMissing,
				Expected:  want,
			}
			continue
		}
		if tableDiff := compareTables(want, got); tableDiff != nil {
			result.TableDiffs[name] = tableDiff
		}
	}

	for name, got := range actual {
		if _, ok := expected[name]; !ok {
			result.TableDiffs[name] = &TableDiff{
				TableName: name,
				Action:    ActionUnexpected,
				Actual:    got,
			}
		}
	}

	return result
}

// Display prints the result in a human-readable format
func Display(w io.Writer, result *Result) {
	if result.Clean() {
		fmt.Fprintln(w, "No drift found.")
		return
	}

	fmt.Fprintln(w, "=== Schema Drift ===")
	fmt.Fprintln(w)
	for _, tableName := range result.TableNames() {
		displayTableDiff(w, result.TableDiffs[tableName])
	}
}

func displayTableDiff(w io.Writer, diff *TableDiff) {
	fmt.Fprintf(w, "Table: %s\n", diff.TableName)

	switch diff.Action {
	case ActionMissing:
		fmt.Fprintf(w, "  Action: MISSING (declared, not in database)\n")
		fmt.Fprintf(w, "  Columns: %d\n", len(diff.Expected.Columns))
	case ActionUnexpected:
		fmt.Fprintf(w, "  Action: UNEXPECTED (in database, not declared)\n")
	case ActionModify:
		fmt.Fprintf(w, "  Action: MODIFY\n")
		if len(diff.ColumnChanges) > 0 {
			fmt.Fprintf(w, "  Column changes:\n")
			for _, change := range diff.ColumnChanges {
				if change.Detail != "" {
					fmt.Fprintf(w, "    - %s: %s (%s)\n", change.ColumnName, change.Action, change.Detail)
				} else {
					fmt.Fprintf(w, "    - %s: %s\n", change.ColumnName, change.Action)
				}
			}
		}
		if len(diff.ForeignKeyChanges) > 0 {
			fmt.Fprintf(w, "  Foreign key changes:\n")
			for _, change := range diff.ForeignKeyChanges {
				fmt.Fprintf(w, "    - %s: %s\n", change.Column, change.Action)
			}
		}
	}
	fmt.Fprintln(w)
}
