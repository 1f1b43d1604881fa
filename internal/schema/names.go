package schema

import (
	"regexp"
	"strings"
)

const (
	// MetadataTable holds the persisted schema document.
	MetadataTable = "Database_metadata"
	// SchemaKey names the schema document row in MetadataTable.
	SchemaKey = "db.schema"
	// IDColumn is the implicit surrogate primary key of every table.
	IDColumn = "id"

	JunctionSource      = "id_source"
	JunctionDestination = "id_destination"
	JunctionSorter      = "sorter"

	junctionPrefix    = "Rel_x_"
	junctionSeparator = "_x_"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// JunctionTable derives the table realizing an array-reference column.
func JunctionTable(table, column string) string {
	return junctionPrefix + table + junctionSeparator + column
}

// IsJunctionTable reports whether name follows the junction naming scheme.
func IsJunctionTable(name string) bool {
	return strings.HasPrefix(name, junctionPrefix)
}

// IsReservedTable reports tables owned by the engine itself.
func IsReservedTable(name string) bool {
	return name == MetadataTable || IsJunctionTable(name) || strings.HasPrefix(name, "sqlite_")
}

// identifierProblem returns why name cannot be used as a table or column
// identifier, or "" when it can.
func identifierProblem(name string) string {
	switch {
	case name == "":
		return "must not be empty"
	case !identifierPattern.MatchString(name):
		return "must match " + identifierPattern.String()
	case strings.Contains(name, junctionSeparator):
		return "must not contain " + junctionSeparator
	}
	return ""
}

// TableNameProblem returns why name cannot be used as a table identifier.
func TableNameProblem(name string) string {
	if p := identifierProblem(name); p != "" {
		return p
	}
	if IsReservedTable(name) {
		return "is reserved"
	}
	return ""
}

// ColumnNameProblem returns why name cannot be used as a column identifier.
func ColumnNameProblem(name string) string {
	if p := identifierProblem(name); p != "" {
		return p
	}
	if name == IDColumn {
		return "is the implicit primary key"
	}
	return ""
}
