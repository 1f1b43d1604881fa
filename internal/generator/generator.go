package generator

import (
	"strings"

	"github.com/koba/flowsql/internal/schema"
)

// GenerateSchemaDDL generates the full creation script for a schema document:
// the metadata table, every table in dependency order, then the junction
// tables.
func GenerateSchemaDDL(s *schema.Schema, dbType string) (string, error) {
	ddlGen := NewDDLGenerator(dbType)
	sqlStatements := []string{ddlGen.CreateMetadataTable()}

	var junctions []string
	for _, table := range s.CreationOrder() {
		ts := s.Tables[table]
		stmt, err := ddlGen.CreateBaseTable(table, ts)
		if err != nil {
			return "", err
		}
		sqlStatements = append(sqlStatements, stmt)

		for _, columnID := range ts.RelationColumns() {
			junctions = append(junctions, ddlGen.CreateJunctionTable(table, columnID, ts.Columns[columnID].ReferredTable))
		}
	}
	sqlStatements = append(sqlStatements, junctions...)

	return strings.Join(sqlStatements, ";\n\n") + ";\n", nil
}
