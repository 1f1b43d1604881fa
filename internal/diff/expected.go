package diff

import (
	"github.com/koba/flowsql/internal/schema"
)

// Expected returns the physical tables a schema document implies: the
// metadata table, one table per declared table and one junction table per
// array-reference column.
func Expected(s *schema.Schema) map[string]*schema.PhysicalTable {
	tables := map[string]*schema.PhysicalTable{
		schema.MetadataTable: {
			Name: schema.MetadataTable,
			Columns: []schema.PhysicalColumn{
				idColumn(),
				{Name: "name", ColumnType: schema.TypeString, Position: 1},
				{Name: "value", ColumnType: schema.TypeString, Nullable: true, Position: 2},
			},
			Indexes: []schema.Index{{Name: "name", Columns: []string{"name"}, Unique: true}},
		},
	}

	for _, table := range s.TableNames() {
		ts := s.Tables[table]
		pt := &schema.PhysicalTable{
			Name:    table,
			Columns: []schema.PhysicalColumn{idColumn()},
		}
		for _, columnID := range ts.PlainColumns() {
			col := ts.Columns[columnID]
			pt.Columns = append(pt.Columns, schema.PhysicalColumn{
				Name:       columnID,
				ColumnType: col.Type.StorageClass(),
				Nullable:   col.Nullable,
				Position:   len(pt.Columns),
			})
			if col.Unique {
				pt.Indexes = append(pt.Indexes, schema.Index{Name: columnID, Columns: []string{columnID}, Unique: true})
			}
			if col.Type == schema.TypeObjectReference {
				pt.ForeignKeys = append(pt.ForeignKeys, reference(columnID, col.ReferredTable))
			}
		}
		tables[table] = pt

		for _, columnID := range ts.RelationColumns() {
			junction := schema.JunctionTable(table, columnID)
			tables[junction] = &schema.PhysicalTable{
				Name: junction,
				Columns: []schema.PhysicalColumn{
					idColumn(),
					{Name: schema.JunctionSource, ColumnType: schema.TypeInteger, Nullable: true, Position: 1},
					{Name: schema.JunctionDestination, ColumnType: schema.TypeInteger, Nullable: true, Position: 2},
					{Name: schema.JunctionSorter, ColumnType: schema.TypeInteger, Nullable: true, Position: 3},
				},
				ForeignKeys: []schema.ForeignKey{
					reference(schema.JunctionSource, table),
					reference(schema.JunctionDestination, ts.Columns[columnID].ReferredTable),
				},
			}
		}
	}
	return tables
}

func idColumn() schema.PhysicalColumn {
	return schema.PhysicalColumn{Name: schema.IDColumn, ColumnType: schema.TypeInteger, PrimaryKey: true, AutoIncrement: true}
}

func reference(column, table string) schema.ForeignKey {
	return schema.ForeignKey{Column: column, ReferencedTable: table, ReferencedColumn: schema.IDColumn}
}
