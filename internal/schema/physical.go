package schema

// PhysicalColumn represents a column as reported by the live database.
// ColumnType is the storage class the native Type maps to (see
// ColumnType.StorageClass), or TypeUnknown.
type PhysicalColumn struct {
	Name          string     `json:"name"`
	Type          string     `json:"type"`
	ColumnType    ColumnType `json:"column_type,omitempty" yaml:"column_type,omitempty"`
	Nullable      bool       `json:"nullable"`
	DefaultValue  *string    `json:"default_value,omitempty"`
	AutoIncrement bool       `json:"auto_increment"`
	PrimaryKey    bool       `json:"primary_key"`
	Position      int        `json:"position"`
}

// Index represents a database index
type Index struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique"`
	Primary bool     `json:"primary"`
	Type    string   `json:"type,omitempty"` // e.g., BTREE, HASH
}

// ForeignKey represents a foreign key constraint
type ForeignKey struct {
	Name             string `json:"name,omitempty"`
	Column           string `json:"column"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
	OnDelete         string `json:"on_delete,omitempty"` // CASCADE, SET NULL, etc.
	OnUpdate         string `json:"on_update,omitempty"`
}

// PhysicalTable represents a table as it exists in the database, independent
// of what the schema document says about it
type PhysicalTable struct {
	Name        string           `json:"name"`
	Columns     []PhysicalColumn `json:"columns"`
	Indexes     []Index          `json:"indexes"`
	ForeignKeys []ForeignKey     `json:"foreign_keys"`
}

// Column returns the named column or nil
func (t *PhysicalTable) Column(name string) *PhysicalColumn {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// ForeignKeyFor returns the foreign key declared on the given column or nil
func (t *PhysicalTable) ForeignKeyFor(column string) *ForeignKey {
	for i := range t.ForeignKeys {
		if t.ForeignKeys[i].Column == column {
			return &t.ForeignKeys[i]
		}
	}
	return nil
}
