package schema

import (
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Schema is the authoritative description of every table. It is persisted as
// a JSON document in the metadata table and mirrored in memory.
type Schema struct {
	Version int64                   `json:"version" yaml:"version,omitempty"`
	Tables  map[string]*TableSchema `json:"tables" yaml:"tables"`
}

// TableSchema maps column identifiers to their declarations. The surrogate
// primary key "id" is implicit and never listed.
type TableSchema struct {
	Columns map[string]*ColumnSchema `json:"columns" yaml:"columns"`
}

// ColumnSchema declares one column.
type ColumnSchema struct {
	Type          ColumnType `json:"type" yaml:"type"`
	Nullable      bool       `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	Unique        bool       `json:"unique,omitempty" yaml:"unique,omitempty"`
	MaxLength     int        `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
	ReferredTable string     `json:"referredTable,omitempty" yaml:"referredTable,omitempty"`
	DefaultBySQL  string     `json:"defaultBySql,omitempty" yaml:"defaultBySql,omitempty"`
	DefaultByExpr string     `json:"defaultByExpr,omitempty" yaml:"defaultByExpr,omitempty"`
	Label         bool       `json:"label,omitempty" yaml:"label,omitempty"`
}

// Row represents a single row of data
type Row map[string]interface{}

// New returns an empty schema.
func New() *Schema {
	return &Schema{Tables: make(map[string]*TableSchema)}
}

// ParseDocument decodes a persisted schema document.
func ParseDocument(data []byte) (*Schema, error) {
	s := New()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema: %w", err)
	}
	s.normalize()
	return s, nil
}

// MarshalDocument encodes the schema as its persisted JSON form.
func (s *Schema) MarshalDocument() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}

// ParseYAML decodes a declared schema written in YAML, as accepted by apply.
func ParseYAML(data []byte) (*Schema, error) {
	s := New()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse schema YAML: %w", err)
	}
	s.normalize()
	return s, nil
}

func (s *Schema) normalize() {
	if s.Tables == nil {
		s.Tables = make(map[string]*TableSchema)
	}
	for name, ts := range s.Tables {
		if ts == nil {
			ts = &TableSchema{}
			s.Tables[name] = ts
		}
		if ts.Columns == nil {
			ts.Columns = make(map[string]*ColumnSchema)
		}
	}
}

// Clone returns a deep copy.
func (s *Schema) Clone() *Schema {
	out := &Schema{Version: s.Version, Tables: make(map[string]*TableSchema, len(s.Tables))}
	for name, ts := range s.Tables {
		out.Tables[name] = ts.Clone()
	}
	return out
}

// Table returns the named table.
func (s *Schema) Table(name string) (*TableSchema, bool) {
	ts, ok := s.Tables[name]
	return ts, ok
}

// TableNames returns the table identifiers in sorted order.
func (s *Schema) TableNames() []string {
	return sortedKeys(s.Tables)
}

// ReferencingColumns returns "table.column" for every column of another
// table that refers to the given one.
func (s *Schema) ReferencingColumns(table string) []string {
	var refs []string
	for _, name := range s.TableNames() {
		if name == table {
			continue
		}
		ts := s.Tables[name]
		for _, columnID := range ts.ColumnIDs() {
			if col := ts.Columns[columnID]; col.Type.IsReference() && col.ReferredTable == table {
				refs = append(refs, name+"."+columnID)
			}
		}
	}
	return refs
}

// Clone returns a deep copy.
func (t *TableSchema) Clone() *TableSchema {
	out := &TableSchema{Columns: make(map[string]*ColumnSchema, len(t.Columns))}
	for id, col := range t.Columns {
		c := *col
		out.Columns[id] = &c
	}
	return out
}

// ColumnIDs returns the declared column identifiers in sorted order.
func (t *TableSchema) ColumnIDs() []string {
	return sortedKeys(t.Columns)
}

// PlainColumns returns the sorted identifiers of columns stored physically in
// the table, i.e. every column except array-references.
func (t *TableSchema) PlainColumns() []string {
	var ids []string
	for _, id := range t.ColumnIDs() {
		if !t.Columns[id].Type.IsRelation() {
			ids = append(ids, id)
		}
	}
	return ids
}

// RelationColumns returns the sorted identifiers of array-reference columns.
func (t *TableSchema) RelationColumns() []string {
	var ids []string
	for _, id := range t.ColumnIDs() {
		if t.Columns[id].Type.IsRelation() {
			ids = append(ids, id)
		}
	}
	return ids
}

// LabelColumns returns the identifiers of columns marked as label.
func (t *TableSchema) LabelColumns() []string {
	var ids []string
	for _, id := range t.ColumnIDs() {
		if t.Columns[id].Label {
			ids = append(ids, id)
		}
	}
	return ids
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CreationOrder returns the table names ordered so that every table comes
// after the tables its reference columns point at. Self-references are
// ignored; tables caught in a reference cycle are appended in sorted order.
func (s *Schema) CreationOrder() []string {
	names := s.TableNames()
	done := make(map[string]bool, len(names))
	order := make([]string, 0, len(names))

	for len(order) < len(names) {
		progressed := false
		for _, name := range names {
			if done[name] {
				continue
			}
			ready := true
			for _, col := range s.Tables[name].Columns {
				ref := col.ReferredTable
				if !col.Type.IsReference() || ref == name || done[ref] {
					continue
				}
				if _, ok := s.Tables[ref]; ok {
					ready = false
					break
				}
			}
			if ready {
				done[name] = true
				order = append(order, name)
				progressed = true
			}
		}
		if !progressed {
			for _, name := range names {
				if !done[name] {
					done[name] = true
					order = append(order, name)
				}
			}
		}
	}
	return order
}
