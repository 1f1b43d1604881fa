package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ColumnType is the closed set of declarable column types.
type ColumnType int

const (
	TypeUnknown ColumnType = iota
	TypeBoolean
	TypeInteger
	TypeReal
	TypeString
	TypeBlob
	TypeDate
	TypeDatetime
	TypeObject
	TypeArray
	TypeObjectReference
	TypeArrayReference

	numColumnTypes
)

var columnTypeNames = [...]string{
	TypeUnknown:         "",
	TypeBoolean:         "boolean",
	TypeInteger:         "integer",
	TypeReal:            "real",
	TypeString:          "string",
	TypeBlob:            "blob",
	TypeDate:            "date",
	TypeDatetime:        "datetime",
	TypeObject:          "object",
	TypeArray:           "array",
	TypeObjectReference: "object-reference",
	TypeArrayReference:  "array-reference",
}

// Fails to compile when a type is added without a name.
var _ [len(columnTypeNames) - int(numColumnTypes)]struct{}
var _ [int(numColumnTypes) - len(columnTypeNames)]struct{}

// KnownTypes lists every declarable column type.
func KnownTypes() []ColumnType {
	types := make([]ColumnType, 0, numColumnTypes-1)
	for t := TypeBoolean; t < numColumnTypes; t++ {
		types = append(types, t)
	}
	return types
}

func (t ColumnType) String() string {
	if t <= TypeUnknown || t >= numColumnTypes {
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
	return columnTypeNames[t]
}

// Known reports whether t is one of the declarable types.
func (t ColumnType) Known() bool {
	return t > TypeUnknown && t < numColumnTypes
}

// IsReference reports whether the column points at another table.
func (t ColumnType) IsReference() bool {
	return t == TypeObjectReference || t == TypeArrayReference
}

// IsRelation reports whether the column is realized as a junction table
// rather than a physical column.
func (t ColumnType) IsRelation() bool {
	return t == TypeArrayReference
}

// StorageClass is the type a column of type t reads back as from the
// database catalog: booleans and object-references are stored as integers,
// objects and arrays as JSON text. Array-references have no storage.
func (t ColumnType) StorageClass() ColumnType {
	switch t {
	case TypeBoolean, TypeObjectReference:
		return TypeInteger
	case TypeObject, TypeArray:
		return TypeString
	case TypeArrayReference:
		return TypeUnknown
	}
	return t
}

// ParseColumnType maps a type name to its ColumnType.
func ParseColumnType(name string) (ColumnType, error) {
	for t := TypeBoolean; t < numColumnTypes; t++ {
		if columnTypeNames[t] == name {
			return t, nil
		}
	}
	return TypeUnknown, fmt.Errorf("unknown column type %q", name)
}

func (t ColumnType) MarshalText() ([]byte, error) {
	if !t.Known() {
		return nil, fmt.Errorf("cannot marshal %v", t)
	}
	return []byte(columnTypeNames[t]), nil
}

func (t *ColumnType) UnmarshalText(text []byte) error {
	parsed, err := ParseColumnType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t *ColumnType) UnmarshalYAML(node *yaml.Node) error {
	var name string
	if err := node.Decode(&name); err != nil {
		return err
	}
	return t.UnmarshalText([]byte(name))
}
