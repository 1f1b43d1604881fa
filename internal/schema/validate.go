package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/koba/flowsql/internal/dberr"
)

const opValidateSchema = "validateSchema"

// ValidateSchema checks the structure of candidate. References may resolve
// against the candidate itself or against known, which may be nil.
func ValidateSchema(candidate, known *Schema) error {
	if candidate == nil {
		return dberr.Preconditionf(opValidateSchema, "schema", "must not be nil")
	}
	for _, table := range candidate.TableNames() {
		ts := candidate.Tables[table]
		param := "tables." + table
		if p := TableNameProblem(table); p != "" {
			return dberr.Validationf(opValidateSchema, param, "table name %s", p)
		}
		if ts == nil {
			return dberr.Validationf(opValidateSchema, param, "must declare columns")
		}
		if err := validateTable(param, ts, func(name string) bool {
			if _, ok := candidate.Tables[name]; ok {
				return true
			}
			if known != nil {
				_, ok := known.Tables[name]
				return ok
			}
			return false
		}); err != nil {
			return err
		}
	}
	return nil
}

// ValidateTable checks a single table declaration against known.
func ValidateTable(table string, ts *TableSchema, known *Schema) error {
	candidate := New()
	candidate.Tables[table] = ts
	return ValidateSchema(candidate, known)
}

// ValidateColumn checks one column declaration in the context of its table.
func ValidateColumn(table, column string, col *ColumnSchema, known *Schema) error {
	param := "tables." + table + ".columns." + column
	if p := ColumnNameProblem(column); p != "" {
		return dberr.Validationf(opValidateSchema, param, "column name %s", p)
	}
	return validateColumn(param, col, func(name string) bool {
		if name == table {
			return true
		}
		if known == nil {
			return false
		}
		_, ok := known.Tables[name]
		return ok
	})
}

func validateTable(param string, ts *TableSchema, tableExists func(string) bool) error {
	labels := 0
	for _, id := range ts.ColumnIDs() {
		colParam := param + ".columns." + id
		if p := ColumnNameProblem(id); p != "" {
			return dberr.Validationf(opValidateSchema, colParam, "column name %s", p)
		}
		col := ts.Columns[id]
		if err := validateColumn(colParam, col, tableExists); err != nil {
			return err
		}
		if col.Label {
			labels++
		}
	}
	if labels > 1 {
		return dberr.Validationf(opValidateSchema, param, "at most one column may be a label, found %d", labels)
	}
	return nil
}

func validateColumn(param string, col *ColumnSchema, tableExists func(string) bool) error {
	if col == nil {
		return dberr.Validationf(opValidateSchema, param, "must not be null")
	}
	if !col.Type.Known() {
		return dberr.Validationf(opValidateSchema, param+".type", "unknown column type")
	}
	if col.Type.IsReference() {
		if col.ReferredTable == "" {
			return dberr.Validationf(opValidateSchema, param+".referredTable", "is required for %s", col.Type)
		}
		if !tableExists(col.ReferredTable) {
			return dberr.Validationf(opValidateSchema, param+".referredTable", "table %q does not exist", col.ReferredTable)
		}
	} else if col.ReferredTable != "" {
		return dberr.Validationf(opValidateSchema, param+".referredTable", "is only allowed on reference columns")
	}
	if col.MaxLength < 0 {
		return dberr.Validationf(opValidateSchema, param+".maxLength", "must be positive")
	}
	if col.MaxLength > 0 && col.Type != TypeString {
		return dberr.Validationf(opValidateSchema, param+".maxLength", "is only allowed on string columns")
	}
	if col.Type.IsRelation() {
		if col.DefaultBySQL != "" {
			return dberr.Validationf(opValidateSchema, param+".defaultBySql", "is not allowed on %s", col.Type)
		}
		if col.Unique {
			return dberr.Validationf(opValidateSchema, param+".unique", "is not allowed on %s", col.Type)
		}
	}
	if col.Label {
		if !col.Unique {
			return dberr.Validationf(opValidateSchema, param+".label", "label column must be unique")
		}
		if col.Nullable {
			return dberr.Validationf(opValidateSchema, param+".label", "label column must not be nullable")
		}
		if col.Type.IsRelation() {
			return dberr.Validationf(opValidateSchema, param+".label", "is not allowed on %s", col.Type)
		}
	}
	return nil
}

// ValidateDocument decodes a JSON schema document strictly and validates it.
func ValidateDocument(raw []byte) (*Schema, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	s := New()
	if err := dec.Decode(s); err != nil {
		return nil, dberr.Validationf(opValidateSchema, "document", "%v", err)
	}
	s.normalize()
	if err := ValidateSchema(s, nil); err != nil {
		return nil, err
	}
	return s, nil
}

// Describe renders a short summary of the column, used by the CLI.
func (c *ColumnSchema) Describe() string {
	desc := c.Type.String()
	if c.ReferredTable != "" {
		desc += fmt.Sprintf(" -> %s", c.ReferredTable)
	}
	if c.MaxLength > 0 {
		desc += fmt.Sprintf("(%d)", c.MaxLength)
	}
	if c.Unique {
		desc += " unique"
	}
	if !c.Nullable {
		desc += " not null"
	}
	if c.Label {
		desc += " label"
	}
	return desc
}
