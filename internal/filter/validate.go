// Package filter validates, parses and applies the typed filter language.
package filter

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/koba/flowsql/internal/dberr"
	"github.com/koba/flowsql/internal/schema"
)

// Validate checks every filter against the columns of ts. op names the calling
// operation in error messages.
func Validate(op string, ts *schema.TableSchema, filters []schema.Filter) error {
	for i, f := range filters {
		if err := validateFilter(op, ts, i, f); err != nil {
			return err
		}
	}
	return nil
}

// Normalize returns a copy of filters whose date and datetime complements are
// rewritten in their stored text form, so that they compare with the values
// inserts write. filters must have passed Validate.
func Normalize(ts *schema.TableSchema, filters []schema.Filter) []schema.Filter {
	out := make([]schema.Filter, len(filters))
	for i, f := range filters {
		out[i] = f
		col, ok := ts.Columns[f.Column]
		if !ok || (col.Type != schema.TypeDate && col.Type != schema.TypeDatetime) {
			continue
		}
		switch {
		case f.Op == schema.OpIsIn || f.Op == schema.OpIsNotIn:
			values := elements(f.Value)
			for j, v := range values {
				if s, ok := schema.FormatTime(col.Type, v); ok {
					values[j] = s
				}
			}
			out[i].Value = values
		case f.Op.IsComparison():
			if s, ok := schema.FormatTime(col.Type, f.Value); ok {
				out[i].Value = s
			}
		}
	}
	return out
}

func validateFilter(op string, ts *schema.TableSchema, i int, f schema.Filter) error {
	param := fmt.Sprintf("filters[%d]", i)
	col, ok := ts.Columns[f.Column]
	if !ok && f.Column != schema.IDColumn {
		return dberr.Preconditionf(op, param+"[0]", "must be a schema column, got %q", f.Column)
	}
	if !f.Op.Known() {
		return dberr.Preconditionf(op, param+"[1]", "must be a valid operator")
	}
	complement := param + "[2]"
	if containsNUL(f.Value) {
		return dberr.Validationf(op, complement, "must not contain NUL characters")
	}
	if f.Column == schema.IDColumn {
		return validateIDShape(op, param, f)
	}

	switch f.Op {
	case schema.OpIsNull, schema.OpIsNotNull:
		if !col.Nullable {
			return dberr.Validationf(op, param+"[1]", "cannot be %q because the column is not nullable", f.Op)
		}
		if f.Value != nil {
			return dberr.Validationf(op, complement, "must be empty on %q", f.Op)
		}
	case schema.OpHas, schema.OpHasNot:
		if col.Type != schema.TypeArrayReference {
			return dberr.Validationf(op, param, "%q needs an array-reference column, got %s", f.Op, col.Type)
		}
		if !isInteger(f.Value) && !isIntegerSequence(f.Value) {
			return dberr.Validationf(op, complement, "must be an integer or a sequence of integers on %q", f.Op)
		}
	case schema.OpIsLike, schema.OpIsNotLike:
		if col.Type != schema.TypeString {
			return dberr.Validationf(op, param, "%q needs a string column, got %s", f.Op, col.Type)
		}
		if _, ok := f.Value.(string); !ok {
			return dberr.Validationf(op, complement, "must be a string on %q", f.Op)
		}
	case schema.OpIsIn, schema.OpIsNotIn:
		if !isSequence(f.Value) {
			return dberr.Validationf(op, complement, "must be a sequence on %q", f.Op)
		}
		if col.Type == schema.TypeDate || col.Type == schema.TypeDatetime {
			for _, v := range elements(f.Value) {
				if _, ok := schema.FormatTime(col.Type, v); !ok {
					return dberr.Validationf(op, complement, "must hold %s values on %q", col.Type, f.Op)
				}
			}
		}
	default:
		return validateComparison(op, param, col, f)
	}
	return nil
}

// validateIDShape checks a filter on the surrogate id. The value types are
// left to the database; only the complement shape of the operator is checked.
func validateIDShape(op, param string, f schema.Filter) error {
	complement := param + "[2]"
	switch f.Op {
	case schema.OpIsNull, schema.OpIsNotNull:
		if f.Value != nil {
			return dberr.Validationf(op, complement, "must be empty on %q", f.Op)
		}
	case schema.OpHas, schema.OpHasNot:
		return dberr.Validationf(op, param, "%q needs an array-reference column, got %s", f.Op, schema.IDColumn)
	case schema.OpIsLike, schema.OpIsNotLike:
		if _, ok := f.Value.(string); !ok {
			return dberr.Validationf(op, complement, "must be a string on %q", f.Op)
		}
	case schema.OpIsIn, schema.OpIsNotIn:
		if !isSequence(f.Value) {
			return dberr.Validationf(op, complement, "must be a sequence on %q", f.Op)
		}
	default:
		if f.Value == nil || isSequence(f.Value) {
			return dberr.Validationf(op, complement, "must be a single value on %q", f.Op)
		}
	}
	return nil
}

func validateComparison(op, param string, col *schema.ColumnSchema, f schema.Filter) error {
	complement := param + "[2]"
	switch col.Type {
	case schema.TypeString:
		if _, ok := f.Value.(string); !ok {
			return dberr.Validationf(op, complement, "must be a string because it compares a string column")
		}
	case schema.TypeInteger, schema.TypeReal:
		if !isNumber(f.Value) {
			return dberr.Validationf(op, complement, "must be a number because it compares a %s column", col.Type)
		}
	case schema.TypeDate, schema.TypeDatetime:
		if _, ok := schema.FormatTime(col.Type, f.Value); !ok {
			return dberr.Validationf(op, complement, "must be a %s because it compares a %s column", col.Type, col.Type)
		}
	case schema.TypeBoolean:
		if _, ok := f.Value.(bool); !ok && !isNumber(f.Value) {
			return dberr.Validationf(op, complement, "must be a boolean or a number because it compares a boolean column")
		}
	default:
		return dberr.Validationf(op, param+"[1]", "a %s column does not accept %q", col.Type, f.Op)
	}
	return nil
}

func isNumber(v interface{}) bool {
	if n, ok := v.(json.Number); ok {
		_, err := n.Float64()
		return err == nil
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// isInteger accepts integer kinds, and floats holding a whole number as
// decoded JSON does.
func isInteger(v interface{}) bool {
	_, ok := AsInt64(v)
	return ok
}

// containsNUL reports whether v, or any element of it, is a string holding a
// NUL character. Such strings cannot be written as SQL literals.
func containsNUL(v interface{}) bool {
	if s, ok := v.(string); ok {
		return strings.ContainsRune(s, 0)
	}
	if !isSequence(v) {
		return false
	}
	for _, e := range elements(v) {
		if s, ok := e.(string); ok && strings.ContainsRune(s, 0) {
			return true
		}
	}
	return false
}

func elements(v interface{}) []interface{} {
	rv := reflect.ValueOf(v)
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func isSequence(v interface{}) bool {
	if _, ok := v.([]byte); ok {
		return false
	}
	kind := reflect.ValueOf(v).Kind()
	return kind == reflect.Slice || kind == reflect.Array
}

func isIntegerSequence(v interface{}) bool {
	if !isSequence(v) {
		return false
	}
	rv := reflect.ValueOf(v)
	for i := 0; i < rv.Len(); i++ {
		if !isInteger(rv.Index(i).Interface()) {
			return false
		}
	}
	return true
}

// AsInt64 converts any integer value, or a float holding a whole number, to
// int64.
func AsInt64(v interface{}) (int64, bool) {
	if n, ok := v.(json.Number); ok {
		i, err := n.Int64()
		return i, err == nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, false
		}
		return int64(f), true
	}
	return 0, false
}

// AsInt64s converts an integer or a sequence of integers to a slice.
func AsInt64s(v interface{}) ([]int64, bool) {
	if i, ok := AsInt64(v); ok {
		return []int64{i}, true
	}
	if !isSequence(v) {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	out := make([]int64, rv.Len())
	for i := range out {
		n, ok := AsInt64(rv.Index(i).Interface())
		if !ok {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}
