package engine

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/koba/flowsql/internal/dberr"
	"github.com/koba/flowsql/internal/filter"
	"github.com/koba/flowsql/internal/schema"
)

// prepareInstance validates values against ts and returns the normalized copy
// that statements are generated from. Inserts get their defaults applied and
// their required columns checked; updates are partial.
func (e *Engine) prepareInstance(op, table string, ts *schema.TableSchema, values schema.Row, insert bool) (schema.Row, error) {
	if values == nil {
		return nil, dberr.Preconditionf(op, "values", "must be an object")
	}
	out := make(schema.Row, len(values))
	for key, v := range values {
		if _, ok := ts.Columns[key]; !ok {
			return nil, dberr.Preconditionf(op, fmt.Sprintf("values[%s]", key), "does not match any column of %q", table)
		}
		out[key] = v
	}

	for _, columnID := range ts.ColumnIDs() {
		col := ts.Columns[columnID]
		v, present := out[columnID]
		if v != nil || (!insert && !present) {
			continue
		}
		def, ok, err := e.defaultFor(table, columnID, col, out)
		if err != nil {
			return nil, err
		}
		if ok {
			out[columnID] = def
		}
	}

	for _, columnID := range ts.ColumnIDs() {
		col := ts.Columns[columnID]
		param := fmt.Sprintf("values[%s]", columnID)
		v, present := out[columnID]
		if v == nil {
			if col.Type.IsRelation() {
				if present {
					out[columnID] = []int64{}
				}
				continue
			}
			if col.Nullable || (insert && col.DefaultBySQL != "") || (!insert && !present) {
				continue
			}
			if insert && !present {
				return nil, dberr.Validationf(op, param, "is required")
			}
			return nil, dberr.Validationf(op, param, "must not be null")
		}
		normalized, err := normalizeValue(op, param, col, v)
		if err != nil {
			return nil, err
		}
		out[columnID] = normalized
	}
	return out, nil
}

// normalizeValue checks v against the column type and converts it to the form
// the generators render.
func normalizeValue(op, param string, col *schema.ColumnSchema, v interface{}) (interface{}, error) {
	switch col.Type {
	case schema.TypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
		if n, ok := filter.AsInt64(v); ok {
			return n != 0, nil
		}
		return nil, dberr.Validationf(op, param, "must be a boolean")
	case schema.TypeInteger, schema.TypeObjectReference:
		if n, ok := filter.AsInt64(v); ok {
			return n, nil
		}
		return nil, dberr.Validationf(op, param, "must be an integer")
	case schema.TypeReal:
		if f, ok := asFloat64(v); ok {
			return f, nil
		}
		return nil, dberr.Validationf(op, param, "must be a number")
	case schema.TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, dberr.Validationf(op, param, "must be a string")
		}
		if strings.ContainsRune(s, 0) {
			return nil, dberr.Validationf(op, param, "must not contain NUL characters")
		}
		if col.MaxLength > 0 && utf8.RuneCountInString(s) > col.MaxLength {
			return nil, dberr.Validationf(op, param, "must be at most %d characters", col.MaxLength)
		}
		return s, nil
	case schema.TypeBlob:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		}
		return nil, dberr.Validationf(op, param, "must be bytes")
	case schema.TypeDate, schema.TypeDatetime:
		return normalizeTime(op, param, col.Type, v)
	case schema.TypeObject:
		kind := reflect.ValueOf(v).Kind()
		if kind != reflect.Map && kind != reflect.Struct && kind != reflect.Pointer {
			return nil, dberr.Validationf(op, param, "must be an object")
		}
		return encodeJSON(op, param, v)
	case schema.TypeArray:
		if !isSequence(v) {
			return nil, dberr.Validationf(op, param, "must be an array")
		}
		return encodeJSON(op, param, v)
	case schema.TypeArrayReference:
		if !isSequence(v) {
			return nil, dberr.Validationf(op, param, "must be a sequence of ids")
		}
		ids, ok := filter.AsInt64s(v)
		if !ok {
			return nil, dberr.Validationf(op, param, "must be a sequence of ids")
		}
		return ids, nil
	}
	return nil, dberr.Unsupportedf(op, "no value rule for column type %v", col.Type)
}

// normalizeTime accepts a time.Time or a parseable string and renders it in
// the stored layout. Datetimes with an offset are converted to UTC.
func normalizeTime(op, param string, t schema.ColumnType, v interface{}) (interface{}, error) {
	if s, ok := schema.FormatTime(t, v); ok {
		return s, nil
	}
	switch v.(type) {
	case time.Time, string:
		if t == schema.TypeDate {
			return nil, dberr.Validationf(op, param, "must match %q", schema.DateLayout)
		}
		return nil, dberr.Validationf(op, param, "must match %q or RFC 3339", schema.DatetimeLayout)
	}
	return nil, dberr.Validationf(op, param, "must be a time or a string")
}

func encodeJSON(op, param string, v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", dberr.Validationf(op, param, "cannot be encoded: %v", err)
	}
	return string(data), nil
}

func isSequence(v interface{}) bool {
	if _, ok := v.([]byte); ok {
		return false
	}
	kind := reflect.ValueOf(v).Kind()
	return kind == reflect.Slice || kind == reflect.Array
}

func asFloat64(v interface{}) (float64, bool) {
	if n, ok := v.(json.Number); ok {
		f, err := n.Float64()
		return f, err == nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	}
	return 0, false
}

// coerceRow converts the driver values of a fetched row to the Go types of
// their columns.
func coerceRow(ts *schema.TableSchema, row schema.Row) {
	if id, ok := asInt64(row[schema.IDColumn]); ok {
		row[schema.IDColumn] = id
	}
	for _, columnID := range ts.PlainColumns() {
		v, ok := row[columnID]
		if !ok || v == nil {
			continue
		}
		row[columnID] = coerceValue(ts.Columns[columnID].Type, v)
	}
}

func coerceValue(t schema.ColumnType, v interface{}) interface{} {
	switch t {
	case schema.TypeInteger, schema.TypeObjectReference:
		if n, ok := asInt64(v); ok {
			return n
		}
	case schema.TypeReal:
		if f, ok := asFloat64(v); ok {
			return f
		}
		if f, err := strconv.ParseFloat(asString(v), 64); err == nil {
			return f
		}
	case schema.TypeBoolean:
		if b, ok := v.(bool); ok {
			return b
		}
		if n, ok := asInt64(v); ok {
			return n != 0
		}
	case schema.TypeString:
		return asString(v)
	case schema.TypeDate, schema.TypeDatetime:
		if tm, ok := v.(time.Time); ok {
			s, _ := schema.FormatTime(t, tm)
			return s
		}
		return asString(v)
	case schema.TypeBlob:
		switch b := v.(type) {
		case []byte:
			return b
		case string:
			return []byte(b)
		}
	case schema.TypeObject, schema.TypeArray:
		var decoded interface{}
		if err := json.Unmarshal([]byte(asString(v)), &decoded); err == nil {
			return decoded
		}
		return asString(v)
	}
	return v
}

// asInt64 reads an integer from the value shapes drivers return.
func asInt64(v interface{}) (int64, bool) {
	if n, ok := filter.AsInt64(v); ok {
		return n, true
	}
	switch s := v.(type) {
	case []byte:
		n, err := strconv.ParseInt(string(s), 10, 64)
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(s, 10, 64)
		return n, err == nil
	}
	return 0, false
}

func asString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	}
	return fmt.Sprint(v)
}

// rowIDs returns the surrogate ids of rows, in order.
func rowIDs(rows []schema.Row) []int64 {
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		if id, ok := asInt64(row[schema.IDColumn]); ok {
			ids = append(ids, id)
		}
	}
	return ids
}
