package generator

import (
	"encoding/hex"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/koba/flowsql/internal/database"
	"github.com/koba/flowsql/internal/dberr"
	"github.com/koba/flowsql/internal/schema"
)

// dialect holds the quoting rules shared by the generators.
type dialect struct {
	dbType string
}

// Type returns the database type statements are generated for.
func (d dialect) Type() string {
	return d.dbType
}

// QuoteIdentifier quotes a table or column name.
func (d dialect) QuoteIdentifier(name string) string {
	if d.dbType == database.TypePostgres {
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
	// SQLite and MySQL
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (d dialect) quoteIdentifiers(names []string) []string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = d.QuoteIdentifier(name)
	}
	return quoted
}

func (d dialect) quoteString(s string) string {
	escaped := strings.ReplaceAll(s, "'", "''")
	if d.dbType == database.TypeMySQL {
		escaped = strings.ReplaceAll(escaped, `\`, `\\`)
	}
	return "'" + escaped + "'"
}

// FormatValue renders a Go value as an SQL literal.
func (d dialect) FormatValue(val interface{}) (string, error) {
	if val == nil {
		return "NULL", nil
	}

	switch v := val.(type) {
	case string:
		return d.quoteString(v), nil
	case bool:
		if v {
			return "1", nil
		}
		return "0", nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return d.formatFloat(float64(v))
	case float64:
		return d.formatFloat(v)
	case json.Number:
		if _, err := v.Float64(); err != nil {
			return "", dberr.Unsupportedf("formatValue", "malformed number %q", v.String())
		}
		return v.String(), nil
	case []byte:
		if d.dbType == database.TypePostgres {
			return `'\x` + hex.EncodeToString(v) + "'", nil
		}
		return "X'" + strings.ToUpper(hex.EncodeToString(v)) + "'", nil
	case time.Time:
		return d.quoteString(v.UTC().Format(schema.DatetimeLayout)), nil
	default:
		// objects and arrays are stored as JSON text
		data, err := json.Marshal(v)
		if err != nil {
			return "", dberr.Unsupportedf("formatValue", "cannot encode %T: %v", val, err)
		}
		return d.quoteString(string(data)), nil
	}
}

func (d dialect) formatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", dberr.Unsupportedf("formatValue", "cannot store %v", f)
	}
	return strconv.FormatFloat(f, 'g', -1, 64), nil
}

func (d dialect) formatValues(vals []interface{}) ([]string, error) {
	out := make([]string, len(vals))
	for i, v := range vals {
		s, err := d.FormatValue(v)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func formatIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}
