package generator

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/koba/flowsql/internal/dberr"
	"github.com/koba/flowsql/internal/schema"
)

// Where renders the in-database predicates of filters. has and has not are
// skipped; they are applied after relations are expanded (see PostFetch).
// Returns "" when no predicate applies.
func (g *DMLGenerator) Where(filters []schema.Filter) (string, error) {
	var buf strings.Builder
	n := 0
	for _, f := range filters {
		if f.Op.Deferred() {
			continue
		}
		predicate, err := g.predicate(f)
		if err != nil {
			return "", err
		}
		if n == 0 {
			buf.WriteString("\n  WHERE ")
		} else {
			buf.WriteString("\n    AND ")
		}
		buf.WriteString(predicate)
		n++
	}
	return buf.String(), nil
}

// PostFetch returns the filters Where skipped.
func PostFetch(filters []schema.Filter) []schema.Filter {
	var deferred []schema.Filter
	for _, f := range filters {
		if f.Op.Deferred() {
			deferred = append(deferred, f)
		}
	}
	return deferred
}

func (g *DMLGenerator) predicate(f schema.Filter) (string, error) {
	column := g.QuoteIdentifier(f.Column)

	switch f.Op {
	case schema.OpEqual, schema.OpNotEqual, schema.OpLess, schema.OpLessEqual, schema.OpGreater, schema.OpGreaterEqual:
		value, err := g.FormatValue(f.Value)
		if err != nil {
			return "", err
		}
		op := f.Op.String()
		if f.Op == schema.OpNotEqual {
			op = "<>"
		}
		return fmt.Sprintf("%s %s %s", column, op, value), nil
	case schema.OpIsNull:
		return column + " IS NULL", nil
	case schema.OpIsNotNull:
		return column + " IS NOT NULL", nil
	case schema.OpIsLike, schema.OpIsNotLike:
		value, err := g.FormatValue(f.Value)
		if err != nil {
			return "", err
		}
		if f.Op == schema.OpIsNotLike {
			return fmt.Sprintf("%s NOT LIKE %s", column, value), nil
		}
		return fmt.Sprintf("%s LIKE %s", column, value), nil
	case schema.OpIsIn, schema.OpIsNotIn:
		elems, ok := sequence(f.Value)
		if !ok {
			return "", dberr.Validationf("where", f.Column, "%q needs a sequence, got %T", f.Op, f.Value)
		}
		values, err := g.formatValues(elems)
		if err != nil {
			return "", err
		}
		if len(values) == 0 {
			// an empty set matches nothing, and excludes nothing
			if f.Op == schema.OpIsIn {
				return "1 = 0", nil
			}
			return "1 = 1", nil
		}
		list := strings.Join(values, ", ")
		if f.Op == schema.OpIsNotIn {
			return fmt.Sprintf("%s NOT IN (%s)", column, list), nil
		}
		return fmt.Sprintf("%s IN (%s)", column, list), nil
	}
	return "", dberr.Unsupportedf("where", "operator %v cannot be translated", f.Op)
}

// sequence flattens any slice or array, other than []byte, into its elements.
func sequence(v interface{}) ([]interface{}, bool) {
	if _, ok := v.([]byte); ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
