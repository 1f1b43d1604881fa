package schema

import "fmt"

// Filter is a (column, operator, complement) triple selecting rows.
type Filter struct {
	Column string   `json:"column"`
	Op     Operator `json:"op"`
	Value  any      `json:"value,omitempty"`
}

// ParseFilter builds a Filter from an operator name.
func ParseFilter(column, op string, value any) (Filter, error) {
	parsed, err := ParseOperator(op)
	if err != nil {
		return Filter{}, err
	}
	return Filter{Column: column, Op: parsed, Value: value}, nil
}

func (f Filter) String() string {
	if f.Op == OpIsNull || f.Op == OpIsNotNull {
		return fmt.Sprintf("%s %s", f.Column, f.Op)
	}
	return fmt.Sprintf("%s %s %v", f.Column, f.Op, f.Value)
}
