package schema

import "fmt"

// Operator is the closed set of filter operators.
type Operator int

const (
	OpUnknown Operator = iota
	OpEqual
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
	OpIsNull
	OpIsNotNull
	OpIsIn
	OpIsNotIn
	OpIsLike
	OpIsNotLike
	OpHas
	OpHasNot

	numOperators
)

var operatorNames = [...]string{
	OpUnknown:      "",
	OpEqual:        "=",
	OpNotEqual:     "!=",
	OpLess:         "<",
	OpLessEqual:    "<=",
	OpGreater:      ">",
	OpGreaterEqual: ">=",
	OpIsNull:       "is null",
	OpIsNotNull:    "is not null",
	OpIsIn:         "is in",
	OpIsNotIn:      "is not in",
	OpIsLike:       "is like",
	OpIsNotLike:    "is not like",
	OpHas:          "has",
	OpHasNot:       "has not",
}

var _ [len(operatorNames) - int(numOperators)]struct{}
var _ [int(numOperators) - len(operatorNames)]struct{}

// KnownOperators lists every filter operator.
func KnownOperators() []Operator {
	ops := make([]Operator, 0, numOperators-1)
	for op := OpEqual; op < numOperators; op++ {
		ops = append(ops, op)
	}
	return ops
}

func (op Operator) String() string {
	if !op.Known() {
		return fmt.Sprintf("Operator(%d)", int(op))
	}
	return operatorNames[op]
}

func (op Operator) Known() bool {
	return op > OpUnknown && op < numOperators
}

// IsComparison reports =, !=, <, <=, > and >=.
func (op Operator) IsComparison() bool {
	return op >= OpEqual && op <= OpGreaterEqual
}

// Deferred reports operators that need materialized relation data and are
// therefore applied after the fetch instead of in the WHERE clause.
func (op Operator) Deferred() bool {
	return op == OpHas || op == OpHasNot
}

// ParseOperator maps an operator name to its Operator.
func ParseOperator(name string) (Operator, error) {
	for op := OpEqual; op < numOperators; op++ {
		if operatorNames[op] == name {
			return op, nil
		}
	}
	return OpUnknown, fmt.Errorf("unknown operator %q", name)
}

func (op Operator) MarshalText() ([]byte, error) {
	if !op.Known() {
		return nil, fmt.Errorf("cannot marshal %v", op)
	}
	return []byte(operatorNames[op]), nil
}

func (op *Operator) UnmarshalText(text []byte) error {
	parsed, err := ParseOperator(string(text))
	if err != nil {
		return err
	}
	*op = parsed
	return nil
}
