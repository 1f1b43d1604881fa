package filter

import (
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/koba/flowsql/internal/dberr"
	"github.com/koba/flowsql/internal/schema"
)

// whereAST is a conjunction of conditions such as
//
//	name = 'Ann' and age >= 18 and tags has [1, 2] and nick is not null
type whereAST struct {
	Conditions []*conditionAST `@@ ( "and" @@ )*`
}

type conditionAST struct {
	Column string  `@Ident`
	Is     *isAST  `( "is" @@`
	Has    *hasAST `| "has" @@`
	Cmp    *cmpAST `| @@ )`
}

type isAST struct {
	Not  bool     `( @"not" )?`
	Null bool     `( @"null"`
	Like *string  `| "like" @String`
	In   *listAST `| "in" @@ )`
}

type hasAST struct {
	Not   bool      `( @"not" )?`
	Value *valueAST `@@`
}

type cmpAST struct {
	Op    string    `@Op`
	Value *valueAST `@@`
}

type valueAST struct {
	Number *string  `  @Number`
	String *string  `| @String`
	Bool   *string  `| @( "true" | "false" )`
	List   *listAST `| @@`
}

type listAST struct {
	Items []*valueAST `"[" ( @@ ( "," @@ )* )? "]"`
}

var whereLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Keyword", Pattern: `(?i)\b(?:is|not|null|like|in|has|and|true|false)\b`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Number", Pattern: `[-+]?\d+(?:\.\d+)?`},
	{Name: "String", Pattern: `'(?:[^']|'')*'`},
	{Name: "Op", Pattern: `<=|>=|!=|=|<|>`},
	{Name: "Punct", Pattern: `[\[\],]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var whereParser = participle.MustBuild[whereAST](
	participle.Lexer(whereLexer),
	participle.CaseInsensitive("Keyword"),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

// Parse turns a textual predicate into filters. An empty text yields no
// filters.
func Parse(text string) ([]schema.Filter, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	ast, err := whereParser.ParseString("", text)
	if err != nil {
		return nil, dberr.Preconditionf("parseFilter", "where", "%v", err)
	}

	filters := make([]schema.Filter, 0, len(ast.Conditions))
	for _, cond := range ast.Conditions {
		f, err := cond.filter()
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return filters, nil
}

func (c *conditionAST) filter() (schema.Filter, error) {
	f := schema.Filter{Column: c.Column}
	switch {
	case c.Is != nil:
		switch {
		case c.Is.Null:
			f.Op = pick(c.Is.Not, schema.OpIsNotNull, schema.OpIsNull)
		case c.Is.Like != nil:
			f.Op = pick(c.Is.Not, schema.OpIsNotLike, schema.OpIsLike)
			f.Value = unquote(*c.Is.Like)
		default:
			f.Op = pick(c.Is.Not, schema.OpIsNotIn, schema.OpIsIn)
			f.Value = c.Is.In.value()
		}
	case c.Has != nil:
		f.Op = pick(c.Has.Not, schema.OpHasNot, schema.OpHas)
		f.Value = c.Has.Value.value()
	default:
		op, err := schema.ParseOperator(c.Cmp.Op)
		if err != nil {
			return f, dberr.Preconditionf("parseFilter", "where", "%v", err)
		}
		f.Op = op
		f.Value = c.Cmp.Value.value()
	}
	return f, nil
}

func pick(not bool, negated, plain schema.Operator) schema.Operator {
	if not {
		return negated
	}
	return plain
}

func (v *valueAST) value() interface{} {
	switch {
	case v.Number != nil:
		if !strings.Contains(*v.Number, ".") {
			if i, err := strconv.ParseInt(*v.Number, 10, 64); err == nil {
				return i
			}
		}
		f, _ := strconv.ParseFloat(*v.Number, 64)
		return f
	case v.String != nil:
		return unquote(*v.String)
	case v.Bool != nil:
		return strings.EqualFold(*v.Bool, "true")
	default:
		return v.List.value()
	}
}

func (l *listAST) value() []interface{} {
	items := make([]interface{}, len(l.Items))
	for i, item := range l.Items {
		items[i] = item.value()
	}
	return items
}

func unquote(s string) string {
	return strings.ReplaceAll(s[1:len(s)-1], "''", "'")
}
