package generator

import (
	"fmt"
	"strings"

	"github.com/koba/flowsql/internal/database"
	"github.com/koba/flowsql/internal/schema"
)

// DMLGenerator generates DML statements
type DMLGenerator struct {
	dialect
}

// NewDMLGenerator creates a new DML generator
func NewDMLGenerator(dbType string) *DMLGenerator {
	return &DMLGenerator{dialect{dbType: dbType}}
}

// Insert renders an INSERT of the given columns of row. On Postgres the
// statement returns the generated id.
func (g *DMLGenerator) Insert(table string, row schema.Row, columns []string) (string, error) {
	var stmt string
	if len(columns) == 0 {
		if g.dbType == database.TypeMySQL {
			stmt = fmt.Sprintf("INSERT INTO %s () VALUES ()", g.QuoteIdentifier(table))
		} else {
			stmt = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", g.QuoteIdentifier(table))
		}
	} else {
		values := make([]interface{}, len(columns))
		for i, col := range columns {
			values[i] = row[col]
		}
		formatted, err := g.formatValues(values)
		if err != nil {
			return "", err
		}
		stmt = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			g.QuoteIdentifier(table),
			strings.Join(g.quoteIdentifiers(columns), ", "),
			strings.Join(formatted, ", "),
		)
	}

	if g.dbType == database.TypePostgres {
		stmt += " RETURNING " + g.QuoteIdentifier(schema.IDColumn)
	}
	return stmt, nil
}

// Update renders one UPDATE setting the given columns on every listed id.
func (g *DMLGenerator) Update(table string, values schema.Row, columns []string, ids []int64) (string, error) {
	setClauses := make([]string, 0, len(columns))
	for _, col := range columns {
		formatted, err := g.FormatValue(values[col])
		if err != nil {
			return "", err
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", g.QuoteIdentifier(col), formatted))
	}

	return fmt.Sprintf("UPDATE %s SET %s%s",
		g.QuoteIdentifier(table),
		strings.Join(setClauses, ", "),
		g.idClause(schema.IDColumn, ids),
	), nil
}

// Delete renders a DELETE of the listed ids.
func (g *DMLGenerator) Delete(table string, ids []int64) string {
	return fmt.Sprintf("DELETE FROM %s%s", g.QuoteIdentifier(table), g.idClause(schema.IDColumn, ids))
}

// Select renders the base SELECT for a table. where is the output of Where.
func (g *DMLGenerator) Select(table, where string) string {
	return fmt.Sprintf("SELECT * FROM %s%s\n  ORDER BY %s",
		g.QuoteIdentifier(table),
		where,
		g.QuoteIdentifier(schema.IDColumn),
	)
}

// SelectLinks fetches the junction rows of the given sources, highest sorter
// first.
func (g *DMLGenerator) SelectLinks(junction string, sources []int64) string {
	return fmt.Sprintf("SELECT %s, %s FROM %s%s\n  ORDER BY %s DESC, %s ASC",
		g.QuoteIdentifier(schema.JunctionSource),
		g.QuoteIdentifier(schema.JunctionDestination),
		g.QuoteIdentifier(junction),
		g.idClause(schema.JunctionSource, sources),
		g.QuoteIdentifier(schema.JunctionSorter),
		g.QuoteIdentifier(schema.IDColumn),
	)
}

// InsertLinks renders one multi-row INSERT linking source to destinations.
// The sorter counts down from len(destinations) so reading back by sorter
// descending reproduces the given order. Returns "" for no destinations.
func (g *DMLGenerator) InsertLinks(junction string, source int64, destinations []int64) string {
	if len(destinations) == 0 {
		return ""
	}
	rows := make([]string, len(destinations))
	n := len(destinations)
	for i, dest := range destinations {
		rows[i] = fmt.Sprintf("(%d, %d, %d)", source, dest, n-i)
	}
	return fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES %s",
		g.QuoteIdentifier(junction),
		g.QuoteIdentifier(schema.JunctionSource),
		g.QuoteIdentifier(schema.JunctionDestination),
		g.QuoteIdentifier(schema.JunctionSorter),
		strings.Join(rows, ", "),
	)
}

// DeleteLinks removes the junction rows whose column (id_source or
// id_destination) is one of ids.
func (g *DMLGenerator) DeleteLinks(junction, column string, ids []int64) string {
	return fmt.Sprintf("DELETE FROM %s%s", g.QuoteIdentifier(junction), g.idClause(column, ids))
}

// SelectMetadata fetches the rows stored under name in the metadata table.
func (g *DMLGenerator) SelectMetadata(name string) string {
	return fmt.Sprintf("SELECT %s FROM %s\n  WHERE %s = %s",
		g.QuoteIdentifier("value"),
		g.QuoteIdentifier(schema.MetadataTable),
		g.QuoteIdentifier("name"),
		g.quoteString(name),
	)
}

// InsertMetadata stores value under name.
func (g *DMLGenerator) InsertMetadata(name, value string) string {
	return fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (%s, %s)",
		g.QuoteIdentifier(schema.MetadataTable),
		g.QuoteIdentifier("name"),
		g.QuoteIdentifier("value"),
		g.quoteString(name),
		g.quoteString(value),
	)
}

// UpdateMetadata overwrites the value stored under name.
func (g *DMLGenerator) UpdateMetadata(name, value string) string {
	return fmt.Sprintf("UPDATE %s SET %s = %s\n  WHERE %s = %s",
		g.QuoteIdentifier(schema.MetadataTable),
		g.QuoteIdentifier("value"),
		g.quoteString(value),
		g.QuoteIdentifier("name"),
		g.quoteString(name),
	)
}

func (g *DMLGenerator) idClause(column string, ids []int64) string {
	return fmt.Sprintf("\n  WHERE %s IN (%s)", g.QuoteIdentifier(column), formatIDs(ids))
}
