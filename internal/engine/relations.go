package engine

import (
	"context"

	"github.com/koba/flowsql/internal/database"
	"github.com/koba/flowsql/internal/schema"
)

// expandRelations attaches the ordered destination ids of every
// array-reference column to each row. Rows without links get an empty slice.
func (e *Engine) expandRelations(ctx context.Context, x *database.Executor, table string, ts *schema.TableSchema, rows []schema.Row) error {
	if len(rows) == 0 {
		return nil
	}
	ids := rowIDs(rows)

	for _, columnID := range ts.RelationColumns() {
		links, err := x.Fetch(ctx, e.dmlGen.SelectLinks(schema.JunctionTable(table, columnID), ids))
		if err != nil {
			return err
		}

		// links arrive sorted, so appending keeps each group in order
		groups := make(map[int64][]int64, len(rows))
		for _, link := range links {
			source, ok := asInt64(link[schema.JunctionSource])
			if !ok {
				continue
			}
			destination, ok := asInt64(link[schema.JunctionDestination])
			if !ok {
				continue
			}
			groups[source] = append(groups[source], destination)
		}

		for _, row := range rows {
			id, _ := asInt64(row[schema.IDColumn])
			if dests, ok := groups[id]; ok {
				row[columnID] = dests
			} else {
				row[columnID] = []int64{}
			}
		}
	}
	return nil
}

// writeLinks replaces the links of the given sources for one column.
func (e *Engine) writeLinks(ctx context.Context, x *database.Executor, table, columnID string, sources []int64, destinations []int64, replace bool) error {
	junction := schema.JunctionTable(table, columnID)
	if replace {
		if err := x.Run(ctx, e.dmlGen.DeleteLinks(junction, schema.JunctionSource, sources)); err != nil {
			return err
		}
	}
	for _, source := range sources {
		stmt := e.dmlGen.InsertLinks(junction, source, destinations)
		if stmt == "" {
			continue
		}
		if err := x.Run(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// unlink removes every junction row pointing at or from the given rows of
// table: the rows owned through its own array-reference columns, and the rows
// of other tables' columns referring to it.
func (e *Engine) unlink(ctx context.Context, x *database.Executor, table string, ids []int64) error {
	for _, owner := range e.schema.TableNames() {
		ts := e.schema.Tables[owner]
		for _, columnID := range ts.RelationColumns() {
			junction := schema.JunctionTable(owner, columnID)
			if owner == table {
				if err := x.Run(ctx, e.dmlGen.DeleteLinks(junction, schema.JunctionSource, ids)); err != nil {
					return err
				}
			}
			if ts.Columns[columnID].ReferredTable == table {
				if err := x.Run(ctx, e.dmlGen.DeleteLinks(junction, schema.JunctionDestination, ids)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
