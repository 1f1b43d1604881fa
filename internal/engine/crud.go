package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/koba/flowsql/internal/database"
	"github.com/koba/flowsql/internal/dberr"
	"github.com/koba/flowsql/internal/filter"
	"github.com/koba/flowsql/internal/generator"
	"github.com/koba/flowsql/internal/schema"
)

// InsertOne inserts a row and returns its id.
func (e *Engine) InsertOne(ctx context.Context, table string, row schema.Row) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trace("insertOne")

	ids, err := e.insertMany(ctx, "insertOne", table, []schema.Row{row})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// InsertMany inserts rows in one transaction and returns their ids in order.
func (e *Engine) InsertMany(ctx context.Context, table string, rows []schema.Row) ([]int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trace("insertMany")

	return e.insertMany(ctx, "insertMany", table, rows)
}

func (e *Engine) insertMany(ctx context.Context, op, table string, rows []schema.Row) ([]int64, error) {
	if err := e.writable(op); err != nil {
		return nil, err
	}
	ts, err := e.table(op, table)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, dberr.Preconditionf(op, "rows", "must contain at least 1 item")
	}

	prepared := make([]schema.Row, len(rows))
	for i, row := range rows {
		prepared[i], err = e.prepareInstance(op, table, ts, row, true)
		if err != nil {
			return nil, err
		}
	}

	ids := make([]int64, 0, len(prepared))
	err = e.inTx(ctx, func(x *database.Executor) error {
		for _, row := range prepared {
			id, err := e.insertRow(ctx, x, table, ts, row)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("rows inserted", zap.String("table", table), zap.Int("count", len(ids)))
	return ids, nil
}

func (e *Engine) insertRow(ctx context.Context, x *database.Executor, table string, ts *schema.TableSchema, row schema.Row) (int64, error) {
	var columns []string
	for _, columnID := range ts.PlainColumns() {
		// absent values are left to the column default
		if row[columnID] != nil {
			columns = append(columns, columnID)
		}
	}

	stmt, err := e.dmlGen.Insert(table, row, columns)
	if err != nil {
		return 0, err
	}
	id, err := x.Insert(ctx, stmt)
	if err != nil {
		return 0, err
	}

	for _, columnID := range ts.RelationColumns() {
		dests, ok := row[columnID].([]int64)
		if !ok {
			continue
		}
		if err := e.writeLinks(ctx, x, table, columnID, []int64{id}, dests, false); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// SelectOne returns the row with the given id, or nil when there is none.
func (e *Engine) SelectOne(ctx context.Context, table string, id int64) (schema.Row, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trace("selectOne")

	rows, err := e.selectMany(ctx, e.x, "selectOne", table, idFilter(id))
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// SelectMany returns the rows matching every filter, ordered by id, with
// their relation columns expanded.
func (e *Engine) SelectMany(ctx context.Context, table string, filters []schema.Filter) ([]schema.Row, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trace("selectMany")

	return e.selectMany(ctx, e.x, "selectMany", table, filters)
}

func (e *Engine) selectMany(ctx context.Context, x *database.Executor, op, table string, filters []schema.Filter) ([]schema.Row, error) {
	ts, err := e.table(op, table)
	if err != nil {
		return nil, err
	}
	if err := filter.Validate(op, ts, filters); err != nil {
		return nil, err
	}
	filters = filter.Normalize(ts, filters)

	where, err := e.dmlGen.Where(filters)
	if err != nil {
		return nil, err
	}
	rows, err := x.Fetch(ctx, e.dmlGen.Select(table, where))
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		coerceRow(ts, row)
	}

	if err := e.expandRelations(ctx, x, table, ts, rows); err != nil {
		return nil, err
	}
	return filter.MatchRelations(rows, generator.PostFetch(filters)), nil
}

// UpdateOne updates the row with the given id. It returns the id, or 0 when
// no row matched.
func (e *Engine) UpdateOne(ctx context.Context, table string, id int64, values schema.Row) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trace("updateOne")

	return first(e.updateMany(ctx, "updateOne", table, idFilter(id), values))
}

// UpdateMany sets values on every row matching filters and returns their ids.
// Relation columns present in values replace the existing links.
func (e *Engine) UpdateMany(ctx context.Context, table string, filters []schema.Filter, values schema.Row) ([]int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trace("updateMany")

	return e.updateMany(ctx, "updateMany", table, filters, values)
}

func (e *Engine) updateMany(ctx context.Context, op, table string, filters []schema.Filter, values schema.Row) ([]int64, error) {
	if err := e.writable(op); err != nil {
		return nil, err
	}
	ts, err := e.table(op, table)
	if err != nil {
		return nil, err
	}
	prepared, err := e.prepareInstance(op, table, ts, values, false)
	if err != nil {
		return nil, err
	}

	var ids []int64
	err = e.inTx(ctx, func(x *database.Executor) error {
		matched, err := e.selectMany(ctx, x, op, table, filters)
		if err != nil {
			return err
		}
		ids = rowIDs(matched)
		if len(ids) == 0 {
			return nil
		}

		var columns []string
		for _, columnID := range ts.ColumnIDs() {
			v, ok := prepared[columnID]
			if !ok {
				continue
			}
			if !ts.Columns[columnID].Type.IsRelation() {
				columns = append(columns, columnID)
				continue
			}
			if err := e.writeLinks(ctx, x, table, columnID, ids, v.([]int64), true); err != nil {
				return err
			}
		}
		if len(columns) == 0 {
			return nil
		}

		stmt, err := e.dmlGen.Update(table, prepared, columns, ids)
		if err != nil {
			return err
		}
		return x.Run(ctx, stmt)
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// DeleteOne deletes the row with the given id. It returns the id, or 0 when
// no row matched.
func (e *Engine) DeleteOne(ctx context.Context, table string, id int64) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trace("deleteOne")

	return first(e.deleteMany(ctx, "deleteOne", table, idFilter(id)))
}

// DeleteMany deletes every row matching filters together with their links,
// and returns their ids.
func (e *Engine) DeleteMany(ctx context.Context, table string, filters []schema.Filter) ([]int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trace("deleteMany")

	return e.deleteMany(ctx, "deleteMany", table, filters)
}

func (e *Engine) deleteMany(ctx context.Context, op, table string, filters []schema.Filter) ([]int64, error) {
	if err := e.writable(op); err != nil {
		return nil, err
	}

	var ids []int64
	err := e.inTx(ctx, func(x *database.Executor) error {
		matched, err := e.selectMany(ctx, x, op, table, filters)
		if err != nil {
			return err
		}
		ids = rowIDs(matched)
		if len(ids) == 0 {
			return nil
		}
		if err := e.unlink(ctx, x, table, ids); err != nil {
			return err
		}
		return x.Run(ctx, e.dmlGen.Delete(table, ids))
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func idFilter(id int64) []schema.Filter {
	return []schema.Filter{{Column: schema.IDColumn, Op: schema.OpEqual, Value: id}}
}

func first(ids []int64, err error) (int64, error) {
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	return ids[0], nil
}
