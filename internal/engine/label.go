package engine

import (
	"context"

	"github.com/koba/flowsql/internal/dberr"
	"github.com/koba/flowsql/internal/schema"
)

// labelFilter translates a label lookup into an equality filter on the single
// label column of table.
func (e *Engine) labelFilter(op, table, label string) ([]schema.Filter, error) {
	ts, err := e.table(op, table)
	if err != nil {
		return nil, err
	}
	labels := ts.LabelColumns()
	if len(labels) != 1 {
		return nil, dberr.Preconditionf(op, "label", "cannot be applied because table %q has no single label column", table)
	}
	return []schema.Filter{{Column: labels[0], Op: schema.OpEqual, Value: label}}, nil
}

// SelectByLabel returns the row whose label column equals label, or nil.
func (e *Engine) SelectByLabel(ctx context.Context, table, label string) (schema.Row, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trace("selectByLabel")

	filters, err := e.labelFilter("selectByLabel", table, label)
	if err != nil {
		return nil, err
	}
	rows, err := e.selectMany(ctx, e.x, "selectByLabel", table, filters)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// UpdateByLabel updates the row whose label column equals label. It returns
// the id, or 0 when no row matched.
func (e *Engine) UpdateByLabel(ctx context.Context, table, label string, values schema.Row) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trace("updateByLabel")

	filters, err := e.labelFilter("updateByLabel", table, label)
	if err != nil {
		return 0, err
	}
	return first(e.updateMany(ctx, "updateByLabel", table, filters, values))
}

// DeleteByLabel deletes the row whose label column equals label. It returns
// the id, or 0 when no row matched.
func (e *Engine) DeleteByLabel(ctx context.Context, table, label string) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trace("deleteByLabel")

	filters, err := e.labelFilter("deleteByLabel", table, label)
	if err != nil {
		return 0, err
	}
	return first(e.deleteMany(ctx, "deleteByLabel", table, filters))
}
