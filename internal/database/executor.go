package database

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/koba/flowsql/internal/dberr"
	"github.com/koba/flowsql/internal/schema"
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Executor runs generated statements and normalizes their results into rows.
// It counts the statements that completed so a failed migration can tell
// whether anything was applied.
type Executor struct {
	q        Querier
	dbType   string
	logger   *zap.Logger
	trace    bool
	executed int
}

// NewExecutor wraps q. A nil logger disables statement tracing.
func NewExecutor(q Querier, dbType string, logger *zap.Logger, trace bool) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{q: q, dbType: dbType, logger: logger, trace: trace}
}

// Type returns the database type statements are generated for.
func (x *Executor) Type() string { return x.dbType }

// Executed returns how many statements completed.
func (x *Executor) Executed() int { return x.executed }

// With returns an executor sharing settings but running on q.
func (x *Executor) With(q Querier) *Executor {
	return &Executor{q: q, dbType: x.dbType, logger: x.logger, trace: x.trace}
}

func (x *Executor) traceSQL(stmt string) {
	if x.trace {
		x.logger.Debug("sql", zap.String("stmt", stmt))
	}
}

// Run executes a statement that returns no rows.
func (x *Executor) Run(ctx context.Context, stmt string) error {
	x.traceSQL(stmt)
	if _, err := x.q.ExecContext(ctx, stmt); err != nil {
		return dberr.Execution(stmt, err)
	}
	x.executed++
	return nil
}

// RunAll executes statements in order, stopping at the first failure.
func (x *Executor) RunAll(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if err := x.Run(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Fetch executes a query and returns every row as a column-to-value map.
func (x *Executor) Fetch(ctx context.Context, stmt string) ([]schema.Row, error) {
	x.traceSQL(stmt)
	rows, err := x.q.QueryContext(ctx, stmt)
	if err != nil {
		return nil, dberr.Execution(stmt, err)
	}
	defer rows.Close()

	data, err := scanRows(rows)
	if err != nil {
		return nil, dberr.Execution(stmt, err)
	}
	x.executed++
	return data, nil
}

// Insert executes an INSERT and returns the generated id. Postgres statements
// are expected to end with RETURNING id.
func (x *Executor) Insert(ctx context.Context, stmt string) (int64, error) {
	x.traceSQL(stmt)
	if x.dbType == TypePostgres {
		var id int64
		if err := x.q.QueryRowContext(ctx, stmt).Scan(&id); err != nil {
			return 0, dberr.Execution(stmt, err)
		}
		x.executed++
		return id, nil
	}

	res, err := x.q.ExecContext(ctx, stmt)
	if err != nil {
		return 0, dberr.Execution(stmt, err)
	}
	x.executed++
	id, err := res.LastInsertId()
	if err != nil {
		return 0, dberr.Execution(stmt, fmt.Errorf("failed to read inserted id: %w", err))
	}
	return id, nil
}

func scanRows(rows *sql.Rows) ([]schema.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	data := []schema.Row{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(schema.Row, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		data = append(data, row)
	}

	return data, rows.Err()
}
