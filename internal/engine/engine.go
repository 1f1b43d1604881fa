// Package engine owns the schema document and composes validation, statement
// generation and execution into the caller-facing operations.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/koba/flowsql/internal/catalog"
	"github.com/koba/flowsql/internal/database"
	"github.com/koba/flowsql/internal/dberr"
	"github.com/koba/flowsql/internal/generator"
	"github.com/koba/flowsql/internal/schema"
)

// Engine is the single owner of the in-memory schema. Every public method
// takes the lock for its whole duration, so operations never overlap.
type Engine struct {
	mu     sync.Mutex
	config database.Config
	db     database.Database
	x      *database.Executor
	logger *zap.Logger

	ddlGen *generator.DDLGenerator
	dmlGen *generator.DMLGenerator

	schema    *schema.Schema
	providers map[string]map[string]DefaultProvider
	programs  *programCache

	// transactionalDDL is whether schema statements roll back with their
	// transaction; see migrate.
	transactionalDDL bool
}

// New creates an engine for config. It does not touch the database until
// Connect is called. A nil logger discards everything.
func New(config database.Config, logger *zap.Logger) (*Engine, error) {
	db, err := database.NewDatabase(config)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		config:    config,
		db:        db,
		logger:    logger,
		ddlGen:    generator.NewDDLGenerator(db.Type()),
		dmlGen:    generator.NewDMLGenerator(db.Type()),
		schema:    schema.New(),
		providers: make(map[string]map[string]DefaultProvider),
		programs:  newProgramCache(),

		transactionalDDL: database.TransactionalDDL(db.Type()),
	}, nil
}

// Connect opens the database, ensures the metadata table exists and loads the
// stored schema. Read-only connections only load.
func (e *Engine) Connect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trace("connect")

	if err := e.db.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	e.x = database.NewExecutor(e.db.DB(), e.db.Type(), e.logger, e.config.TraceSQL)

	if !e.config.ReadOnly {
		if err := catalog.Ensure(ctx, e.x); err != nil {
			e.db.Close()
			return err
		}
	}
	if err := e.load(ctx); err != nil {
		e.db.Close()
		return err
	}
	return nil
}

// Reload replaces the in-memory schema with the stored document.
func (e *Engine) Reload(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trace("reload")
	if err := e.connected("reload"); err != nil {
		return err
	}
	return e.load(ctx)
}

func (e *Engine) load(ctx context.Context) error {
	s, err := catalog.Load(ctx, e.x)
	if err != nil {
		return err
	}
	if err := e.compileDefaults("loadSchema", s); err != nil {
		return err
	}
	e.schema = s
	e.logger.Debug("schema loaded",
		zap.Int64("version", s.Version),
		zap.Int("tables", len(s.Tables)),
	)
	return nil
}

// Close closes the underlying connection.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trace("close")
	return e.db.Close()
}

// Type returns the database type the engine talks to.
func (e *Engine) Type() string {
	return e.db.Type()
}

// Schema returns a deep copy of the current schema.
func (e *Engine) Schema() *schema.Schema {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.schema.Clone()
}

func (e *Engine) trace(op string) {
	e.logger.Debug("trace", zap.String("op", op))
}

func (e *Engine) connected(op string) error {
	if e.x == nil {
		return dberr.Preconditionf(op, "engine", "must be connected first")
	}
	return nil
}

func (e *Engine) writable(op string) error {
	if err := e.connected(op); err != nil {
		return err
	}
	if e.config.ReadOnly {
		return dberr.Preconditionf(op, "engine", "connection is read-only")
	}
	return nil
}

// table resolves a table of the current schema.
func (e *Engine) table(op, table string) (*schema.TableSchema, error) {
	if err := e.connected(op); err != nil {
		return nil, err
	}
	ts, ok := e.schema.Table(table)
	if !ok {
		return nil, dberr.Preconditionf(op, "table", "must be a schema table, got %q", table)
	}
	return ts, nil
}

// inTx runs fn on a transaction-bound executor.
func (e *Engine) inTx(ctx context.Context, fn func(x *database.Executor) error) error {
	return database.WithTx(ctx, e.db.DB(), func(tx *sql.Tx) error {
		return fn(e.x.With(tx))
	})
}

// migrate runs a schema change and persists next when it succeeds. Where DDL
// is transactional the change and the persist commit together. Elsewhere a
// failure after the first applied statement is reported as
// ErrMigrationAborted, because the applied statements stay applied.
func (e *Engine) migrate(ctx context.Context, op string, next *schema.Schema, fn func(m *migration) error) error {
	if !e.transactionalDDL {
		m := e.newMigration(op, e.x.With(e.db.DB()))
		err := fn(m)
		if err == nil {
			m.step = "PersistingSchema"
			err = catalog.Persist(ctx, m.x, next)
		}
		if err != nil {
			if m.x.Executed() > 0 {
				return dberr.MigrationAborted(op, m.step, err)
			}
			return err
		}
		return nil
	}

	return e.inTx(ctx, func(x *database.Executor) error {
		m := e.newMigration(op, x)
		if err := fn(m); err != nil {
			return err
		}
		return catalog.Persist(ctx, x, next)
	})
}

// commit swaps in next once its change is stored.
func (e *Engine) commit(next *schema.Schema) {
	e.schema = next
	e.logger.Debug("schema committed", zap.Int64("version", next.Version))
}
