package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/koba/flowsql/internal/database"
	"github.com/koba/flowsql/internal/dberr"
	"github.com/koba/flowsql/internal/schema"
)

// migration tracks the step a schema change has reached, so a failure can be
// reported against it.
type migration struct {
	op     string
	x      *database.Executor
	step   string
	logger *zap.Logger
}

func (e *Engine) newMigration(op string, x *database.Executor) *migration {
	return &migration{op: op, x: x, logger: e.logger}
}

// run executes the statements of one step.
func (m *migration) run(ctx context.Context, step string, stmts ...string) error {
	m.step = step
	m.logger.Info("migration step",
		zap.String("op", m.op),
		zap.String("step", step),
		zap.Int("statements", len(stmts)),
	)
	return m.x.RunAll(ctx, stmts)
}

// rebuildStep is a state of the table rebuild.
type rebuildStep int

const (
	stepRenamingOld rebuildStep = iota
	stepCreatingNew
	stepCopyingRows
	stepCarryingSequence
	stepCheckingForeignKeys
	stepDroppingOld

	numRebuildSteps
)

var rebuildStepNames = [...]string{
	stepRenamingOld:         "RenamingOld",
	stepCreatingNew:         "CreatingNew",
	stepCopyingRows:         "CopyingRows",
	stepCarryingSequence:    "CarryingSequence",
	stepCheckingForeignKeys: "CheckingForeignKeys",
	stepDroppingOld:         "DroppingOld",
}

var _ [len(rebuildStepNames) - int(numRebuildSteps)]struct{}

func (s rebuildStep) String() string {
	if s < 0 || s >= numRebuildSteps {
		return fmt.Sprintf("rebuildStep(%d)", int(s))
	}
	return rebuildStepNames[s]
}

// rebuild redefines a SQLite table by moving its rows into a freshly created
// copy. copied lists the columns carried over besides id.
type rebuild struct {
	table  string
	tmp    string
	next   *schema.TableSchema
	copied []string
}

func newRebuild(table string, next *schema.TableSchema, copied []string) *rebuild {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return &rebuild{
		table:  table,
		tmp:    table + "_tmp_" + suffix,
		next:   next,
		copied: copied,
	}
}

// runRebuild walks every step in order. It must be called inside a
// transaction with foreign keys disabled, see withRebuildPragmas.
func (e *Engine) runRebuild(ctx context.Context, m *migration, r *rebuild) error {
	for step := stepRenamingOld; step < numRebuildSteps; step++ {
		switch step {
		case stepRenamingOld:
			if err := m.run(ctx, step.String(), e.ddlGen.RenameTable(r.table, r.tmp)); err != nil {
				return err
			}
		case stepCreatingNew:
			stmt, err := e.ddlGen.CreateBaseTable(r.table, r.next)
			if err != nil {
				return err
			}
			if err := m.run(ctx, step.String(), stmt); err != nil {
				return err
			}
		case stepCopyingRows:
			if err := m.run(ctx, step.String(), e.ddlGen.CopyRows(r.tmp, r.table, r.copied)); err != nil {
				return err
			}
		case stepCarryingSequence:
			if err := m.run(ctx, step.String(), e.ddlGen.CarrySequence(r.tmp, r.table)...); err != nil {
				return err
			}
		case stepCheckingForeignKeys:
			if !e.config.ForeignKeys {
				continue
			}
			m.step = step.String()
			stmt := e.ddlGen.ForeignKeyCheck(r.table)
			violations, err := m.x.Fetch(ctx, stmt)
			if err != nil {
				return err
			}
			if len(violations) > 0 {
				return dberr.Execution(stmt, fmt.Errorf("%d rows violate a foreign key", len(violations)))
			}
		case stepDroppingOld:
			if err := m.run(ctx, step.String(), e.ddlGen.DropTable(r.tmp)); err != nil {
				return err
			}
		}
	}
	return nil
}

// withRebuildPragmas disables foreign key enforcement and reference rewriting
// on renames for the duration of fn. foreign_keys is a no-op inside a
// transaction, so fn must open its own.
func (e *Engine) withRebuildPragmas(ctx context.Context, fn func() error) error {
	if err := e.x.RunAll(ctx, []string{
		"PRAGMA foreign_keys = OFF",
		"PRAGMA legacy_alter_table = ON",
	}); err != nil {
		return err
	}

	defer func() {
		restore := []string{"PRAGMA legacy_alter_table = OFF"}
		if e.config.ForeignKeys {
			restore = append(restore, "PRAGMA foreign_keys = ON")
		}
		if err := e.x.RunAll(ctx, restore); err != nil {
			e.logger.Warn("failed to restore pragmas after rebuild", zap.Error(err))
		}
	}()

	return fn()
}
