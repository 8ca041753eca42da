// Package sqlexec implements the SQL executor: a per-type
// metadata cache of INSERT/UPDATE/DELETE templates, and singleton/batch
// variants driven by entity.Record's dirty-field set.
package sqlexec

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"

	"slgserver/pkg/apperror"
	"slgserver/pkg/database"
	"slgserver/pkg/entity"
)

// templates is the set of precomputed SQL for one entity type, built once
// from its entity.Metadata and cached for the lifetime of the process.
type templates struct {
	meta         entity.Metadata
	insertSQL    string
	deleteSQL    string
	updateSetCol map[string]int // column -> 1-based placeholder index within an UPDATE's SET clause
}

func build(meta entity.Metadata) *templates {
	cols := make([]string, len(meta.Columns))
	placeholders := make([]string, len(meta.Columns))
	for i, c := range meta.Columns {
		cols[i] = c
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		meta.Table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", meta.Table, meta.PKColumn)

	setCol := make(map[string]int, len(meta.Columns))
	for i, c := range meta.Columns {
		setCol[c] = i + 1
	}

	return &templates{meta: meta, insertSQL: insertSQL, deleteSQL: deleteSQL, updateSetCol: setCol}
}

// RowResult reports the outcome for one entity within a batch call.
type RowResult struct {
	PK  any
	Err error
}

// Executor precomputes statement templates per registered entity type and
// executes singleton/batch INSERT/UPDATE/DELETE against a database.DB.
type Executor struct {
	db database.DB

	mu    sync.RWMutex
	types map[string]*templates
}

// New returns an Executor bound to db with no registered types.
func New(db database.DB) *Executor {
	return &Executor{db: db, types: make(map[string]*templates)}
}

// Register precomputes and caches the INSERT/UPDATE/DELETE templates for a
// type identified by meta.Table. Call once per type, typically at startup.
func (e *Executor) Register(meta entity.Metadata) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.types[meta.Table] = build(meta)
}

func (e *Executor) templatesFor(typeName string) (*templates, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.types[typeName]
	if !ok {
		return nil, apperror.New(apperror.CodeNotFound, "entity type not registered").WithDetails("type", typeName)
	}
	return t, nil
}

func orderedArgs(meta entity.Metadata, fields map[string]any) []any {
	args := make([]any, len(meta.Columns))
	for i, c := range meta.Columns {
		args[i] = fields[c]
	}
	return args
}

// Insert inserts one record using the full column list.
func (e *Executor) Insert(ctx context.Context, rec entity.Record) error {
	t, err := e.templatesFor(rec.TypeName())
	if err != nil {
		return err
	}
	_, err = e.db.Exec(ctx, t.insertSQL, orderedArgs(t.meta, rec.Fields())...)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeDBFail, "insert failed").WithDetails("type", rec.TypeName())
	}
	return nil
}

// Update rebuilds the SET list from rec's dirty-field-set and executes a
// partial UPDATE. A record with no dirty fields is a no-op.
func (e *Executor) Update(ctx context.Context, rec entity.Record) error {
	t, err := e.templatesFor(rec.TypeName())
	if err != nil {
		return err
	}

	dirty := rec.DirtyFields()
	if len(dirty) == 0 {
		return nil
	}

	fields := rec.Fields()
	setParts := make([]string, 0, len(dirty))
	args := make([]any, 0, len(dirty)+1)
	for i, col := range dirty {
		setParts = append(setParts, fmt.Sprintf("%s = $%d", col, i+1))
		args = append(args, fields[col])
	}
	args = append(args, rec.PK())

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		t.meta.Table, strings.Join(setParts, ", "), t.meta.PKColumn, len(args))

	if _, err := e.db.Exec(ctx, sql, args...); err != nil {
		return apperror.Wrap(err, apperror.CodeDBFail, "update failed").WithDetails("type", rec.TypeName())
	}
	return nil
}

// Delete removes one record by primary key.
func (e *Executor) Delete(ctx context.Context, rec entity.Record) error {
	t, err := e.templatesFor(rec.TypeName())
	if err != nil {
		return err
	}
	if _, err := e.db.Exec(ctx, t.deleteSQL, rec.PK()); err != nil {
		return apperror.Wrap(err, apperror.CodeDBFail, "delete failed").WithDetails("type", rec.TypeName())
	}
	return nil
}

// BatchInsert inserts every record of the same type in a single multi-row
// statement, executed inside one transaction. All rows succeed or none do,
// per the underlying driver's transaction semantics; the per-row results are
// reported as all-success or all-failure accordingly.
func (e *Executor) BatchInsert(ctx context.Context, recs []entity.Record) ([]RowResult, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	typeName := recs[0].TypeName()
	t, err := e.templatesFor(typeName)
	if err != nil {
		return nil, err
	}

	valueRows := make([]string, len(recs))
	args := make([]any, 0, len(recs)*len(t.meta.Columns))
	ph := 1
	for i, rec := range recs {
		row := orderedArgs(t.meta, rec.Fields())
		placeholders := make([]string, len(row))
		for j := range row {
			placeholders[j] = fmt.Sprintf("$%d", ph)
			ph++
		}
		valueRows[i] = "(" + strings.Join(placeholders, ", ") + ")"
		args = append(args, row...)
	}

	cols := strings.Join(t.meta.Columns, ", ")
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", t.meta.Table, cols, strings.Join(valueRows, ", "))

	return e.runBatch(ctx, recs, sql, args)
}

// BatchDelete deletes every record of the same type in one statement.
func (e *Executor) BatchDelete(ctx context.Context, recs []entity.Record) ([]RowResult, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	typeName := recs[0].TypeName()
	t, err := e.templatesFor(typeName)
	if err != nil {
		return nil, err
	}

	placeholders := make([]string, len(recs))
	args := make([]any, len(recs))
	for i, rec := range recs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = rec.PK()
	}

	sql := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)", t.meta.Table, t.meta.PKColumn, strings.Join(placeholders, ", "))

	return e.runBatch(ctx, recs, sql, args)
}

// BatchUpdate applies a partial UPDATE per record inside one transaction,
// since each record may have a distinct dirty-field-set and therefore a
// distinct SET clause; there is no single multi-row UPDATE shape to share.
func (e *Executor) BatchUpdate(ctx context.Context, recs []entity.Record) ([]RowResult, error) {
	if len(recs) == 0 {
		return nil, nil
	}

	results := make([]RowResult, len(recs))
	err := database.WithTransaction(ctx, e.db, func(tx pgx.Tx) error {
		for i, rec := range recs {
			dirty := rec.DirtyFields()
			if len(dirty) == 0 {
				results[i] = RowResult{PK: rec.PK()}
				continue
			}
			t, terr := e.templatesFor(rec.TypeName())
			if terr != nil {
				return terr
			}

			fields := rec.Fields()
			setParts := make([]string, 0, len(dirty))
			args := make([]any, 0, len(dirty)+1)
			for j, col := range dirty {
				setParts = append(setParts, fmt.Sprintf("%s = $%d", col, j+1))
				args = append(args, fields[col])
			}
			args = append(args, rec.PK())

			sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
				t.meta.Table, strings.Join(setParts, ", "), t.meta.PKColumn, len(args))

			if _, err := tx.Exec(ctx, sql, args...); err != nil {
				return apperror.Wrap(err, apperror.CodeDBFail, "batch update failed").WithDetails("type", rec.TypeName())
			}
			results[i] = RowResult{PK: rec.PK()}
		}
		return nil
	})
	if err != nil {
		for i, rec := range recs {
			results[i] = RowResult{PK: rec.PK(), Err: err}
		}
		return results, err
	}
	return results, nil
}

func (e *Executor) runBatch(ctx context.Context, recs []entity.Record, sql string, args []any) ([]RowResult, error) {
	results := make([]RowResult, len(recs))
	_, err := e.db.Exec(ctx, sql, args...)
	if err != nil {
		wrapped := apperror.Wrap(err, apperror.CodeDBFail, "batch statement failed")
		for i, rec := range recs {
			results[i] = RowResult{PK: rec.PK(), Err: wrapped}
		}
		return results, wrapped
	}
	for i, rec := range recs {
		results[i] = RowResult{PK: rec.PK()}
	}
	return results, nil
}
