package sqlexec

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slgserver/pkg/entity"
)

type pgxMockAdapter struct {
	mock pgxmock.PgxPoolIface
}

func (a *pgxMockAdapter) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return a.mock.Exec(ctx, sql, args...)
}
func (a *pgxMockAdapter) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return a.mock.Query(ctx, sql, args...)
}
func (a *pgxMockAdapter) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return a.mock.QueryRow(ctx, sql, args...)
}
func (a *pgxMockAdapter) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	return a.mock.BeginTx(ctx, txOptions)
}
func (a *pgxMockAdapter) Close()                         { a.mock.Close() }
func (a *pgxMockAdapter) Ping(ctx context.Context) error { return a.mock.Ping(ctx) }

var playerMeta = entity.Metadata{
	Table:    "players",
	PKColumn: "id",
	Columns:  []string{"id", "level", "name"},
}

type testPlayer struct {
	entity.Base
	ID    int64
	Level int
	Name  string
}

func (p *testPlayer) PK() any          { return p.ID }
func (p *testPlayer) TypeName() string { return "players" }
func (p *testPlayer) Fields() map[string]any {
	return map[string]any{"id": p.ID, "level": p.Level, "name": p.Name}
}

func setup(t *testing.T) (pgxmock.PgxPoolIface, *Executor) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	exec := New(&pgxMockAdapter{mock: mock})
	exec.Register(playerMeta)
	return mock, exec
}

func newPlayer(id int64) *testPlayer {
	return &testPlayer{Base: entity.NewBase(), ID: id, Level: 1, Name: "alice"}
}

func TestInsert(t *testing.T) {
	mock, exec := setup(t)
	defer mock.Close()

	p := newPlayer(1)
	mock.ExpectExec("INSERT INTO players").
		WithArgs(p.ID, p.Level, p.Name).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, exec.Insert(context.Background(), p))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOnlyDirtyFields(t *testing.T) {
	mock, exec := setup(t)
	defer mock.Close()

	p := newPlayer(1)
	p.MarkChanged("level")
	mock.ExpectExec("UPDATE players SET level").
		WithArgs(p.Level, p.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, exec.Update(context.Background(), p))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateNoDirtyFieldsIsNoop(t *testing.T) {
	mock, exec := setup(t)
	defer mock.Close()

	p := newPlayer(1)
	require.NoError(t, exec.Update(context.Background(), p))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete(t *testing.T) {
	mock, exec := setup(t)
	defer mock.Close()

	p := newPlayer(1)
	mock.ExpectExec("DELETE FROM players").
		WithArgs(p.ID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, exec.Delete(context.Background(), p))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchInsert(t *testing.T) {
	mock, exec := setup(t)
	defer mock.Close()

	recs := []entity.Record{newPlayer(1), newPlayer(2)}
	mock.ExpectExec("INSERT INTO players").WillReturnResult(pgxmock.NewResult("INSERT", 2))

	results, err := exec.BatchInsert(context.Background(), recs)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}
}

func TestBatchInsertFailureMarksAllRows(t *testing.T) {
	mock, exec := setup(t)
	defer mock.Close()

	recs := []entity.Record{newPlayer(1), newPlayer(2)}
	mock.ExpectExec("INSERT INTO players").WillReturnError(errors.New("constraint violation"))

	results, err := exec.BatchInsert(context.Background(), recs)
	assert.Error(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Error(t, r.Err)
	}
}

func TestBatchUpdatePerRowDirtySet(t *testing.T) {
	mock, exec := setup(t)
	defer mock.Close()

	p1 := newPlayer(1)
	p1.MarkChanged("level")
	p2 := newPlayer(2)
	p2.MarkChanged("name")

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE players SET level").WithArgs(p1.Level, p1.ID).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE players SET name").WithArgs(p2.Name, p2.ID).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	results, err := exec.BatchUpdate(context.Background(), []entity.Record{p1, p2})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchDelete(t *testing.T) {
	mock, exec := setup(t)
	defer mock.Close()

	recs := []entity.Record{newPlayer(1), newPlayer(2)}
	mock.ExpectExec("DELETE FROM players WHERE id IN").WillReturnResult(pgxmock.NewResult("DELETE", 2))

	results, err := exec.BatchDelete(context.Background(), recs)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestUnregisteredTypeErrors(t *testing.T) {
	mock, exec := setup(t)
	defer mock.Close()

	rec := &unregisteredRecord{testPlayer: newPlayer(9)}
	err := exec.Insert(context.Background(), rec)
	assert.Error(t, err)
}

type unregisteredRecord struct {
	*testPlayer
}

func (u *unregisteredRecord) TypeName() string { return "ghosts" }
