// Package storetest provides an in-memory store.DB fake so SQL-issuing
// components can be tested without a live database.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type Call struct {
	SQL  string
	Args []any
}

// Result is one queued answer for a Query call.
type Result struct {
	Cols   []string
	Rows   [][]any
	Err    error // returned by Query itself
	RowErr error // returned by rows.Err() after iteration
}

// RowResult is one queued answer for a QueryRow call.
type RowResult struct {
	Vals []any
	Err  error
}

type FakeDB struct {
	Results    []Result
	RowResults []RowResult
	ExecErr    error
	BeginErr   error

	Calls     []Call
	Commits   int
	Rollbacks int
}

func (db *FakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	db.Calls = append(db.Calls, Call{SQL: sql, Args: args})
	if len(db.Results) == 0 {
		return &fakeRows{}, nil
	}
	res := db.Results[0]
	db.Results = db.Results[1:]
	if res.Err != nil {
		return nil, res.Err
	}
	return &fakeRows{res: res, idx: -1}, nil
}

func (db *FakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	db.Calls = append(db.Calls, Call{SQL: sql, Args: args})
	if len(db.RowResults) == 0 {
		return fakeRow{err: pgx.ErrNoRows}
	}
	res := db.RowResults[0]
	db.RowResults = db.RowResults[1:]
	return fakeRow{vals: res.Vals, err: res.Err}
}

func (db *FakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.Calls = append(db.Calls, Call{SQL: sql, Args: args})
	return pgconn.CommandTag{}, db.ExecErr
}

func (db *FakeDB) Begin(context.Context) (pgx.Tx, error) {
	if db.BeginErr != nil {
		return nil, db.BeginErr
	}
	return &fakeTx{db: db}, nil
}

type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.vals)
}

type fakeRows struct {
	res    Result
	idx    int
	closed bool
}

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx < len(r.res.Rows)
}

func (r *fakeRows) Values() ([]any, error) {
	if r.idx < 0 || r.idx >= len(r.res.Rows) {
		return nil, errors.New("no current row")
	}
	return r.res.Rows[r.idx], nil
}

func (r *fakeRows) Scan(dest ...any) error {
	vals, err := r.Values()
	if err != nil {
		return err
	}
	return assign(dest, vals)
}

func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	fds := make([]pgconn.FieldDescription, len(r.res.Cols))
	for i, c := range r.res.Cols {
		fds[i].Name = c
	}
	return fds
}

func (r *fakeRows) Close()                       { r.closed = true }
func (r *fakeRows) Err() error                   { return r.res.RowErr }
func (r *fakeRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }
func (r *fakeRows) RawValues() [][]byte          { return nil }
func (r *fakeRows) Conn() *pgx.Conn              { return nil }

type fakeTx struct {
	db   *FakeDB
	done bool
}

func (t *fakeTx) Begin(context.Context) (pgx.Tx, error) { return t, nil }

func (t *fakeTx) Commit(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.db.Commits++
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.db.Rollbacks++
	return nil
}

func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return t.db.Query(ctx, sql, args...)
}

func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return t.db.QueryRow(ctx, sql, args...)
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.db.Exec(ctx, sql, args...)
}

func (t *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not supported")
}

func (t *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }

func (t *fakeTx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }

func (t *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, errors.New("not supported")
}

func (t *fakeTx) Conn() *pgx.Conn { return nil }

func assign(dest, vals []any) error {
	if len(dest) != len(vals) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(vals))
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d)
		if dv.Kind() != reflect.Pointer {
			return fmt.Errorf("scan: destination %d is not a pointer", i)
		}
		sv := reflect.ValueOf(vals[i])
		if !sv.IsValid() {
			dv.Elem().SetZero()
			continue
		}
		if !sv.Type().ConvertibleTo(dv.Elem().Type()) {
			return fmt.Errorf("scan: cannot assign %T to %s", vals[i], dv.Elem().Type())
		}
		dv.Elem().Set(sv.Convert(dv.Elem().Type()))
	}
	return nil
}
