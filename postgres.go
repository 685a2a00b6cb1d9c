package dal

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PgxExecutor runs statements on a pgx pool. True batches go through pgx.Batch
// and run in one round trip inside an implicit transaction.
type PgxExecutor struct {
	pgxConn
	pool *pgxpool.Pool
}

var _ Executor = (*PgxExecutor)(nil)

func NewPgxExecutor(pool *pgxpool.Pool) *PgxExecutor {
	return &PgxExecutor{
		pgxConn: pgxConn{q: pool},
		pool:    pool,
	}
}

func (p *PgxExecutor) Dialect() Dialect {
	return Postgres
}

func (p *PgxExecutor) Begin(ctx context.Context) (Transaction, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, wrapSQLError(err)
	}

	return &pgxTransaction{pgxConn: pgxConn{q: tx}, tx: tx}, nil
}

type pgxTransaction struct {
	pgxConn
	tx pgx.Tx
}

var _ Transaction = (*pgxTransaction)(nil)

func (t *pgxTransaction) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *pgxTransaction) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

type pgxConn struct {
	q pgxQuerier
}

func (c pgxConn) Execute(ctx context.Context, stmt Statement) (Result, error) {
	args, err := stmt.Args()
	if err != nil {
		return Result{}, err
	}

	if stmt.ReturnKeys {
		rows, err := c.q.Query(ctx, stmt.SQL, args...)
		if err != nil {
			return Result{}, wrapSQLError(err)
		}
		defer rows.Close()

		var res Result
		for rows.Next() {
			vals, err := rows.Values()
			if err != nil {
				return Result{}, wrapSQLError(err)
			}
			if len(vals) > 0 {
				res.Keys = append(res.Keys, vals[0])
			}
		}
		if err := rows.Err(); err != nil {
			return Result{}, wrapSQLError(err)
		}
		res.RowsAffected = rows.CommandTag().RowsAffected()
		return res, nil
	}

	tag, err := c.q.Exec(ctx, stmt.SQL, args...)
	if err != nil {
		return Result{}, wrapSQLError(err)
	}
	return Result{RowsAffected: tag.RowsAffected()}, nil
}

func (c pgxConn) ExecuteBatch(ctx context.Context, stmts []Statement) ([]Result, error) {
	batch := &pgx.Batch{}
	for _, stmt := range stmts {
		args, err := stmt.Args()
		if err != nil {
			return nil, err
		}
		batch.Queue(stmt.SQL, args...)
	}

	br := c.q.SendBatch(ctx, batch)
	defer br.Close()

	results := make([]Result, len(stmts))
	for i := range stmts {
		tag, err := br.Exec()
		if err != nil {
			return nil, wrapSQLError(err)
		}
		results[i] = Result{RowsAffected: tag.RowsAffected()}
	}

	if err := br.Close(); err != nil {
		return nil, wrapSQLError(err)
	}
	return results, nil
}

func (c pgxConn) Query(ctx context.Context, stmt Statement) ([]map[string]any, error) {
	args, err := stmt.Args()
	if err != nil {
		return nil, err
	}

	rows, err := c.q.Query(ctx, stmt.SQL, args...)
	if err != nil {
		return nil, wrapSQLError(err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var result []map[string]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, wrapSQLError(err)
		}
		row := make(map[string]any, len(vals))
		for i, fd := range fields {
			row[fd.Name] = vals[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapSQLError(err)
	}

	return result, nil
}
