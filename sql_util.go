package dal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLExecutor runs statements through database/sql via sqlx.
type SQLExecutor struct {
	sqlConn
	db *sqlx.DB
}

var _ Executor = (*SQLExecutor)(nil)

func NewSQLExecutor(db *sqlx.DB, dialect Dialect) *SQLExecutor {
	return &SQLExecutor{
		sqlConn: sqlConn{ext: db, dialect: dialect},
		db:      db,
	}
}

func (e *SQLExecutor) DB() *sqlx.DB {
	return e.db
}

func (e *SQLExecutor) Begin(ctx context.Context) (Transaction, error) {
	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, wrapSQLError(err)
	}

	return &sqlTransaction{
		sqlConn: sqlConn{ext: tx, dialect: e.dialect},
		Tx:      tx,
	}, nil
}

// ExecuteBatch runs the statements in a transaction of its own; any failure
// rolls the whole batch back.
func (e *SQLExecutor) ExecuteBatch(ctx context.Context, stmts []Statement) ([]Result, error) {
	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, wrapSQLError(err)
	}
	defer tx.Rollback()

	results, err := runBatch(ctx, tx, stmts)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapSQLError(err)
	}
	return results, nil
}

type sqlTransaction struct {
	sqlConn
	Tx *sqlx.Tx
}

var _ Transaction = (*sqlTransaction)(nil)

func (st *sqlTransaction) ExecuteBatch(ctx context.Context, stmts []Statement) ([]Result, error) {
	return runBatch(ctx, st.Tx, stmts)
}

func (st *sqlTransaction) Rollback(_ context.Context) error {
	return st.Tx.Rollback()
}

func (st *sqlTransaction) Commit(_ context.Context) error {
	return st.Tx.Commit()
}

type sqlConn struct {
	ext     sqlx.ExtContext
	dialect Dialect
}

func (c sqlConn) Dialect() Dialect {
	return c.dialect
}

func (c sqlConn) Execute(ctx context.Context, stmt Statement) (Result, error) {
	args, err := stmt.Args()
	if err != nil {
		return Result{}, err
	}

	if stmt.ReturnKeys && c.dialect.KeyStrategy == KeyReturning {
		return c.executeReturning(ctx, stmt.SQL, args)
	}

	sr, err := c.ext.ExecContext(ctx, stmt.SQL, args...)
	if err != nil {
		return Result{}, wrapSQLError(err)
	}

	n, err := sr.RowsAffected()
	if err != nil {
		return Result{}, wrapSQLError(err)
	}

	res := Result{RowsAffected: n}
	if stmt.ReturnKeys && c.dialect.KeyStrategy != KeyNone {
		id, err := sr.LastInsertId()
		if err != nil {
			return res, wrapSQLError(err)
		}
		res.Keys = consecutiveKeys(id, stmt.Rows, c.dialect.KeyStrategy)
	}

	return res, nil
}

func (c sqlConn) executeReturning(ctx context.Context, query string, args []any) (Result, error) {
	rows, err := c.ext.QueryxContext(ctx, query, args...)
	if err != nil {
		return Result{}, wrapSQLError(err)
	}
	defer rows.Close()

	var res Result
	for rows.Next() {
		var key any
		if err := rows.Scan(&key); err != nil {
			return Result{}, wrapSQLError(err)
		}
		res.Keys = append(res.Keys, key)
	}
	if err := rows.Err(); err != nil {
		return Result{}, wrapSQLError(err)
	}

	res.RowsAffected = int64(len(res.Keys))
	return res, nil
}

func (c sqlConn) Query(ctx context.Context, stmt Statement) ([]map[string]any, error) {
	args, err := stmt.Args()
	if err != nil {
		return nil, err
	}

	rows, err := c.ext.QueryxContext(ctx, stmt.SQL, args...)
	if err != nil {
		return nil, wrapSQLError(err)
	}
	defer rows.Close()

	var result []map[string]any
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, wrapSQLError(err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapSQLError(err)
	}

	return result, nil
}

// runBatch prepares each distinct statement text once and executes it for every
// parameter set that uses it.
func runBatch(ctx context.Context, tx *sqlx.Tx, stmts []Statement) ([]Result, error) {
	prepared := make(map[string]*sqlx.Stmt)
	defer func() {
		for _, ps := range prepared {
			ps.Close()
		}
	}()

	results := make([]Result, len(stmts))
	for i, stmt := range stmts {
		args, err := stmt.Args()
		if err != nil {
			return nil, err
		}

		ps, ok := prepared[stmt.SQL]
		if !ok {
			ps, err = tx.PreparexContext(ctx, stmt.SQL)
			if err != nil {
				return nil, wrapSQLError(err)
			}
			prepared[stmt.SQL] = ps
		}

		sr, err := ps.ExecContext(ctx, args...)
		if err != nil {
			return nil, wrapSQLError(err)
		}

		n, err := sr.RowsAffected()
		if err != nil {
			return nil, wrapSQLError(err)
		}
		results[i] = Result{RowsAffected: n}
	}

	return results, nil
}

// wrapSQLError tags driver errors with the package sentinel they correspond to,
// keeping the driver error in the chain.
func wrapSQLError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return fmt.Errorf("%w: %w", ErrKeyAlreadyExists, err)
		case pgerrcode.StringDataRightTruncationDataException:
			return fmt.Errorf("%w: %w", ErrDataTooLong, err)
		}
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pgerrcode.UniqueViolation:
			return fmt.Errorf("%w: %w", ErrKeyAlreadyExists, err)
		case pgerrcode.StringDataRightTruncationDataException:
			return fmt.Errorf("%w: %w", ErrDataTooLong, err)
		}
		return err
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1062:
			return fmt.Errorf("%w: %w", ErrKeyAlreadyExists, err)
		case 1406:
			return fmt.Errorf("%w: %w", ErrDataTooLong, err)
		}
		return err
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %w", ErrKeyAlreadyExists, err)
		case sqlite3.SQLITE_TOOBIG:
			return fmt.Errorf("%w: %w", ErrDataTooLong, err)
		}
	}

	return err
}
