package dal

import (
	"context"
	"fmt"
)

// Result is the raw outcome of one statement.
type Result struct {
	RowsAffected int64
	// Keys holds the generated identity values, one per inserted row, when the
	// statement asked for them and the database reported them.
	Keys []any
}

// Executor runs statements against a database. Cancellation and deadlines are
// taken from ctx.
type Executor interface {
	Execute(ctx context.Context, stmt Statement) (Result, error)
	// ExecuteBatch submits all statements as one batch and returns one Result per
	// statement.
	ExecuteBatch(ctx context.Context, stmts []Statement) ([]Result, error)
	Query(ctx context.Context, stmt Statement) ([]map[string]any, error)
}

// Transaction is an Executor bound to a database transaction.
type Transaction interface {
	Executor
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// BatchError is returned by an executor that can report the statements of a
// failed batch that did complete.
type BatchError struct {
	Results []Result
	Err     error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch failed after %d statements: %v", len(e.Results), e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// consecutiveKeys expands a LastInsertId into the keys of a multi-row insert.
func consecutiveKeys(id int64, rows int, strategy KeyStrategy) []any {
	if rows <= 0 {
		return nil
	}
	first := id
	if strategy == KeyLastInsertID {
		first = id - int64(rows) + 1
	}
	keys := make([]any, rows)
	for i := range keys {
		keys[i] = first + int64(i)
	}
	return keys
}
