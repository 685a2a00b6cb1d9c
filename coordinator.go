package dal

import (
	"context"
	"errors"
	"log/slog"
)

type writeMode int

const (
	rowByRow writeMode = iota
	combined
	trueBatch
)

func (m writeMode) String() string {
	switch m {
	case combined:
		return "combined"
	case trueBatch:
		return "batch"
	default:
		return "row-by-row"
	}
}

// outcome is the result of one statement: either a count with optional
// generated keys, or the failure that stopped it.
type outcome struct {
	count int64
	keys  []any
	err   error
	// whole marks a failure that cannot be attributed to a single row.
	whole bool
}

// writeCall is one write operation after validation and statement building.
type writeCall struct {
	op     string
	mode   writeMode
	stmts  []Statement
	holder *KeyHolder
	hints  *Hints
}

// coordinator executes the statements of a write call and folds their
// outcomes into per-row counts.
type coordinator struct {
	table    string
	identity string
	logger   *slog.Logger
}

func (c coordinator) run(ctx context.Context, exec Executor, call writeCall) ([]int, error) {
	if len(call.stmts) == 0 {
		return []int{}, nil
	}

	return c.aggregate(ctx, call, c.execute(ctx, exec, call))
}

func (c coordinator) execute(ctx context.Context, exec Executor, call writeCall) []outcome {
	switch call.mode {
	case trueBatch:
		results, err := exec.ExecuteBatch(ctx, call.stmts)
		if err != nil {
			var be *BatchError
			if errors.As(err, &be) {
				outcomes := make([]outcome, 0, len(be.Results)+1)
				for _, res := range be.Results {
					outcomes = append(outcomes, outcome{count: res.RowsAffected, keys: res.Keys})
				}
				return append(outcomes, outcome{err: be.Err})
			}
			return []outcome{{err: err, whole: true}}
		}

		c.logger.DebugContext(ctx, "batch executed", "op", call.op, "table", c.table,
			"sql", call.stmts[0].SQL, "statements", len(call.stmts))

		outcomes := make([]outcome, len(results))
		for i, res := range results {
			outcomes[i] = outcome{count: res.RowsAffected, keys: res.Keys}
		}
		return outcomes

	default:
		outcomes := make([]outcome, 0, len(call.stmts))
		for _, stmt := range call.stmts {
			res, err := exec.Execute(ctx, stmt)
			if err != nil {
				outcomes = append(outcomes, outcome{err: err, whole: call.mode == combined})
				if !call.hints.IsContinueOnError() || call.mode == combined {
					break
				}
				continue
			}

			c.logger.DebugContext(ctx, "statement executed", "op", call.op, "table", c.table,
				"sql", stmt.SQL, "rows", res.RowsAffected)
			outcomes = append(outcomes, outcome{count: res.RowsAffected, keys: res.Keys})
		}
		return outcomes
	}
}

// aggregate folds outcomes in order. Successful rows contribute their count and
// their generated keys; a failure either records 0 and continues (row-by-row
// with continue-on-error) or ends the call with the counts gathered so far.
func (c coordinator) aggregate(ctx context.Context, call writeCall, outcomes []outcome) ([]int, error) {
	counts := make([]int, 0, len(outcomes))
	for i, o := range outcomes {
		if o.err != nil {
			if call.mode == rowByRow && call.hints.IsContinueOnError() {
				c.logger.WarnContext(ctx, "row failed, continuing", "op", call.op, "table", c.table,
					"row", i, "err", o.err)
				counts = append(counts, 0)
				continue
			}

			index := i
			if o.whole {
				index = -1
			}
			return counts, execFailure(index, o.err)
		}

		counts = append(counts, int(o.count))
		if call.holder != nil {
			for _, key := range o.keys {
				call.holder.add(c.identity, key)
			}
		}
	}

	return counts, nil
}
