package dal

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// ExecStats holds execution counters of a StatsExecutor.
type ExecStats struct {
	Executions      atomic.Int64
	Queries         atomic.Int64
	Batches         atomic.Int64
	BatchStatements atomic.Int64
	TotalDuration   atomic.Int64 // nanoseconds
	SlowStatements  atomic.Int64
	Errors          atomic.Int64
}

func (s *ExecStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Executions:      s.Executions.Load(),
		Queries:         s.Queries.Load(),
		Batches:         s.Batches.Load(),
		BatchStatements: s.BatchStatements.Load(),
		TotalDuration:   time.Duration(s.TotalDuration.Load()),
		SlowStatements:  s.SlowStatements.Load(),
		Errors:          s.Errors.Load(),
	}
}

func (s *ExecStats) Reset() {
	s.Executions.Store(0)
	s.Queries.Store(0)
	s.Batches.Store(0)
	s.BatchStatements.Store(0)
	s.TotalDuration.Store(0)
	s.SlowStatements.Store(0)
	s.Errors.Store(0)
}

// StatsSnapshot is a point-in-time copy of ExecStats.
type StatsSnapshot struct {
	Executions      int64
	Queries         int64
	Batches         int64
	BatchStatements int64
	TotalDuration   time.Duration
	SlowStatements  int64
	Errors          int64
}

func (s StatsSnapshot) String() string {
	return fmt.Sprintf("execs=%d queries=%d batches=%d batch_stmts=%d duration=%s slow=%d errors=%d",
		s.Executions, s.Queries, s.Batches, s.BatchStatements, s.TotalDuration, s.SlowStatements, s.Errors)
}

type StatsOption func(*StatsExecutor)

// WithSlowThreshold sets the duration above which a call counts as slow.
// Default is 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsExecutor) {
		s.slowThreshold = d
	}
}

func WithStatsLogger(logger *slog.Logger) StatsOption {
	return func(s *StatsExecutor) {
		s.logger = logger
	}
}

// StatsExecutor wraps an Executor and counts what goes through it. Slow calls
// are logged at WARN.
type StatsExecutor struct {
	Executor
	stats         *ExecStats
	slowThreshold time.Duration
	logger        *slog.Logger
}

func NewStatsExecutor(exec Executor, opts ...StatsOption) *StatsExecutor {
	s := &StatsExecutor{
		Executor:      exec,
		stats:         &ExecStats{},
		slowThreshold: 100 * time.Millisecond,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *StatsExecutor) Stats() *ExecStats {
	return s.stats
}

// Dialect forwards the dialect of the wrapped executor when it has one.
func (s *StatsExecutor) Dialect() Dialect {
	if dp, ok := s.Executor.(dialectProvider); ok {
		return dp.Dialect()
	}
	return Dialect{}
}

// Begin starts a transaction on the wrapped executor; the transaction is counted
// by the same stats.
func (s *StatsExecutor) Begin(ctx context.Context) (Transaction, error) {
	t, ok := s.Executor.(transactor)
	if !ok {
		return nil, fmt.Errorf("executor %T does not support transactions", s.Executor)
	}

	tx, err := t.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &statsTransaction{
		StatsExecutor: &StatsExecutor{Executor: tx, stats: s.stats, slowThreshold: s.slowThreshold, logger: s.logger},
		tx:            tx,
	}, nil
}

func (s *StatsExecutor) Execute(ctx context.Context, stmt Statement) (Result, error) {
	s.stats.Executions.Add(1)
	start := time.Now()
	res, err := s.Executor.Execute(ctx, stmt)
	s.record(ctx, stmt.SQL, time.Since(start), err)
	return res, err
}

func (s *StatsExecutor) ExecuteBatch(ctx context.Context, stmts []Statement) ([]Result, error) {
	s.stats.Batches.Add(1)
	s.stats.BatchStatements.Add(int64(len(stmts)))
	start := time.Now()
	res, err := s.Executor.ExecuteBatch(ctx, stmts)

	query := ""
	if len(stmts) > 0 {
		query = stmts[0].SQL
	}
	s.record(ctx, query, time.Since(start), err)
	return res, err
}

func (s *StatsExecutor) Query(ctx context.Context, stmt Statement) ([]map[string]any, error) {
	s.stats.Queries.Add(1)
	start := time.Now()
	rows, err := s.Executor.Query(ctx, stmt)
	s.record(ctx, stmt.SQL, time.Since(start), err)
	return rows, err
}

func (s *StatsExecutor) record(ctx context.Context, query string, duration time.Duration, err error) {
	s.stats.TotalDuration.Add(int64(duration))
	if err != nil {
		s.stats.Errors.Add(1)
	}
	if s.slowThreshold > 0 && duration > s.slowThreshold {
		s.stats.SlowStatements.Add(1)
		s.logger.WarnContext(ctx, "slow statement detected", "duration", duration, "sql", query)
	}
}

type statsTransaction struct {
	*StatsExecutor
	tx Transaction
}

func (t *statsTransaction) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *statsTransaction) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}
