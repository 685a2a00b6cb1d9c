package dal

import (
	"log/slog"
	"time"
)

type DaoOption func(o *daoOption)

type daoOption struct {
	dialect *Dialect
	logger  *slog.Logger
}

// WithDialect overrides the dialect otherwise taken from the executor.
func WithDialect(d Dialect) DaoOption {
	return func(o *daoOption) {
		o.dialect = &d
	}
}

func WithLogger(logger *slog.Logger) DaoOption {
	return func(o *daoOption) {
		o.logger = logger
	}
}

type HintOption func(h *Hints)

// Hints carries per-call execution flags. It is built by the caller before the
// call and only read while the call runs. A nil *Hints means all defaults.
type Hints struct {
	continueOnError  bool
	ignoreNullFields bool
	tx               Transaction
	timeout          time.Duration
	sort             []string
}

func NewHints(options ...HintOption) *Hints {
	h := &Hints{}
	for _, op := range options {
		op(h)
	}
	return h
}

// ContinueOnError makes row-by-row writes record a failing row as 0 affected
// and go on with the next row instead of aborting the call.
func ContinueOnError() HintOption {
	return func(h *Hints) {
		h.continueOnError = true
	}
}

// WithTransaction runs the call on a transaction owned by the caller.
func WithTransaction(tx Transaction) HintOption {
	return func(h *Hints) {
		h.tx = tx
	}
}

// IgnoreNullFields makes updates set only the non-null fields of a record.
func IgnoreNullFields() HintOption {
	return func(h *Hints) {
		h.ignoreNullFields = true
	}
}

// WithTimeout bounds the whole call with a context deadline.
func WithTimeout(d time.Duration) HintOption {
	return func(h *Hints) {
		h.timeout = d
	}
}

// SortBy orders the rows of the select queries except QueryByPk and Count,
// e.g. SortBy("type", "-id").
func SortBy(sorter ...string) HintOption {
	return func(h *Hints) {
		h.sort = append(h.sort, sorter...)
	}
}

func (h *Hints) IsContinueOnError() bool {
	return h != nil && h.continueOnError
}

func (h *Hints) IsIgnoreNullFields() bool {
	return h != nil && h.ignoreNullFields
}

func (h *Hints) Transaction() Transaction {
	if h == nil {
		return nil
	}
	return h.tx
}

func (h *Hints) Timeout() time.Duration {
	if h == nil {
		return 0
	}
	return h.timeout
}

func (h *Hints) Sort() []string {
	if h == nil {
		return nil
	}
	return h.sort
}
