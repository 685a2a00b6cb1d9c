package dal

import (
	"context"
	"fmt"
	"log/slog"
)

// Repository is the table-level data access API implemented by TableDao.
type Repository[T any] interface {
	QueryByPk(ctx context.Context, key any, hints *Hints) (*T, error)
	QueryByPkSample(ctx context.Context, sample *T, hints *Hints) (*T, error)
	QueryLike(ctx context.Context, sample *T, hints *Hints) ([]*T, error)
	QueryByFilter(ctx context.Context, filter map[string]any, hints *Hints) ([]*T, error)
	Query(ctx context.Context, where string, params *Parameters, hints *Hints) ([]*T, error)
	QueryFirst(ctx context.Context, where string, params *Parameters, hints *Hints) (*T, error)
	QueryTop(ctx context.Context, where string, params *Parameters, n int, hints *Hints) ([]*T, error)
	QueryFrom(ctx context.Context, where string, params *Parameters, start, count int, hints *Hints) ([]*T, error)
	Count(ctx context.Context, where string, params *Parameters, hints *Hints) (int64, error)
	SQLQuery(ctx context.Context, query string, params *Parameters, hints *Hints) ([]*T, error)

	Insert(ctx context.Context, rec *T, holder *KeyHolder, hints *Hints) (int, error)
	InsertList(ctx context.Context, recs []*T, holder *KeyHolder, hints *Hints) ([]int, error)
	CombinedInsert(ctx context.Context, recs []*T, holder *KeyHolder, hints *Hints) (int, error)
	BatchInsert(ctx context.Context, recs []*T, hints *Hints) ([]int, error)
	Update(ctx context.Context, rec *T, hints *Hints) (int, error)
	UpdateList(ctx context.Context, recs []*T, hints *Hints) ([]int, error)
	BatchUpdate(ctx context.Context, recs []*T, hints *Hints) ([]int, error)
	Delete(ctx context.Context, rec *T, hints *Hints) (int, error)
	DeleteList(ctx context.Context, recs []*T, hints *Hints) ([]int, error)
	BatchDelete(ctx context.Context, recs []*T, hints *Hints) ([]int, error)
	DeleteWhere(ctx context.Context, where string, params *Parameters, hints *Hints) (int, error)
	SQLExec(ctx context.Context, query string, params *Parameters, hints *Hints) (int, error)

	Begin(ctx context.Context) (Transaction, error)
	TableDef() TableDef
}

type dialectProvider interface {
	Dialect() Dialect
}

type transactor interface {
	Begin(ctx context.Context) (Transaction, error)
}

// TableDao reads and writes the records of one table. It holds no per-call
// state and may be shared between goroutines.
type TableDao[T any] struct {
	parser  Parser[T]
	exec    Executor
	builder *Builder
	coord   coordinator
	logger  *slog.Logger
}

var _ Repository[struct{}] = (*TableDao[struct{}])(nil)

// NewTableDao binds a parser to an executor. The dialect is taken from the
// executor unless WithDialect is given.
func NewTableDao[T any](parser Parser[T], exec Executor, options ...DaoOption) (*TableDao[T], error) {
	if parser == nil || exec == nil {
		return nil, invalidArg("parser and executor are required")
	}

	opt := &daoOption{}
	for _, op := range options {
		op(opt)
	}

	var dialect Dialect
	if opt.dialect != nil {
		dialect = *opt.dialect
	} else if dp, ok := exec.(dialectProvider); ok {
		dialect = dp.Dialect()
	} else {
		return nil, invalidArg("cannot tell the dialect of %T, use WithDialect", exec)
	}
	if dialect.Limit == nil {
		return nil, invalidArg("incomplete dialect %q", dialect.Name)
	}

	logger := opt.logger
	if logger == nil {
		logger = slog.Default()
	}

	def := parser.TableDef()
	return &TableDao[T]{
		parser:  parser,
		exec:    exec,
		builder: NewBuilder(def, dialect),
		coord:   coordinator{table: def.FullTableName(), identity: def.Identity, logger: logger},
		logger:  logger,
	}, nil
}

func (d *TableDao[T]) TableDef() TableDef {
	return d.builder.TableDef()
}

func (d *TableDao[T]) Builder() *Builder {
	return d.builder
}

// Begin starts a transaction on the underlying executor. Pass it to calls with
// WithTransaction; the caller commits or rolls back.
func (d *TableDao[T]) Begin(ctx context.Context) (Transaction, error) {
	t, ok := d.exec.(transactor)
	if !ok {
		return nil, fmt.Errorf("executor %T does not support transactions", d.exec)
	}
	return t.Begin(ctx)
}

func (d *TableDao[T]) executor(hints *Hints) Executor {
	if tx := hints.Transaction(); tx != nil {
		return tx
	}
	return d.exec
}

// selectBuilder applies the sort hint to the builder.
func (d *TableDao[T]) selectBuilder(hints *Hints) (*Builder, error) {
	if len(hints.Sort()) == 0 {
		return d.builder, nil
	}
	return d.builder.OrderBy(hints.Sort()...)
}

func (d *TableDao[T]) callContext(ctx context.Context, hints *Hints) (context.Context, context.CancelFunc) {
	if timeout := hints.Timeout(); timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// QueryByPk looks a record up by primary key. key is the value of a single-column
// key, a []any ordered like the key columns, or a column -> value map. A missing
// record is not an error: it returns nil, nil.
func (d *TableDao[T]) QueryByPk(ctx context.Context, key any, hints *Hints) (*T, error) {
	keys, err := d.keyMap(key)
	if err != nil {
		return nil, err
	}
	return d.queryByKeys(ctx, keys, hints)
}

func (d *TableDao[T]) QueryByPkSample(ctx context.Context, sample *T, hints *Hints) (*T, error) {
	if sample == nil {
		return nil, invalidArg("nil sample")
	}
	keys, err := d.parser.PrimaryKeys(sample)
	if err != nil {
		return nil, err
	}
	return d.queryByKeys(ctx, keys, hints)
}

func (d *TableDao[T]) queryByKeys(ctx context.Context, keys map[string]any, hints *Hints) (*T, error) {
	stmt, err := d.builder.ByPrimaryKey(keys)
	if err != nil {
		return nil, err
	}

	recs, err := d.query(ctx, "queryByPk", stmt, hints)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

func (d *TableDao[T]) keyMap(key any) (map[string]any, error) {
	pks := d.builder.TableDef().PrimaryKeys
	switch k := key.(type) {
	case nil:
		return nil, invalidArg("nil primary key")
	case map[string]any:
		return k, nil
	case []any:
		if len(k) != len(pks) {
			return nil, invalidArg("%d key values for %d primary key columns", len(k), len(pks))
		}
		keys := make(map[string]any, len(pks))
		for i, name := range pks {
			keys[name] = k[i]
		}
		return keys, nil
	default:
		if len(pks) != 1 {
			return nil, invalidArg("table %s has %d primary key columns, a single value is not enough",
				d.builder.TableDef().Name, len(pks))
		}
		return map[string]any{pks[0]: key}, nil
	}
}

// QueryLike returns the records equal to every non-null field of sample. A
// sample with no field set matches every row.
func (d *TableDao[T]) QueryLike(ctx context.Context, sample *T, hints *Hints) ([]*T, error) {
	if sample == nil {
		return nil, invalidArg("nil sample")
	}
	fields, err := d.parser.Fields(sample)
	if err != nil {
		return nil, err
	}
	return d.QueryByFilter(ctx, fields, hints)
}

// QueryByFilter matches column -> value pairs; slice values become IN lists.
// FilterNullFrom and FilterStringContainsFrom values test for NULL and for a
// substring.
func (d *TableDao[T]) QueryByFilter(ctx context.Context, filter map[string]any, hints *Hints) ([]*T, error) {
	b, err := d.selectBuilder(hints)
	if err != nil {
		return nil, err
	}
	stmt, err := b.BySample(filter)
	if err != nil {
		return nil, err
	}
	return d.query(ctx, "queryLike", stmt, hints)
}

// Query runs a select with a caller-written where clause. No match gives an
// empty slice.
func (d *TableDao[T]) Query(ctx context.Context, where string, params *Parameters, hints *Hints) ([]*T, error) {
	b, err := d.selectBuilder(hints)
	if err != nil {
		return nil, err
	}
	stmt, err := b.ByWhere(where, params)
	if err != nil {
		return nil, err
	}
	return d.query(ctx, "query", stmt, hints)
}

func (d *TableDao[T]) QueryFirst(ctx context.Context, where string, params *Parameters, hints *Hints) (*T, error) {
	b, err := d.selectBuilder(hints)
	if err != nil {
		return nil, err
	}
	stmt, err := b.First(where, params)
	if err != nil {
		return nil, err
	}

	recs, err := d.query(ctx, "queryFirst", stmt, hints)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: no row of %s matches %q", ErrNotFound, d.builder.TableDef().Name, where)
	}
	return recs[0], nil
}

func (d *TableDao[T]) QueryTop(ctx context.Context, where string, params *Parameters, n int, hints *Hints) ([]*T, error) {
	b, err := d.selectBuilder(hints)
	if err != nil {
		return nil, err
	}
	stmt, err := b.Top(where, params, n)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return []*T{}, nil
	}
	return d.query(ctx, "queryTop", stmt, hints)
}

// QueryFrom returns at most count records starting at the 0-based row start.
func (d *TableDao[T]) QueryFrom(ctx context.Context, where string, params *Parameters, start, count int, hints *Hints) ([]*T, error) {
	b, err := d.selectBuilder(hints)
	if err != nil {
		return nil, err
	}
	stmt, err := b.Range(where, params, start, count)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return []*T{}, nil
	}
	return d.query(ctx, "queryFrom", stmt, hints)
}

func (d *TableDao[T]) Count(ctx context.Context, where string, params *Parameters, hints *Hints) (int64, error) {
	stmt, err := d.builder.Count(where, params)
	if err != nil {
		return 0, err
	}

	rows, err := d.rows(ctx, "count", stmt, hints)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	for _, v := range rows[0] {
		return toInt64(v)
	}
	return 0, nil
}

// SQLQuery runs caller-written select text and maps the rows into records.
func (d *TableDao[T]) SQLQuery(ctx context.Context, query string, params *Parameters, hints *Hints) ([]*T, error) {
	return d.query(ctx, "sqlQuery", d.builder.Raw(query, params), hints)
}

func (d *TableDao[T]) query(ctx context.Context, op string, stmt Statement, hints *Hints) ([]*T, error) {
	rows, err := d.rows(ctx, op, stmt, hints)
	if err != nil {
		return nil, err
	}

	recs := make([]*T, 0, len(rows))
	for _, row := range rows {
		rec, err := d.parser.Map(row)
		if err != nil {
			return nil, fmt.Errorf("map %s row: %w", d.builder.TableDef().Name, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (d *TableDao[T]) rows(ctx context.Context, op string, stmt Statement, hints *Hints) ([]map[string]any, error) {
	ctx, cancel := d.callContext(ctx, hints)
	defer cancel()

	rows, err := d.executor(hints).Query(ctx, stmt)
	if err != nil {
		return nil, execFailure(-1, err)
	}

	d.logger.DebugContext(ctx, "query executed", "op", op, "table", d.coord.table,
		"sql", stmt.SQL, "rows", len(rows))
	return rows, nil
}

// Insert writes one record. With a holder, the generated key is appended to it.
func (d *TableDao[T]) Insert(ctx context.Context, rec *T, holder *KeyHolder, hints *Hints) (int, error) {
	if rec == nil {
		return 0, invalidArg("nil record")
	}
	counts, err := d.InsertList(ctx, []*T{rec}, holder, hints)
	return Sum(counts), err
}

// InsertList writes the records one statement at a time. Each record only binds
// the columns it sets.
func (d *TableDao[T]) InsertList(ctx context.Context, recs []*T, holder *KeyHolder, hints *Hints) ([]int, error) {
	fieldsList, err := d.fieldsOf(recs)
	if err != nil {
		return nil, err
	}

	stmts := make([]Statement, len(fieldsList))
	for i, fields := range fieldsList {
		if stmts[i], err = d.builder.Insert(fields, holder != nil); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}

	return d.write(ctx, writeCall{op: "insert", mode: rowByRow, stmts: stmts, holder: holder, hints: hints})
}

// CombinedInsert writes all records with a single multi-row INSERT. It either
// writes every record or none.
func (d *TableDao[T]) CombinedInsert(ctx context.Context, recs []*T, holder *KeyHolder, hints *Hints) (int, error) {
	fieldsList, err := d.fieldsOf(recs)
	if err != nil || len(fieldsList) == 0 {
		return 0, err
	}

	stmt, err := d.builder.CombinedInsert(fieldsList, holder != nil)
	if err != nil {
		return 0, err
	}

	counts, err := d.write(ctx, writeCall{op: "combinedInsert", mode: combined, stmts: []Statement{stmt}, holder: holder, hints: hints})
	return Sum(counts), err
}

// BatchInsert submits one INSERT per record as a single batch. All statements
// share the column list so the executor can prepare it once.
func (d *TableDao[T]) BatchInsert(ctx context.Context, recs []*T, hints *Hints) ([]int, error) {
	fieldsList, err := d.fieldsOf(recs)
	if err != nil {
		return nil, err
	}

	cols := d.builder.InsertColumns(fieldsList...)
	stmts := make([]Statement, len(fieldsList))
	for i, fields := range fieldsList {
		if stmts[i], err = d.builder.InsertWith(cols, fields, false); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}

	return d.write(ctx, writeCall{op: "batchInsert", mode: trueBatch, stmts: stmts, hints: hints})
}

func (d *TableDao[T]) Update(ctx context.Context, rec *T, hints *Hints) (int, error) {
	if rec == nil {
		return 0, invalidArg("nil record")
	}
	counts, err := d.UpdateList(ctx, []*T{rec}, hints)
	return Sum(counts), err
}

func (d *TableDao[T]) UpdateList(ctx context.Context, recs []*T, hints *Hints) ([]int, error) {
	stmts, err := d.updates(recs, hints)
	if err != nil {
		return nil, err
	}
	return d.write(ctx, writeCall{op: "update", mode: rowByRow, stmts: stmts, hints: hints})
}

func (d *TableDao[T]) BatchUpdate(ctx context.Context, recs []*T, hints *Hints) ([]int, error) {
	stmts, err := d.updates(recs, hints)
	if err != nil {
		return nil, err
	}
	return d.write(ctx, writeCall{op: "batchUpdate", mode: trueBatch, stmts: stmts, hints: hints})
}

func (d *TableDao[T]) updates(recs []*T, hints *Hints) ([]Statement, error) {
	fieldsList, err := d.fieldsOf(recs)
	if err != nil {
		return nil, err
	}

	stmts := make([]Statement, len(recs))
	for i, rec := range recs {
		keys, err := d.parser.PrimaryKeys(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if stmts[i], err = d.builder.Update(fieldsList[i], keys, hints.IsIgnoreNullFields()); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return stmts, nil
}

func (d *TableDao[T]) Delete(ctx context.Context, rec *T, hints *Hints) (int, error) {
	if rec == nil {
		return 0, invalidArg("nil record")
	}
	counts, err := d.DeleteList(ctx, []*T{rec}, hints)
	return Sum(counts), err
}

func (d *TableDao[T]) DeleteList(ctx context.Context, recs []*T, hints *Hints) ([]int, error) {
	stmts, err := d.deletes(recs)
	if err != nil {
		return nil, err
	}
	return d.write(ctx, writeCall{op: "delete", mode: rowByRow, stmts: stmts, hints: hints})
}

func (d *TableDao[T]) BatchDelete(ctx context.Context, recs []*T, hints *Hints) ([]int, error) {
	stmts, err := d.deletes(recs)
	if err != nil {
		return nil, err
	}
	return d.write(ctx, writeCall{op: "batchDelete", mode: trueBatch, stmts: stmts, hints: hints})
}

func (d *TableDao[T]) deletes(recs []*T) ([]Statement, error) {
	if recs == nil {
		return nil, invalidArg("nil record list")
	}

	stmts := make([]Statement, len(recs))
	for i, rec := range recs {
		if rec == nil {
			return nil, invalidArg("nil record at %d", i)
		}
		keys, err := d.parser.PrimaryKeys(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if stmts[i], err = d.builder.Delete(keys); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return stmts, nil
}

// DeleteWhere deletes the rows matching where, which must not be empty.
func (d *TableDao[T]) DeleteWhere(ctx context.Context, where string, params *Parameters, hints *Hints) (int, error) {
	stmt, err := d.builder.DeleteWhere(where, params)
	if err != nil {
		return 0, err
	}

	counts, err := d.write(ctx, writeCall{op: "deleteWhere", mode: combined, stmts: []Statement{stmt}, hints: hints})
	return Sum(counts), err
}

// SQLExec runs caller-written insert, update or delete text.
func (d *TableDao[T]) SQLExec(ctx context.Context, query string, params *Parameters, hints *Hints) (int, error) {
	stmt := d.builder.Raw(query, params)
	counts, err := d.write(ctx, writeCall{op: "sqlExec", mode: combined, stmts: []Statement{stmt}, hints: hints})
	return Sum(counts), err
}

func (d *TableDao[T]) write(ctx context.Context, call writeCall) ([]int, error) {
	ctx, cancel := d.callContext(ctx, call.hints)
	defer cancel()

	return d.coord.run(ctx, d.executor(call.hints), call)
}

func (d *TableDao[T]) fieldsOf(recs []*T) ([]map[string]any, error) {
	if recs == nil {
		return nil, invalidArg("nil record list")
	}

	list := make([]map[string]any, len(recs))
	for i, rec := range recs {
		if rec == nil {
			return nil, invalidArg("nil record at %d", i)
		}
		fields, err := d.parser.Fields(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		list[i] = fields
	}
	return list, nil
}
