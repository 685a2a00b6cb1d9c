package dal

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Statement is one parameterized statement ready for an Executor. SQL already
// uses the dialect's placeholder style.
type Statement struct {
	SQL    string
	Params *Parameters
	// ReturnKeys asks the executor for the identity values the statement generates.
	ReturnKeys bool
	// Rows is the number of row groups an INSERT carries.
	Rows int
}

func (s Statement) Args() ([]any, error) {
	return s.Params.Values()
}

// Builder turns logical operations on one table into statements. It holds only
// immutable configuration and may be shared.
type Builder struct {
	def     TableDef
	dialect Dialect
	columns string
	order   string
}

func NewBuilder(def TableDef, dialect Dialect) *Builder {
	return &Builder{
		def:     def,
		dialect: dialect,
		columns: strings.Join(def.ColumnNames(), ", "),
	}
}

func (b *Builder) TableDef() TableDef {
	return b.def
}

func (b *Builder) Dialect() Dialect {
	return b.dialect
}

// OrderBy returns a copy of the builder whose row selects are sorted by sorter,
// in MakeSortClause notation. Every entry must name a column.
func (b *Builder) OrderBy(sorter ...string) (*Builder, error) {
	fieldMap := make(map[string]string, len(sorter))
	for _, s := range sorter {
		name := s
		if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
			name = s[1:]
		}
		col, ok := b.def.Column(name)
		if !ok {
			return nil, invalidArg("unknown sort column %q for table %s", s, b.def.Name)
		}
		fieldMap[strings.ToLower(name)] = col.Name
	}

	ob := *b
	ob.order = MakeSortClause(sorter, fieldMap)
	return &ob, nil
}

// selectQuery renders the select over clause followed by the builder's ordering.
func (b *Builder) selectQuery(clause string) string {
	query := b.whereQuery(b.selectPrefix(), clause)
	if b.order != "" {
		query += " ORDER BY " + b.order
	}
	return query
}

func (b *Builder) selectPrefix() string {
	return fmt.Sprintf("SELECT %s FROM %s", b.columns, b.def.FullTableName())
}

func (b *Builder) finish(query string, params *Parameters) Statement {
	if params == nil {
		params = NewParameters()
	}
	return Statement{SQL: b.dialect.rebind(query), Params: params}
}

// keyPredicate renders "k1 = ? AND k2 = ?" over the primary key and binds keys.
func (b *Builder) keyPredicate(keys map[string]any, params *Parameters) (string, error) {
	cols := b.def.keyColumns()
	if len(cols) == 0 {
		return "", invalidArg("table %s has no primary key", b.def.Name)
	}

	conds := make([]string, len(cols))
	for i, col := range cols {
		v, ok := lookup(keys, col.Name)
		if !ok || isNull(v) {
			return "", invalidArg("primary key %s of %s is not set", col.Name, b.def.Name)
		}
		conds[i] = col.Name + " = ?"
		params.Add(col.Type, v)
	}

	return strings.Join(conds, " AND "), nil
}

func (b *Builder) ByPrimaryKey(keys map[string]any) (Statement, error) {
	params := NewParameters()
	where, err := b.keyPredicate(keys, params)
	if err != nil {
		return Statement{}, err
	}
	return b.finish(b.selectPrefix()+" WHERE "+where, params), nil
}

// BySample matches rows equal to every non-null field of a sample. A sample with
// no non-null field matches all rows. Slice values become IN lists, FilterNull
// values IS [NOT] NULL tests and FilterStringContains values LIKE matches.
func (b *Builder) BySample(fields map[string]any) (Statement, error) {
	where, args, err := b.whereFromFields(fields)
	if err != nil {
		return Statement{}, err
	}
	return b.finish(b.selectQuery(where), paramsFromValues(args)), nil
}

func (b *Builder) whereFromFields(fields map[string]any) (string, []any, error) {
	for k := range fields {
		if !b.def.HasColumn(k) {
			return "", nil, invalidArg("unknown column %q for table %s", k, b.def.Name)
		}
	}

	var conds []string
	var args []any
	for _, col := range b.def.Columns {
		v, ok := lookup(fields, col.Name)
		if !ok || isNull(v) {
			continue
		}

		if fnull, ok := v.(FilterNull); ok {
			isNot := ""
			if !fnull.IsNull() {
				isNot = "NOT "
			}
			conds = append(conds, fmt.Sprintf("%s IS %sNULL", col.Name, isNot))
			continue
		}

		if fcontain, ok := v.(FilterStringContains); ok {
			conds = append(conds, col.Name+" LIKE ?")
			args = append(args, fcontain.Contains())
			continue
		}

		vval := reflect.ValueOf(v)
		if vval.Kind() == reflect.Slice && vval.Type().Elem().Kind() != reflect.Uint8 {
			if vval.Len() == 0 {
				return "", nil, invalidArg("empty value list for column %s", col.Name)
			}
			conds = append(conds, col.Name+" IN (?)")
		} else {
			conds = append(conds, col.Name+" = ?")
		}
		args = append(args, v)
	}

	if len(conds) == 0 {
		return "", nil, nil
	}

	return sqlx.In(strings.Join(conds, " AND "), args...)
}

func (b *Builder) whereQuery(prefix, clause string) string {
	if strings.TrimSpace(clause) == "" {
		return prefix
	}
	return prefix + " WHERE " + clause
}

// ByWhere appends a caller-supplied where clause verbatim.
func (b *Builder) ByWhere(clause string, params *Parameters) (Statement, error) {
	return b.finish(b.selectQuery(clause), params.Clone()), nil
}

func (b *Builder) Top(clause string, params *Parameters, n int) (Statement, error) {
	if n < 0 {
		return Statement{}, invalidArg("negative row count %d", n)
	}
	query := b.selectQuery(clause) + b.dialect.Limit(0, n)
	return b.finish(query, params.Clone()), nil
}

func (b *Builder) First(clause string, params *Parameters) (Statement, error) {
	return b.Top(clause, params, 1)
}

// Range returns at most count rows starting at the 0-based offset start.
func (b *Builder) Range(clause string, params *Parameters, start, count int) (Statement, error) {
	if start < 0 || count < 0 {
		return Statement{}, invalidArg("invalid range start=%d count=%d", start, count)
	}
	query := b.selectQuery(clause) + b.dialect.Limit(start, count)
	return b.finish(query, params.Clone()), nil
}

func (b *Builder) Count(clause string, params *Parameters) (Statement, error) {
	prefix := fmt.Sprintf("SELECT COUNT(*) FROM %s", b.def.FullTableName())
	return b.finish(b.whereQuery(prefix, clause), params.Clone()), nil
}

// InsertColumns returns the insertable columns set in at least one of the
// records, in table order. When none is set, all insertable columns are used.
func (b *Builder) InsertColumns(fieldsList ...map[string]any) []ColumnInfo {
	all := b.def.InsertColumns()
	cols := Filter(all, func(col ColumnInfo) bool {
		for _, fields := range fieldsList {
			if v, ok := lookup(fields, col.Name); ok && !isNull(v) {
				return true
			}
		}
		return false
	})
	if len(cols) == 0 {
		return all
	}
	return cols
}

// Insert builds a single-row INSERT over the record's non-null columns.
func (b *Builder) Insert(fields map[string]any, returnKeys bool) (Statement, error) {
	return b.InsertWith(b.InsertColumns(fields), fields, returnKeys)
}

// InsertWith builds a single-row INSERT over a fixed column list.
func (b *Builder) InsertWith(cols []ColumnInfo, fields map[string]any, returnKeys bool) (Statement, error) {
	return b.insert(cols, []map[string]any{fields}, returnKeys)
}

// CombinedInsert builds one multi-row INSERT with a VALUES group per record.
func (b *Builder) CombinedInsert(fieldsList []map[string]any, returnKeys bool) (Statement, error) {
	if len(fieldsList) == 0 {
		return Statement{}, invalidArg("combined insert needs at least one record")
	}
	return b.insert(b.InsertColumns(fieldsList...), fieldsList, returnKeys)
}

func (b *Builder) insert(cols []ColumnInfo, fieldsList []map[string]any, returnKeys bool) (Statement, error) {
	if len(cols) == 0 {
		return Statement{}, invalidArg("table %s has no insertable column", b.def.Name)
	}

	params := NewParameters()
	group := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	groups := make([]string, len(fieldsList))
	for i, fields := range fieldsList {
		if fields == nil {
			return Statement{}, invalidArg("nil record at %d", i)
		}
		for _, col := range cols {
			v, _ := lookup(fields, col.Name)
			if isNull(v) {
				v = nil
			}
			params.Add(col.Type, v)
		}
		groups[i] = group
	}

	names := Map(cols, func(c ColumnInfo) string { return c.Name })
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		b.def.FullTableName(), strings.Join(names, ", "), strings.Join(groups, ", "))

	returnKeys = returnKeys && b.def.IsAutoIncrement() && b.dialect.KeyStrategy != KeyNone
	if returnKeys && b.dialect.KeyStrategy == KeyReturning {
		query += " RETURNING " + b.def.Identity
	}

	stmt := b.finish(query, params)
	stmt.ReturnKeys = returnKeys
	stmt.Rows = len(fieldsList)
	return stmt, nil
}

// Update builds an UPDATE keyed by the primary key. The SET list covers every
// non-key column, or only the non-null ones when ignoreNull is set.
func (b *Builder) Update(fields map[string]any, keys map[string]any, ignoreNull bool) (Statement, error) {
	params := NewParameters()
	var sets []string
	for _, col := range b.def.UpdateColumns() {
		v, _ := lookup(fields, col.Name)
		if isNull(v) {
			if ignoreNull {
				continue
			}
			v = nil
		}
		sets = append(sets, col.Name+" = ?")
		params.Add(col.Type, v)
	}

	if len(sets) == 0 {
		return Statement{}, invalidArg("nothing to update in %s", b.def.Name)
	}

	where, err := b.keyPredicate(keys, params)
	if err != nil {
		return Statement{}, err
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", b.def.FullTableName(), strings.Join(sets, ", "), where)
	return b.finish(query, params), nil
}

func (b *Builder) Delete(keys map[string]any) (Statement, error) {
	params := NewParameters()
	where, err := b.keyPredicate(keys, params)
	if err != nil {
		return Statement{}, err
	}
	return b.finish(fmt.Sprintf("DELETE FROM %s WHERE %s", b.def.FullTableName(), where), params), nil
}

// DeleteWhere deletes the rows matching a caller-supplied clause. An empty
// clause is rejected rather than deleting the whole table.
func (b *Builder) DeleteWhere(clause string, params *Parameters) (Statement, error) {
	if strings.TrimSpace(clause) == "" {
		return Statement{}, invalidArg("delete requires a where clause")
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", b.def.FullTableName(), clause)
	return b.finish(query, params.Clone()), nil
}

// Raw wraps caller-written statement text.
func (b *Builder) Raw(query string, params *Parameters) Statement {
	return b.finish(query, params.Clone())
}

// lookup finds a column value by exact name, then case-insensitively.
func lookup(m map[string]any, name string) (any, bool) {
	if v, ok := m[name]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}
