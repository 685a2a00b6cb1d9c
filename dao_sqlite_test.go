package dal

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v4"
)

const createClientTable = `CREATE TABLE dal_client_test (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	quantity     INTEGER,
	type         INTEGER,
	address      VARCHAR(64) NOT NULL CHECK (length(address) <= 64),
	last_changed TIMESTAMP
)`

type client struct {
	DBTable `name:"dal_client_test"`

	ID          null.Int    `db:"id,key auto"`
	Quantity    null.Int    `db:"quantity"`
	Type        null.Int    `db:"type"`
	Address     null.String `db:"address,size=64 notnull"`
	LastChanged null.Time   `db:"last_changed"`
}

func newClient(quantity, typ int64, address string) *client {
	return &client{
		Quantity: null.IntFrom(quantity),
		Type:     null.IntFrom(typ),
		Address:  null.StringFrom(address),
	}
}

func typeIs(typ int64) *Parameters {
	return NewParameters().Add(TypeInteger, typ)
}

func newClientDao(t *testing.T) *TableDao[client] {
	t.Helper()
	ctx := context.Background()

	exec, err := Open(ctx, Config{Driver: "sqlite", Database: ":memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { exec.DB().Close() })

	db := exec.DB()
	db.MustExecContext(ctx, createClientTable)
	db.MustExecContext(ctx, `INSERT INTO dal_client_test (id, quantity, type, address) VALUES
		(1, 10, 1, 'SH INFO'), (2, 11, 1, 'BJ INFO'), (3, 12, 2, 'SZ INFO'), (4, 12, 1, 'HK INFO')`)

	parser, err := NewTagParser[client]()
	require.NoError(t, err)

	dao, err := NewTableDao[client](parser, exec)
	require.NoError(t, err)
	return dao
}

func countRows(t *testing.T, dao *TableDao[client], where string, params *Parameters) int64 {
	t.Helper()
	n, err := dao.Count(context.Background(), where, params, nil)
	require.NoError(t, err)
	return n
}

func TestSQLiteQueryByPk(t *testing.T) {
	dao := newClientDao(t)
	ctx := context.Background()

	rec, err := dao.QueryByPk(ctx, 1, nil)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "SH INFO", rec.Address.String)
	assert.Equal(t, int64(10), rec.Quantity.Int64)
	assert.False(t, rec.LastChanged.Valid)

	rec, err = dao.QueryByPkSample(ctx, &client{ID: null.IntFrom(3)}, nil)
	require.NoError(t, err)
	assert.Equal(t, "SZ INFO", rec.Address.String)

	rec, err = dao.QueryByPk(ctx, 100, nil)
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = dao.QueryByPkSample(ctx, &client{}, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

type plainClient struct {
	DBTable `name:"dal_client_test"`

	ID       int64 `db:"id,key auto"`
	Quantity int64
	Type     int64
	Address  string `db:"address,size=64 notnull"`
}

func TestSQLitePlainFields(t *testing.T) {
	clients := newClientDao(t)
	ctx := context.Background()

	parser, err := NewTagParser[plainClient]()
	require.NoError(t, err)
	dao, err := NewTableDao[plainClient](parser, clients.exec)
	require.NoError(t, err)

	recs, err := dao.QueryLike(ctx, &plainClient{Type: 1}, nil)
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	rec, err := dao.QueryByPkSample(ctx, &plainClient{ID: 3}, nil)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "SZ INFO", rec.Address)
	assert.Equal(t, int64(12), rec.Quantity)

	_, err = dao.QueryByPkSample(ctx, &plainClient{}, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = dao.Delete(ctx, &plainClient{Address: "SZ INFO"}, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = dao.Update(ctx, &plainClient{Quantity: 5, Address: "SZ INFO"}, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, int64(4), countRows(t, clients, "", nil))

	n, err := dao.Delete(ctx, &plainClient{ID: 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(3), countRows(t, clients, "", nil))
}

func TestSQLiteQueries(t *testing.T) {
	dao := newClientDao(t)
	ctx := context.Background()

	recs, err := dao.QueryLike(ctx, &client{Type: null.IntFrom(1)}, nil)
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	recs, err = dao.QueryByFilter(ctx, map[string]any{"id": []int64{1, 3}}, nil)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	recs, err = dao.Query(ctx, "type = ?", typeIs(1), nil)
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	recs, err = dao.Query(ctx, "type = ?", typeIs(10), nil)
	require.NoError(t, err)
	assert.Empty(t, recs)

	first, err := dao.QueryFirst(ctx, "type = ? ORDER BY id", typeIs(1), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.ID.Int64)

	_, err = dao.QueryFirst(ctx, "type = ?", typeIs(10), nil)
	assert.ErrorIs(t, err, ErrNotFound)

	recs, err = dao.SQLQuery(ctx, "SELECT * FROM dal_client_test WHERE quantity = ?", NewParameters().Add(TypeInteger, 12), nil)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestSQLiteFiltersAndSorting(t *testing.T) {
	dao := newClientDao(t)
	ctx := context.Background()

	recs, err := dao.QueryByFilter(ctx, map[string]any{"address": FilterStringContainsFrom("Z IN")}, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "SZ INFO", recs[0].Address.String)

	recs, err = dao.QueryByFilter(ctx, map[string]any{"last_changed": FilterNullFrom(true), "type": int64(1)}, nil)
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	recs, err = dao.QueryByFilter(ctx, map[string]any{"last_changed": FilterNullFrom(false)}, nil)
	require.NoError(t, err)
	assert.Empty(t, recs)

	recs, err = dao.QueryTop(ctx, "type = ?", typeIs(1), 2, NewHints(SortBy("-id")))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(4), recs[0].ID.Int64)
	assert.Equal(t, int64(2), recs[1].ID.Int64)

	recs, err = dao.QueryFrom(ctx, "", nil, 1, 2, NewHints(SortBy("-quantity", "id")))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(4), recs[0].ID.Int64)
	assert.Equal(t, int64(2), recs[1].ID.Int64)

	_, err = dao.Query(ctx, "", nil, NewHints(SortBy("email")))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSQLiteTopAndRange(t *testing.T) {
	dao := newClientDao(t)
	ctx := context.Background()

	recs, err := dao.QueryTop(ctx, "type = ?", typeIs(1), 2, nil)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	recs, err = dao.QueryTop(ctx, "type = ?", typeIs(1), 10, nil)
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	recs, err = dao.QueryFrom(ctx, "type = ? ORDER BY id", typeIs(1), 0, 10, nil)
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	recs, err = dao.QueryFrom(ctx, "type = ? ORDER BY id", typeIs(1), 2, 10, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(4), recs[0].ID.Int64)

	recs, err = dao.QueryFrom(ctx, "type = ?", typeIs(1), 10, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSQLiteInsertListContinueOnError(t *testing.T) {
	dao := newClientDao(t)
	ctx := context.Background()

	recs := []*client{
		newClient(20, 3, "CQ INFO"),
		newClient(21, 3, strings.Repeat("x", 70)),
		newClient(22, 3, "WH INFO"),
	}

	holder := NewKeyHolder()
	counts, err := dao.InsertList(ctx, recs, holder, NewHints(ContinueOnError()))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0, 1}, counts)
	assert.Equal(t, 2, Sum(counts))
	assert.Equal(t, 2, holder.Size())
	assert.Equal(t, int64(6), countRows(t, dao, "", nil))

	keys, err := holder.Int64Keys()
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 6}, keys)
}

func TestSQLiteInsertListStops(t *testing.T) {
	dao := newClientDao(t)

	recs := []*client{
		newClient(20, 3, "CQ INFO"),
		newClient(21, 3, strings.Repeat("x", 70)),
		newClient(22, 3, "WH INFO"),
	}

	counts, err := dao.InsertList(context.Background(), recs, nil, nil)
	assert.ErrorIs(t, err, ErrExecution)
	assert.Equal(t, []int{1}, counts)
	assert.Equal(t, int64(5), countRows(t, dao, "", nil))
}

func TestSQLiteInsertKeys(t *testing.T) {
	dao := newClientDao(t)
	ctx := context.Background()

	holder := NewKeyHolder()
	rec := newClient(30, 4, "GZ INFO")
	n, err := dao.Insert(ctx, rec, holder, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	key, err := holder.Key(0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), key)

	stored, err := dao.QueryByPk(ctx, key, nil)
	require.NoError(t, err)
	rec.ID = null.IntFrom(5)
	assert.Equal(t, rec, stored)

	holder.Clear()
	counts, err := dao.InsertList(ctx, []*client{newClient(1, 4, "A"), newClient(2, 4, "B"), newClient(3, 4, "C")}, holder, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, Sum(counts))
	assert.Equal(t, 3, holder.Size())
}

func TestSQLiteCombinedInsert(t *testing.T) {
	dao := newClientDao(t)

	holder := NewKeyHolder()
	recs := []*client{newClient(1, 5, "A"), newClient(2, 5, "B"), newClient(3, 5, "C")}
	n, err := dao.CombinedInsert(context.Background(), recs, holder, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	keys, err := holder.Int64Keys()
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 6, 7}, keys)

	recs = []*client{newClient(1, 5, "D"), newClient(2, 5, strings.Repeat("x", 70))}
	_, err = dao.CombinedInsert(context.Background(), recs, nil, NewHints(ContinueOnError()))
	assert.ErrorIs(t, err, ErrExecution)
	assert.Equal(t, int64(3), countRows(t, dao, "type = ?", typeIs(5)))
}

func TestSQLiteBatchInsert(t *testing.T) {
	dao := newClientDao(t)

	recs := []*client{newClient(1, 6, "A"), newClient(2, 6, "B"), newClient(3, 6, "C")}
	counts, err := dao.BatchInsert(context.Background(), recs, nil)
	require.NoError(t, err)
	assert.Len(t, counts, 3)
	assert.Equal(t, 3, Sum(counts))
	assert.Equal(t, int64(3), countRows(t, dao, "id > ?", NewParameters().Add(TypeBigInt, 4)))

	recs = []*client{newClient(4, 6, "D"), newClient(5, 6, strings.Repeat("x", 70))}
	_, err = dao.BatchInsert(context.Background(), recs, nil)
	assert.ErrorIs(t, err, ErrExecution)
	assert.Equal(t, int64(3), countRows(t, dao, "type = ?", typeIs(6)))
}

func TestSQLiteUpdate(t *testing.T) {
	dao := newClientDao(t)
	ctx := context.Background()

	rec, err := dao.QueryByPk(ctx, 1, nil)
	require.NoError(t, err)
	rec.Address = null.StringFrom("SH INFO 2")

	n, err := dao.Update(ctx, rec, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, err = dao.QueryByPk(ctx, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "SH INFO 2", rec.Address.String)
	assert.Equal(t, int64(10), rec.Quantity.Int64)

	partial := &client{ID: null.IntFrom(2), Quantity: null.IntFrom(99)}
	n, err = dao.Update(ctx, partial, NewHints(IgnoreNullFields()))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, err = dao.QueryByPk(ctx, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(99), rec.Quantity.Int64)
	assert.Equal(t, "BJ INFO", rec.Address.String)

	recs, err := dao.Query(ctx, "type = ?", typeIs(1), nil)
	require.NoError(t, err)
	for _, r := range recs {
		r.Quantity = null.IntFrom(0)
	}
	counts, err := dao.BatchUpdate(ctx, recs, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1}, counts)
	assert.Equal(t, int64(3), countRows(t, dao, "quantity = ?", NewParameters().Add(TypeInteger, 0)))

	counts, err = dao.UpdateList(ctx, []*client{{ID: null.IntFrom(100), Address: null.StringFrom("none")}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, counts)
}

func TestSQLiteDeletes(t *testing.T) {
	dao := newClientDao(t)
	ctx := context.Background()

	n, err := dao.Delete(ctx, &client{ID: null.IntFrom(4)}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	counts, err := dao.BatchDelete(ctx, []*client{{ID: null.IntFrom(1)}, {ID: null.IntFrom(2)}, {ID: null.IntFrom(3)}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1}, counts)
	assert.Zero(t, countRows(t, dao, "", nil))

	counts, err = dao.DeleteList(ctx, []*client{{ID: null.IntFrom(1)}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, counts)
}

func TestSQLiteDeleteWhere(t *testing.T) {
	dao := newClientDao(t)
	ctx := context.Background()

	n, err := dao.DeleteWhere(ctx, "type = ?", typeIs(1), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Zero(t, countRows(t, dao, "type = ?", typeIs(1)))

	_, err = dao.DeleteWhere(ctx, "", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, int64(1), countRows(t, dao, "", nil))
}

func TestSQLiteTransactionRollback(t *testing.T) {
	dao := newClientDao(t)
	ctx := context.Background()

	tx, err := dao.Begin(ctx)
	require.NoError(t, err)

	hints := NewHints(WithTransaction(tx))
	_, err = dao.Insert(ctx, newClient(1, 7, "TX"), nil, hints)
	require.NoError(t, err)
	_, err = dao.BatchInsert(ctx, []*client{newClient(2, 7, "TX2")}, hints)
	require.NoError(t, err)

	n, err := dao.Count(ctx, "type = ?", typeIs(7), hints)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, tx.Rollback(ctx))
	assert.Zero(t, countRows(t, dao, "type = ?", typeIs(7)))
}

func TestSQLiteSQLExec(t *testing.T) {
	dao := newClientDao(t)

	n, err := dao.SQLExec(context.Background(), "UPDATE dal_client_test SET quantity = quantity + 1 WHERE type = ?", typeIs(1), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = dao.SQLExec(context.Background(), "INSERT INTO dal_client_test (id, address) VALUES (?, ?)",
		NewParameters().Add(TypeBigInt, 1).Add(TypeVarchar, "dup"), nil)
	assert.ErrorIs(t, err, ErrExecution)
}
