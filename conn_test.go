package dal

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const datasourcesYAML = `
datasources:
  orders:
    driver: mysql
    host: db1
    database: orders
    user: app
    password: secret
    max_open_conns: 20
    conn_max_lifetime: 3m
  billing:
    driver: pgx
    host: pg
    database: billing
    user: app
    password: secret
    params:
      application_name: dal
  cache:
    driver: sqlite
    database: cache.db
    params:
      _pragma: foreign_keys(1)
`

func TestLoadConfig(t *testing.T) {
	ds, err := LoadConfig(strings.NewReader(datasourcesYAML))
	require.NoError(t, err)
	require.Len(t, ds, 3)

	orders, err := ds.Get("orders")
	require.NoError(t, err)
	assert.Equal(t, 20, orders.MaxOpenConns)
	assert.Equal(t, 3*time.Minute, orders.ConnMaxLifetime)

	_, err = ds.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadConfigRejectsUnknownDriver(t *testing.T) {
	_, err := LoadConfig(strings.NewReader("datasources:\n  x:\n    driver: mssql\n"))
	assert.Error(t, err)
}

func TestDataSourceName(t *testing.T) {
	ds, err := LoadConfig(strings.NewReader(datasourcesYAML))
	require.NoError(t, err)

	dsn, err := ds["orders"].DataSourceName()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dsn, "app:secret@tcp(db1:3306)/orders?"), dsn)
	assert.Contains(t, dsn, "parseTime=true")

	dsn, err = ds["billing"].DataSourceName()
	require.NoError(t, err)
	assert.Equal(t, "postgres://app:secret@pg:5432/billing?application_name=dal&sslmode=disable", dsn)

	dsn, err = ds["cache"].DataSourceName()
	require.NoError(t, err)
	assert.Equal(t, "cache.db?_pragma=foreign_keys%281%29", dsn)

	dsn, err = Config{Driver: "mysql", DSN: "user@/db"}.DataSourceName()
	require.NoError(t, err)
	assert.Equal(t, "user@/db", dsn)

	_, err = Config{Driver: "sqlite"}.DataSourceName()
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Config{Driver: "oracle", Host: "ora"}.DataSourceName()
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestConnectSQLite(t *testing.T) {
	db, dialect, err := Connect(context.Background(), Config{Driver: "sqlite3", Database: ":memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, "sqlite", dialect.Name)
	assert.Equal(t, 1, db.Stats().MaxOpenConnections)
}

func TestConnectPgxPoolNeedsPostgres(t *testing.T) {
	_, err := ConnectPgxPool(context.Background(), Config{Driver: "mysql", Host: "db1"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
