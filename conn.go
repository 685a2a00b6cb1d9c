package dal

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"gopkg.in/yaml.v3"
)

// Config describes one logical database.
type Config struct {
	Driver          string            `yaml:"driver"`
	DSN             string            `yaml:"dsn,omitempty"`
	Host            string            `yaml:"host,omitempty"`
	Port            int               `yaml:"port,omitempty"`
	Database        string            `yaml:"database,omitempty"`
	User            string            `yaml:"user,omitempty"`
	Password        string            `yaml:"password,omitempty"`
	Params          map[string]string `yaml:"params,omitempty"`
	MaxOpenConns    int               `yaml:"max_open_conns,omitempty"`
	MaxIdleConns    int               `yaml:"max_idle_conns,omitempty"`
	ConnMaxLifetime time.Duration     `yaml:"conn_max_lifetime,omitempty"`
}

// Datasources maps logical database names to their config.
type Datasources map[string]Config

func (ds Datasources) Get(name string) (Config, error) {
	cfg, ok := ds[name]
	if !ok {
		return Config{}, fmt.Errorf("%w: unknown datasource %q", ErrNotFound, name)
	}
	return cfg, nil
}

// LoadConfig reads a yaml document of the form
//
//	datasources:
//	  orders:
//	    driver: mysql
//	    host: db1
//	    database: orders
func LoadConfig(r io.Reader) (Datasources, error) {
	var doc struct {
		Datasources Datasources `yaml:"datasources"`
	}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode datasource config: %w", err)
	}

	for name, cfg := range doc.Datasources {
		if _, err := DialectFor(cfg.Driver); err != nil {
			return nil, fmt.Errorf("datasource %s: %w", name, err)
		}
	}
	return doc.Datasources, nil
}

// DataSourceName returns DSN when set, otherwise builds one for the driver.
func (c Config) DataSourceName() (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}

	dialect, err := DialectFor(c.Driver)
	if err != nil {
		return "", err
	}

	switch dialect.Name {
	case MySQL.Name:
		mc := mysql.NewConfig()
		mc.User = c.User
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.port(3306)))
		mc.DBName = c.Database
		mc.ParseTime = true
		if len(c.Params) > 0 {
			mc.Params = c.Params
		}
		return mc.FormatDSN(), nil

	case Postgres.Name:
		query := url.Values{}
		query.Set("sslmode", "disable")
		for k, v := range c.Params {
			query.Set(k, v)
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.User, c.Password),
			Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.port(5432))),
			Path:     "/" + c.Database,
			RawQuery: query.Encode(),
		}
		return u.String(), nil

	case SQLite.Name:
		if c.Database == "" {
			return "", invalidArg("sqlite datasource needs a database path")
		}
		if len(c.Params) == 0 {
			return c.Database, nil
		}
		keys := make([]string, 0, len(c.Params))
		for k := range c.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := Map(keys, func(k string) string { return url.QueryEscape(k) + "=" + url.QueryEscape(c.Params[k]) })
		return c.Database + "?" + strings.Join(pairs, "&"), nil
	}

	return "", invalidArg("cannot build a DSN for driver %q, set dsn", c.Driver)
}

func (c Config) port(def int) int {
	if c.Port > 0 {
		return c.Port
	}
	return def
}

// sqlDriverName maps a configured driver name to the registered database/sql
// driver.
func sqlDriverName(driver string) string {
	switch strings.ToLower(driver) {
	case "sqlite3":
		return "sqlite"
	case "pgx/v5":
		return "pgx"
	case "pq":
		return "postgres"
	}
	return strings.ToLower(driver)
}

// Connect opens and pings the database described by cfg and applies its pool
// limits.
func Connect(ctx context.Context, cfg Config) (*sqlx.DB, Dialect, error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, Dialect{}, err
	}

	dsn, err := cfg.DataSourceName()
	if err != nil {
		return nil, Dialect{}, err
	}

	db, err := sqlx.ConnectContext(ctx, sqlDriverName(cfg.Driver), dsn)
	if err != nil {
		return nil, Dialect{}, fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return db, dialect, nil
}

// Open connects and wraps the database in an SQLExecutor.
func Open(ctx context.Context, cfg Config) (*SQLExecutor, error) {
	db, dialect, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewSQLExecutor(db, dialect), nil
}

// ConnectPgxPool opens a native pgx pool for a postgres datasource.
func ConnectPgxPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if dialect.Name != Postgres.Name {
		return nil, invalidArg("pgx pool needs a postgres datasource, got %q", cfg.Driver)
	}

	dsn, err := cfg.DataSourceName()
	if err != nil {
		return nil, err
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pgx config: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		config.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		config.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect pgx pool: %w", err)
	}
	return pool, nil
}
