package dal

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// KeyStrategy is how a dialect reports identity values generated by an INSERT.
type KeyStrategy int

const (
	// KeyReturning appends RETURNING <identity> and reads one key per row.
	KeyReturning KeyStrategy = iota
	// KeyFirstInsertID reads LastInsertId as the key of the first inserted row.
	KeyFirstInsertID
	// KeyLastInsertID reads LastInsertId as the key of the last inserted row.
	KeyLastInsertID
	KeyNone
)

type Dialect struct {
	Name        string
	BindType    int
	KeyStrategy KeyStrategy
	// Limit renders the suffix returning at most count rows after skipping offset.
	Limit func(offset, count int) string
}

func limitOffset(offset, count int) string {
	if offset > 0 {
		return fmt.Sprintf(" LIMIT %d OFFSET %d", count, offset)
	}
	return fmt.Sprintf(" LIMIT %d", count)
}

func fetchFirst(offset, count int) string {
	if offset > 0 {
		return fmt.Sprintf(" OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", offset, count)
	}
	return fmt.Sprintf(" FETCH FIRST %d ROWS ONLY", count)
}

var (
	MySQL = Dialect{
		Name:        "mysql",
		BindType:    sqlx.QUESTION,
		KeyStrategy: KeyFirstInsertID,
		Limit:       limitOffset,
	}
	Postgres = Dialect{
		Name:        "postgres",
		BindType:    sqlx.DOLLAR,
		KeyStrategy: KeyReturning,
		Limit:       limitOffset,
	}
	SQLite = Dialect{
		Name:        "sqlite",
		BindType:    sqlx.QUESTION,
		KeyStrategy: KeyLastInsertID,
		Limit:       limitOffset,
	}
	Oracle = Dialect{
		Name:        "oracle",
		BindType:    sqlx.NAMED,
		KeyStrategy: KeyNone,
		Limit:       fetchFirst,
	}
)

// DialectFor resolves the dialect for a database/sql driver name.
func DialectFor(driverName string) (Dialect, error) {
	switch strings.ToLower(driverName) {
	case "mysql":
		return MySQL, nil
	case "postgres", "pgx", "pgx/v5", "pq":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "oracle", "oci8", "ora", "godror":
		return Oracle, nil
	}
	return Dialect{}, fmt.Errorf("unsupported database driver: %s", driverName)
}

func (d Dialect) rebind(query string) string {
	return sqlx.Rebind(d.BindType, query)
}
