package dal

import (
	"fmt"
	"regexp"
	"strings"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ColumnType is the semantic SQL type declared for a column or parameter.
type ColumnType int

const (
	TypeUnknown ColumnType = iota
	TypeInteger
	TypeBigInt
	TypeSmallInt
	TypeVarchar
	TypeText
	TypeDecimal
	TypeFloat
	TypeBoolean
	TypeTimestamp
	TypeDate
	TypeBinary
)

var columnTypeNames = map[ColumnType]string{
	TypeUnknown:   "UNKNOWN",
	TypeInteger:   "INTEGER",
	TypeBigInt:    "BIGINT",
	TypeSmallInt:  "SMALLINT",
	TypeVarchar:   "VARCHAR",
	TypeText:      "TEXT",
	TypeDecimal:   "DECIMAL",
	TypeFloat:     "FLOAT",
	TypeBoolean:   "BOOLEAN",
	TypeTimestamp: "TIMESTAMP",
	TypeDate:      "DATE",
	TypeBinary:    "BINARY",
}

func (t ColumnType) String() string {
	if s, ok := columnTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("ColumnType(%d)", int(t))
}

type ColumnInfo struct {
	Name      string
	Type      ColumnType
	Size      int
	IsKey     bool
	IsAuto    bool
	AllowNull bool
}

// TableDef describes one table: its columns in declared order, the primary key
// subset and the optional auto-increment identity column.
type TableDef struct {
	Schema      string
	Name        string
	Columns     []ColumnInfo
	PrimaryKeys []string
	Identity    string

	index map[string]int
}

func NewTableDef(schema, name string, columns []ColumnInfo) (TableDef, error) {
	var td TableDef
	if !identifierRe.MatchString(name) {
		return td, invalidArg("invalid table name %q", name)
	}
	if schema != "" && !identifierRe.MatchString(schema) {
		return td, invalidArg("invalid schema name %q", schema)
	}
	if len(columns) == 0 {
		return td, invalidArg("table %s has no columns", name)
	}

	td = TableDef{
		Schema:  schema,
		Name:    name,
		Columns: make([]ColumnInfo, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	copy(td.Columns, columns)

	for i, col := range td.Columns {
		if !identifierRe.MatchString(col.Name) {
			return TableDef{}, invalidArg("invalid column name %q", col.Name)
		}
		key := strings.ToLower(col.Name)
		if _, dup := td.index[key]; dup {
			return TableDef{}, invalidArg("duplicate column %q in table %s", col.Name, name)
		}
		td.index[key] = i

		if col.IsKey {
			td.PrimaryKeys = append(td.PrimaryKeys, col.Name)
		}
		if col.IsAuto {
			if td.Identity != "" {
				return TableDef{}, invalidArg("table %s has more than one identity column", name)
			}
			td.Identity = col.Name
		}
	}

	return td, nil
}

func (td TableDef) FullTableName() string {
	if td.Schema != "" {
		return fmt.Sprintf("%s.%s", td.Schema, td.Name)
	}
	return td.Name
}

func (td TableDef) ColumnNames() []string {
	return Map(td.Columns, func(c ColumnInfo) string { return c.Name })
}

func (td TableDef) PrimaryKeyNames() []string {
	return append([]string(nil), td.PrimaryKeys...)
}

func (td TableDef) IsAutoIncrement() bool {
	return td.Identity != ""
}

func (td TableDef) IdentityColumn() string {
	return td.Identity
}

func (td TableDef) Column(name string) (ColumnInfo, bool) {
	i, ok := td.index[strings.ToLower(name)]
	if !ok {
		return ColumnInfo{}, false
	}
	return td.Columns[i], true
}

func (td TableDef) HasColumn(name string) bool {
	_, ok := td.index[strings.ToLower(name)]
	return ok
}

// InsertColumns returns the columns an INSERT may bind; the identity column is
// left to the database.
func (td TableDef) InsertColumns() []ColumnInfo {
	return Filter(td.Columns, func(c ColumnInfo) bool { return !c.IsAuto })
}

// UpdateColumns returns the non-key, non-identity columns.
func (td TableDef) UpdateColumns() []ColumnInfo {
	return Filter(td.Columns, func(c ColumnInfo) bool { return !c.IsKey && !c.IsAuto })
}

func (td TableDef) keyColumns() []ColumnInfo {
	return Filter(td.Columns, func(c ColumnInfo) bool { return c.IsKey })
}
