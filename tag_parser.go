package dal

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/iancoleman/strcase"
	"gopkg.in/guregu/null.v4"
)

// DBTable marks the table a struct maps to:
//
//	type Order struct {
//		dal.DBTable `schema:"shop" name:"orders"`
//		ID    null.Int    `db:"id,key auto"`
//		Note  null.String `db:"note,size=64"`
//	}
type DBTable struct{}

var dbTableType = reflect.TypeOf(DBTable{})

var knownColumnTypes = map[reflect.Type]ColumnType{
	reflect.TypeOf(time.Time{}):       TypeTimestamp,
	reflect.TypeOf(null.String{}):     TypeVarchar,
	reflect.TypeOf(null.Int{}):        TypeBigInt,
	reflect.TypeOf(null.Float{}):      TypeFloat,
	reflect.TypeOf(null.Bool{}):       TypeBoolean,
	reflect.TypeOf(null.Time{}):       TypeTimestamp,
	reflect.TypeOf(sql.NullString{}):  TypeVarchar,
	reflect.TypeOf(sql.NullInt64{}):   TypeBigInt,
	reflect.TypeOf(sql.NullInt32{}):   TypeInteger,
	reflect.TypeOf(sql.NullInt16{}):   TypeSmallInt,
	reflect.TypeOf(sql.NullFloat64{}): TypeFloat,
	reflect.TypeOf(sql.NullBool{}):    TypeBoolean,
	reflect.TypeOf(sql.NullTime{}):    TypeTimestamp,
	reflect.TypeOf([]byte(nil)):       TypeBinary,
	reflect.TypeOf(sql.RawBytes(nil)): TypeBinary,
}

var columnTypeByName = map[string]ColumnType{}

func init() {
	for t, name := range columnTypeNames {
		columnTypeByName[strings.ToLower(name)] = t
	}
}

// TagParser is a Parser that maps struct fields through their `db` tags.
type TagParser[T any] struct {
	def    TableDef
	fields []int // struct field index per column
}

func NewTagParser[T any]() (*TagParser[T], error) {
	var model T
	mtype := reflect.TypeOf(model)
	if mtype == nil || mtype.Kind() != reflect.Struct {
		return nil, invalidArg("tag parser requires a struct type, got %T", model)
	}

	schema, table := "", strcase.ToSnake(mtype.Name())
	var cols []ColumnInfo
	var fields []int
	for i := 0; i < mtype.NumField(); i++ {
		field := mtype.Field(i)
		if field.Type == dbTableType {
			schema = field.Tag.Get("schema")
			if name := field.Tag.Get("name"); name != "" {
				table = name
			}
			continue
		}

		if !field.IsExported() {
			continue
		}

		tag, hasTag := field.Tag.Lookup("db")
		if tag == "-" {
			continue
		}

		name, size, isAuto, isKey, allowNull := ParseDBTag(tag)
		if !hasTag || name == "" {
			name = strcase.ToSnake(field.Name)
		}

		ctype, err := columnTypeOf(field.Type, size, tagOption(tag, "type"))
		if err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", mtype.Name(), field.Name, err)
		}

		cols = append(cols, ColumnInfo{
			Name:      name,
			Type:      ctype,
			Size:      size,
			IsKey:     isKey,
			IsAuto:    isAuto,
			AllowNull: allowNull,
		})
		fields = append(fields, i)
	}

	def, err := NewTableDef(schema, table, cols)
	if err != nil {
		return nil, err
	}

	return &TagParser[T]{def: def, fields: fields}, nil
}

func (p *TagParser[T]) TableDef() TableDef {
	return p.def
}

// Fields returns every mapped column; unset fields map to nil and driver.Valuer
// fields are resolved to their driver value. Zero-valued plain fields are unset.
func (p *TagParser[T]) Fields(rec *T) (map[string]any, error) {
	if rec == nil {
		return nil, invalidArg("nil record")
	}

	dataVal := reflect.ValueOf(rec).Elem()
	result := make(map[string]any, len(p.fields))
	for ci, fi := range p.fields {
		val, err := fieldValue(dataVal.Field(fi))
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", p.def.Columns[ci].Name, err)
		}
		result[p.def.Columns[ci].Name] = val
	}

	return result, nil
}

func (p *TagParser[T]) PrimaryKeys(rec *T) (map[string]any, error) {
	fields, err := p.Fields(rec)
	if err != nil {
		return nil, err
	}

	keys := make(map[string]any, len(p.def.PrimaryKeys))
	for _, k := range p.def.PrimaryKeys {
		keys[k] = fields[k]
	}
	return keys, nil
}

// Map builds a record from a row; columns the record does not map are ignored.
func (p *TagParser[T]) Map(row map[string]any) (*T, error) {
	rec := new(T)
	dataVal := reflect.ValueOf(rec).Elem()
	for name, v := range row {
		col, ok := p.def.index[strings.ToLower(name)]
		if !ok {
			continue
		}
		if err := assignField(dataVal.Field(p.fields[col]), v); err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
	}
	return rec, nil
}

// fieldValue returns the column value of a field. A plain value field left at
// its zero value counts as unset; use a pointer or a null type to store zero.
func fieldValue(fv reflect.Value) (any, error) {
	byPointer := fv.Kind() == reflect.Ptr
	if byPointer {
		if fv.IsNil() {
			return nil, nil
		}
		fv = fv.Elem()
	}

	val := fv.Interface()
	if v, ok := val.(driver.Valuer); ok {
		buffVal, err := v.Value()
		if err != nil {
			return nil, err
		}
		return buffVal, nil
	}

	if !byPointer && fv.IsZero() {
		return nil, nil
	}
	return val, nil
}

func assignField(field reflect.Value, src any) error {
	if field.Kind() == reflect.Ptr {
		if src == nil {
			field.Set(reflect.Zero(field.Type()))
			return nil
		}
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		field = field.Elem()
	}

	if scanner, ok := field.Addr().Interface().(sql.Scanner); ok {
		return scanner.Scan(src)
	}

	if src == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}

	if b, ok := src.([]byte); ok && field.Kind() == reflect.String {
		field.SetString(string(b))
		return nil
	}

	sv := reflect.ValueOf(src)
	if !sv.Type().ConvertibleTo(field.Type()) {
		return fmt.Errorf("cannot assign %T to %s", src, field.Type())
	}
	field.Set(sv.Convert(field.Type()))
	return nil
}

func columnTypeOf(t reflect.Type, size int, declared string) (ColumnType, error) {
	if declared != "" {
		ct, ok := columnTypeByName[strings.ToLower(declared)]
		if !ok {
			return TypeUnknown, invalidArg("unknown column type %q", declared)
		}
		return ct, nil
	}

	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if ct, ok := knownColumnTypes[t]; ok {
		if ct == TypeVarchar && size == 0 {
			return TypeText, nil
		}
		return ct, nil
	}

	switch t.Kind() {
	case reflect.String:
		if size > 0 {
			return TypeVarchar, nil
		}
		return TypeText, nil
	case reflect.Int16, reflect.Int8, reflect.Uint8, reflect.Uint16:
		return TypeSmallInt, nil
	case reflect.Int, reflect.Int32, reflect.Uint, reflect.Uint32:
		return TypeInteger, nil
	case reflect.Int64, reflect.Uint64:
		return TypeBigInt, nil
	case reflect.Float32, reflect.Float64:
		return TypeFloat, nil
	case reflect.Bool:
		return TypeBoolean, nil
	}

	return TypeUnknown, invalidArg("unsupported Go type %s", t)
}

// tagOption returns the value of key=value in the option part of a db tag.
func tagOption(tag, key string) string {
	parts := strings.SplitN(tag, ",", 2)
	if len(parts) < 2 {
		return ""
	}
	for _, opt := range strings.Fields(parts[1]) {
		kv := strings.SplitN(opt, "=", 2)
		if len(kv) == 2 && strings.EqualFold(kv[0], key) {
			return strings.TrimSpace(kv[1])
		}
	}
	return ""
}
