package dal

// Parser binds a record type to one table: it describes the table and converts
// between a record and its column-name -> value mapping. Unset fields are
// reported as nil.
type Parser[T any] interface {
	TableDef() TableDef
	Fields(rec *T) (map[string]any, error)
	PrimaryKeys(rec *T) (map[string]any, error)
	Map(row map[string]any) (*T, error)
}

// ParserFuncs is a Parser assembled from typed accessor functions.
type ParserFuncs[T any] struct {
	Def      TableDef
	FieldsFn func(rec *T) map[string]any
	KeysFn   func(rec *T) map[string]any
	MapRowFn func(row map[string]any) (*T, error)
}

// NewParser builds a Parser from accessor functions. The primary keys are read
// from the key columns of fields.
func NewParser[T any](def TableDef, fields func(rec *T) map[string]any, mapRow func(row map[string]any) (*T, error)) *ParserFuncs[T] {
	return &ParserFuncs[T]{Def: def, FieldsFn: fields, MapRowFn: mapRow}
}

func (p *ParserFuncs[T]) TableDef() TableDef {
	return p.Def
}

func (p *ParserFuncs[T]) Fields(rec *T) (map[string]any, error) {
	if rec == nil {
		return nil, invalidArg("nil record")
	}
	return p.FieldsFn(rec), nil
}

func (p *ParserFuncs[T]) PrimaryKeys(rec *T) (map[string]any, error) {
	if rec == nil {
		return nil, invalidArg("nil record")
	}
	if p.KeysFn != nil {
		return p.KeysFn(rec), nil
	}
	fields := p.FieldsFn(rec)
	keys := make(map[string]any, len(p.Def.PrimaryKeys))
	for _, k := range p.Def.PrimaryKeys {
		keys[k] = fields[k]
	}
	return keys, nil
}

func (p *ParserFuncs[T]) Map(row map[string]any) (*T, error) {
	return p.MapRowFn(row)
}
