package dal

import "sort"

// Parameter is one bound value. Index is 1-based and must match the position of
// its placeholder in the statement text.
type Parameter struct {
	Index int
	Type  ColumnType
	Value any
}

type Parameters struct {
	list []Parameter
}

func NewParameters() *Parameters {
	return &Parameters{}
}

// Set binds value at index, replacing any parameter already bound there.
func (p *Parameters) Set(index int, typ ColumnType, value any) *Parameters {
	for i := range p.list {
		if p.list[i].Index == index {
			p.list[i] = Parameter{Index: index, Type: typ, Value: value}
			return p
		}
	}
	p.list = append(p.list, Parameter{Index: index, Type: typ, Value: value})
	return p
}

// Add binds value at the next free index.
func (p *Parameters) Add(typ ColumnType, value any) *Parameters {
	next := 1
	for _, prm := range p.list {
		if prm.Index >= next {
			next = prm.Index + 1
		}
	}
	return p.Set(next, typ, value)
}

func (p *Parameters) Len() int {
	if p == nil {
		return 0
	}
	return len(p.list)
}

// List returns the parameters ordered by index.
func (p *Parameters) List() []Parameter {
	if p == nil {
		return nil
	}
	out := append([]Parameter(nil), p.list...)
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Values returns the bound values in placeholder order. The indexes must be
// exactly 1..n.
func (p *Parameters) Values() ([]any, error) {
	list := p.List()
	values := make([]any, len(list))
	for i, prm := range list {
		if prm.Index != i+1 {
			return nil, invalidArg("parameter index %d out of sequence, expected %d", prm.Index, i+1)
		}
		values[i] = prm.Value
	}
	return values, nil
}

func (p *Parameters) Clone() *Parameters {
	return &Parameters{list: p.List()}
}

// Append adds other's parameters after this list's, keeping their relative order.
func (p *Parameters) Append(other *Parameters) *Parameters {
	for _, prm := range other.List() {
		p.Add(prm.Type, prm.Value)
	}
	return p
}

func paramsFromValues(values []any) *Parameters {
	p := &Parameters{list: make([]Parameter, len(values))}
	for i, v := range values {
		p.list[i] = Parameter{Index: i + 1, Value: v}
	}
	return p
}
