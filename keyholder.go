package dal

import (
	"fmt"
	"strconv"
)

// GeneratedKey is the entry name every KeyHolder entry stores its value under.
const GeneratedKey = "GENERATED_KEY"

// KeyHolder collects the identity values generated by one write call, one entry
// per successfully written row, in completion order. It must not be shared
// between concurrent calls.
type KeyHolder struct {
	keys []map[string]any
}

func NewKeyHolder() *KeyHolder {
	return &KeyHolder{}
}

func (kh *KeyHolder) Size() int {
	return len(kh.keys)
}

func (kh *KeyHolder) KeyList() []map[string]any {
	return kh.keys
}

// Key returns the generated value of entry i.
func (kh *KeyHolder) Key(i int) (any, error) {
	if i < 0 || i >= len(kh.keys) {
		return nil, fmt.Errorf("%w: key index %d out of range [0,%d)", ErrInvalidArgument, i, len(kh.keys))
	}
	return kh.keys[i][GeneratedKey], nil
}

func (kh *KeyHolder) Keys() []any {
	return Map(kh.keys, func(m map[string]any) any { return m[GeneratedKey] })
}

// Int64Keys returns the generated values converted to int64.
func (kh *KeyHolder) Int64Keys() ([]int64, error) {
	out := make([]int64, len(kh.keys))
	for i, m := range kh.keys {
		n, err := toInt64(m[GeneratedKey])
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		out[i] = n
	}
	return out, nil
}

func (kh *KeyHolder) Clear() {
	kh.keys = nil
}

func (kh *KeyHolder) add(identity string, key any) {
	entry := map[string]any{GeneratedKey: key}
	if identity != "" {
		entry[identity] = key
	}
	kh.keys = append(kh.keys, entry)
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case uint:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	case string:
		return strconv.ParseInt(n, 10, 64)
	}
	return 0, fmt.Errorf("cannot convert %T to int64", v)
}
