package dal

import (
	"database/sql/driver"
	"reflect"
	"strconv"
	"strings"
)

// ParseDBTag parses a `db` struct tag of the form "name,key auto size=64 notnull".
func ParseDBTag(value string) (name string, size int, isAuto bool, isKey bool, allowNull bool) {
	tagArr := strings.Split(value, ",")
	if len(tagArr) == 0 {
		return
	}

	checkBool := func(key string, tagarr []string) bool {
		bval := false
		skey := strings.TrimSpace(tagarr[0])
		if strings.EqualFold(skey, key) {
			bval = true
		}

		if bval && len(tagarr) > 1 {
			sval := strings.TrimSpace(tagarr[1])
			if strings.EqualFold(sval, "false") {
				bval = false
			}
		}

		return bval
	}

	name = strings.TrimSpace(tagArr[0])
	allowNull = true
	if len(tagArr) > 1 {
		det := strings.Fields(tagArr[1])
		for _, v := range det {
			varr := strings.Split(v, "=")
			key := strings.TrimSpace(varr[0])

			if checkBool("auto", varr) {
				isAuto = true
				continue
			}

			if checkBool("key", varr) {
				isKey = true
				allowNull = false
				continue
			}

			if checkBool("notnull", varr) {
				allowNull = false
				continue
			}

			if len(varr) > 1 && strings.EqualFold(key, "size") {
				size, _ = strconv.Atoi(varr[1])
			}
		}
	}

	return
}

// isNull reports whether v counts as an unset field: nil, a nil pointer, or a
// driver.Valuer that yields nil.
func isNull(v any) bool {
	if v == nil {
		return true
	}

	if vr, ok := v.(driver.Valuer); ok {
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Ptr && rv.IsNil() {
			return true
		}
		val, err := vr.Value()
		return err == nil && val == nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}

	return false
}

func Map[In any, Out any](list []In, mapFn func(val In) Out) []Out {
	var newSlice = make([]Out, len(list))
	for i, val := range list {
		newSlice[i] = mapFn(val)
	}

	return newSlice
}

func Filter[T any](slice []T, filterFunc func(val T) bool) []T {
	var newSlice []T
	for i, val := range slice {
		if filterFunc(val) {
			newSlice = append(newSlice, slice[i])
		}
	}

	return newSlice
}

// Sum totals per-row affected counts.
func Sum(counts []int) int {
	total := 0
	for _, c := range counts {
		total += c
	}
	return total
}
