package dal

import (
	"fmt"
	"strings"
)

// FilterNull is a QueryByFilter value matching IS NULL, or IS NOT NULL when
// IsNull is false.
type FilterNull interface {
	IsNull() bool
}

type filterNull bool

func (fn filterNull) IsNull() bool {
	return bool(fn)
}

func FilterNullFrom(isNull bool) FilterNull {
	return filterNull(isNull)
}

// FilterStringContains is a QueryByFilter value matching columns that contain a
// substring.
type FilterStringContains interface {
	Contains() string
}

type filterStringContains string

func (fs filterStringContains) Contains() string {
	return fmt.Sprintf("%%%s%%", string(fs))
}

func FilterStringContainsFrom(str string) FilterStringContains {
	return filterStringContains(str)
}

// MakeSortClause renders an ORDER BY list from entries like "name" or "-age".
// A leading "-" sorts descending, "+" or nothing ascending. sortFieldMap maps
// lower-cased entry names to column names.
func MakeSortClause(sorter []string, sortFieldMap map[string]string) string {
	var srt []string
	for _, s := range sorter {
		if s == "" {
			continue
		}

		op := "ASC"
		field := s
		if s[:1] == "-" || s[:1] == "+" {
			if s[:1] == "-" {
				op = "DESC"
			}
			field = s[1:]
		}
		field = strings.ToLower(field)

		if mf, ok := sortFieldMap[field]; ok {
			field = mf
		}

		srt = append(srt, fmt.Sprintf("%s %s", field, op))
	}

	return strings.Join(srt, ", ")
}
