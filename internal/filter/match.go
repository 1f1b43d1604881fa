package filter

import (
	"github.com/koba/flowsql/internal/schema"
)

// ContainsAnyOf reports whether haystack shares at least one value with
// needles.
func ContainsAnyOf(haystack, needles []int64) bool {
	if len(haystack) == 0 || len(needles) == 0 {
		return false
	}
	set := make(map[int64]struct{}, len(haystack))
	for _, v := range haystack {
		set[v] = struct{}{}
	}
	for _, v := range needles {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}

// MatchRelations keeps the rows satisfying every has and has not filter. The
// relation columns of rows must already be expanded.
func MatchRelations(rows []schema.Row, filters []schema.Filter) []schema.Row {
	for _, f := range filters {
		if !f.Op.Deferred() {
			continue
		}
		needles, _ := AsInt64s(f.Value)
		kept := make([]schema.Row, 0, len(rows))
		for _, row := range rows {
			hasIt := ContainsAnyOf(relationValues(row[f.Column]), needles)
			if hasIt == (f.Op == schema.OpHas) {
				kept = append(kept, row)
			}
		}
		rows = kept
	}
	return rows
}

func relationValues(v interface{}) []int64 {
	if ids, ok := v.([]int64); ok {
		return ids
	}
	ids, _ := AsInt64s(v)
	return ids
}
