package sheets

import (
	"fmt"
	"strings"
)

// Cell returns the trimmed string form of row[idx], or "" when the row is short.
// The API omits trailing empty cells, so short rows are normal.
func Cell(row []interface{}, idx int) string {
	if idx < 0 || idx >= len(row) || row[idx] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(row[idx]))
}

// BlankRow reports whether every cell in row is empty.
func BlankRow(row []interface{}) bool {
	for i := range row {
		if Cell(row, i) != "" {
			return false
		}
	}
	return true
}

// Column collects column idx from rows, skipping blanks and "#" comments and
// de-duplicating in first-seen order.
func Column(rows [][]interface{}, idx int) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, row := range rows {
		v := Cell(row, idx)
		if v == "" || strings.HasPrefix(v, "#") {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
