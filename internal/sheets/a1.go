package sheets

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ColumnIndex converts column letters to a 1-based index ("A" = 1, "AA" = 27).
func ColumnIndex(letters string) (int, error) {
	letters = strings.ToUpper(strings.TrimSpace(letters))
	if letters == "" {
		return 0, fmt.Errorf("empty column")
	}
	n := 0
	for _, r := range letters {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("invalid column %q", letters)
		}
		n = n*26 + int(r-'A'+1)
	}
	return n, nil
}

// ColumnLetters converts a 1-based column index to letters.
func ColumnLetters(index int) string {
	if index <= 0 {
		return ""
	}
	var buf []byte
	for index > 0 {
		index--
		buf = append([]byte{byte('A' + index%26)}, buf...)
		index /= 26
	}
	return string(buf)
}

// QuoteSheet renders a tab name for A1 notation. Names that are not plain
// identifiers are single-quoted and embedded quotes are doubled.
func QuoteSheet(name string) string {
	if name == "" {
		return ""
	}
	plain := true
	for i, r := range name {
		if r == '_' || unicode.IsLetter(r) || (unicode.IsDigit(r) && i > 0) {
			continue
		}
		plain = false
		break
	}
	if plain {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// Range is a parsed A1 range. A zero row means the range is open in that
// direction ("A:J"); a zero column means whole rows ("2:5").
type Range struct {
	Sheet    string
	StartCol int
	StartRow int
	EndCol   int
	EndRow   int
}

// ParseRange parses "Tab!A1:B2", "'P&L (DO NOT EDIT)'!N20", "A:J" and similar.
func ParseRange(s string) (Range, error) {
	var r Range
	s = strings.TrimSpace(s)
	if s == "" {
		return r, fmt.Errorf("empty range")
	}

	cells := s
	if i := strings.LastIndex(s, "!"); i >= 0 {
		sheet, err := unquoteSheet(s[:i])
		if err != nil {
			return r, err
		}
		r.Sheet = sheet
		cells = s[i+1:]
	}
	if cells == "" {
		return r, fmt.Errorf("range %q has no cells", s)
	}

	start, end := cells, ""
	if i := strings.Index(cells, ":"); i >= 0 {
		start, end = cells[:i], cells[i+1:]
	}

	var err error
	r.StartCol, r.StartRow, err = parseCell(start)
	if err != nil {
		return r, fmt.Errorf("range %q: %w", s, err)
	}
	if end == "" {
		r.EndCol, r.EndRow = r.StartCol, r.StartRow
		return r, nil
	}
	r.EndCol, r.EndRow, err = parseCell(end)
	if err != nil {
		return r, fmt.Errorf("range %q: %w", s, err)
	}
	return r, nil
}

// String renders the range back to A1 notation.
func (r Range) String() string {
	start := ColumnLetters(r.StartCol) + rowString(r.StartRow)
	end := ColumnLetters(r.EndCol) + rowString(r.EndRow)
	cells := start
	if end != start {
		cells = start + ":" + end
	}
	if r.Sheet == "" {
		return cells
	}
	return QuoteSheet(r.Sheet) + "!" + cells
}

// A1 builds "Tab!<cells>" with the tab name quoted as needed.
func A1(sheet, cells string) string {
	if sheet == "" {
		return cells
	}
	return QuoteSheet(sheet) + "!" + cells
}

func rowString(row int) string {
	if row <= 0 {
		return ""
	}
	return strconv.Itoa(row)
}

func parseCell(cell string) (col, row int, err error) {
	cell = strings.ReplaceAll(strings.TrimSpace(cell), "$", "")
	if cell == "" {
		return 0, 0, fmt.Errorf("empty cell reference")
	}
	i := 0
	for i < len(cell) && unicode.IsLetter(rune(cell[i])) {
		i++
	}
	if i > 0 {
		if col, err = ColumnIndex(cell[:i]); err != nil {
			return 0, 0, err
		}
	}
	if i < len(cell) {
		if row, err = strconv.Atoi(cell[i:]); err != nil || row <= 0 {
			return 0, 0, fmt.Errorf("invalid cell reference %q", cell)
		}
	}
	return col, row, nil
}

func unquoteSheet(s string) (string, error) {
	if !strings.HasPrefix(s, "'") {
		return s, nil
	}
	if len(s) < 2 || !strings.HasSuffix(s, "'") {
		return "", fmt.Errorf("unterminated sheet name %s", s)
	}
	return strings.ReplaceAll(s[1:len(s)-1], "''", "'"), nil
}
