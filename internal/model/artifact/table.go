package artifact

import "strconv"

// Table is a rectangular table: named columns and rows of string cells.
// Cells are kept as strings and converted to numbers on demand so that
// mixed-type CSV columns still load.
type Table struct {
	Columns []string
	Rows    [][]string
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// NumericColumn extracts the values of column idx that parse as floats.
func (t *Table) NumericColumn(idx int) []float64 {
	values := make([]float64, 0, len(t.Rows))
	for _, row := range t.Rows {
		if idx >= len(row) {
			continue
		}
		if v, err := strconv.ParseFloat(row[idx], 64); err == nil {
			values = append(values, v)
		}
	}
	return values
}
