package models

// Dataset is a parsed table. Every row holds one cell per column and
// column 0 is the row key.
type Dataset struct {
	Name    string     `json:"name"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// ColumnIndex returns the position of the named column, or -1.
func (d *Dataset) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Key returns the row key of row i.
func (d *Dataset) Key(i int) string {
	return d.Rows[i][0]
}

// NumRows returns the number of data rows.
func (d *Dataset) NumRows() int {
	return len(d.Rows)
}

// NumColumns returns the number of columns including the key column.
func (d *Dataset) NumColumns() int {
	return len(d.Columns)
}
