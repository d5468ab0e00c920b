package cog

import "fmt"

// Column is one integer column of an attribute table.
type Column struct {
	Name   string
	Usage  int
	Values []int
}

// AttributeTable is an in-memory raster attribute table. It is built from a
// TIFF ColorMap or from the GDALRasterAttributeTable of a PAM sidecar.
type AttributeTable struct {
	Columns []Column
	Rows    int
}

func (t *AttributeTable) RowCount() int    { return t.Rows }
func (t *AttributeTable) ColumnCount() int { return len(t.Columns) }

func (t *AttributeTable) ColumnUsage(col int) int {
	if col < 0 || col >= len(t.Columns) {
		return 0
	}
	return t.Columns[col].Usage
}

// IntColumn returns every row of column col. Rows the column does not cover
// read as zero.
func (t *AttributeTable) IntColumn(col int) ([]int, error) {
	if col < 0 || col >= len(t.Columns) {
		return nil, fmt.Errorf("attribute table has no column %d", col)
	}
	out := make([]int, t.Rows)
	copy(out, t.Columns[col].Values)
	return out, nil
}
