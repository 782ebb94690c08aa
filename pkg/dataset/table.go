package dataset

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Table is an immutable column-oriented frame: named columns, a row index,
// and raw cell text. Numeric access coerces cell text on demand, mirroring
// how the analysis engine's consumers treat every table as
// "numbers where they parse, labels where they don't".
//
// Accessors that return slices return copies; a Table is never mutated after
// construction.
type Table struct {
	columns   []string
	index     []string
	cells     [][]string
	footprint int64
}

// NewTable builds a Table from a header, row index, and cell grid.
// Every row of cells must have len(columns) entries.
func NewTable(columns, index []string, cells [][]string) (*Table, error) {
	if len(cells) != len(index) {
		return nil, fmt.Errorf("dataset: %d rows of cells for %d index entries", len(cells), len(index))
	}
	for i, row := range cells {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("dataset: row %d has %d cells, want %d", i, len(row), len(columns))
		}
	}

	t := &Table{
		columns: append([]string(nil), columns...),
		index:   append([]string(nil), index...),
		cells:   make([][]string, len(cells)),
	}
	for i, row := range cells {
		t.cells[i] = append([]string(nil), row...)
	}
	t.footprint = t.computeFootprint()
	return t, nil
}

// Empty reports whether the table has no rows or no columns.
func (t *Table) Empty() bool {
	return t == nil || len(t.cells) == 0 || len(t.columns) == 0
}

// NumRows returns the row count.
func (t *Table) NumRows() int {
	if t == nil {
		return 0
	}
	return len(t.cells)
}

// NumCols returns the column count.
func (t *Table) NumCols() int {
	if t == nil {
		return 0
	}
	return len(t.columns)
}

// Columns returns a copy of the column names.
func (t *Table) Columns() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.columns...)
}

// Index returns a copy of the row index labels.
func (t *Table) Index() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.index...)
}

// Cell returns the raw text at (row, col). Out-of-range access returns "".
func (t *Table) Cell(row, col int) string {
	if t == nil || row < 0 || row >= len(t.cells) || col < 0 || col >= len(t.columns) {
		return ""
	}
	return t.cells[row][col]
}

// Float returns the numeric value at (row, col), or false if the cell does
// not parse as a number.
func (t *Table) Float(row, col int) (float64, bool) {
	return parseFloat(t.Cell(row, col))
}

// ColumnIndex returns the position of the column with the given rendered
// name, or -1. Match is exact, the way the original compared str(col).
func (t *Table) ColumnIndex(name string) int {
	if t == nil {
		return -1
	}
	for i, c := range t.columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether a column with the given name exists.
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// Column returns the raw text of the named column.
func (t *Table) Column(name string) ([]string, bool) {
	col := t.ColumnIndex(name)
	if col < 0 {
		return nil, false
	}
	out := make([]string, len(t.cells))
	for i := range t.cells {
		out[i] = t.cells[i][col]
	}
	return out, true
}

// FloatColumn returns the named column coerced to float64, with NaN for
// cells that do not parse.
func (t *Table) FloatColumn(name string) ([]float64, bool) {
	col := t.ColumnIndex(name)
	if col < 0 {
		return nil, false
	}
	out := make([]float64, len(t.cells))
	for i := range t.cells {
		v, ok := parseFloat(t.cells[i][col])
		if !ok {
			v = math.NaN()
		}
		out[i] = v
	}
	return out, true
}

// SumColumn sums the parseable values of the named column, skipping cells
// that are not numeric.
func (t *Table) SumColumn(name string) (float64, bool) {
	col := t.ColumnIndex(name)
	if col < 0 {
		return 0, false
	}
	var sum float64
	for i := range t.cells {
		if v, ok := parseFloat(t.cells[i][col]); ok {
			sum += v
		}
	}
	return sum, true
}

// Lookup finds the first row where keyCol renders as keyValue and returns
// that row's valueCol cell.
func (t *Table) Lookup(keyCol, keyValue, valueCol string) (string, bool) {
	ki := t.ColumnIndex(keyCol)
	vi := t.ColumnIndex(valueCol)
	if ki < 0 || vi < 0 {
		return "", false
	}
	for i := range t.cells {
		if t.cells[i][ki] == keyValue {
			return t.cells[i][vi], true
		}
	}
	return "", false
}

// DropColumns returns a new Table without the named columns. Matching is
// case-insensitive after trimming, so "Need ", "need" and "NEED" all drop.
func (t *Table) DropColumns(names ...string) *Table {
	if t == nil {
		return nil
	}
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[strings.ToLower(strings.TrimSpace(n))] = true
	}

	var keep []int
	for i, c := range t.columns {
		if !drop[strings.ToLower(strings.TrimSpace(c))] {
			keep = append(keep, i)
		}
	}
	if len(keep) == len(t.columns) {
		return t
	}

	columns := make([]string, len(keep))
	for j, i := range keep {
		columns[j] = t.columns[i]
	}
	cells := make([][]string, len(t.cells))
	for r := range t.cells {
		row := make([]string, len(keep))
		for j, i := range keep {
			row[j] = t.cells[r][i]
		}
		cells[r] = row
	}

	out, err := NewTable(columns, t.index, cells)
	if err != nil {
		// Shape is preserved by construction.
		panic(err)
	}
	return out
}

// PositiveQuantile returns the q-quantile (0..1, linear interpolation) over
// all strictly positive numeric cells. Returns false when no cell qualifies.
func (t *Table) PositiveQuantile(q float64) (float64, bool) {
	if t == nil {
		return 0, false
	}
	var values []float64
	for r := range t.cells {
		for c := range t.cells[r] {
			if v, ok := parseFloat(t.cells[r][c]); ok && v > 0 {
				values = append(values, v)
			}
		}
	}
	if len(values) == 0 {
		return 0, false
	}
	sort.Float64s(values)

	if q <= 0 {
		return values[0], true
	}
	if q >= 1 {
		return values[len(values)-1], true
	}
	pos := q * float64(len(values)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return values[lo], true
	}
	frac := pos - float64(lo)
	return values[lo]*(1-frac) + values[hi]*frac, true
}

// Footprint returns the estimated in-memory size of the table in bytes.
func (t *Table) Footprint() int64 {
	if t == nil {
		return 0
	}
	return t.footprint
}

func (t *Table) computeFootprint() int64 {
	size := EstimateSliceMemory(len(t.columns), 16) + EstimateSliceMemory(len(t.index), 16)
	for _, c := range t.columns {
		size += EstimateStringMemory(c)
	}
	for _, idx := range t.index {
		size += EstimateStringMemory(idx)
	}
	for _, row := range t.cells {
		size += EstimateSliceMemory(len(row), 16)
		for _, cell := range row {
			size += EstimateStringMemory(cell)
		}
	}
	return size
}

// parseFloat coerces cell text to a float. Empty cells and "NaN" markers do
// not count as numeric.
func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}
