package dataset

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/xuri/excelize/v2"
)

// indexColumn is the name pandas gives to a serialized row index.
const indexColumn = "__index_level_0__"

// LoadFile reads a table from disk, dispatching on the file extension.
// sheet is honored for XLSX files only; empty means the first sheet.
func LoadFile(path, sheet string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return DecodeParquetFile(path)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return DecodeCSV(f)
	case ".xlsx":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return DecodeXLSX(f, sheet)
	case ".json":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return DecodeJSON(f)
	default:
		return nil, fmt.Errorf("dataset: unsupported file type %q", filepath.Ext(path))
	}
}

// DecodeCSV reads a table from CSV. The first record is the header and the
// first field of every row is the row index, matching how the analysis
// engine writes frames with index_col=0.
func DecodeCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("dataset: csv: %w", err)
	}
	if len(records) == 0 {
		return NewTable(nil, nil, nil)
	}

	header := records[0]
	var columns []string
	if len(header) > 1 {
		columns = header[1:]
	}

	index := make([]string, 0, len(records)-1)
	cells := make([][]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) == 0 {
			continue
		}
		index = append(index, rec[0])
		row := make([]string, len(columns))
		for i := range columns {
			if i+1 < len(rec) {
				row[i] = rec[i+1]
			}
		}
		cells = append(cells, row)
	}
	return NewTable(columns, index, cells)
}

// DecodeXLSX reads a table from an XLSX workbook. The layout matches
// DecodeCSV: header row, index in the first column.
func DecodeXLSX(r io.Reader, sheet string) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("dataset: xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return NewTable(nil, nil, nil)
	}
	name := sheets[0]
	if sheet != "" {
		name = ""
		for _, s := range sheets {
			if strings.EqualFold(s, sheet) {
				name = s
				break
			}
		}
		if name == "" {
			// Requested sheet absent: treat as an empty dataset, the way
			// the original returned an empty frame for missing members.
			return NewTable(nil, nil, nil)
		}
	}

	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("dataset: xlsx sheet %q: %w", name, err)
	}
	if len(rows) == 0 {
		return NewTable(nil, nil, nil)
	}

	header := rows[0]
	var columns []string
	if len(header) > 1 {
		columns = header[1:]
	}

	index := make([]string, 0, len(rows)-1)
	cells := make([][]string, 0, len(rows)-1)
	for _, rec := range rows[1:] {
		if len(rec) == 0 {
			continue
		}
		index = append(index, rec[0])
		row := make([]string, len(columns))
		for i := range columns {
			if i+1 < len(rec) {
				row[i] = rec[i+1]
			}
		}
		cells = append(cells, row)
	}
	return NewTable(columns, index, cells)
}

// splitFrame is the pandas orient="split" JSON layout.
type splitFrame struct {
	Columns []any   `json:"columns"`
	Index   []any   `json:"index"`
	Data    [][]any `json:"data"`
}

// DecodeJSON reads a table from JSON. Two layouts are accepted: the pandas
// orient="split" object, and a plain array of row objects.
func DecodeJSON(r io.Reader) (*Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return NewTable(nil, nil, nil)
	}

	if strings.HasPrefix(trimmed, "[") {
		return decodeJSONRecords(raw)
	}

	var frame splitFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("dataset: json: %w", err)
	}

	columns := make([]string, len(frame.Columns))
	for i, c := range frame.Columns {
		columns[i] = renderJSONValue(c)
	}
	index := make([]string, len(frame.Index))
	for i, v := range frame.Index {
		index[i] = renderJSONValue(v)
	}
	// Tolerate a missing index by numbering rows.
	if len(index) == 0 && len(frame.Data) > 0 {
		index = make([]string, len(frame.Data))
		for i := range index {
			index[i] = strconv.Itoa(i)
		}
	}

	cells := make([][]string, len(frame.Data))
	for i, rec := range frame.Data {
		row := make([]string, len(columns))
		for j := range columns {
			if j < len(rec) {
				row[j] = renderJSONValue(rec[j])
			}
		}
		cells[i] = row
	}
	return NewTable(columns, index, cells)
}

// decodeJSONRecords reads a JSON array of row objects. Columns are the
// sorted union of keys; rows are numbered.
func decodeJSONRecords(raw []byte) (*Table, error) {
	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("dataset: json records: %w", err)
	}

	seen := make(map[string]bool)
	var columns []string
	for _, rec := range records {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	sort.Strings(columns)

	index := make([]string, len(records))
	cells := make([][]string, len(records))
	for i, rec := range records {
		index[i] = strconv.Itoa(i)
		row := make([]string, len(columns))
		for j, c := range columns {
			if v, ok := rec[c]; ok {
				row[j] = renderJSONValue(v)
			}
		}
		cells[i] = row
	}
	return NewTable(columns, index, cells)
}

func renderJSONValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

// DecodeParquetFile reads a table from a parquet file. Only flat schemas are
// supported, which is all the analysis engine writes. A pandas-style
// __index_level_0__ column becomes the row index.
func DecodeParquetFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("dataset: parquet: %w", err)
	}

	fields := pf.Schema().Fields()
	names := make([]string, len(fields))
	for i, field := range fields {
		names[i] = field.Name()
	}

	var cells [][]string
	buf := make([]parquet.Row, 64)
	for _, rg := range pf.RowGroups() {
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				rec := make([]string, len(fields))
				for _, v := range row {
					if ci := int(v.Column()); ci >= 0 && ci < len(rec) {
						rec[ci] = renderParquetValue(v)
					}
				}
				cells = append(cells, rec)
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("dataset: parquet rows: %w", err)
			}
			if n == 0 {
				break
			}
		}
		rows.Close()
	}

	// Promote the serialized pandas index to the table index.
	indexCol := -1
	for i, name := range names {
		if name == indexColumn {
			indexCol = i
			break
		}
	}

	index := make([]string, len(cells))
	if indexCol >= 0 {
		columns := make([]string, 0, len(names)-1)
		for i, name := range names {
			if i != indexCol {
				columns = append(columns, name)
			}
		}
		trimmed := make([][]string, len(cells))
		for r, rec := range cells {
			index[r] = rec[indexCol]
			row := make([]string, 0, len(rec)-1)
			for i, cell := range rec {
				if i != indexCol {
					row = append(row, cell)
				}
			}
			trimmed[r] = row
		}
		return NewTable(columns, index, trimmed)
	}

	for i := range index {
		index[i] = strconv.Itoa(i)
	}
	return NewTable(names, index, cells)
}

func renderParquetValue(v parquet.Value) string {
	if v.IsNull() {
		return ""
	}
	switch v.Kind() {
	case parquet.Boolean:
		return strconv.FormatBool(v.Boolean())
	case parquet.Int32:
		return strconv.FormatInt(int64(v.Int32()), 10)
	case parquet.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	case parquet.Float:
		return strconv.FormatFloat(float64(v.Float()), 'g', -1, 64)
	case parquet.Double:
		return strconv.FormatFloat(v.Double(), 'g', -1, 64)
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	default:
		return v.String()
	}
}
