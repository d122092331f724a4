package output

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
	"unicode"
)

// TableFormatter formats data as an aligned text table.
type TableFormatter struct {
	Wide      bool
	NoHeaders bool
}

// Format renders data as a table. Supported shapes are Table, slices of
// structs, slices of JSON objects, maps, single structs and raw JSON.
// Anything else (a bare string or number) is written as indented JSON.
func (f *TableFormatter) Format(w io.Writer, data any) error {
	data = decodeRaw(data)
	if data == nil {
		return nil
	}

	switch t := data.(type) {
	case *Table:
		return t.RenderWithOptions(w, f.NoHeaders)
	case Table:
		return t.RenderWithOptions(w, f.NoHeaders)
	}

	table, ok := buildTable(reflect.ValueOf(data), f.Wide)
	if !ok {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	return table.RenderWithOptions(w, f.NoHeaders)
}

// column is one table column: its header and how to read a cell from a row.
type column struct {
	header string
	cell   func(row reflect.Value) string
}

func buildTable(v reflect.Value, wide bool) (*Table, bool) {
	v = indirect(v)
	if !v.IsValid() {
		return nil, false
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		return listTable(v, wide), true
	case reflect.Map:
		return keyValueTable("KEY", mapPairs(v)), true
	case reflect.Struct:
		return keyValueTable("FIELD", structPairs(v)), true
	default:
		return nil, false
	}
}

// listTable renders one row per element. Columns come from the struct
// fields of the first element, or from the union of keys when the
// elements are objects.
func listTable(v reflect.Value, wide bool) *Table {
	table := &Table{}
	if v.Len() == 0 {
		return table
	}

	var cols []column
	first := indirect(v.Index(0))
	switch first.Kind() {
	case reflect.Struct:
		cols = structColumns(first.Type(), wide)
	case reflect.Map:
		cols = objectColumns(v)
	default:
		cols = []column{{header: "VALUE", cell: formatValue}}
	}

	for _, c := range cols {
		table.Headers = append(table.Headers, c.header)
	}
	for i := 0; i < v.Len(); i++ {
		elem := indirect(v.Index(i))
		row := make([]string, len(cols))
		for j, c := range cols {
			row[j] = c.cell(elem)
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

func structColumns(t reflect.Type, wide bool) []column {
	var cols []column
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("table")
		if !field.IsExported() || tag == "-" {
			continue
		}
		if strings.Contains(tag, "wide") && !wide {
			continue
		}
		idx := i
		cols = append(cols, column{
			header: headerName(fieldName(field)),
			cell: func(row reflect.Value) string {
				if row.Kind() != reflect.Struct {
					return ""
				}
				return formatValue(row.Field(idx))
			},
		})
	}
	return cols
}

// objectColumns collects the keys of every object in v, sorted.
func objectColumns(v reflect.Value) []column {
	seen := make(map[string]struct{})
	for i := 0; i < v.Len(); i++ {
		elem := indirect(v.Index(i))
		if elem.Kind() != reflect.Map {
			continue
		}
		for _, k := range elem.MapKeys() {
			seen[fmt.Sprint(k.Interface())] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cols := make([]column, len(keys))
	for i, key := range keys {
		key := key
		cols[i] = column{
			header: headerName(key),
			cell: func(row reflect.Value) string {
				if row.Kind() != reflect.Map || row.Type().Key().Kind() != reflect.String {
					return ""
				}
				return formatValue(row.MapIndex(reflect.ValueOf(key).Convert(row.Type().Key())))
			},
		}
	}
	return cols
}

func mapPairs(v reflect.Value) [][]string {
	pairs := make([][]string, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		pairs = append(pairs, []string{formatValue(iter.Key()), formatValue(iter.Value())})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i][0] < pairs[j][0] })
	return pairs
}

func structPairs(v reflect.Value) [][]string {
	var pairs [][]string
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() || field.Tag.Get("table") == "-" {
			continue
		}
		pairs = append(pairs, []string{fieldName(field), formatValue(v.Field(i))})
	}
	return pairs
}

func keyValueTable(keyHeader string, rows [][]string) *Table {
	return &Table{Headers: []string{keyHeader, "VALUE"}, Rows: rows}
}

// fieldName prefers the json name of a field.
func fieldName(field reflect.StructField) string {
	if name, _, _ := strings.Cut(field.Tag.Get("json"), ","); name != "" && name != "-" {
		return name
	}
	return field.Name
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

var (
	durationType = reflect.TypeOf(time.Duration(0))
	timeType     = reflect.TypeOf(time.Time{})
)

// formatValue renders one cell. Nil renders empty; zero strings, times and
// collections render "-".
func formatValue(v reflect.Value) string {
	v = indirect(v)
	if !v.IsValid() {
		return ""
	}

	switch v.Type() {
	case durationType:
		return time.Duration(v.Int()).String()
	case timeType:
		t := v.Interface().(time.Time)
		if t.IsZero() {
			return "-"
		}
		return t.Format("2006-01-02 15:04")
	}

	switch v.Kind() {
	case reflect.String:
		if v.Len() == 0 {
			return "-"
		}
		return v.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, 64)
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	case reflect.Slice, reflect.Array, reflect.Map:
		if v.Len() == 0 {
			return "-"
		}
		b, err := json.Marshal(v.Interface())
		if err != nil {
			return fmt.Sprint(v.Interface())
		}
		return string(b)
	default:
		return fmt.Sprint(v.Interface())
	}
}

// headerName upper-cases a field or key name into a column header:
// "node_id", "nodeId" and "NodeID" all become NODE_ID.
func headerName(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		if r == '-' || r == ' ' {
			r = '_'
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// Table is pre-built tabular data.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Render writes the table with headers.
func (t *Table) Render(w io.Writer) error {
	return t.RenderWithOptions(w, false)
}

// RenderWithOptions writes the table, optionally without the header row.
// An empty table writes nothing.
func (t *Table) RenderWithOptions(w io.Writer, noHeaders bool) error {
	if len(t.Rows) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if !noHeaders && len(t.Headers) > 0 {
		fmt.Fprintln(tw, strings.Join(t.Headers, "\t"))
	}
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// AddRow appends a row.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// SetHeaders replaces the header row.
func (t *Table) SetHeaders(headers ...string) {
	t.Headers = headers
}
