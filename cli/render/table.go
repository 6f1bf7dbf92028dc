package render

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
)

// Tabular is implemented by results that choose their own columns.
type Tabular interface {
	Header() []string
	Rows() [][]string
}

func (r *Renderer) renderTable(data any) error {
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)

	if t, ok := data.(Tabular); ok {
		writeRows(w, t.Header(), t.Rows())
		return w.Flush()
	}

	v := indirect(reflect.ValueOf(data))
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			fmt.Fprintln(r.out, "(no results)")
			return nil
		}
		header := columns(indirect(v.Index(0)))
		rows := make([][]string, 0, v.Len())
		for i := range v.Len() {
			rows = append(rows, cells(indirect(v.Index(i)), header))
		}
		writeRows(w, header, rows)
	case reflect.Struct:
		t := v.Type()
		for i := range t.NumField() {
			if f := t.Field(i); f.IsExported() {
				fmt.Fprintf(w, "%s:\t%s\n", fieldName(f), cell(v.Field(i)))
			}
		}
	case reflect.Map:
		for _, k := range sortedKeys(v) {
			fmt.Fprintf(w, "%s:\t%s\n", k, cell(mapIndex(v, k)))
		}
	default:
		fmt.Fprintf(w, "%v\n", data)
	}
	return w.Flush()
}

func writeRows(w *tabwriter.Writer, header []string, rows [][]string) {
	if len(header) > 0 {
		fmt.Fprintln(w, strings.ToUpper(strings.Join(header, "\t")))
	}
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
}

// columns lists the column names of a struct or string-keyed map row.
func columns(v reflect.Value) []string {
	switch v.Kind() {
	case reflect.Struct:
		var out []string
		t := v.Type()
		for i := range t.NumField() {
			if f := t.Field(i); f.IsExported() {
				out = append(out, fieldName(f))
			}
		}
		return out
	case reflect.Map:
		return sortedKeys(v)
	default:
		return []string{"value"}
	}
}

func cells(v reflect.Value, header []string) []string {
	switch v.Kind() {
	case reflect.Struct:
		var out []string
		t := v.Type()
		for i := range t.NumField() {
			if t.Field(i).IsExported() {
				out = append(out, cell(v.Field(i)))
			}
		}
		return out
	case reflect.Map:
		out := make([]string, len(header))
		for i, h := range header {
			out[i] = cell(mapIndex(v, h))
		}
		return out
	default:
		return []string{cell(v)}
	}
}

func cell(v reflect.Value) string {
	if !v.IsValid() {
		return ""
	}
	if v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return ""
		}
		return cell(v.Elem())
	}
	if t, ok := v.Interface().(time.Time); ok {
		if t.IsZero() {
			return ""
		}
		return t.Format(time.RFC3339)
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		return fmt.Sprintf("{%d keys}", v.Len())
	case reflect.Struct:
		return "{...}"
	default:
		return fmt.Sprint(v.Interface())
	}
}

// fieldName prefers the json tag name.
func fieldName(f reflect.StructField) string {
	if name, _, _ := strings.Cut(f.Tag.Get("json"), ","); name != "" && name != "-" {
		return name
	}
	return strings.ToLower(f.Name)
}

func sortedKeys(v reflect.Value) []string {
	keys := make([]string, 0, v.Len())
	for _, k := range v.MapKeys() {
		keys = append(keys, fmt.Sprint(k.Interface()))
	}
	sort.Strings(keys)
	return keys
}

// mapIndex looks a key up by its printed form.
func mapIndex(m reflect.Value, key string) reflect.Value {
	iter := m.MapRange()
	for iter.Next() {
		if fmt.Sprint(iter.Key().Interface()) == key {
			return iter.Value()
		}
	}
	return reflect.Value{}
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}
