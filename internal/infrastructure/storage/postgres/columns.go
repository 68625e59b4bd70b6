package postgres

import (
	"reflect"
	"strings"
	"sync"
)

var columnCache sync.Map // reflect.Type -> []string

// Columns returns the "db" tag names of T's fields in declaration order,
// flattening embedded structs, for use as a select list matching pgxscan's
// mapping of T.
//
//	cols := Columns[viewRow]()
//	// ["view_name", "owner_id", "label", ...]
func Columns[T any]() []string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if cached, ok := columnCache.Load(t); ok {
		return append([]string(nil), cached.([]string)...)
	}
	cols := columnsOf(t)
	columnCache.Store(t, cols)
	return append([]string(nil), cols...)
}

func columnsOf(t reflect.Type) []string {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	var cols []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous {
			cols = append(cols, columnsOf(field.Type)...)
			continue
		}
		name := strings.Split(field.Tag.Get("db"), ",")[0]
		if name == "" || name == "-" {
			continue
		}
		cols = append(cols, name)
	}
	return cols
}
