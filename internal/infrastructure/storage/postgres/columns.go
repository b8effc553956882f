package postgres

import (
	"reflect"
	"slices"
	"sync"
)

// fieldIndex maps db column names to struct field indexes for one type.
type fieldIndex struct {
	columns []string
	index   map[string]int
}

var fieldCache sync.Map // reflect.Type -> *fieldIndex

func indexOf(t reflect.Type) *fieldIndex {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if cached, ok := fieldCache.Load(t); ok {
		return cached.(*fieldIndex)
	}

	fi := &fieldIndex{index: make(map[string]int)}
	for i := range t.NumField() {
		tag := t.Field(i).Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		fi.columns = append(fi.columns, tag)
		fi.index[tag] = i
	}
	fieldCache.Store(t, fi)
	return fi
}

// columnsOf lists the db-tagged columns of T in field order, minus skip.
func columnsOf[T any](skip ...string) []string {
	cols := indexOf(reflect.TypeFor[T]()).columns
	return slices.DeleteFunc(slices.Clone(cols), func(c string) bool {
		return slices.Contains(skip, c)
	})
}

// rowOf returns the values of v's fields for the given columns, in order.
// v must be a struct or a pointer to one.
func rowOf(v any, columns []string) []any {
	rv := reflect.Indirect(reflect.ValueOf(v))
	fi := indexOf(rv.Type())
	row := make([]any, len(columns))
	for i, c := range columns {
		if idx, ok := fi.index[c]; ok {
			row[i] = rv.Field(idx).Interface()
		}
	}
	return row
}
