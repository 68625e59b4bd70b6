package metadata

import (
	"reflect"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Inspect builds a table-backed QueryDef from a struct with `db` tags.
// A `grid:"key"` tag marks the key column, `grid:"container"` the container
// column and `grid:"hidden"` hides a column from default views.
func Inspect(row any, schema, name, table string) QueryDef {
	t := reflect.TypeOf(row)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if name == "" {
		name = t.Name()
	}

	def := QueryDef{
		Schema: schema,
		Name:   name,
		Label:  guessLabel(name),
		Table:  table,
	}

	inspectStruct(t, &def)

	return def
}

func inspectStruct(t reflect.Type, def *QueryDef) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.PkgPath != "" { // unexported
			continue
		}

		// Embedded structs are flattened.
		if field.Anonymous {
			inspectStruct(field.Type, def)
			continue
		}

		col, ok := dbName(field)
		if !ok {
			continue
		}

		c := ColumnDef{
			Name:  col,
			Label: guessLabel(field.Name),
			Type:  mapFieldType(field.Type),
		}

		for _, opt := range strings.Split(field.Tag.Get("grid"), ",") {
			switch strings.TrimSpace(opt) {
			case "key":
				def.KeyColumn = col
			case "container":
				def.ContainerColumn = col
			case "hidden":
				c.Hidden = true
			}
		}

		def.Columns = append(def.Columns, c)
	}
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
)

func mapFieldType(t reflect.Type) FieldType {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t {
	case timeType:
		return TypeTimestamp
	case decimalType:
		return TypeNumber
	}

	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return TypeInteger
	case reflect.Float32, reflect.Float64:
		return TypeNumber
	case reflect.Bool:
		return TypeBoolean
	default:
		return TypeString
	}
}

func dbName(field reflect.StructField) (string, bool) {
	tag, ok := field.Tag.Lookup("db")
	if !ok {
		return "", false
	}
	name := strings.Split(tag, ",")[0]
	if name == "" || name == "-" {
		return "", false
	}
	return name, true
}

// guessLabel splits CamelCase: "CreatedBy" -> "Created By".
func guessLabel(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if i > 0 && r >= 'A' && r <= 'Z' && runes[i-1] >= 'a' && runes[i-1] <= 'z' {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}
