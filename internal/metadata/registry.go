// Package metadata describes the queries a grid can display: where rows come
// from, which column is the row key and which columns exist.
package metadata

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"querygrid/internal/domain/query"
)

// FieldType defines the data type of a column.
type FieldType string

const (
	TypeString    FieldType = "string"
	TypeInteger   FieldType = "integer"
	TypeNumber    FieldType = "number" // float/decimal
	TypeBoolean   FieldType = "boolean"
	TypeDate      FieldType = "date"
	TypeTimestamp FieldType = "timestamp"
)

// IsNumeric reports whether filter values must be parsed as numbers.
func (t FieldType) IsNumeric() bool {
	return t == TypeInteger || t == TypeNumber
}

// ColumnDef describes a column.
type ColumnDef struct {
	Name   string    `json:"name" mapstructure:"name"`
	Label  string    `json:"label,omitempty" mapstructure:"label"`
	Type   FieldType `json:"type" mapstructure:"type"`
	Hidden bool      `json:"hidden,omitempty" mapstructure:"hidden"`
}

// QueryDef describes one schema.query.
//
// Rows come either from Table or from SQL. SQL may reference named query
// parameters as @name; they are bound from the region's ".param.<name>" values.
type QueryDef struct {
	Schema          string      `json:"schema" mapstructure:"schema"`
	Name            string      `json:"name" mapstructure:"name"`
	Label           string      `json:"label,omitempty" mapstructure:"label"`
	Table           string      `json:"-" mapstructure:"table"`
	SQL             string      `json:"-" mapstructure:"sql"`
	KeyColumn       string      `json:"keyColumn" mapstructure:"key_column"`
	ContainerColumn string      `json:"-" mapstructure:"container_column"`
	DefaultSort     string      `json:"defaultSort,omitempty" mapstructure:"default_sort"`
	Columns         []ColumnDef `json:"columns" mapstructure:"columns"`
}

// Validate checks that the definition is usable.
func (d QueryDef) Validate() error {
	if d.Schema == "" || d.Name == "" {
		return fmt.Errorf("query definition needs schema and name")
	}
	if (d.Table == "") == (d.SQL == "") {
		return fmt.Errorf("query %s.%s needs exactly one of table or sql", d.Schema, d.Name)
	}
	if d.KeyColumn == "" {
		return fmt.Errorf("query %s.%s needs a key column", d.Schema, d.Name)
	}
	if _, ok := d.Column(d.KeyColumn); !ok {
		return fmt.Errorf("query %s.%s: key column %q is not declared", d.Schema, d.Name, d.KeyColumn)
	}
	return nil
}

// Column finds a column by name, case-insensitively.
func (d QueryDef) Column(name string) (ColumnDef, bool) {
	for _, c := range d.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return ColumnDef{}, false
}

// ColumnNames returns declared column names in order.
func (d QueryDef) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// Meta converts the column list for a query.Result.
func (d QueryDef) Meta(columns []ColumnDef) []query.ColumnMeta {
	out := make([]query.ColumnMeta, len(columns))
	for i, c := range columns {
		out[i] = query.ColumnMeta{
			Name:  c.Name,
			Label: c.Label,
			Type:  string(c.Type),
			Key:   strings.EqualFold(c.Name, d.KeyColumn),
		}
	}
	return out
}

// Registry stores query definitions keyed by "schema.query".
type Registry struct {
	mu      sync.RWMutex
	queries map[string]QueryDef
}

func NewRegistry() *Registry {
	return &Registry{
		queries: make(map[string]QueryDef),
	}
}

func registryKey(schema, name string) string {
	return strings.ToLower(schema + "." + name)
}

// Register adds or replaces a definition.
func (r *Registry) Register(def QueryDef) error {
	if err := def.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries[registryKey(def.Schema, def.Name)] = def
	return nil
}

func (r *Registry) Get(schema, name string) (QueryDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.queries[registryKey(schema, name)]
	return d, ok
}

// HasColumn reports whether schema.query declares field. Unknown queries
// answer true so callers without metadata are not blocked.
func (r *Registry) HasColumn(schema, name, field string) bool {
	d, ok := r.Get(schema, name)
	if !ok {
		return true
	}
	_, found := d.Column(field)
	return found
}

// List returns every definition sorted by schema then name.
func (r *Registry) List() []QueryDef {
	r.mu.RLock()
	list := make([]QueryDef, 0, len(r.queries))
	for _, def := range r.queries {
		list = append(list, def)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].Schema != list[j].Schema {
			return list[i].Schema < list[j].Schema
		}
		return list[i].Name < list[j].Name
	})
	return list
}
