// Package filter defines grid filter clauses and the operator table shared by
// the URL codec, the region store and the SQL row fetcher.
package filter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Operator is a comparison kind. Its string value is the URL suffix that follows
// the "~" delimiter in a filter parameter name.
type Operator string

const (
	Equal             Operator = "eq"
	NotEqual          Operator = "neq"
	NotEqualOrMissing Operator = "neqornull"
	IsBlank           Operator = "isblank"
	IsNonBlank        Operator = "isnonblank"
	Greater           Operator = "gt"
	GreaterOrEqual    Operator = "gte"
	Less              Operator = "lt"
	LessOrEqual       Operator = "lte"

	DateEqual          Operator = "dateeq"
	DateNotEqual       Operator = "dateneq"
	DateGreater        Operator = "dategt"
	DateGreaterOrEqual Operator = "dategte"
	DateLess           Operator = "datelt"
	DateLessOrEqual    Operator = "datelte"

	Contains         Operator = "contains"
	DoesNotContain   Operator = "doesnotcontain"
	StartsWith       Operator = "startswith"
	DoesNotStartWith Operator = "doesnotstartwith"
	InList           Operator = "in"
	NotInList        Operator = "notin"
	ContainsOneOf    Operator = "containsoneof"
	ContainsNoneOf   Operator = "containsnoneof"
	Between          Operator = "between"
	NotBetween       Operator = "notbetween"
	HasMissingValue  Operator = "hasmvvalue"
	NoMissingValue   Operator = "nomvvalue"
	Search           Operator = "q"
)

// Delimiter separates the field key from the operator suffix in a parameter name.
const Delimiter = "~"

// AnyField is the field of a search clause that spans every text column.
const AnyField = "*"

// MultiValueSeparator joins values of multi-valued operators.
const MultiValueSeparator = ";"

// BetweenSeparator joins the two bounds of a range operator.
const BetweenSeparator = ","

type operatorInfo struct {
	requiresValue bool
	multiValued   bool
	rangeValued   bool
}

var operators = map[Operator]operatorInfo{
	Equal:             {requiresValue: true},
	NotEqual:          {requiresValue: true},
	NotEqualOrMissing: {requiresValue: true},
	IsBlank:           {},
	IsNonBlank:        {},
	Greater:           {requiresValue: true},
	GreaterOrEqual:    {requiresValue: true},
	Less:              {requiresValue: true},
	LessOrEqual:       {requiresValue: true},

	DateEqual:          {requiresValue: true},
	DateNotEqual:       {requiresValue: true},
	DateGreater:        {requiresValue: true},
	DateGreaterOrEqual: {requiresValue: true},
	DateLess:           {requiresValue: true},
	DateLessOrEqual:    {requiresValue: true},

	Contains:         {requiresValue: true},
	DoesNotContain:   {requiresValue: true},
	StartsWith:       {requiresValue: true},
	DoesNotStartWith: {requiresValue: true},
	InList:           {requiresValue: true, multiValued: true},
	NotInList:        {requiresValue: true, multiValued: true},
	ContainsOneOf:    {requiresValue: true, multiValued: true},
	ContainsNoneOf:   {requiresValue: true, multiValued: true},
	Between:          {requiresValue: true, rangeValued: true},
	NotBetween:       {requiresValue: true, rangeValued: true},
	HasMissingValue:  {},
	NoMissingValue:   {},
	Search:           {requiresValue: true},
}

// friendlyNames maps the public operator names used by callers to operators.
var friendlyNames = map[string]Operator{
	"EQUAL":                       Equal,
	"NOT_EQUAL":                   NotEqual,
	"NEQ":                         NotEqual,
	"NOT_EQUAL_OR_MISSING":        NotEqualOrMissing,
	"NEQ_OR_NULL":                 NotEqualOrMissing,
	"ISBLANK":                     IsBlank,
	"MISSING":                     IsBlank,
	"NONBLANK":                    IsNonBlank,
	"NOT_MISSING":                 IsNonBlank,
	"GREATER_THAN":                Greater,
	"GT":                          Greater,
	"GREATER_THAN_OR_EQUAL":       GreaterOrEqual,
	"GTE":                         GreaterOrEqual,
	"LESS_THAN":                   Less,
	"LT":                          Less,
	"LESS_THAN_OR_EQUAL":          LessOrEqual,
	"LTE":                         LessOrEqual,
	"DATE_EQUAL":                  DateEqual,
	"DATE_NOT_EQUAL":              DateNotEqual,
	"DATE_GREATER_THAN":           DateGreater,
	"DATE_GREATER_THAN_OR_EQUAL":  DateGreaterOrEqual,
	"DATE_LESS_THAN":              DateLess,
	"DATE_LESS_THAN_OR_EQUAL":     DateLessOrEqual,
	"CONTAINS":                    Contains,
	"DOES_NOT_CONTAIN":            DoesNotContain,
	"STARTS_WITH":                 StartsWith,
	"DOES_NOT_START_WITH":         DoesNotStartWith,
	"IN":                          InList,
	"EQUALS_ONE_OF":               InList,
	"NOT_IN":                      NotInList,
	"EQUALS_NONE_OF":              NotInList,
	"CONTAINS_ONE_OF":             ContainsOneOf,
	"CONTAINS_NONE_OF":            ContainsNoneOf,
	"BETWEEN":                     Between,
	"NOT_BETWEEN":                 NotBetween,
	"HAS_MISSING_VALUE":           HasMissingValue,
	"DOES_NOT_HAVE_MISSING_VALUE": NoMissingValue,
	"Q":                           Search,
}

// Lookup resolves a friendly operator name ("EQUAL", "ISBLANK"...) or a raw URL
// suffix ("eq", "isblank"...). Names are case-insensitive.
func Lookup(name string) (Operator, bool) {
	if op, ok := friendlyNames[strings.ToUpper(name)]; ok {
		return op, true
	}
	return ParseOperator(name)
}

// ParseOperator resolves a URL suffix.
func ParseOperator(suffix string) (Operator, bool) {
	op := Operator(strings.ToLower(suffix))
	if _, ok := operators[op]; ok {
		return op, true
	}
	return "", false
}

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	_, ok := operators[op]
	return ok
}

// RequiresValue reports whether the operator takes a value. Operators such as
// IsBlank forbid one and always serialize without "=".
func (op Operator) RequiresValue() bool {
	return operators[op].requiresValue
}

// MultiValued reports whether the value is a ";"-separated list.
func (op Operator) MultiValued() bool {
	return operators[op].multiValued
}

// RangeValued reports whether the value is a "low,high" pair.
func (op Operator) RangeValued() bool {
	return operators[op].rangeValued
}

// IsDate reports whether the operator compares on the date part only.
func (op Operator) IsDate() bool {
	return strings.HasPrefix(string(op), "date")
}

// Clause is one filter on one field. Multiple clauses compose with AND.
type Clause struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"` // nil, string, []string or a typed scalar
}

// Validate checks the value against what the operator requires.
func (c Clause) Validate() error {
	if c.Field == "" {
		return fmt.Errorf("filter field is required")
	}
	if !c.Operator.Valid() {
		return fmt.Errorf("unknown filter operator %q", c.Operator)
	}
	if c.Operator.RequiresValue() && c.Value == nil {
		return fmt.Errorf("filter %s~%s requires a value", c.Field, c.Operator)
	}
	return nil
}

// UnmarshalJSON accepts friendly operator names and keeps list values as
// []string, so decoded clauses behave like the ones built by the factories.
func (c *Clause) UnmarshalJSON(data []byte) error {
	var raw struct {
		Field    string          `json:"field"`
		Operator string          `json:"operator"`
		Value    json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Field = raw.Field
	c.Operator = Operator(raw.Operator)
	if op, ok := Lookup(raw.Operator); ok {
		c.Operator = op
	}
	c.Value = nil

	value := bytes.TrimSpace(raw.Value)
	switch {
	case len(value) == 0 || bytes.Equal(value, []byte("null")):
	case value[0] == '[':
		var items []any
		if err := json.Unmarshal(value, &items); err != nil {
			return fmt.Errorf("filter %s value: %w", raw.Field, err)
		}
		list := make([]string, len(items))
		for i, item := range items {
			list[i] = fmt.Sprint(item)
		}
		c.Value = list
	case value[0] == '"':
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return fmt.Errorf("filter %s value: %w", raw.Field, err)
		}
		c.Value = s
	default:
		c.Value = string(value)
	}
	return nil
}

// Values returns the clause value as a list. Multi-valued string values are split
// on the operator's separator.
func (c Clause) Values() []string {
	switch v := c.Value.(type) {
	case nil:
		return nil
	case []string:
		return v
	case string:
		switch {
		case c.Operator.MultiValued():
			return strings.Split(v, MultiValueSeparator)
		case c.Operator.RangeValued():
			return strings.SplitN(v, BetweenSeparator, 2)
		}
		return []string{v}
	default:
		return []string{fmt.Sprint(v)}
	}
}

// String renders the clause in its URL form without region prefix.
func (c Clause) String() string {
	return c.Field + Delimiter + string(c.Operator)
}

// --- Factories ---

// New builds a clause from a friendly name or URL suffix.
func New(field, operator string, value any) (Clause, error) {
	op, ok := Lookup(operator)
	if !ok {
		return Clause{}, fmt.Errorf("unknown filter operator %q", operator)
	}
	c := Clause{Field: field, Operator: op}
	if op.RequiresValue() {
		c.Value = value
	}
	return c, c.Validate()
}

func NewEqual(field string, value any) Clause    { return Clause{Field: field, Operator: Equal, Value: value} }
func NewNotEqual(field string, value any) Clause { return Clause{Field: field, Operator: NotEqual, Value: value} }
func NewIsBlank(field string) Clause             { return Clause{Field: field, Operator: IsBlank} }
func NewNonBlank(field string) Clause            { return Clause{Field: field, Operator: IsNonBlank} }
func NewGreaterThan(field string, value any) Clause {
	return Clause{Field: field, Operator: Greater, Value: value}
}
func NewLessThan(field string, value any) Clause {
	return Clause{Field: field, Operator: Less, Value: value}
}
func NewContains(field, value string) Clause {
	return Clause{Field: field, Operator: Contains, Value: value}
}
func NewStartsWith(field, value string) Clause {
	return Clause{Field: field, Operator: StartsWith, Value: value}
}

// NewIn builds an "equals one of" clause.
func NewIn(field string, values ...string) Clause {
	return Clause{Field: field, Operator: InList, Value: values}
}

// NewNotIn builds an "equals none of" clause.
func NewNotIn(field string, values ...string) Clause {
	return Clause{Field: field, Operator: NotInList, Value: values}
}

// NewSearch builds a free-text search over every text column.
func NewSearch(text string) Clause {
	return Clause{Field: AnyField, Operator: Search, Value: text}
}

// NewBetween builds an inclusive range clause.
func NewBetween(field string, low, high any) Clause {
	return Clause{Field: field, Operator: Between, Value: []string{fmt.Sprint(low), fmt.Sprint(high)}}
}
