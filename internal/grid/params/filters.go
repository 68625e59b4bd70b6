package params

import (
	"strings"

	"querygrid/internal/domain/filter"
)

// FilterKey returns "<region>.<field>~<operator>".
func FilterKey(region string, c filter.Clause) string {
	return Key(region, c.String())
}

// FieldFilterPrefix matches every clause on field, whatever its operator.
func FieldFilterPrefix(region, field string) string {
	return Key(region, field+filter.Delimiter)
}

// FilterPair encodes a clause. Operators that take no value produce a bare key.
func FilterPair(region string, c filter.Clause) Pair {
	key := FilterKey(region, c)
	if !c.Operator.RequiresValue() {
		return Bare(key)
	}

	var (
		value string
		ok    bool
	)
	if list, isList := c.Value.([]string); isList && c.Operator.RangeValued() {
		value, ok = strings.Join(list, filter.BetweenSeparator), true
	} else {
		value, ok = FormatValue(c.Value)
	}
	if !ok {
		return Bare(key)
	}
	return P(key, value)
}

// ParseFilter decodes a region-owned filter pair. ok is false for non-filter
// keys, foreign keys and unknown operators.
func ParseFilter(region string, p Pair) (filter.Clause, bool) {
	prefix := Prefix(region)
	if !strings.HasPrefix(p.Key, prefix) {
		return filter.Clause{}, false
	}
	rest := p.Key[len(prefix):]
	if strings.HasPrefix(rest, ParamPrefix) {
		return filter.Clause{}, false
	}

	idx := strings.LastIndex(rest, filter.Delimiter)
	if idx <= 0 {
		return filter.Clause{}, false
	}
	op, ok := filter.ParseOperator(rest[idx+1:])
	if !ok {
		return filter.Clause{}, false
	}

	c := filter.Clause{Field: rest[:idx], Operator: op}
	if p.HasValue && op.RequiresValue() {
		switch {
		case op.MultiValued():
			c.Value = strings.Split(p.Value, filter.MultiValueSeparator)
		case op.RangeValued():
			c.Value = strings.SplitN(p.Value, filter.BetweenSeparator, 2)
		default:
			c.Value = p.Value
		}
	}
	return c, true
}
