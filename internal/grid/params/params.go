// Package params maps between flat URL query pairs and grid region state.
//
// Every region-scoped parameter is named "<region>.<suffix>". A handful of
// bare, unprefixed names are reserved and never attributed to any region, and
// keys ending in ".lastFilter" are remembered-but-inactive filters that must
// not be read as live state.
package params

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"querygrid/internal/domain/filter"
)

// Parameter suffixes. Prefix them with the region name via Key.
const (
	Sort            = "sort"
	Offset          = "offset"
	MaxRows         = "maxRows"
	ShowRows        = "showRows"
	ViewName        = "viewName"
	ReportID        = "reportId"
	ContainerFilter = "containerFilterName"
	Columns         = "columns"
	SelectionKey    = "selectionKey"
	ParamPrefix     = "param."

	// AllFilters is the skip marker that drops every filter parameter and
	// nothing else. Pass it as a skip prefix (optionally region-prefixed).
	AllFilters = "~"

	// LastFilterSuffix marks a remembered but inactive filter.
	LastFilterSuffix = ".lastFilter"
)

// DateFormat is the fixed layout for time values. No zone marker is emitted.
const DateFormat = "2006/01/02 15:04:05"

// ReservedNames are bare parameter names that are ambiguous without a region
// prefix. Bookmarked URLs depend on this exact set.
var ReservedNames = map[string]struct{}{
	"~":                   {},
	"columns":             {},
	"param":               {},
	"reportId":            {},
	"sort":                {},
	"offset":              {},
	"maxRows":             {},
	"showRows":            {},
	"containerFilterName": {},
	"viewName":            {},
	"disableAnalytics":    {},
}

// Pair is one query parameter. HasValue is false for bare keys ("a.Age~isblank").
type Pair struct {
	Key      string
	Value    string
	HasValue bool
}

// P builds a pair with a value.
func P(key, value string) Pair {
	return Pair{Key: key, Value: value, HasValue: true}
}

// Bare builds a pair without a value component.
func Bare(key string) Pair {
	return Pair{Key: key}
}

// String renders the pair as it appears in a query string (unescaped).
func (p Pair) String() string {
	if !p.HasValue {
		return p.Key
	}
	return p.Key + "=" + p.Value
}

// Pairs is an ordered parameter list. Order and repeated keys are significant.
type Pairs []Pair

// Get returns the first value for key.
func (ps Pairs) Get(key string) (string, bool) {
	for _, p := range ps {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// GetAll returns every value for key in order.
func (ps Pairs) GetAll(key string) []string {
	var out []string
	for _, p := range ps {
		if p.Key == key {
			out = append(out, p.Value)
		}
	}
	return out
}

// Has reports whether key is present.
func (ps Pairs) Has(key string) bool {
	_, ok := ps.Get(key)
	return ok
}

// Keys returns the keys in order, repeated keys included.
func (ps Pairs) Keys() []string {
	keys := make([]string, len(ps))
	for i, p := range ps {
		keys[i] = p.Key
	}
	return keys
}

// Map flattens the pairs; repeated keys keep their last value.
func (ps Pairs) Map() map[string]string {
	m := make(map[string]string, len(ps))
	for _, p := range ps {
		m[p.Key] = p.Value
	}
	return m
}

// Clone returns an independent copy.
func (ps Pairs) Clone() Pairs {
	if ps == nil {
		return nil
	}
	out := make(Pairs, len(ps))
	copy(out, ps)
	return out
}

// Values converts to url.Values. Bare keys map to an empty string.
func (ps Pairs) Values() url.Values {
	v := make(url.Values, len(ps))
	for _, p := range ps {
		v[p.Key] = append(v[p.Key], p.Value)
	}
	return v
}

// Key returns the region-scoped name for suffix.
func Key(region, suffix string) string {
	return region + "." + suffix
}

// Prefix returns "<region>.".
func Prefix(region string) string {
	return region + "."
}

// ParseQuery splits a raw query string into pairs, dropping reserved bare
// names and inactive ".lastFilter" entries. A leading "?" is ignored.
func ParseQuery(raw string) Pairs {
	raw = strings.TrimPrefix(raw, "?")
	if raw == "" {
		return nil
	}

	var out Pairs
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		rawKey, rawValue, hasValue := strings.Cut(part, "=")
		key := unescape(rawKey)
		if key == "" || isIgnored(key) {
			continue
		}
		p := Pair{Key: key, HasValue: hasValue}
		if hasValue {
			p.Value = unescape(rawValue)
		}
		out = append(out, p)
	}
	return out
}

// Parse returns only the pairs that belong to region.
func Parse(raw, region string) Pairs {
	return Owned(ParseQuery(raw), region)
}

// Owned keeps pairs prefixed with "<region>.".
func Owned(ps Pairs, region string) Pairs {
	prefix := Prefix(region)
	var out Pairs
	for _, p := range ps {
		if strings.HasPrefix(p.Key, prefix) {
			out = append(out, p)
		}
	}
	return out
}

// Foreign keeps pairs that do not belong to region, such as other regions'
// state or page-level parameters.
func Foreign(ps Pairs, region string) Pairs {
	prefix := Prefix(region)
	var out Pairs
	for _, p := range ps {
		if !strings.HasPrefix(p.Key, prefix) {
			out = append(out, p)
		}
	}
	return out
}

// Serialize keeps every current pair not matched by a skip, then appends
// newPairs. Keys and skips without the region prefix get one. A skip ending in
// "~" or "." removes every key it prefixes; any other skip names one exact key,
// so skipping "sort" leaves a filter on a "sortOrder" column alone.
// Skipping always happens before appending, so a mutation can never leave a
// stale value for the axis it changes.
func Serialize(region string, current, newPairs Pairs, skipPrefixes []string) Pairs {
	skips := make([]string, len(skipPrefixes))
	for i, s := range skipPrefixes {
		skips[i] = qualify(region, s)
	}

	out := make(Pairs, 0, len(current)+len(newPairs))
	for _, p := range current {
		if !skipped(p.Key, skips) {
			out = append(out, p)
		}
	}
	for _, p := range newPairs {
		p.Key = qualify(region, p.Key)
		out = append(out, p)
	}
	return out
}

// Encode renders pairs as an escaped query string without leading "?".
func Encode(ps Pairs) string {
	var b strings.Builder
	for i, p := range ps {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Key))
		if p.HasValue {
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(p.Value))
		}
	}
	return b.String()
}

// FormatValue renders a parameter value. ok is false for nil.
func FormatValue(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case []string:
		return strings.Join(val, filter.MultiValueSeparator), true
	case time.Time:
		return val.Format(DateFormat), true
	case *time.Time:
		if val == nil {
			return "", false
		}
		return val.Format(DateFormat), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	case fmt.Stringer:
		return val.String(), true
	default:
		return fmt.Sprint(val), true
	}
}

func qualify(region, key string) string {
	prefix := Prefix(region)
	if strings.HasPrefix(key, prefix) {
		return key
	}
	return prefix + strings.TrimPrefix(key, ".")
}

func skipped(key string, skips []string) bool {
	for _, s := range skips {
		if strings.HasSuffix(s, "."+AllFilters) {
			if strings.Index(key, filter.Delimiter) > 0 {
				return true
			}
			continue
		}
		if isPrefixSkip(s) {
			if strings.HasPrefix(key, s) {
				return true
			}
			continue
		}
		if key == s {
			return true
		}
	}
	return false
}

func isPrefixSkip(s string) bool {
	return strings.HasSuffix(s, filter.Delimiter) || strings.HasSuffix(s, ".")
}

func isIgnored(key string) bool {
	if _, reserved := ReservedNames[key]; reserved {
		return true
	}
	return strings.HasSuffix(key, LastFilterSuffix)
}

func unescape(s string) string {
	if out, err := url.QueryUnescape(s); err == nil {
		return out
	}
	return s
}
