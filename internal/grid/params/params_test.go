package params

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querygrid/internal/domain/filter"
)

func TestParse_KeepsOnlyRegionPairs(t *testing.T) {
	raw := "?A.sort=Name&B.sort=Age&A.x~eq=1&sort=Evil&offset=10&other=1"

	got := Parse(raw, "A")

	assert.Equal(t, Pairs{P("A.sort", "Name"), P("A.x~eq", "1")}, got)
}

func TestParseQuery_RejectsReservedBareNames(t *testing.T) {
	for name := range ReservedNames {
		got := ParseQuery(name + "=1&keep=2")
		assert.Equal(t, Pairs{P("keep", "2")}, got, name)
	}
}

func TestParseQuery_DropsLastFilter(t *testing.T) {
	got := ParseQuery("A.Age~gt=3&A.lastFilter&A.Name~eq=x")
	assert.Equal(t, Pairs{P("A.Age~gt", "3"), P("A.Name~eq", "x")}, got)
}

func TestParseQuery_BareKeyAndDecoding(t *testing.T) {
	got := ParseQuery("A.Age~isblank&A.Name~eq=John+Smith&A.Note~contains=a%26b")

	require.Len(t, got, 3)
	assert.Equal(t, Bare("A.Age~isblank"), got[0])
	assert.Equal(t, "John Smith", got[1].Value)
	assert.Equal(t, "a&b", got[2].Value)
}

func TestParseQuery_KeepsRepeatedKeys(t *testing.T) {
	got := ParseQuery("A.Status~neq=x&A.Status~neq=y")
	assert.Equal(t, []string{"x", "y"}, got.GetAll("A.Status~neq"))
}

func TestSerialize_SkipBeforeAppend(t *testing.T) {
	current := Pairs{P("A.sort", "Name"), P("A.x~eq", "1")}

	got := Serialize("A", current, Pairs{P("sort", "-Age")}, []string{Sort})

	assert.Equal(t, Pairs{P("A.x~eq", "1"), P("A.sort", "-Age")}, got)
}

func TestSerialize_AllFiltersMarker(t *testing.T) {
	current := Pairs{
		P("A.x~eq", "1"),
		P("A.sort", "Name"),
		Bare("A.y~isblank"),
		P("A.param.year", "2020"),
	}

	got := Serialize("A", current, nil, []string{AllFilters})

	assert.Equal(t, Pairs{P("A.sort", "Name"), P("A.param.year", "2020")}, got)
}

func TestSerialize_PrefixMatchIsLiteral(t *testing.T) {
	current := Pairs{P("A.Age~eq", "1"), P("A.AgeGroup~eq", "2"), P("A.Age~gt", "0")}

	got := Serialize("A", current, nil, []string{"A.Age~"})

	assert.Equal(t, Pairs{P("A.AgeGroup~eq", "2")}, got)
}

func TestSerialize_AxisSkipIsExactKey(t *testing.T) {
	current := Pairs{
		P("A.sort", "Name"),
		P("A.sortOrder~eq", "3"),
		P("A.offset", "20"),
		P("A.offsetDays~gt", "7"),
		P("A.param.a", "1"),
		P("A.param.ab", "2"),
	}

	got := Serialize("A", current, nil, []string{Sort, Offset, ParamPrefix})

	assert.Equal(t, Pairs{P("A.sortOrder~eq", "3"), P("A.offsetDays~gt", "7")}, got)
}

func TestSerialize_DoesNotDoublePrefix(t *testing.T) {
	got := Serialize("A", nil, Pairs{P("A.offset", "20"), P(".maxRows", "10")}, nil)
	assert.Equal(t, Pairs{P("A.offset", "20"), P("A.maxRows", "10")}, got)
}

func TestEncode(t *testing.T) {
	got := Encode(Pairs{P("A.sort", "-Last,First"), Bare("A.Age~isblank"), P("A.Name~eq", "a b")})
	assert.Equal(t, "A.sort=-Last%2CFirst&A.Age~isblank&A.Name~eq=a+b", got)

	assert.Equal(t, Pairs{P("A.sort", "-Last,First"), Bare("A.Age~isblank"), P("A.Name~eq", "a b")}, ParseQuery(got))
}

func TestForeign(t *testing.T) {
	ps := Pairs{P("A.sort", "x"), P("B.sort", "y"), P("page", "2")}
	assert.Equal(t, Pairs{P("B.sort", "y"), P("page", "2")}, Foreign(ps, "A"))
	assert.Equal(t, Pairs{P("A.sort", "x")}, Owned(ps, "A"))
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)

	v, ok := FormatValue(ts)
	assert.True(t, ok)
	assert.Equal(t, "2024/03/09 14:05:06", v)

	v, _ = FormatValue([]string{"a", "b"})
	assert.Equal(t, "a;b", v)

	v, _ = FormatValue(2.5)
	assert.Equal(t, "2.5", v)

	_, ok = FormatValue(nil)
	assert.False(t, ok)
}

func TestFilterPair_NoValueOperator(t *testing.T) {
	p := FilterPair("A", filter.NewIsBlank("Age"))

	assert.Equal(t, Bare("A.Age~isblank"), p)
	assert.Equal(t, "A.Age~isblank", Encode(Pairs{p}))

	c, ok := ParseFilter("A", ParseQuery(Encode(Pairs{p}))[0])
	require.True(t, ok)
	assert.Equal(t, "Age", c.Field)
	assert.Equal(t, filter.IsBlank, c.Operator)
	assert.Nil(t, c.Value)
}

func TestFilterPair_MultiAndRangeValues(t *testing.T) {
	in := FilterPair("A", filter.NewIn("Status", "Active", "Hold"))
	assert.Equal(t, P("A.Status~in", "Active;Hold"), in)

	between := FilterPair("A", filter.NewBetween("Age", 1, 9))
	assert.Equal(t, P("A.Age~between", "1,9"), between)

	c, ok := ParseFilter("A", in)
	require.True(t, ok)
	assert.Equal(t, []string{"Active", "Hold"}, c.Value)
}

func TestParseFilter_Rejects(t *testing.T) {
	_, ok := ParseFilter("A", P("A.sort", "x"))
	assert.False(t, ok)
	_, ok = ParseFilter("A", P("B.x~eq", "1"))
	assert.False(t, ok)
	_, ok = ParseFilter("A", P("A.x~bogus", "1"))
	assert.False(t, ok)
	_, ok = ParseFilter("A", P("A.param.x~eq", "1"))
	assert.False(t, ok)
}

func TestParseFilter_LookupFieldKey(t *testing.T) {
	c, ok := ParseFilter("A", P("A.CreatedBy/DisplayName~startswith", "Jo"))
	require.True(t, ok)
	assert.Equal(t, "CreatedBy/DisplayName", c.Field)
	assert.Equal(t, filter.StartsWith, c.Operator)
}
