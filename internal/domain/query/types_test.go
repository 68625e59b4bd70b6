package query

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"querygrid/internal/core/apperror"
	"querygrid/internal/domain/filter"
)

func TestParseSort(t *testing.T) {
	got := ParseSort("-Last,+First,, Age ")
	assert.Equal(t, []SortField{
		{Field: "Last", Descending: true},
		{Field: "First"},
		{Field: "Age"},
	}, got)
	assert.Nil(t, ParseSort(""))
}

func TestFormatSort_NeverEmitsPlus(t *testing.T) {
	got := FormatSort(ParseSort("+First,-Last"))
	assert.Equal(t, "First,-Last", got)
}

func TestParseShowRows(t *testing.T) {
	assert.Equal(t, ShowAll, ParseShowRows("all"))
	assert.Equal(t, ShowPaginated, ParseShowRows(""))
	assert.Equal(t, ShowPaginated, ParseShowRows("garbage"))
}

func TestRequest_Validate(t *testing.T) {
	ok := Request{SchemaName: "core", QueryName: "Users"}
	assert.NoError(t, ok.Validate())

	err := Request{QueryName: "Users"}.Validate()
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	bad := ok
	bad.Filters = []filter.Clause{{Field: "Age", Operator: filter.Equal}}
	assert.Error(t, bad.Validate())

	bad = ok
	bad.ContainerFilter = "Nowhere"
	assert.Error(t, bad.Validate())
}
