package metadata

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type personRow struct {
	ID        string          `db:"id" grid:"key"`
	Folder    string          `db:"container" grid:"container,hidden"`
	LastName  string          `db:"last_name"`
	Age       int             `db:"age"`
	Salary    decimal.Decimal `db:"salary"`
	CreatedAt time.Time       `db:"created_at"`
	Active    bool            `db:"active"`
	internal  string
	Skipped   string `db:"-"`
}

func TestInspect(t *testing.T) {
	def := Inspect(personRow{}, "samples", "People", "people")

	assert.Equal(t, "id", def.KeyColumn)
	assert.Equal(t, "container", def.ContainerColumn)
	assert.Equal(t, []string{"id", "container", "last_name", "age", "salary", "created_at", "active"}, def.ColumnNames())

	age, ok := def.Column("AGE")
	require.True(t, ok)
	assert.Equal(t, TypeInteger, age.Type)

	salary, _ := def.Column("salary")
	assert.Equal(t, TypeNumber, salary.Type)

	created, _ := def.Column("created_at")
	assert.Equal(t, TypeTimestamp, created.Type)
	assert.Equal(t, "Created At", created.Label)

	folder, _ := def.Column("container")
	assert.True(t, folder.Hidden)

	assert.NoError(t, def.Validate())
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Inspect(&personRow{}, "samples", "People", "people")))

	def, ok := reg.Get("Samples", "people")
	require.True(t, ok)
	assert.Equal(t, "people", def.Table)

	assert.True(t, reg.HasColumn("samples", "People", "last_name"))
	assert.False(t, reg.HasColumn("samples", "People", "nope"))
	assert.True(t, reg.HasColumn("other", "Unknown", "anything"))

	assert.Len(t, reg.List(), 1)
}

func TestRegistry_RejectsInvalid(t *testing.T) {
	reg := NewRegistry()

	err := reg.Register(QueryDef{Schema: "s", Name: "q", KeyColumn: "id"})
	assert.Error(t, err)

	err = reg.Register(QueryDef{Schema: "s", Name: "q", Table: "t", KeyColumn: "id"})
	assert.Error(t, err)

	err = reg.Register(QueryDef{
		Schema: "s", Name: "q", Table: "t", SQL: "select 1", KeyColumn: "id",
		Columns: []ColumnDef{{Name: "id"}},
	})
	assert.Error(t, err)
}
