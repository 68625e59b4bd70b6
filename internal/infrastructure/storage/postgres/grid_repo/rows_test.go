package grid_repo

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"querygrid/internal/domain/filter"
	"querygrid/internal/domain/query"
	"querygrid/internal/domain/rows"
	"querygrid/internal/metadata"
)

func peopleDef() metadata.QueryDef {
	return metadata.QueryDef{
		Schema:          "core",
		Name:            "People",
		Table:           "demo_people",
		KeyColumn:       "id",
		ContainerColumn: "folder",
		Columns: []metadata.ColumnDef{
			{Name: "id", Type: metadata.TypeInteger},
			{Name: "name", Type: metadata.TypeString},
			{Name: "age", Type: metadata.TypeInteger},
			{Name: "hired_at", Type: metadata.TypeTimestamp},
			{Name: "folder", Type: metadata.TypeString, Hidden: true},
		},
	}
}

func peoplePlan() rows.Plan {
	def := peopleDef()
	return rows.Plan{
		Def:      def,
		Columns:  def.Columns[:2],
		ShowRows: query.ShowPaginated,
	}
}

func TestBuildFiltered_Operators(t *testing.T) {
	const base = `SELECT "id", "name" FROM "demo_people" WHERE `

	tests := []struct {
		name     string
		clause   filter.Clause
		wantSQL  string
		wantArgs string
	}{
		{
			name:     "Greater",
			clause:   filter.NewGreaterThan("age", "30"),
			wantSQL:  base + `"age" > $1`,
			wantArgs: "[30]",
		},
		{
			name:     "NotEqualOrMissing",
			clause:   filter.Clause{Field: "name", Operator: filter.NotEqualOrMissing, Value: "Ann"},
			wantSQL:  base + `("name" <> $1 OR "name" IS NULL)`,
			wantArgs: "[Ann]",
		},
		{
			name:     "IsBlank on text",
			clause:   filter.NewIsBlank("name"),
			wantSQL:  base + `("name" IS NULL OR "name" = $1)`,
			wantArgs: "[]",
		},
		{
			name:     "IsBlank on number",
			clause:   filter.NewIsBlank("age"),
			wantSQL:  base + `"age" IS NULL`,
			wantArgs: "[]",
		},
		{
			name:     "InList",
			clause:   filter.NewIn("id", "1", "2"),
			wantSQL:  base + `"id" IN ($1,$2)`,
			wantArgs: "[1 2]",
		},
		{
			name:     "Contains escapes wildcards",
			clause:   filter.NewContains("name", "50%_off"),
			wantSQL:  base + `"name" ILIKE $1`,
			wantArgs: `[%50\%\_off%]`,
		},
		{
			name:     "StartsWith on number casts",
			clause:   filter.Clause{Field: "age", Operator: filter.StartsWith, Value: "3"},
			wantSQL:  base + `CAST("age" AS TEXT) ILIKE $1`,
			wantArgs: "[3%]",
		},
		{
			name:     "Between",
			clause:   filter.NewBetween("age", 1, 5),
			wantSQL:  base + `("age" >= $1 AND "age" <= $2)`,
			wantArgs: "[1 5]",
		},
		{
			name:     "NotBetween",
			clause:   filter.Clause{Field: "age", Operator: filter.NotBetween, Value: "1,5"},
			wantSQL:  base + `("age" < $1 OR "age" > $2)`,
			wantArgs: "[1 5]",
		},
		{
			name:     "DateEqual spans the whole day",
			clause:   filter.Clause{Field: "hired_at", Operator: filter.DateEqual, Value: "2024/01/02"},
			wantSQL:  base + `("hired_at" >= $1 AND "hired_at" < $2)`,
			wantArgs: "[2024-01-02 00:00:00 +0000 UTC 2024-01-03 00:00:00 +0000 UTC]",
		},
		{
			name:     "DateGreater starts the next day",
			clause:   filter.Clause{Field: "hired_at", Operator: filter.DateGreater, Value: "2024-01-02"},
			wantSQL:  base + `"hired_at" >= $1`,
			wantArgs: "[2024-01-03 00:00:00 +0000 UTC]",
		},
		{
			name:     "Search spans text columns",
			clause:   filter.NewSearch("ann"),
			wantSQL:  base + `("name" ILIKE $1 OR "folder" ILIKE $2)`,
			wantArgs: "[%ann% %ann%]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := peoplePlan()
			plan.Filters = []filter.Clause{tt.clause}

			q, err := buildFiltered(plan, selectList(plan))
			if err != nil {
				t.Fatalf("buildFiltered failed: %v", err)
			}
			sql, args, err := q.ToSql()
			if err != nil {
				t.Fatalf("ToSql failed: %v", err)
			}

			if sql != tt.wantSQL {
				t.Errorf("SQL mismatch\nwant: %s\ngot:  %s", tt.wantSQL, sql)
			}
			if got := fmt.Sprint(args); got != tt.wantArgs {
				t.Errorf("Args mismatch\nwant: %s\ngot:  %s", tt.wantArgs, got)
			}
		})
	}
}

func TestBuildFiltered_InvalidValues(t *testing.T) {
	tests := []filter.Clause{
		filter.NewGreaterThan("age", "old"),
		filter.NewEqual("age", "1.5"),
		{Field: "hired_at", Operator: filter.DateLess, Value: "yesterday"},
		{Field: "age", Operator: filter.Between, Value: "1"},
		filter.NewEqual("missing", "1"),
	}

	for _, c := range tests {
		t.Run(c.String(), func(t *testing.T) {
			plan := peoplePlan()
			plan.Filters = []filter.Clause{c}
			if _, err := buildFiltered(plan, selectList(plan)); err == nil {
				t.Fatalf("expected an error for %v", c)
			}
		})
	}
}

func TestBuildFiltered_ShowSelected(t *testing.T) {
	plan := peoplePlan()
	plan.ShowRows = query.ShowUnselected
	plan.Owner = "u1"
	plan.SelectionKey = "k1"

	q, err := buildFiltered(plan, selectList(plan))
	if err != nil {
		t.Fatal(err)
	}
	sql, args, _ := q.ToSql()

	want := `SELECT "id", "name" FROM "demo_people" WHERE CAST("id" AS TEXT) NOT IN ` +
		`(SELECT row_id FROM grid_selections WHERE owner_id = $1 AND selection_key = $2)`
	if sql != want {
		t.Errorf("SQL mismatch\nwant: %s\ngot:  %s", want, sql)
	}
	if fmt.Sprint(args) != "[u1 k1]" {
		t.Errorf("unexpected args %v", args)
	}
}

func TestContainerCondition(t *testing.T) {
	def := peopleDef()

	tests := []struct {
		scope    query.ContainerFilter
		wantSQL  string
		wantArgs string
	}{
		{query.ContainerCurrent, `"folder" = ?`, "[/sales]"},
		{"", `"folder" = ?`, "[/sales]"},
		{query.ContainerCurrentAndSubfolders, `("folder" = ? OR "folder" LIKE ?)`, "[/sales /sales/%]"},
		{query.ContainerCurrentAndParents, `("folder" = ? OR ? LIKE rtrim("folder", '/') || '/%')`, "[/sales /sales]"},
	}

	for _, tt := range tests {
		t.Run(string(tt.scope), func(t *testing.T) {
			cond := containerCondition(def, tt.scope, "/sales")
			if cond == nil {
				t.Fatal("expected a condition")
			}
			sql, args, err := cond.ToSql()
			if err != nil {
				t.Fatal(err)
			}
			if sql != tt.wantSQL {
				t.Errorf("SQL mismatch\nwant: %s\ngot:  %s", tt.wantSQL, sql)
			}
			if fmt.Sprint(args) != tt.wantArgs {
				t.Errorf("Args mismatch\nwant: %s\ngot:  %v", tt.wantArgs, args)
			}
		})
	}

	if containerCondition(def, query.ContainerAllFolders, "/sales") != nil {
		t.Error("AllFolders must not filter")
	}
	if containerCondition(def, query.ContainerCurrent, "") != nil {
		t.Error("no container must not filter")
	}
}

func TestPaginate(t *testing.T) {
	plan := peoplePlan()
	plan.Sort = []query.SortField{{Field: "age", Descending: true}, {Field: "name"}}
	plan.Limit = 20
	plan.Offset = 40

	q, _ := buildFiltered(plan, selectList(plan))
	sql, _, err := paginate(q, plan).ToSql()
	if err != nil {
		t.Fatal(err)
	}

	want := `SELECT "id", "name" FROM "demo_people" ORDER BY "age" DESC, "name" ASC, "id" ASC LIMIT 20 OFFSET 40`
	if sql != want {
		t.Errorf("SQL mismatch\nwant: %s\ngot:  %s", want, sql)
	}
}

func TestBuildFiltered_SQLSourceWithParameters(t *testing.T) {
	def := peopleDef()
	def.Table = ""
	def.SQL = "SELECT * FROM demo_people WHERE age >= COALESCE(@minAge::int, 0) AND folder <> @skip"
	plan := peoplePlan()
	plan.Def = def
	plan.Parameters = map[string]string{"minAge": "21"}
	plan.Filters = []filter.Clause{filter.NewEqual("name", "Ann")}

	q, err := buildFiltered(plan, selectList(plan))
	if err != nil {
		t.Fatal(err)
	}
	sql, args, _ := q.ToSql()

	want := `WITH src AS (SELECT * FROM demo_people WHERE age >= COALESCE($1::int, 0) AND folder <> $2) ` +
		`SELECT "id", "name" FROM src WHERE "name" = $3`
	if sql != want {
		t.Errorf("SQL mismatch\nwant: %s\ngot:  %s", want, sql)
	}
	if len(args) != 3 || args[0] != "21" || args[1] != nil || args[2] != "Ann" {
		t.Errorf("unexpected args %#v", args)
	}
}

func TestCountQueryWrapsFiltered(t *testing.T) {
	plan := peoplePlan()
	plan.Filters = []filter.Clause{filter.NewGreaterThan("age", "30")}

	q, _ := buildFiltered(plan, selectList(plan))
	sql, _, err := builder().Select("COUNT(*)").FromSelect(q, "sub").ToSql()
	if err != nil {
		t.Fatal(err)
	}

	want := `SELECT COUNT(*) FROM (SELECT "id", "name" FROM "demo_people" WHERE "age" > $1) AS sub`
	if sql != want {
		t.Errorf("SQL mismatch\nwant: %s\ngot:  %s", want, sql)
	}
}

func TestNormalizeRow(t *testing.T) {
	row := map[string]any{
		"salary": pgtype.Numeric{Int: big.NewInt(12345), Exp: -2, Valid: true},
		"nan":    pgtype.Numeric{NaN: true, Valid: true},
		"name":   "Ann",
	}
	normalizeRow(row)

	d, ok := row["salary"].(decimal.Decimal)
	if !ok || d.String() != "123.45" {
		t.Errorf("salary = %#v", row["salary"])
	}
	if row["nan"] != nil {
		t.Errorf("NaN should become nil, got %v", row["nan"])
	}
	if row["name"] != "Ann" {
		t.Errorf("strings are untouched")
	}
}
