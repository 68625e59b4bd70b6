package main

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"querygrid/internal/metadata"
)

// person is the row shape of the bundled demo query.
type person struct {
	ID      int64           `db:"id" grid:"key"`
	Folder  string          `db:"folder" grid:"container,hidden"`
	Name    string          `db:"name"`
	Age     *int            `db:"age"`
	Salary  decimal.Decimal `db:"salary"`
	HiredAt *time.Time      `db:"hired_at"`
	Active  bool            `db:"active"`
}

// setupMetadataRegistry registers the demo query followed by the queries
// declared in configuration. A configured query may replace the demo one.
func setupMetadataRegistry(queries []metadata.QueryDef) (*metadata.Registry, error) {
	reg := metadata.NewRegistry()

	people := metadata.Inspect(person{}, "core", "People", "demo_people")
	people.Label = "People"
	people.DefaultSort = "name"
	if err := reg.Register(people); err != nil {
		return nil, fmt.Errorf("register core.People: %w", err)
	}

	for _, q := range queries {
		if err := reg.Register(q); err != nil {
			return nil, fmt.Errorf("register %s.%s: %w", q.Schema, q.Name, err)
		}
	}
	return reg, nil
}
