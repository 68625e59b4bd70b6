package region

import (
	"sort"
	"strconv"
	"strings"

	"querygrid/internal/domain/filter"
	"querygrid/internal/domain/query"
	"querygrid/internal/grid/params"
)

// ViewKind distinguishes saved views from reports.
type ViewKind string

const (
	ViewKindView   ViewKind = "view"
	ViewKindReport ViewKind = "report"
)

// ViewReference names the active view or report. An empty view name is the
// query's default view.
type ViewReference struct {
	Kind ViewKind `json:"kind"`
	Name string   `json:"name,omitempty"`
}

// Paging is the paging window. When ShowRows is not paginated, Offset and
// MaxRows do not apply and read as zero.
type Paging struct {
	Offset   int            `json:"offset"`
	MaxRows  int            `json:"maxRows"`
	ShowRows query.ShowRows `json:"showRows"`
}

// State is the typed view of a region's parameters.
type State struct {
	Filters         []filter.Clause       `json:"filters,omitempty"`
	Sort            []query.SortField     `json:"sort,omitempty"`
	Paging          Paging                `json:"paging"`
	View            ViewReference         `json:"view"`
	ContainerFilter query.ContainerFilter `json:"containerFilter,omitempty"`
	Columns         []string              `json:"columns,omitempty"`
	Parameters      map[string]string     `json:"parameters,omitempty"`
	SelectionKey    string                `json:"selectionKey,omitempty"`
}

// Defaults fill in state the URL does not carry.
type Defaults struct {
	ViewName     string
	SelectionKey string
	MaxRows      int
}

// StateFromPairs derives the typed state of region from its pairs. Pairs owned
// by other regions are ignored.
func StateFromPairs(region string, ps params.Pairs, d Defaults) State {
	s := State{
		Paging:       Paging{MaxRows: d.MaxRows, ShowRows: query.ShowPaginated},
		View:         ViewReference{Kind: ViewKindView, Name: d.ViewName},
		SelectionKey: d.SelectionKey,
	}

	prefix := params.Prefix(region)
	for _, p := range ps {
		if !strings.HasPrefix(p.Key, prefix) {
			continue
		}
		suffix := p.Key[len(prefix):]

		switch {
		case suffix == params.Sort:
			s.Sort = query.ParseSort(p.Value)
		case suffix == params.Offset:
			s.Paging.Offset = atoiNonNegative(p.Value)
		case suffix == params.MaxRows:
			if n := atoiNonNegative(p.Value); n > 0 {
				s.Paging.MaxRows = n
			}
		case suffix == params.ShowRows:
			s.Paging.ShowRows = query.ParseShowRows(p.Value)
		case suffix == params.ViewName:
			s.View = ViewReference{Kind: ViewKindView, Name: p.Value}
		case suffix == params.ReportID:
			s.View = ViewReference{Kind: ViewKindReport, Name: p.Value}
		case suffix == params.ContainerFilter:
			s.ContainerFilter = query.ContainerFilter(p.Value)
		case suffix == params.Columns:
			s.Columns = splitList(p.Value)
		case suffix == params.SelectionKey:
			s.SelectionKey = p.Value
		case strings.HasPrefix(suffix, params.ParamPrefix):
			if s.Parameters == nil {
				s.Parameters = make(map[string]string)
			}
			s.Parameters[suffix[len(params.ParamPrefix):]] = p.Value
		default:
			if c, ok := params.ParseFilter(region, p); ok {
				s.Filters = append(s.Filters, c)
			}
		}
	}

	if s.Paging.ShowRows != query.ShowPaginated {
		s.Paging.Offset = 0
		s.Paging.MaxRows = 0
	}
	return s
}

// Pairs renders the state back into region pairs, in a canonical order.
func (s State) Pairs(region string) params.Pairs {
	var ps params.Pairs
	add := func(suffix, value string) {
		ps = append(ps, params.P(params.Key(region, suffix), value))
	}

	switch {
	case s.View.Kind == ViewKindReport && s.View.Name != "":
		add(params.ReportID, s.View.Name)
	case s.View.Name != "":
		add(params.ViewName, s.View.Name)
	}
	for _, c := range s.Filters {
		ps = append(ps, params.FilterPair(region, c))
	}
	if len(s.Sort) > 0 {
		add(params.Sort, query.FormatSort(s.Sort))
	}
	if s.Paging.ShowRows != "" && s.Paging.ShowRows != query.ShowPaginated {
		add(params.ShowRows, string(s.Paging.ShowRows))
	} else {
		if s.Paging.Offset > 0 {
			add(params.Offset, strconv.Itoa(s.Paging.Offset))
		}
		if s.Paging.MaxRows > 0 {
			add(params.MaxRows, strconv.Itoa(s.Paging.MaxRows))
		}
	}
	if s.ContainerFilter != "" {
		add(params.ContainerFilter, string(s.ContainerFilter))
	}
	if len(s.Columns) > 0 {
		add(params.Columns, strings.Join(s.Columns, ","))
	}
	if s.SelectionKey != "" {
		add(params.SelectionKey, s.SelectionKey)
	}
	for _, k := range sortedKeys(s.Parameters) {
		add(params.ParamPrefix+k, s.Parameters[k])
	}
	return ps
}

// Request converts the state into a row-fetch request.
func (s State) Request(schemaName, queryName string) query.Request {
	req := query.Request{
		SchemaName:      schemaName,
		QueryName:       queryName,
		Filters:         s.Filters,
		Sort:            s.Sort,
		ContainerFilter: s.ContainerFilter,
		Columns:         s.Columns,
		Offset:          s.Paging.Offset,
		MaxRows:         s.Paging.MaxRows,
		ShowRows:        s.Paging.ShowRows,
		SelectionKey:    s.SelectionKey,
		Parameters:      s.Parameters,
	}
	if s.View.Kind != ViewKindReport {
		req.ViewName = s.View.Name
	}
	return req
}

func atoiNonNegative(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
