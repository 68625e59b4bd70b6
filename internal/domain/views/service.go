package views

import (
	"context"
	"fmt"
	"sort"

	"querygrid/internal/core/apperror"
	appctx "querygrid/internal/core/context"
	"querygrid/internal/domain/query"
	"querygrid/internal/metadata"
	"querygrid/pkg/logger"
)

// DefaultViewLabel labels the built-in view offered when none is saved.
const DefaultViewLabel = "Default"

type Service struct {
	repo     Repository
	registry *metadata.Registry
}

func NewService(repo Repository, registry *metadata.Registry) *Service {
	return &Service{repo: repo, registry: registry}
}

func (s *Service) definition(schema, name string) (metadata.QueryDef, error) {
	def, ok := s.registry.Get(schema, name)
	if !ok {
		return metadata.QueryDef{}, apperror.NewNotFound("query", schema+"."+name)
	}
	return def, nil
}

// GetQueryViews lists the views visible to the caller. A personal view hides
// a shared one of the same name. The default view (empty name) always
// exists and comes first.
func (s *Service) GetQueryViews(ctx context.Context, schema, queryName string) (query.ViewsResponse, error) {
	def, err := s.definition(schema, queryName)
	if err != nil {
		return query.ViewsResponse{}, err
	}

	visible, err := s.visible(ctx, def)
	if err != nil {
		return query.ViewsResponse{}, err
	}

	if _, ok := visible[""]; !ok {
		builtin := builtinDefault(def)
		_, hasDefault := pickDefault(visible)
		builtin.Default = !hasDefault
		visible[""] = builtin
	}

	list := make([]query.ViewDef, 0, len(visible))
	for _, v := range visible {
		list = append(list, v)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Name == "" || list[j].Name == "" {
			return list[i].Name == ""
		}
		return list[i].Name < list[j].Name
	})

	return query.ViewsResponse{
		SchemaName: def.Schema,
		QueryName:  def.Name,
		Views:      list,
	}, nil
}

// SaveQueryViews stores views for the caller, or for everyone when shared.
// Only administrators may save shared views.
func (s *Service) SaveQueryViews(ctx context.Context, schema, queryName string, views []query.ViewDef, shared bool) error {
	def, err := s.definition(schema, queryName)
	if err != nil {
		return err
	}
	if len(views) == 0 {
		return apperror.NewValidation("at least one view is required")
	}

	owner := appctx.GetUserID(ctx)
	if shared {
		if u := appctx.GetUser(ctx); u == nil || !u.IsAdmin {
			return apperror.NewForbidden("only administrators can save shared views")
		}
		owner = SharedOwner
	}

	names := make(map[string]bool, len(views))
	defaults := 0
	for i := range views {
		v := &views[i]
		if names[v.Name] {
			return apperror.NewValidation(fmt.Sprintf("duplicate view name %q", v.Name))
		}
		names[v.Name] = true
		if v.Default {
			defaults++
		}
		if err := validateView(def, v); err != nil {
			return err
		}
		v.Owner = owner
		v.Shared = shared
	}
	if defaults > 1 {
		return apperror.NewValidation("only one view can be the default")
	}

	if err := s.repo.Save(ctx, def.Schema, def.Name, owner, views); err != nil {
		return fmt.Errorf("save views: %w", err)
	}

	logger.Info(ctx, "views saved", "schema", def.Schema, "query", def.Name, "count", len(views), "shared", shared)
	return nil
}

// DeleteQueryView removes a view of the caller, or a shared view.
func (s *Service) DeleteQueryView(ctx context.Context, schema, queryName, name string, shared bool) error {
	def, err := s.definition(schema, queryName)
	if err != nil {
		return err
	}

	owner := appctx.GetUserID(ctx)
	if shared {
		if u := appctx.GetUser(ctx); u == nil || !u.IsAdmin {
			return apperror.NewForbidden("only administrators can delete shared views")
		}
		owner = SharedOwner
	}

	deleted, err := s.repo.Delete(ctx, def.Schema, def.Name, owner, name)
	if err != nil {
		return fmt.Errorf("delete view: %w", err)
	}
	if !deleted {
		return apperror.NewNotFound("view", name)
	}
	return nil
}

// ResolveView finds name among the caller's visible views. An empty name
// resolves to the view flagged default, then to the view named "".
func (s *Service) ResolveView(ctx context.Context, schema, queryName, name string) (query.ViewDef, bool, error) {
	def, err := s.definition(schema, queryName)
	if err != nil {
		return query.ViewDef{}, false, err
	}

	visible, err := s.visible(ctx, def)
	if err != nil {
		return query.ViewDef{}, false, err
	}

	if name == "" {
		if v, ok := pickDefault(visible); ok {
			return v, true, nil
		}
	}
	v, ok := visible[name]
	return v, ok, nil
}

func (s *Service) visible(ctx context.Context, def metadata.QueryDef) (map[string]query.ViewDef, error) {
	owner := appctx.GetUserID(ctx)
	stored, err := s.repo.List(ctx, def.Schema, def.Name, owner)
	if err != nil {
		return nil, fmt.Errorf("list views: %w", err)
	}

	out := make(map[string]query.ViewDef, len(stored))
	for _, v := range stored {
		if existing, ok := out[v.Name]; ok && !existing.Shared {
			continue
		}
		out[v.Name] = v
	}
	return out, nil
}

// pickDefault prefers the caller's own default over a shared one.
func pickDefault(visible map[string]query.ViewDef) (query.ViewDef, bool) {
	var shared *query.ViewDef
	for _, v := range visible {
		if !v.Default {
			continue
		}
		if !v.Shared {
			return v, true
		}
		shared = &v
	}
	if shared != nil {
		return *shared, true
	}
	return query.ViewDef{}, false
}

func validateView(def metadata.QueryDef, v *query.ViewDef) error {
	if v.MaxRows < 0 {
		return apperror.NewValidation("maxRows must not be negative")
	}
	for _, c := range v.Columns {
		if _, ok := def.Column(c); !ok {
			return apperror.NewUnknownColumn(def.Schema, def.Name, c)
		}
	}
	for _, f := range v.Filters {
		if _, ok := def.Column(f.Field); !ok {
			return apperror.NewUnknownColumn(def.Schema, def.Name, f.Field)
		}
		if err := f.Validate(); err != nil {
			return apperror.NewValidation(err.Error())
		}
	}
	for _, f := range v.Sort {
		if _, ok := def.Column(f.Field); !ok {
			return apperror.NewUnknownColumn(def.Schema, def.Name, f.Field)
		}
	}
	return nil
}

func builtinDefault(def metadata.QueryDef) query.ViewDef {
	var cols []string
	for _, c := range def.Columns {
		if !c.Hidden {
			cols = append(cols, c.Name)
		}
	}
	return query.ViewDef{
		Label:   DefaultViewLabel,
		Shared:  true,
		Columns: cols,
		Sort:    query.ParseSort(def.DefaultSort),
	}
}
