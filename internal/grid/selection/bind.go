package selection

import (
	"context"

	"querygrid/internal/domain/query"
	"querygrid/internal/grid/region"
)

// Bind ties a synchronizer to its region: SelectAll uses the region's current
// request, and switching to showRows=none clears the selection.
func Bind(r *region.Region, s *Synchronizer) {
	cfg := r.Config()
	s.request = func() query.Request {
		return r.State().Request(cfg.SchemaName, cfg.QueryName)
	}

	r.On(region.AfterChange, func(ctx context.Context, e *region.Event) error {
		if e.Previous == nil || e.Previous.Paging.ShowRows == query.ShowNone {
			return nil
		}
		if r.State().Paging.ShowRows != query.ShowNone {
			return nil
		}
		_, err := s.ClearSelected(ctx)
		return err
	})
}
