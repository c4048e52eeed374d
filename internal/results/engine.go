// Package results filters, paginates and tracks selection over one result set.
package results

import (
	"strings"

	"github.com/danudenny/geoapi-saas/internal/core/model"
)

const (
	// PageSize is how many filtered rows each load-more appends.
	PageSize = 10
	// ScrollThreshold is the distance from the bottom of the list, in pixels,
	// under which a scroll signal loads the next page.
	ScrollThreshold = 50
)

// Snapshot is the persisted part of an Engine. Filtered rows are derived and
// recomputed on Restore.
type Snapshot struct {
	Filter   model.FilterCriteria `json:"filter"`
	Visible  int                  `json:"visible"`
	Selected map[int]bool         `json:"selected,omitempty"`
}

// Engine owns Filtered (in-order subset of all rows matching the filter),
// Visible (a prefix of Filtered) and the selection set.
type Engine struct {
	all      []model.OverlapResult
	filter   model.FilterCriteria
	filtered []model.OverlapResult
	visible  int
	selected map[int]bool
}

func New(all []model.OverlapResult) *Engine {
	e := &Engine{all: all, selected: map[int]bool{}}
	e.recompute()
	return e
}

// Restore rebuilds an engine from a snapshot taken over the same rows.
func Restore(all []model.OverlapResult, s Snapshot) *Engine {
	e := &Engine{all: all, filter: s.Filter, selected: map[int]bool{}}
	for id, v := range s.Selected {
		e.selected[id] = v
	}
	e.recompute()
	if s.Visible > e.visible {
		e.visible = min(s.Visible, len(e.filtered))
	}
	return e
}

func (e *Engine) Snapshot() Snapshot {
	sel := make(map[int]bool, len(e.selected))
	for id, v := range e.selected {
		if v {
			sel[id] = true
		}
	}
	return Snapshot{Filter: e.filter, Visible: e.visible, Selected: sel}
}

func (e *Engine) SetFilter(f model.FilterCriteria) {
	e.filter = f
	e.recompute()
}

func (e *Engine) Filter() model.FilterCriteria { return e.filter }

// recompute rebuilds Filtered and resets Visible to the first page.
func (e *Engine) recompute() {
	e.filtered = make([]model.OverlapResult, 0, len(e.all))
	for _, r := range e.all {
		if Matches(r, e.filter) {
			e.filtered = append(e.filtered, r)
		}
	}
	e.visible = min(PageSize, len(e.filtered))
}

// Matches applies both predicates; an empty predicate admits every row.
func Matches(r model.OverlapResult, f model.FilterCriteria) bool {
	if f.ErrorType != "" && string(r.ErrorType) != f.ErrorType {
		return false
	}
	if f.FeatureID != "" && !strings.Contains(r.IDString(), f.FeatureID) {
		return false
	}
	return true
}

// LoadMore appends up to PageSize filtered rows to the window and returns
// them. At the end of the list it returns nil and changes nothing.
func (e *Engine) LoadMore() []model.OverlapResult {
	if e.visible >= len(e.filtered) {
		return nil
	}
	start := e.visible
	e.visible = min(start+PageSize, len(e.filtered))
	return e.filtered[start:e.visible]
}

// OnScroll loads the next page when the list bottom is closer than
// ScrollThreshold.
func (e *Engine) OnScroll(distanceFromBottom float64) []model.OverlapResult {
	if distanceFromBottom >= ScrollThreshold {
		return nil
	}
	return e.LoadMore()
}

func (e *Engine) HasMore() bool { return e.visible < len(e.filtered) }

func (e *Engine) All() []model.OverlapResult { return e.all }

func (e *Engine) Filtered() []model.OverlapResult { return e.filtered }

func (e *Engine) Visible() []model.OverlapResult { return e.filtered[:e.visible] }

// Toggle flips the selection of id and returns the new state.
func (e *Engine) Toggle(id int) bool {
	v := !e.selected[id]
	if v {
		e.selected[id] = true
	} else {
		delete(e.selected, id)
	}
	return v
}

// SelectAll sets every visible id to checked. Ids outside the window keep
// their state.
func (e *Engine) SelectAll(checked bool) {
	for _, r := range e.Visible() {
		if checked {
			e.selected[r.FeatureID] = true
		} else {
			delete(e.selected, r.FeatureID)
		}
	}
}

func (e *Engine) IsSelected(id int) bool { return e.selected[id] }

// SelectedCount counts selected ids present in the full result set.
func (e *Engine) SelectedCount() int {
	n := 0
	for _, r := range e.all {
		if e.selected[r.FeatureID] {
			n++
		}
	}
	return n
}

// AllVisibleSelected drives the header checkbox. An empty window is never
// all-selected.
func (e *Engine) AllVisibleSelected() bool {
	vis := e.Visible()
	if len(vis) == 0 {
		return false
	}
	for _, r := range vis {
		if !e.selected[r.FeatureID] {
			return false
		}
	}
	return true
}

// Rows returns the rows a map view mode covers. Selected rows come back in
// full-list order.
func (e *Engine) Rows(mode model.ViewMode) []model.OverlapResult {
	switch mode {
	case model.ViewFiltered:
		return e.filtered
	case model.ViewSelected:
		out := make([]model.OverlapResult, 0, len(e.selected))
		for _, r := range e.all {
			if e.selected[r.FeatureID] {
				out = append(out, r)
			}
		}
		return out
	default:
		return e.all
	}
}

// Find looks a row up by feature id.
func (e *Engine) Find(id int) (model.OverlapResult, bool) {
	for _, r := range e.all {
		if r.FeatureID == id {
			return r, true
		}
	}
	return model.OverlapResult{}, false
}
