package dashboard

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/danudenny/geoapi-saas/internal/analysis"
	"github.com/danudenny/geoapi-saas/internal/basemap"
	"github.com/danudenny/geoapi-saas/internal/core/model"
	"github.com/danudenny/geoapi-saas/internal/mapview"
	"github.com/danudenny/geoapi-saas/internal/results"
	"github.com/danudenny/geoapi-saas/internal/session"
	"github.com/danudenny/geoapi-saas/internal/stats"
)

// Page is the data behind the full page and its fragments.
type Page struct {
	Upload  analysis.Upload
	Cards   []stats.Card
	Table   Table
	Map     MapControls
	Signals map[string]any
}

type Table struct {
	Rows          []Row
	Total         int
	Filtered      int
	Visible       int
	Filter        model.FilterCriteria
	AllSelected   bool
	SelectedCount int
	HasMore       bool
}

// Row is one table row, formatted for display.
type Row struct {
	ID              int
	ErrorType       string
	Badge           string
	Overlap         string
	OverlapArea     string
	OriginalArea    string
	OverlappingWith string
	Remarks         string
	Selected        bool
}

type BasemapOption struct {
	basemap.Basemap
	Active bool
}

type MapControls struct {
	mapview.View
	Title    string
	Current  basemap.Basemap
	Basemaps []BasemapOption
}

func newPage(st session.State) Page {
	e := st.Engine()
	p := Page{
		Upload:  st.Upload,
		Table:   newTable(e, e.Visible()),
		Map:     newMapControls(st.Map),
		Signals: filterSignals(e.Filter()),
	}
	if st.Upload.HasResults {
		p.Cards = stats.Cards(stats.Compute(e.All()))
	}
	return p
}

// newTable describes the table around rows, which may be the whole window or
// just a page appended to it.
func newTable(e *results.Engine, rows []model.OverlapResult) Table {
	t := Table{
		Rows:          make([]Row, 0, len(rows)),
		Total:         len(e.All()),
		Filtered:      len(e.Filtered()),
		Visible:       len(e.Visible()),
		Filter:        e.Filter(),
		AllSelected:   e.AllVisibleSelected(),
		SelectedCount: e.SelectedCount(),
		HasMore:       e.HasMore(),
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, newRow(r, e.IsSelected(r.FeatureID)))
	}
	return t
}

func newRow(r model.OverlapResult, selected bool) Row {
	return Row{
		ID:              r.FeatureID,
		ErrorType:       string(r.ErrorType),
		Badge:           r.ErrorType.Label(),
		Overlap:         stats.FormatPercent(r.OverlapPercentage),
		OverlapArea:     stats.FormatArea(r.TotalOverlapAreaM2),
		OriginalArea:    stats.FormatArea(r.OriginalAreaM2),
		OverlappingWith: joinIDs(r.OverlappingWith),
		Remarks:         r.Remarks,
		Selected:        selected,
	}
}

func joinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ", ")
}

func newMapControls(v mapview.View) MapControls {
	mc := MapControls{View: v, Title: mapTitle(v)}
	mc.Current, _ = basemap.Lookup(v.Basemap)
	for _, b := range basemap.All() {
		mc.Basemaps = append(mc.Basemaps, BasemapOption{Basemap: b, Active: b.Key == v.Basemap})
	}
	return mc
}

func mapTitle(v mapview.View) string {
	switch v.Mode {
	case mapview.ModeRow:
		return fmt.Sprintf("Feature %d", v.FeatureID)
	case string(model.ViewAll):
		return "All Features"
	case string(model.ViewFiltered):
		return "Filtered Features"
	case string(model.ViewSelected):
		return "Selected Features"
	}
	return ""
}

func filterSignals(f model.FilterCriteria) map[string]any {
	return map[string]any{
		sigErrorType: f.ErrorType,
		sigFeatureID: f.FeatureID,
		sigDistance:  results.ScrollThreshold * 10,
		sigError:     "",
	}
}
