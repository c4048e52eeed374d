// Package mapview holds the map overlay state of a session and builds the
// payload the browser hands to MapLibre.
package mapview

import (
	"fmt"

	"github.com/paulmach/orb/geojson"

	"github.com/danudenny/geoapi-saas/internal/basemap"
	"github.com/danudenny/geoapi-saas/internal/core/model"
	"github.com/danudenny/geoapi-saas/internal/projection"
)

// ModeRow marks a view opened from a single table row.
const ModeRow = "row"

const (
	SourceID     = "overlap-data"
	FillLayerID  = "overlap-fill"
	LineLayerID  = "overlap-outline"
	FitPadding   = 50
	majorColor   = "#ef4444"
	minorColor   = "#eab308"
	defaultColor = "#cccccc"
)

// View is the scoped map state. Instance changes every time a renderer must
// be (re)created; the browser drops any map whose instance is stale.
type View struct {
	Open      bool   `json:"open"`
	Instance  uint64 `json:"instance"`
	Mode      string `json:"mode,omitempty"`
	FeatureID int    `json:"feature_id,omitempty"`
	Basemap   string `json:"basemap"`
	Legend    bool   `json:"legend"`
	Selector  bool   `json:"selector"`
}

func NewView() View {
	return View{Basemap: basemap.Default, Legend: true}
}

func (v *View) open(mode string, id int) uint64 {
	if v.Open {
		v.Close()
	}
	if v.Basemap == "" {
		v.Basemap = basemap.Default
	}
	v.Instance++
	v.Open = true
	v.Mode = mode
	v.FeatureID = id
	v.Selector = false
	return v.Instance
}

func (v *View) OpenRow(id int) uint64 {
	return v.open(ModeRow, id)
}

func (v *View) OpenCollection(mode model.ViewMode) uint64 {
	return v.open(string(mode), 0)
}

// Close tears the view down. Basemap and legend choices survive.
func (v *View) Close() {
	v.Open = false
	v.Mode = ""
	v.FeatureID = 0
	v.Selector = false
}

// SwitchBasemap changes the basemap and, when open, recreates the renderer.
func (v *View) SwitchBasemap(key string) error {
	if _, ok := basemap.Lookup(key); !ok {
		return fmt.Errorf("unknown basemap %q", key)
	}
	v.Basemap = key
	v.Selector = false
	if v.Open {
		v.Instance++
	}
	return nil
}

func (v *View) ToggleLegend() bool {
	v.Legend = !v.Legend
	return v.Legend
}

func (v *View) ToggleSelector() bool {
	v.Selector = !v.Selector
	return v.Selector
}

type Layer struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Source string         `json:"source"`
	Paint  map[string]any `json:"paint"`
}

// Payload is everything the renderer needs to draw one view.
type Payload struct {
	Instance uint64                     `json:"instance"`
	Basemap  string                     `json:"basemap"`
	Style    basemap.Style              `json:"style"`
	GeoJSON  *geojson.FeatureCollection `json:"geojson"`
	SourceID string                     `json:"source_id"`
	Layers   []Layer                    `json:"layers"`
	Bounds   *[2][2]float64             `json:"bounds,omitempty"`
	Padding  int                        `json:"padding"`
	Center   [2]float64                 `json:"center"`
	Zoom     float64                    `json:"zoom"`
}

func Layers() []Layer {
	return []Layer{
		{
			ID:     FillLayerID,
			Type:   "fill",
			Source: SourceID,
			Paint: map[string]any{
				"fill-color": []any{
					"match", []any{"get", "error_type"},
					string(model.MajorOverlap), majorColor,
					string(model.MinorOverlap), minorColor,
					defaultColor,
				},
				"fill-opacity": 0.5,
			},
		},
		{
			ID:     LineLayerID,
			Type:   "line",
			Source: SourceID,
			Paint: map[string]any{
				"line-color": "#222222",
				"line-width": 1,
			},
		},
	}
}

// Build assembles the payload for fc on the given basemap.
func Build(v View, fc *geojson.FeatureCollection) (Payload, error) {
	style, err := basemap.StyleFor(v.Basemap)
	if err != nil {
		return Payload{}, err
	}
	p := Payload{
		Instance: v.Instance,
		Basemap:  v.Basemap,
		Style:    style,
		GeoJSON:  fc,
		SourceID: SourceID,
		Layers:   Layers(),
		Padding:  FitPadding,
		Zoom:     2,
	}
	if b, ok := projection.Bounds(fc); ok {
		p.Bounds = &[2][2]float64{{b.Min[0], b.Min[1]}, {b.Max[0], b.Max[1]}}
	}
	return p, nil
}
