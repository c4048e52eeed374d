package mapview

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/danudenny/geoapi-saas/internal/core/model"
	"github.com/danudenny/geoapi-saas/internal/projection"
)

func TestView_Lifecycle(t *testing.T) {
	v := NewView()
	if v.Basemap != "osm" || !v.Legend || v.Open {
		t.Fatalf("initial view=%+v", v)
	}

	first := v.OpenRow(4)
	if !v.Open || v.Mode != ModeRow || v.FeatureID != 4 {
		t.Fatalf("after OpenRow=%+v", v)
	}

	second := v.OpenCollection(model.ViewSelected)
	if second == first {
		t.Fatalf("reopen kept instance %d", first)
	}
	if v.Mode != "selected" || v.FeatureID != 0 {
		t.Fatalf("after OpenCollection=%+v", v)
	}

	if err := v.SwitchBasemap("cartodb_dark"); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if v.Instance == second {
		t.Fatalf("basemap switch did not recreate renderer")
	}
	if err := v.SwitchBasemap("nope"); err == nil {
		t.Fatalf("expected error")
	}

	v.ToggleLegend()
	v.Close()
	if v.Open || v.Mode != "" {
		t.Fatalf("after close=%+v", v)
	}
	if v.Basemap != "cartodb_dark" || v.Legend {
		t.Fatalf("close reset preferences: %+v", v)
	}

	inst := v.Instance
	if err := v.SwitchBasemap("osm"); err != nil {
		t.Fatalf("switch closed: %v", err)
	}
	if v.Instance != inst {
		t.Fatalf("closed view bumped instance")
	}
}

func TestView_SelectorClosesOnSwitch(t *testing.T) {
	v := NewView()
	v.OpenRow(1)
	if !v.ToggleSelector() {
		t.Fatalf("selector not opened")
	}
	_ = v.SwitchBasemap("arcgis_street")
	if v.Selector {
		t.Fatalf("selector still open after switch")
	}
}

func TestBuild_PayloadShape(t *testing.T) {
	fc, err := projection.Collection([]model.OverlapResult{
		{FeatureID: 1, ErrorType: model.MajorOverlap, Geometry: `{"type":"Polygon","coordinates":[[[100,-5],[101,-5],[101,-4],[100,-5]]]}`},
	})
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	v := NewView()
	v.OpenCollection(model.ViewAll)

	p, err := Build(v, fc)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if p.Bounds == nil || p.Bounds[0] != [2]float64{100, -5} || p.Bounds[1] != [2]float64{101, -4} {
		t.Fatalf("bounds=%v", p.Bounds)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(raw)
	for _, want := range []string{
		`["match",["get","error_type"],"major_overlap","#ef4444","minor_overlap","#eab308","#cccccc"]`,
		`"fill-opacity":0.5`,
		`"line-color":"#222222"`,
		`"padding":50`,
		`"type":"FeatureCollection"`,
	} {
		if !strings.Contains(s, want) {
			t.Fatalf("payload missing %s:\n%s", want, s)
		}
	}
}

func TestBuild_UnknownBasemap(t *testing.T) {
	v := View{Basemap: "bogus"}
	if _, err := Build(v, nil); err == nil {
		t.Fatalf("expected error")
	}
}
