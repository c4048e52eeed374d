package h3mapper

import (
	"fmt"
	"slices"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Hotspot is one H3 cell touched by overlapping features.
type Hotspot struct {
	Cell       string `json:"cell"`
	Count      int    `json:"count"`
	FeatureIDs []int  `json:"feature_ids"`
}

// Hotspots counts, per cell, how many features of fc cover it. Features are
// identified by their feature_id property. Results are sorted by count
// descending, then by cell.
func (m *Mapper) Hotspots(fc *geojson.FeatureCollection, res int) ([]Hotspot, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	byCell := map[string]map[int]struct{}{}
	for _, f := range fc.Features {
		id := featureID(f)
		var polys []orb.Polygon
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			polys = []orb.Polygon{g}
		case orb.MultiPolygon:
			polys = g
		default:
			continue
		}
		for _, p := range polys {
			if len(p) == 0 || len(p[0]) == 0 {
				continue
			}
			cells, err := m.CellsForPolygon(p, res)
			if err != nil {
				return nil, fmt.Errorf("feature %d: %w", id, err)
			}
			for _, c := range cells {
				if byCell[c] == nil {
					byCell[c] = map[int]struct{}{}
				}
				byCell[c][id] = struct{}{}
			}
		}
	}

	out := make([]Hotspot, 0, len(byCell))
	for c, ids := range byCell {
		h := Hotspot{Cell: c, Count: len(ids), FeatureIDs: make([]int, 0, len(ids))}
		for id := range ids {
			h.FeatureIDs = append(h.FeatureIDs, id)
		}
		slices.Sort(h.FeatureIDs)
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Cell < out[j].Cell
	})
	return out, nil
}

// HotspotCollection renders hotspots as cell polygons with count properties.
func HotspotCollection(hs []Hotspot) (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()
	for _, h := range hs {
		poly, err := CellPolygon(h.Cell)
		if err != nil {
			return nil, err
		}
		f := geojson.NewFeature(poly)
		f.Properties = geojson.Properties{
			"cell":        h.Cell,
			"count":       h.Count,
			"feature_ids": h.FeatureIDs,
		}
		fc.Append(f)
	}
	return fc, nil
}

func featureID(f *geojson.Feature) int {
	switch v := f.Properties["feature_id"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
