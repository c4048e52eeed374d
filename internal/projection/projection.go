// Package projection turns result rows into GeoJSON feature collections for
// the map renderer.
package projection

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/danudenny/geoapi-saas/internal/core/model"
)

// GeometryParseError reports a row whose geometry text could not be used.
type GeometryParseError struct {
	FeatureID int
	Err       error
}

func (e *GeometryParseError) Error() string {
	return fmt.Sprintf("feature %d: parse geometry: %v", e.FeatureID, e.Err)
}

func (e *GeometryParseError) Unwrap() error { return e.Err }

var (
	errEmptyCollection = errors.New("feature collection has no features")
	errNoGeometry      = errors.New("feature has no geometry")
)

type shape struct {
	Type string `json:"type"`
}

var geometryTypes = map[string]bool{
	"Point":              true,
	"MultiPoint":         true,
	"LineString":         true,
	"MultiLineString":    true,
	"Polygon":            true,
	"MultiPolygon":       true,
	"GeometryCollection": true,
}

// parsed is one of the three accepted input shapes.
type parsed struct {
	fc      *geojson.FeatureCollection
	feature *geojson.Feature
	geom    orb.Geometry
}

func parse(r model.OverlapResult) (parsed, error) {
	data := []byte(r.Geometry)
	var s shape
	if err := json.Unmarshal(data, &s); err != nil {
		return parsed{}, &GeometryParseError{FeatureID: r.FeatureID, Err: err}
	}

	switch s.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return parsed{}, &GeometryParseError{FeatureID: r.FeatureID, Err: err}
		}
		if len(fc.Features) == 0 {
			return parsed{}, &GeometryParseError{FeatureID: r.FeatureID, Err: errEmptyCollection}
		}
		for _, f := range fc.Features {
			if f.Geometry == nil {
				return parsed{}, &GeometryParseError{FeatureID: r.FeatureID, Err: errNoGeometry}
			}
		}
		return parsed{fc: fc}, nil
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return parsed{}, &GeometryParseError{FeatureID: r.FeatureID, Err: err}
		}
		if f.Geometry == nil {
			return parsed{}, &GeometryParseError{FeatureID: r.FeatureID, Err: errNoGeometry}
		}
		return parsed{feature: f}, nil
	default:
		if !geometryTypes[s.Type] {
			return parsed{}, &GeometryParseError{FeatureID: r.FeatureID, Err: fmt.Errorf("unknown geometry type %q", s.Type)}
		}
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return parsed{}, &GeometryParseError{FeatureID: r.FeatureID, Err: err}
		}
		if g.Geometry() == nil {
			return parsed{}, &GeometryParseError{FeatureID: r.FeatureID, Err: errNoGeometry}
		}
		return parsed{geom: g.Geometry()}, nil
	}
}

func synthesized(r model.OverlapResult) geojson.Properties {
	return geojson.Properties{
		"feature_id":         r.FeatureID,
		"error_type":         string(r.ErrorType),
		"overlap_percentage": r.OverlapPercentage,
	}
}

func merge(dst geojson.Properties, r model.OverlapResult) geojson.Properties {
	if dst == nil {
		dst = geojson.Properties{}
	}
	for k, v := range synthesized(r) {
		dst[k] = v
	}
	return dst
}

// Row projects a single row for "view on map". Every input feature is kept
// with its own properties; the row's feature_id, error_type and
// overlap_percentage are merged on top.
func Row(r model.OverlapResult) (*geojson.FeatureCollection, error) {
	p, err := parse(r)
	if err != nil {
		return nil, err
	}
	out := geojson.NewFeatureCollection()
	switch {
	case p.fc != nil:
		for _, f := range p.fc.Features {
			f.Properties = merge(f.Properties, r)
			out.Append(f)
		}
	case p.feature != nil:
		p.feature.Properties = merge(p.feature.Properties, r)
		out.Append(p.feature)
	default:
		f := geojson.NewFeature(p.geom)
		f.Properties = synthesized(r)
		out.Append(f)
	}
	return out, nil
}

// Collection projects many rows into one feature each. A FeatureCollection
// row contributes only its first feature's geometry. Input properties are
// dropped. The first bad row aborts the whole projection.
func Collection(rows []model.OverlapResult) (*geojson.FeatureCollection, error) {
	out := geojson.NewFeatureCollection()
	for _, r := range rows {
		p, err := parse(r)
		if err != nil {
			return nil, err
		}
		var g orb.Geometry
		switch {
		case p.fc != nil:
			g = p.fc.Features[0].Geometry
		case p.feature != nil:
			g = p.feature.Geometry
		default:
			g = p.geom
		}
		f := geojson.NewFeature(g)
		f.Properties = synthesized(r)
		out.Append(f)
	}
	return out, nil
}

// Bounds is the envelope of all non-empty geometries in fc. ok is false when
// there is nothing to fit.
func Bounds(fc *geojson.FeatureCollection) (orb.Bound, bool) {
	var b orb.Bound
	ok := false
	if fc == nil {
		return b, false
	}
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		fb := f.Geometry.Bound()
		if fb.IsEmpty() {
			continue
		}
		if !ok {
			b, ok = fb, true
			continue
		}
		b = b.Union(fb)
	}
	return b, ok
}

// Polygons flattens the polygonal geometries in fc.
func Polygons(fc *geojson.FeatureCollection) []orb.Polygon {
	var out []orb.Polygon
	for _, f := range fc.Features {
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			out = append(out, g)
		case orb.MultiPolygon:
			out = append(out, g...)
		}
	}
	return out
}
