// Package model defines core domain types shared across the dashboard.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

type ErrorType string

const (
	MajorOverlap ErrorType = "major_overlap"
	MinorOverlap ErrorType = "minor_overlap"
)

// Label is the badge text shown in the results table.
func (e ErrorType) Label() string {
	switch e {
	case MajorOverlap:
		return "Major"
	case MinorOverlap:
		return "Minor"
	default:
		return string(e)
	}
}

// GeometryText holds the serialized geometry of a result row. The analysis
// API sends it as a JSON string; a raw JSON object is tolerated and kept as
// its compact text.
type GeometryText string

func (g *GeometryText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*g = ""
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("geometry: %w", err)
		}
		*g = GeometryText(s)
		return nil
	case data[0] == '{':
		var buf bytes.Buffer
		if err := json.Compact(&buf, data); err != nil {
			return fmt.Errorf("geometry: %w", err)
		}
		*g = GeometryText(buf.String())
		return nil
	default:
		return fmt.Errorf("geometry: unexpected JSON %.20q", data)
	}
}

func (g GeometryText) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(g))
}

// OverlapResult is one analyzed input feature. Rows are immutable once
// received and replaced wholesale by the next upload.
type OverlapResult struct {
	FeatureID          int          `json:"feature_id"`
	ErrorType          ErrorType    `json:"error_type"`
	Geometry           GeometryText `json:"geometry"`
	OverlapPercentage  float64      `json:"overlap_percentage"`
	TotalOverlapAreaM2 float64      `json:"total_overlap_area_m2"`
	OriginalAreaM2     float64      `json:"original_area_m2"`
	OverlappingWith    []int        `json:"overlapping_with"`
	Remarks            string       `json:"remarks"`
}

// IDString is the decimal form used for substring filtering.
func (r OverlapResult) IDString() string {
	return strconv.Itoa(r.FeatureID)
}

// Envelope is the analysis API response body.
type Envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    []OverlapResult `json:"data"`
}

// FilterCriteria narrows the result list. Empty fields admit everything.
type FilterCriteria struct {
	ErrorType string `json:"error_type"`
	FeatureID string `json:"feature_id"`
}

func (f FilterCriteria) IsZero() bool {
	return f.ErrorType == "" && f.FeatureID == ""
}

type ViewMode string

const (
	ViewAll      ViewMode = "all"
	ViewFiltered ViewMode = "filtered"
	ViewSelected ViewMode = "selected"
)

func ParseViewMode(s string) (ViewMode, error) {
	switch ViewMode(s) {
	case ViewAll, ViewFiltered, ViewSelected:
		return ViewMode(s), nil
	}
	return "", fmt.Errorf("unknown view mode %q", s)
}
