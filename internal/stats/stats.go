// Package stats derives the summary figures shown above the results table.
package stats

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/danudenny/geoapi-saas/internal/core/model"
)

const m2PerHectare = 10000

// Summary is computed over the full result set, never the filtered view.
type Summary struct {
	Total                int     `json:"total"`
	Major                int     `json:"major"`
	Minor                int     `json:"minor"`
	AvgOverlapPercentage float64 `json:"avg_overlap_percentage"`
	TotalOverlapAreaM2   float64 `json:"total_overlap_area_m2"`
	TotalOriginalAreaM2  float64 `json:"total_original_area_m2"`
	TotalOverlapAreaHa   float64 `json:"total_overlap_area_ha"`
	TotalOriginalAreaHa  float64 `json:"total_original_area_ha"`
}

// Compute aggregates rows. The average of an empty set is 0.
func Compute(rows []model.OverlapResult) Summary {
	var s Summary
	var pct float64
	for _, r := range rows {
		s.Total++
		switch r.ErrorType {
		case model.MajorOverlap:
			s.Major++
		case model.MinorOverlap:
			s.Minor++
		}
		pct += r.OverlapPercentage
		s.TotalOverlapAreaM2 += r.TotalOverlapAreaM2
		s.TotalOriginalAreaM2 += r.OriginalAreaM2
	}
	if s.Total > 0 {
		s.AvgOverlapPercentage = pct / float64(s.Total)
	}
	s.TotalOverlapAreaHa = s.TotalOverlapAreaM2 / m2PerHectare
	s.TotalOriginalAreaHa = s.TotalOriginalAreaM2 / m2PerHectare
	return s
}

type Card struct {
	Title       string `json:"title"`
	Value       string `json:"value"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

func Cards(s Summary) []Card {
	return []Card{
		{Title: "Total Features", Value: fmt.Sprint(s.Total), Description: "Total number of overlapping features", Color: "blue"},
		{Title: "Major Overlaps", Value: fmt.Sprint(s.Major), Description: "Features with >20% overlap", Color: "red"},
		{Title: "Minor Overlaps", Value: fmt.Sprint(s.Minor), Description: "Features with ≤20% overlap", Color: "yellow"},
		{Title: "Average Overlap", Value: FormatPercent(s.AvgOverlapPercentage), Description: "Average overlap percentage", Color: "green"},
		{Title: "Total Overlap Area", Value: fmt.Sprintf("%.2f ha", s.TotalOverlapAreaHa), Description: "Sum of all overlap areas", Color: "purple"},
		{Title: "Total Original Area", Value: fmt.Sprintf("%.2f ha", s.TotalOriginalAreaHa), Description: "Sum of all original areas", Color: "indigo"},
	}
}

var printer = message.NewPrinter(language.English)

// FormatArea renders square metres with thousands separators and 2 decimals.
func FormatArea(m2 float64) string {
	return printer.Sprintf("%.2f", m2)
}

func FormatPercent(p float64) string {
	return fmt.Sprintf("%.2f%%", p)
}
