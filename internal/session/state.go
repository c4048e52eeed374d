// Package session keeps per-browser dashboard state in a TTL-bound store.
package session

import (
	"time"

	"github.com/danudenny/geoapi-saas/internal/analysis"
	"github.com/danudenny/geoapi-saas/internal/mapview"
	"github.com/danudenny/geoapi-saas/internal/results"
)

// State is everything the server knows about one browser session.
type State struct {
	ID        string           `json:"id"`
	Upload    analysis.Upload  `json:"upload"`
	Table     results.Snapshot `json:"table"`
	Map       mapview.View     `json:"map"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// NewState seeds the upload generation from the clock so a session that was
// deleted and recreated never reissues a token still held by an old request.
func NewState(id string, now time.Time) State {
	s := State{ID: id, Map: mapview.NewView(), UpdatedAt: now}
	s.Upload.Generation = uint64(now.UnixNano())
	return s
}

// Engine rebuilds the result-list engine over the current results.
func (s *State) Engine() *results.Engine {
	return results.Restore(s.Upload.Results, s.Table)
}

// Save writes the engine's table state back.
func (s *State) Save(e *results.Engine) {
	s.Table = e.Snapshot()
}

// Reset drops results, table and map, abandoning any in-flight upload.
func (s *State) Reset() {
	gen := s.Upload.Generation
	s.Upload = analysis.Upload{Generation: gen}
	s.Upload.Abandon()
	s.Table = results.Snapshot{}
	basemap, legend := s.Map.Basemap, s.Map.Legend
	inst := s.Map.Instance
	s.Map = mapview.NewView()
	s.Map.Basemap, s.Map.Legend, s.Map.Instance = basemap, legend, inst
}
