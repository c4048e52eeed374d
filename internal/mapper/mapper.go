// Package mapper converts projected geometries into H3 cells.
package mapper

import (
	"github.com/paulmach/orb"
)

type Interface interface {
	CellsForPolygon(poly orb.Polygon, res int) ([]string, error)
}
