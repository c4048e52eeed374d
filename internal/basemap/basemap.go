// Package basemap holds the fixed set of raster basemaps offered on the map.
package basemap

import "fmt"

// Default is the basemap a new map view starts with.
const Default = "osm"

const (
	tileSize = 256
	minZoom  = 0
	maxZoom  = 19
)

type Basemap struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Thumbnail   string `json:"thumbnail"`
	TileURL     string `json:"tile_url"`
	Attribution string `json:"attribution"`
}

var table = []Basemap{
	{
		Key:         "osm",
		Name:        "OpenStreetMap",
		Thumbnail:   "https://tile.openstreetmap.org/12/2048/1360.png",
		TileURL:     "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
		Attribution: "© OpenStreetMap contributors",
	},
	{
		Key:         "arcgis_street",
		Name:        "ArcGIS Street",
		Thumbnail:   "https://server.arcgisonline.com/ArcGIS/rest/services/World_Street_Map/MapServer/tile/12/1360/2048",
		TileURL:     "https://server.arcgisonline.com/ArcGIS/rest/services/World_Street_Map/MapServer/tile/{z}/{y}/{x}",
		Attribution: "© Esri",
	},
	{
		Key:         "arcgis_satellite",
		Name:        "ArcGIS Satellite",
		Thumbnail:   "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/12/1360/2048",
		TileURL:     "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}",
		Attribution: "© Esri",
	},
	{
		Key:         "cartodb_light",
		Name:        "CartoDB Light",
		Thumbnail:   "https://cartodb-basemaps-a.global.ssl.fastly.net/light_all/12/2048/1360.png",
		TileURL:     "https://cartodb-basemaps-a.global.ssl.fastly.net/light_all/{z}/{x}/{y}.png",
		Attribution: "© CartoDB",
	},
	{
		Key:         "cartodb_dark",
		Name:        "CartoDB Dark",
		Thumbnail:   "https://cartodb-basemaps-a.global.ssl.fastly.net/dark_all/12/2048/1360.png",
		TileURL:     "https://cartodb-basemaps-a.global.ssl.fastly.net/dark_all/{z}/{x}/{y}.png",
		Attribution: "© CartoDB",
	},
}

// All returns a copy of the table in display order.
func All() []Basemap {
	out := make([]Basemap, len(table))
	copy(out, table)
	return out
}

func Lookup(key string) (Basemap, bool) {
	for _, b := range table {
		if b.Key == key {
			return b, true
		}
	}
	return Basemap{}, false
}

// Style is the part of a MapLibre style document a raster basemap needs.
type Style struct {
	Version int               `json:"version"`
	Sources map[string]Source `json:"sources"`
	Layers  []RasterLayer     `json:"layers"`
}

type Source struct {
	Type        string   `json:"type"`
	Tiles       []string `json:"tiles"`
	TileSize    int      `json:"tileSize"`
	Attribution string   `json:"attribution"`
}

// RasterLayer draws the tiles of one raster source.
type RasterLayer struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Source  string `json:"source"`
	MinZoom int    `json:"minzoom"`
	MaxZoom int    `json:"maxzoom"`
}

// StyleFor builds the MapLibre style of a basemap key.
func StyleFor(key string) (Style, error) {
	b, ok := Lookup(key)
	if !ok {
		return Style{}, fmt.Errorf("unknown basemap %q", key)
	}
	return Style{
		Version: 8,
		Sources: map[string]Source{
			b.Key: {
				Type:        "raster",
				Tiles:       []string{b.TileURL},
				TileSize:    tileSize,
				Attribution: b.Attribution,
			},
		},
		Layers: []RasterLayer{{
			ID:      b.Key,
			Type:    "raster",
			Source:  b.Key,
			MinZoom: minZoom,
			MaxZoom: maxZoom,
		}},
	}, nil
}
