package stac

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Asset keys used by Earth Search (common names) with the band-id fallbacks
// other Sentinel-2 catalogs publish.
var (
	GreenAssetKeys  = []string{"green", "B03"}
	NIRAssetKeys    = []string{"nir", "B08"}
	VisualAssetKeys = []string{"visual", "TCI"}
)

type AssetLink struct {
	Href string `json:"href"`
}

type Asset struct {
	Href      string               `json:"href"`
	Type      string               `json:"type,omitempty"`
	Title     string               `json:"title,omitempty"`
	Roles     []string             `json:"roles,omitempty"`
	Alternate map[string]AssetLink `json:"alternate,omitempty"`
}

type Properties struct {
	Datetime      time.Time `json:"datetime"`
	CloudCover    *float64  `json:"eo:cloud_cover,omitempty"`
	Platform      string    `json:"platform,omitempty"`
	Constellation string    `json:"constellation,omitempty"`
	GridCode      string    `json:"grid:code,omitempty"`
	EPSG          *int      `json:"proj:epsg,omitempty"`
}

type Link struct {
	Rel    string          `json:"rel"`
	Href   string          `json:"href"`
	Type   string          `json:"type,omitempty"`
	Method string          `json:"method,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`
	Merge  bool            `json:"merge,omitempty"`
}

type Item struct {
	Type       string           `json:"type"`
	ID         string           `json:"id"`
	Collection string           `json:"collection,omitempty"`
	BBox       []float64        `json:"bbox,omitempty"`
	Geometry   json.RawMessage  `json:"geometry,omitempty"`
	Properties Properties       `json:"properties"`
	Assets     map[string]Asset `json:"assets"`
	Links      []Link           `json:"links,omitempty"`
}

type FeatureCollection struct {
	Type          string `json:"type"`
	Features      []Item `json:"features"`
	Links         []Link `json:"links,omitempty"`
	NumberMatched int    `json:"numberMatched,omitempty"`
}

func (i Item) CloudCover() (float64, bool) {
	if i.Properties.CloudCover == nil {
		return 0, false
	}
	return *i.Properties.CloudCover, true
}

// Asset returns the first asset present under any of keys.
func (i Item) Asset(keys ...string) (Asset, bool) {
	for _, k := range keys {
		if a, ok := i.Assets[k]; ok && a.Href != "" {
			return a, true
		}
	}
	return Asset{}, false
}

// HasNDWIBands reports whether the item carries both green and nir assets.
func (i Item) HasNDWIBands() bool {
	_, green := i.Asset(GreenAssetKeys...)
	_, nir := i.Asset(NIRAssetKeys...)
	return green && nir
}

// Footprint decodes the item GeoJSON geometry, falling back to its bbox.
func (i Item) Footprint() (orb.Geometry, error) {
	if len(i.Geometry) > 0 && string(i.Geometry) != "null" {
		g, err := geojson.UnmarshalGeometry(i.Geometry)
		if err != nil {
			return nil, fmt.Errorf("decode geometry of item %s: %w", i.ID, err)
		}
		return g.Geometry(), nil
	}
	if len(i.BBox) >= 4 {
		return orb.Bound{
			Min: orb.Point{i.BBox[0], i.BBox[1]},
			Max: orb.Point{i.BBox[2], i.BBox[3]},
		}.ToPolygon(), nil
	}
	return nil, errors.New("item has neither geometry nor bbox")
}

// Covers reports whether the item footprint contains p. Items without a
// usable footprint are assumed to cover it, since the catalog matched them.
func (i Item) Covers(p orb.Point) bool {
	g, err := i.Footprint()
	if err != nil {
		return true
	}
	switch geom := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(geom, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(geom, p)
	case orb.Bound:
		return geom.Contains(p)
	default:
		return g.Bound().Contains(p)
	}
}
