package stac

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const earthSearchItem = `{
  "type": "Feature",
  "id": "S2B_18TWL_20240520_0_L2A",
  "collection": "sentinel-2-l2a",
  "bbox": [-75.0, 40.0, -73.0, 41.0],
  "geometry": {
    "type": "Polygon",
    "coordinates": [[[-75.0, 40.0], [-73.5, 40.0], [-73.5, 41.0], [-75.0, 41.0], [-75.0, 40.0]]]
  },
  "properties": {
    "datetime": "2024-05-20T15:47:22.024000Z",
    "eo:cloud_cover": 3.21,
    "platform": "sentinel-2b",
    "constellation": "sentinel-2",
    "grid:code": "MGRS-18TWL",
    "proj:epsg": 32618
  },
  "assets": {
    "B03": {"href": "s3://sentinel-cogs/18/T/WL/B03.tif"},
    "nir": {
      "href": "https://sentinel-cogs.s3.us-west-2.amazonaws.com/18/T/WL/B08.tif",
      "type": "image/tiff; application=geotiff; profile=cloud-optimized",
      "roles": ["data", "reflectance"]
    },
    "visual": {"href": "https://sentinel-cogs.s3.us-west-2.amazonaws.com/18/T/WL/TCI.tif"}
  }
}`

func TestItem_Decode(t *testing.T) {
	var item Item
	require.NoError(t, json.Unmarshal([]byte(earthSearchItem), &item))

	assert.Equal(t, "S2B_18TWL_20240520_0_L2A", item.ID)
	cc, ok := item.CloudCover()
	require.True(t, ok)
	assert.InDelta(t, 3.21, cc, 1e-9)
	assert.Equal(t, "sentinel-2b", item.Properties.Platform)
	require.NotNil(t, item.Properties.EPSG)
	assert.Equal(t, 32618, *item.Properties.EPSG)
	assert.Equal(t, 2024, item.Properties.Datetime.Year())
	assert.Equal(t, time.May, item.Properties.Datetime.Month())
}

func TestItem_AssetFallback(t *testing.T) {
	var item Item
	require.NoError(t, json.Unmarshal([]byte(earthSearchItem), &item))

	green, ok := item.Asset(GreenAssetKeys...)
	require.True(t, ok)
	assert.Equal(t, "s3://sentinel-cogs/18/T/WL/B03.tif", green.Href)

	_, ok = item.Asset("swir16")
	assert.False(t, ok)
	assert.True(t, item.HasNDWIBands())

	item.Assets["nir"] = Asset{}
	assert.False(t, item.HasNDWIBands())
}

func TestItem_Covers(t *testing.T) {
	var item Item
	require.NoError(t, json.Unmarshal([]byte(earthSearchItem), &item))

	assert.True(t, item.Covers(orb.Point{-74.0, 40.7}))
	// Inside the bbox but east of the polygon edge.
	assert.False(t, item.Covers(orb.Point{-73.2, 40.5}))
}

func TestItem_FootprintFallsBackToBBox(t *testing.T) {
	item := Item{ID: "x", BBox: []float64{10, 20, 11, 21}}
	g, err := item.Footprint()
	require.NoError(t, err)

	poly, ok := g.(orb.Polygon)
	require.True(t, ok)
	assert.Equal(t, orb.Bound{Min: orb.Point{10, 20}, Max: orb.Point{11, 21}}, poly.Bound())
	assert.True(t, item.Covers(orb.Point{10.5, 20.5}))

	_, err = Item{ID: "empty"}.Footprint()
	assert.Error(t, err)
	assert.True(t, Item{ID: "empty"}.Covers(orb.Point{0, 0}))
}
