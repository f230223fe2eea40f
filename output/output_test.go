package output

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/forest-guardian/ndwi-water-cli/internal/ndwi"
	"github.com/forest-guardian/ndwi-water-cli/internal/raster"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNDWIColor(t *testing.T) {
	assert.Equal(t, rdYlBuR[0], NDWIColor(-1))
	assert.Equal(t, rdYlBuR[0], NDWIColor(-3), "clipped to vmin")
	assert.Equal(t, rdYlBuR[len(rdYlBuR)-1], NDWIColor(1))
	assert.Equal(t, rdYlBuR[5], NDWIColor(0), "midpoint is the neutral yellow")
	assert.Equal(t, NoDataColor, NDWIColor(math.NaN()))

	// Water is warmer than land on the reversed ramp.
	water, land := NDWIColor(0.6), NDWIColor(-0.6)
	assert.Greater(t, water.R, land.R)
	assert.Less(t, water.B, land.B)
}

func TestMaskImage(t *testing.T) {
	img := MaskImage([]uint8{ndwi.MaskWater, ndwi.MaskLand, ndwi.MaskNoData}, 3, 1)
	assert.Equal(t, WaterColor, img.RGBAAt(0, 0))
	assert.Equal(t, LandColor, img.RGBAAt(1, 0))
	assert.Equal(t, uint8(0), img.RGBAAt(2, 0).A)
}

func testGrid() *raster.Grid {
	g := &raster.Grid{Width: 40, Height: 30, Data: make([]float64, 1200)}
	for i := range g.Data {
		g.Data[i] = float64(i%40)/20 - 1
	}
	g.Data[0] = math.NaN()
	return g
}

func decodePNG(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	return img
}

func TestSaveComposite(t *testing.T) {
	stats, err := ndwi.Analyze(testGrid().Data, 0)
	require.NoError(t, err)

	dir := t.TempDir()
	ndwiOnly := filepath.Join(dir, "plots", "ndwi_only.png")
	require.NoError(t, SaveComposite(ndwiOnly, Composite{Title: "London", NDWI: testGrid(), Stats: stats}))

	rgb := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for i := range rgb.Pix {
		rgb.Pix[i] = 200
	}
	withRGB := filepath.Join(dir, "plots", "with_rgb.png")
	require.NoError(t, SaveComposite(withRGB, Composite{Title: "London", NDWI: testGrid(), RGB: rgb, Stats: stats}))

	a, b := decodePNG(t, ndwiOnly), decodePNG(t, withRGB)
	assert.Greater(t, b.Bounds().Dx(), a.Bounds().Dx(), "RGB panel widens the figure")
	assert.Equal(t, a.Bounds().Dy(), b.Bounds().Dy())

	// The stats box sits in the lower left corner.
	r, g, bl, _ := a.At(int(margin)+statsBoxW/2, a.Bounds().Dy()-int(margin)-5).RGBA()
	assert.Equal(t, color.RGBA{245, 222, 179, 255}, color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(bl >> 8), 255})

	_, err = RenderComposite(Composite{NDWI: &raster.Grid{}})
	assert.Error(t, err)
}

func TestSaveMaskPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mask.png")
	require.NoError(t, SaveMaskPNG(path, []uint8{1, 0, 0, 1}, 2, 2))
	img := decodePNG(t, path)
	assert.Equal(t, 2, img.Bounds().Dx())

	assert.ErrorIs(t, SaveMaskPNG(path, []uint8{1}, 2, 2), raster.ErrSizeMismatch)
}

func TestWriteFootprint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "footprint.geojson")
	scene := orb.Bound{Min: orb.Point{-1, 51}, Max: orb.Point{0.5, 52}}.ToPolygon()
	err := WriteFootprint(path, Footprint{
		Area:            orb.Bound{Min: orb.Point{-0.15, 51.49}, Max: orb.Point{-0.11, 51.53}},
		AreaProperties:  geojson.Properties{"location": "london", "water_percentage": 12.5},
		Scene:           scene,
		SceneProperties: geojson.Properties{"id": "S2B_30UXC_20240512_0_L2A"},
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)

	assert.Equal(t, "analysis_area", fc.Features[0].Properties.MustString("kind"))
	assert.Equal(t, "london", fc.Features[0].Properties.MustString("location"))
	assert.InDelta(t, 12.5, fc.Features[0].Properties.MustFloat64("water_percentage"), 1e-9)
	assert.InDelta(t, -0.15, fc.Features[0].Geometry.Bound().Min.X(), 1e-9)
	assert.Equal(t, "scene", fc.Features[1].Properties.MustString("kind"))

	noScene := Footprint{Area: orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}}
	assert.Len(t, noScene.FeatureCollection().Features, 1)
}
