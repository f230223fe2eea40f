package raster

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
)

var ErrSizeMismatch = errors.New("raster sizes differ")

// GTiffOptions are the creation options used for every GeoTIFF this tool writes.
var GTiffOptions = []string{"TILED=YES", "COMPRESS=DEFLATE"}

// ErrLogger drops GDAL warnings and turns everything else into an error.
var ErrLogger = godal.ErrLogger(func(ec godal.ErrorCategory, code int, msg string) error {
	if ec == godal.CE_Warning {
		return nil
	}
	return errors.New(msg)
})

func Open(path string) (*godal.Dataset, error) {
	ds, err := godal.Open(path, ErrLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return ds, nil
}

// Grid is a single band held in memory, row-major, with nodata pixels set to NaN.
type Grid struct {
	Width        int
	Height       int
	GeoTransform [6]float64
	Projection   string
	Data         []float64
}

func NewGrid(width, height int, like *Grid) *Grid {
	g := &Grid{Width: width, Height: height, Data: make([]float64, width*height)}
	if like != nil {
		g.GeoTransform = like.GeoTransform
		g.Projection = like.Projection
	}
	return g
}

// ReadBand loads band index (1-based) of the raster at path.
func ReadBand(path string, index int) (*Grid, error) {
	ds, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	bands := ds.Bands()
	if index < 1 || index > len(bands) {
		return nil, fmt.Errorf("%s has %d bands, band %d requested", path, len(bands), index)
	}
	band := bands[index-1]

	st := ds.Structure()
	g := &Grid{Width: st.SizeX, Height: st.SizeY, Projection: ds.Projection()}
	if gt, err := ds.GeoTransform(); err == nil {
		g.GeoTransform = gt
	}

	buf := make([]float32, st.SizeX*st.SizeY)
	if err := band.Read(0, 0, buf, st.SizeX, st.SizeY); err != nil {
		return nil, fmt.Errorf("failed to read band %d of %s: %w", index, path, err)
	}

	nodata, hasNoData := band.NoData()
	g.Data = make([]float64, len(buf))
	for i, v := range buf {
		f := float64(v)
		if hasNoData && (f == nodata || (math.IsNaN(nodata) && math.IsNaN(f))) {
			f = math.NaN()
		}
		g.Data[i] = f
	}
	return g, nil
}

func (g *Grid) SameSize(o *Grid) bool {
	return g.Width == o.Width && g.Height == o.Height
}

func (g *Grid) At(x, y int) float64 {
	return g.Data[y*g.Width+x]
}

// LonLatBound returns the grid extent in WGS84. Grids without a projection
// are assumed to already be in lon/lat.
func (g *Grid) LonLatBound() (orb.Bound, error) {
	gt := g.GeoTransform
	w, h := float64(g.Width), float64(g.Height)
	xs := []float64{gt[0], gt[0] + gt[1]*w, gt[0] + gt[2]*h, gt[0] + gt[1]*w + gt[2]*h}
	ys := []float64{gt[3], gt[3] + gt[4]*w, gt[3] + gt[5]*h, gt[3] + gt[4]*w + gt[5]*h}

	if g.Projection != "" {
		src, err := godal.NewSpatialRefFromWKT(g.Projection)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("failed to parse projection: %w", err)
		}
		defer src.Close()
		dst, err := godal.NewSpatialRefFromEPSG(4326)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("failed to create WGS84 reference: %w", err)
		}
		defer dst.Close()
		tr, err := godal.NewTransform(src, dst)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("failed to create transform: %w", err)
		}
		defer tr.Close()
		if err := tr.TransformEx(xs, ys, nil, nil); err != nil {
			return orb.Bound{}, fmt.Errorf("transform error: %w", err)
		}
	}

	b := orb.Bound{Min: orb.Point{xs[0], ys[0]}, Max: orb.Point{xs[0], ys[0]}}
	for i := 1; i < len(xs); i++ {
		b = b.Extend(orb.Point{xs[i], ys[i]})
	}
	return b, nil
}

func create(path string, dtype godal.DataType, like *Grid) (*godal.Dataset, error) {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	ds, err := godal.Create(godal.GTiff, path, 1, dtype, like.Width, like.Height,
		godal.CreationOption(GTiffOptions...), ErrLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := ds.SetGeoTransform(like.GeoTransform); err != nil {
		ds.Close()
		return nil, fmt.Errorf("failed to set geotransform on %s: %w", path, err)
	}
	if like.Projection != "" {
		if err := ds.SetProjection(like.Projection); err != nil {
			ds.Close()
			return nil, fmt.Errorf("failed to set projection on %s: %w", path, err)
		}
	}
	return ds, nil
}

// WriteFloat32 writes g as a single band Float32 GeoTIFF. Non-finite values
// are stored as nodata.
func WriteFloat32(path string, g *Grid, nodata float64) error {
	ds, err := create(path, godal.Float32, g)
	if err != nil {
		return err
	}

	buf := make([]float32, len(g.Data))
	for i, v := range g.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			buf[i] = float32(nodata)
			continue
		}
		buf[i] = float32(v)
	}

	band := ds.Bands()[0]
	if err := band.SetNoData(nodata); err != nil {
		ds.Close()
		return fmt.Errorf("failed to set nodata on %s: %w", path, err)
	}
	if err := band.Write(0, 0, buf, g.Width, g.Height); err != nil {
		ds.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return ds.Close()
}

// WriteByte writes data as a single band Byte GeoTIFF georeferenced like like.
func WriteByte(path string, data []uint8, like *Grid, nodata uint8) error {
	if len(data) != like.Width*like.Height {
		return fmt.Errorf("%w: %d values for a %dx%d grid", ErrSizeMismatch, len(data), like.Width, like.Height)
	}
	ds, err := create(path, godal.Byte, like)
	if err != nil {
		return err
	}

	band := ds.Bands()[0]
	if err := band.SetNoData(float64(nodata)); err != nil {
		ds.Close()
		return fmt.Errorf("failed to set nodata on %s: %w", path, err)
	}
	if err := band.Write(0, 0, data, like.Width, like.Height); err != nil {
		ds.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return ds.Close()
}

// ReadRGB reads the first three bands of a Byte raster as an image.
func ReadRGB(path string) (*image.RGBA, error) {
	ds, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	st := ds.Structure()
	bands := ds.Bands()
	if len(bands) < 3 {
		return nil, fmt.Errorf("%s has %d bands, need 3 for an RGB image", path, len(bands))
	}

	channels := make([][]uint8, 3)
	for i := range channels {
		channels[i] = make([]uint8, st.SizeX*st.SizeY)
		if err := bands[i].Read(0, 0, channels[i], st.SizeX, st.SizeY); err != nil {
			return nil, fmt.Errorf("failed to read band %d of %s: %w", i+1, path, err)
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, st.SizeX, st.SizeY))
	for y := 0; y < st.SizeY; y++ {
		for x := 0; x < st.SizeX; x++ {
			i := y*st.SizeX + x
			img.SetRGBA(x, y, color.RGBA{R: channels[0][i], G: channels[1][i], B: channels[2][i], A: 255})
		}
	}
	return img, nil
}

// WKTFromEPSG returns the WKT definition of an EPSG code.
func WKTFromEPSG(code int) (string, error) {
	sr, err := godal.NewSpatialRefFromEPSG(code)
	if err != nil {
		return "", fmt.Errorf("failed to create spatial reference EPSG:%d: %w", code, err)
	}
	defer sr.Close()
	return sr.WKT()
}
