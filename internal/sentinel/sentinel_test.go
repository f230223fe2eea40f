package sentinel

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/ndwi-water-cli/internal/observability"
	"github.com/forest-guardian/ndwi-water-cli/internal/raster"
	"github.com/forest-guardian/ndwi-water-cli/internal/stac"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	godal.RegisterAll()
	os.Exit(m.Run())
}

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeStore struct {
	uri  string
	data []byte
	err  error
}

func (f *fakeStore) Download(ctx context.Context, uri, dest string) (int64, error) {
	f.uri = uri
	if f.err != nil {
		return 0, f.err
	}
	if err := os.WriteFile(dest, f.data, 0o644); err != nil {
		return 0, err
	}
	return int64(len(f.data)), nil
}

func TestResolveBands(t *testing.T) {
	item := stac.Item{
		ID: "S2A_31UFU_20240510_0_L2A",
		Assets: map[string]stac.Asset{
			"B03": {Href: "s3://cogs/B03.tif"},
			"nir": {Href: "https://cogs/B08.tif"},
			"TCI": {Href: "https://cogs/TCI.tif"},
		},
	}
	b, err := ResolveBands(item)
	require.NoError(t, err)
	assert.Equal(t, Bands{Green: "s3://cogs/B03.tif", NIR: "https://cogs/B08.tif", Visual: "https://cogs/TCI.tif"}, b)

	delete(item.Assets, "TCI")
	b, err = ResolveBands(item)
	require.NoError(t, err)
	assert.Empty(t, b.Visual)

	delete(item.Assets, "nir")
	_, err = ResolveBands(item)
	assert.ErrorIs(t, err, ErrMissingBand)
	assert.Contains(t, err.Error(), "nir")
}

func TestVSIPath(t *testing.T) {
	assert.Equal(t, "/vsis3/sentinel-cogs/a/B03.tif", VSIPath("s3://sentinel-cogs/a/B03.tif"))
	assert.Equal(t, "/vsicurl/https://host/B08.tif", VSIPath("https://host/B08.tif"))
	assert.Equal(t, "/tmp/B08.tif", VSIPath("/tmp/B08.tif"))
}

func writeSourceBand(t *testing.T) string {
	t.Helper()
	wkt, err := raster.WKTFromEPSG(4326)
	require.NoError(t, err)
	g := &raster.Grid{
		Width:        20,
		Height:       10,
		GeoTransform: [6]float64{-0.2, 0.01, 0, 51.6, 0, -0.01},
		Projection:   wkt,
		Data:         make([]float64, 200),
	}
	for i := range g.Data {
		g.Data[i] = float64(i)
	}
	path := filepath.Join(t.TempDir(), "B03.tif")
	require.NoError(t, raster.WriteFloat32(path, g, -9999))
	return path
}

func TestDownloader_FetchClip(t *testing.T) {
	src := writeSourceBand(t)
	metrics := observability.NewMetricsForTesting()
	d := NewDownloader(WithLogger(testLogger()), WithMetrics(metrics), WithProgress(false))

	dest := filepath.Join(t.TempDir(), "clip", "green.tif")
	bound := orb.Bound{Min: orb.Point{-0.15, 51.52}, Max: orb.Point{-0.05, 51.58}}
	require.NoError(t, d.Fetch(context.Background(), src, dest, bound))

	g, err := raster.ReadBand(dest, 1)
	require.NoError(t, err)
	assert.InDelta(t, 10, g.Width, 1)
	assert.InDelta(t, 6, g.Height, 1)
	assert.InDelta(t, -0.15, g.GeoTransform[0], 0.011)
	assert.InDelta(t, 51.58, g.GeoTransform[3], 0.011)

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.BandDownloads.WithLabelValues("clip", "success")), 1e-9)
	_, err = os.Stat(dest + ".part")
	assert.True(t, os.IsNotExist(err))
}

func TestDownloader_FetchClipMissingSource(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	d := NewDownloader(WithLogger(testLogger()), WithMetrics(metrics), WithProgress(false))

	bound := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}
	err := d.Fetch(context.Background(), filepath.Join(t.TempDir(), "nope.tif"), filepath.Join(t.TempDir(), "out.tif"), bound)
	require.Error(t, err)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.BandDownloads.WithLabelValues("clip", "error")), 1e-9)
}

func TestDownloader_FetchFullHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tiles/B08.tif" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("whole-cog"))
	}))
	defer srv.Close()

	metrics := observability.NewMetricsForTesting()
	d := NewDownloader(WithLogger(testLogger()), WithMetrics(metrics), WithProgress(false), WithHTTPClient(srv.Client()))

	dest := filepath.Join(t.TempDir(), "nir.tif")
	point := orb.Bound{Min: orb.Point{-0.13, 51.51}, Max: orb.Point{-0.13, 51.51}}
	require.NoError(t, d.Fetch(context.Background(), srv.URL+"/tiles/B08.tif", dest, point))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "whole-cog", string(data))
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.BandDownloads.WithLabelValues("full", "success")), 1e-9)
	assert.InDelta(t, 9, testutil.ToFloat64(metrics.BandBytes), 1e-9)

	err = d.Fetch(context.Background(), srv.URL+"/tiles/missing.tif", dest+"2", orb.Bound{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	_, statErr := os.Stat(dest + "2")
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownloader_FetchFullS3(t *testing.T) {
	store := &fakeStore{data: []byte("s3-cog")}
	d := NewDownloader(WithLogger(testLogger()), WithProgress(false), WithObjectStore(store))

	dest := filepath.Join(t.TempDir(), "green.tif")
	require.NoError(t, d.Fetch(context.Background(), "s3://sentinel-cogs/B03.tif", dest, orb.Bound{}))
	assert.Equal(t, "s3://sentinel-cogs/B03.tif", store.uri)

	store.err = errors.New("denied")
	err := d.Fetch(context.Background(), "s3://sentinel-cogs/B03.tif", dest, orb.Bound{})
	assert.ErrorContains(t, err, "denied")

	err = NewDownloader(WithLogger(testLogger())).Fetch(context.Background(), "s3://x/y.tif", dest, orb.Bound{})
	assert.ErrorContains(t, err, "no object store")
}

func TestDownloader_FetchUnsupportedScheme(t *testing.T) {
	d := NewDownloader(WithLogger(testLogger()), WithProgress(false))
	err := d.Fetch(context.Background(), "ftp://host/B03.tif", filepath.Join(t.TempDir(), "b.tif"), orb.Bound{})
	assert.ErrorContains(t, err, "unsupported")
}
