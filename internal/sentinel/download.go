package sentinel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/ndwi-water-cli/internal/observability"
	"github.com/forest-guardian/ndwi-water-cli/internal/raster"
	"github.com/paulmach/orb"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
)

// DefaultGDALConfig lets GDAL read the public sentinel-cogs bucket without
// listing directories or signing requests.
var DefaultGDALConfig = []string{
	"GDAL_DISABLE_READDIR_ON_OPEN=EMPTY_DIR",
	"AWS_NO_SIGN_REQUEST=YES",
	"GDAL_HTTP_MAX_RETRY=3",
	"GDAL_HTTP_RETRY_DELAY=5",
}

// ObjectStore downloads whole objects addressed by s3:// URIs.
type ObjectStore interface {
	Download(ctx context.Context, uri, dest string) (int64, error)
}

type Downloader struct {
	httpClient *http.Client
	objects    ObjectStore
	metrics    *observability.Metrics
	logger     logrus.FieldLogger
	progress   bool
	gdalConfig []string
}

type Option func(*Downloader)

func WithHTTPClient(hc *http.Client) Option {
	return func(d *Downloader) {
		d.httpClient = hc
	}
}

func WithObjectStore(s ObjectStore) Option {
	return func(d *Downloader) {
		d.objects = s
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(d *Downloader) {
		d.metrics = m
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(d *Downloader) {
		d.logger = l
	}
}

// WithProgress toggles the byte progress bar shown for full downloads.
func WithProgress(enabled bool) Option {
	return func(d *Downloader) {
		d.progress = enabled
	}
}

// WithGDALConfig appends KEY=VALUE GDAL config options used when clipping.
func WithGDALConfig(opts ...string) Option {
	return func(d *Downloader) {
		d.gdalConfig = append(d.gdalConfig, opts...)
	}
}

func NewDownloader(opts ...Option) *Downloader {
	d := &Downloader{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		logger:     logrus.StandardLogger(),
		progress:   true,
		gdalConfig: append([]string(nil), DefaultGDALConfig...),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// VSIPath maps a remote href to the GDAL virtual file system path that reads it.
func VSIPath(href string) string {
	switch {
	case strings.HasPrefix(href, "s3://"):
		return "/vsis3/" + strings.TrimPrefix(href, "s3://")
	case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		return "/vsicurl/" + href
	default:
		return href
	}
}

// Fetch writes the asset at href to dest. When clip has an area only the
// lon/lat window is read from the remote COG; otherwise the whole object is
// downloaded.
func (d *Downloader) Fetch(ctx context.Context, href, dest string, clip orb.Bound) error {
	if err := os.MkdirAll(filepath.Dir(dest), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dest, err)
	}

	mode := "full"
	if hasArea(clip) {
		mode = "clip"
	}
	log := d.logger.WithFields(logrus.Fields{"href": href, "mode": mode})
	log.Info("fetching band")

	start := time.Now()
	var (
		n   int64
		err error
	)
	if mode == "clip" {
		n, err = d.clip(ctx, href, dest, clip)
	} else {
		n, err = d.download(ctx, href, dest)
	}
	d.observe(mode, err, n, time.Since(start))
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{"dest": dest, "size_mb": fmt.Sprintf("%.1f", float64(n)/(1024*1024))}).Info("band saved")
	return nil
}

func hasArea(b orb.Bound) bool {
	return b.Min.X() < b.Max.X() && b.Min.Y() < b.Max.Y()
}

func (d *Downloader) observe(mode string, err error, n int64, elapsed time.Duration) {
	if d.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	d.metrics.BandDownloads.WithLabelValues(mode, outcome).Inc()
	d.metrics.BandDuration.Observe(elapsed.Seconds())
	if err == nil {
		d.metrics.BandBytes.Add(float64(n))
	}
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (d *Downloader) clip(ctx context.Context, href, dest string, b orb.Bound) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	src, err := godal.Open(VSIPath(href), raster.ErrLogger, godal.ConfigOption(d.gdalConfig...))
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", href, err)
	}
	defer src.Close()

	switches := []string{
		"-projwin",
		formatCoord(b.Min.X()), formatCoord(b.Max.Y()),
		formatCoord(b.Max.X()), formatCoord(b.Min.Y()),
		"-projwin_srs", "EPSG:4326",
	}

	tmp := dest + ".part"
	out, err := src.Translate(tmp, switches,
		godal.GTiff,
		godal.CreationOption(raster.GTiffOptions...),
		godal.ConfigOption(d.gdalConfig...))
	if err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("failed to clip %s: %w", href, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("failed to close clipped %s: %w", href, err)
	}
	return finish(tmp, dest)
}

func (d *Downloader) download(ctx context.Context, href, dest string) (int64, error) {
	switch {
	case strings.HasPrefix(href, "s3://"):
		if d.objects == nil {
			return 0, fmt.Errorf("no object store configured for %s", href)
		}
		return d.objects.Download(ctx, href, dest)
	case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		return d.downloadHTTP(ctx, href, dest)
	default:
		return 0, fmt.Errorf("unsupported asset href %q", href)
	}
}

func (d *Downloader) downloadHTTP(ctx context.Context, href, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to download %s: %w", href, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("failed to download %s: status %d: %s", href, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", tmp, err)
	}

	var w io.Writer = f
	if d.progress {
		bar := progressbar.DefaultBytes(resp.ContentLength, "Downloading "+path.Base(req.URL.Path))
		w = io.MultiWriter(f, bar)
	}
	_, err = io.Copy(w, resp.Body)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return finish(tmp, dest)
}

func finish(tmp, dest string) (int64, error) {
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("failed to move %s into place: %w", dest, err)
	}
	info, err := os.Stat(dest)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
