package delivery

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/forest-guardian/ndwi-water-cli/internal/location"
	"github.com/forest-guardian/ndwi-water-cli/internal/ndwi"
	"github.com/forest-guardian/ndwi-water-cli/internal/observability"
	"github.com/forest-guardian/ndwi-water-cli/internal/properties"
	"github.com/forest-guardian/ndwi-water-cli/internal/raster"
	"github.com/forest-guardian/ndwi-water-cli/internal/sentinel"
	"github.com/forest-guardian/ndwi-water-cli/internal/stac"
	"github.com/forest-guardian/ndwi-water-cli/internal/utils"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// MinSearchBufferKM keeps the catalog query box from collapsing to a point
// when no clipping buffer is requested (0.01 degrees).
const MinSearchBufferKM = 0.01 * location.KmPerDegree

var ErrInvalidRequest = errors.New("invalid analysis request")

type Searcher interface {
	Search(ctx context.Context, p stac.SearchParams) ([]stac.Item, error)
}

type BandFetcher interface {
	Fetch(ctx context.Context, href, dest string, clip orb.Bound) error
}

type Uploader interface {
	Upload(ctx context.Context, path, uri string) (string, error)
}

type Notifier interface {
	NotifySuccess(ctx context.Context, summary string, fields map[string]string) error
	NotifyError(ctx context.Context, errorMessage string) error
}

type Request struct {
	Location      location.Location
	Start         time.Time
	End           time.Time
	DaysBack      int
	BufferKM      float64
	CloudCoverMax float64
	Threshold     float64
	Plot          bool
}

type Files struct {
	Dir       string   `json:"dir"`
	Green     string   `json:"green"`
	NIR       string   `json:"nir"`
	Visual    string   `json:"visual,omitempty"`
	NDWI      string   `json:"ndwi"`
	Mask      string   `json:"mask"`
	MaskPNG   string   `json:"mask_png"`
	Plot      string   `json:"plot,omitempty"`
	Footprint string   `json:"footprint"`
	Uploaded  []string `json:"uploaded,omitempty"`
}

// List returns every local file produced by the run.
func (f Files) List() []string {
	var out []string
	for _, p := range []string{f.Green, f.NIR, f.Visual, f.NDWI, f.Mask, f.MaskPNG, f.Plot, f.Footprint} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

type Result struct {
	Location       location.Location   `json:"location"`
	Start          time.Time           `json:"start"`
	End            time.Time           `json:"end"`
	Scene          stac.Item           `json:"scene"`
	Candidates     int                 `json:"candidates"`
	Stats          ndwi.Stats          `json:"stats"`
	Interpretation ndwi.Interpretation `json:"interpretation"`
	Files          Files               `json:"files"`
	Duration       time.Duration       `json:"duration"`
}

type Analyzer struct {
	cfg           *properties.Config
	searcher      Searcher
	fetcher       BandFetcher
	uploader      Uploader
	notifier      Notifier
	metrics       *observability.Metrics
	clock         clockwork.Clock
	logger        logrus.FieldLogger
	exportWorkers int
	locks         *utils.KeyedMutex
}

type Option func(*Analyzer)

func WithUploader(u Uploader) Option {
	return func(a *Analyzer) {
		a.uploader = u
	}
}

func WithNotifier(n Notifier) Option {
	return func(a *Analyzer) {
		a.notifier = n
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(a *Analyzer) {
		a.metrics = m
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(a *Analyzer) {
		a.clock = c
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(a *Analyzer) {
		a.logger = l
	}
}

func WithExportWorkers(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.exportWorkers = n
		}
	}
}

func NewAnalyzer(cfg *properties.Config, searcher Searcher, fetcher BandFetcher, opts ...Option) *Analyzer {
	a := &Analyzer{
		cfg:           cfg,
		searcher:      searcher,
		fetcher:       fetcher,
		clock:         clockwork.NewRealClock(),
		logger:        logrus.StandardLogger(),
		exportWorkers: 4,
		locks:         utils.NewKeyedMutex(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// DefaultRequest builds a request for loc with the configured analysis defaults.
func (a *Analyzer) DefaultRequest(loc location.Location) Request {
	return Request{
		Location:      loc,
		DaysBack:      a.cfg.DaysBack,
		BufferKM:      a.cfg.BufferKM,
		CloudCoverMax: a.cfg.CloudCoverMax,
		Threshold:     a.cfg.WaterThreshold,
		Plot:          true,
	}
}

func (a *Analyzer) resolve(req Request) (Request, error) {
	switch {
	case req.Start.IsZero() && req.End.IsZero():
		start, end, err := location.DateRange(a.clock, req.DaysBack)
		if err != nil {
			return req, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		req.Start, req.End = start, end
	case req.End.IsZero():
		req.End = a.clock.Now().UTC()
	case req.Start.IsZero():
		if req.DaysBack <= 0 {
			return req, fmt.Errorf("%w: days back must be positive, got %d", ErrInvalidRequest, req.DaysBack)
		}
		req.Start = req.End.AddDate(0, 0, -req.DaysBack)
	}
	if req.End.Before(req.Start) {
		return req, fmt.Errorf("%w: end date %s is before start date %s", ErrInvalidRequest, req.End.Format(time.DateOnly), req.Start.Format(time.DateOnly))
	}
	if req.BufferKM < 0 {
		return req, fmt.Errorf("%w: buffer must not be negative, got %g km", ErrInvalidRequest, req.BufferKM)
	}
	if req.CloudCoverMax <= 0 || req.CloudCoverMax > 100 {
		return req, fmt.Errorf("%w: cloud cover limit must be in (0, 100], got %g", ErrInvalidRequest, req.CloudCoverMax)
	}
	if req.Threshold < -1 || req.Threshold > 1 {
		return req, fmt.Errorf("%w: water threshold must be in [-1, 1], got %g", ErrInvalidRequest, req.Threshold)
	}
	return req, nil
}

func (a *Analyzer) searchParams(req Request) stac.SearchParams {
	return stac.SearchParams{
		Collections:   []string{a.cfg.STAC.Collection},
		BBox:          req.Location.Bound(math.Max(req.BufferKM, MinSearchBufferKM)),
		Start:         req.Start,
		End:           req.End,
		CloudCoverMax: req.CloudCoverMax,
		Limit:         a.cfg.STAC.Limit,
	}
}

// Search returns the usable scenes for req, best first. Scenes whose
// footprint contains the location are preferred.
func (a *Analyzer) Search(ctx context.Context, req Request) ([]stac.Item, error) {
	req, err := a.resolve(req)
	if err != nil {
		return nil, err
	}
	return a.search(ctx, req)
}

func (a *Analyzer) search(ctx context.Context, req Request) ([]stac.Item, error) {
	var items []stac.Item
	err := a.stage("search", func() error {
		var err error
		items, err = a.searcher.Search(ctx, a.searchParams(req))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search catalog: %w", err)
	}
	a.logger.WithField("items", len(items)).Info("found Sentinel-2 images")

	ranked := stac.Rank(items, req.CloudCoverMax)
	covering := make([]stac.Item, 0, len(ranked))
	partial := make([]stac.Item, 0)
	for _, item := range ranked {
		if item.Covers(req.Location.Point()) {
			covering = append(covering, item)
		} else {
			partial = append(partial, item)
		}
	}
	return append(covering, partial...), nil
}

// Run executes resolve, search, download, compute, classify and export for req.
func (a *Analyzer) Run(ctx context.Context, req Request) (*Result, error) {
	started := a.clock.Now()
	res, err := a.run(ctx, req)

	outcome := "success"
	switch {
	case errors.Is(err, stac.ErrNoScenes):
		outcome = "no_scenes"
	case err != nil:
		outcome = "error"
	}
	if a.metrics != nil {
		a.metrics.Analyses.WithLabelValues(outcome).Inc()
	}

	if err != nil {
		a.logger.WithError(err).WithField("location", req.Location.Slug()).Error("analysis failed")
		a.notify(func() error {
			return a.notifier.NotifyError(ctx, fmt.Sprintf("%s: %v", req.Location, err))
		})
		return nil, err
	}

	res.Duration = a.clock.Since(started)
	if a.metrics != nil {
		a.metrics.WaterPercentage.WithLabelValues(res.Location.Slug()).Set(res.Stats.WaterPercentage)
	}
	a.notify(func() error {
		return a.notifier.NotifySuccess(ctx,
			fmt.Sprintf("%s: %.1f%% water, %s", res.Location, res.Stats.WaterPercentage, res.Interpretation),
			map[string]string{
				"scene":       res.Scene.ID,
				"date":        res.Scene.Properties.Datetime.Format(time.DateOnly),
				"mean ndwi":   fmt.Sprintf("%.3f", res.Stats.Mean),
				"valid px":    fmt.Sprintf("%d", res.Stats.TotalPixels),
				"cloud cover": cloudCoverLabel(res.Scene),
			})
	})
	return res, nil
}

func cloudCoverLabel(item stac.Item) string {
	if cc, ok := item.CloudCover(); ok {
		return fmt.Sprintf("%.1f%%", cc)
	}
	return "N/A"
}

func (a *Analyzer) notify(send func() error) {
	if a.notifier == nil {
		return
	}
	if err := send(); err != nil {
		a.logger.WithError(err).Warn("failed to send notification")
	}
}

func (a *Analyzer) stage(name string, fn func() error) error {
	start := a.clock.Now()
	err := fn()
	if a.metrics != nil {
		a.metrics.StageDuration.WithLabelValues(name).Observe(a.clock.Since(start).Seconds())
	}
	return err
}

func (a *Analyzer) run(ctx context.Context, req Request) (*Result, error) {
	req, err := a.resolve(req)
	if err != nil {
		return nil, err
	}
	log := a.logger.WithFields(logrus.Fields{
		"location": req.Location.Slug(),
		"start":    req.Start.Format(time.DateOnly),
		"end":      req.End.Format(time.DateOnly),
	})
	log.Info("starting NDWI analysis")

	candidates, err := a.search(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, stac.ErrNoScenes
	}
	scene := candidates[0]
	log = log.WithField("scene", scene.ID)
	log.WithField("cloud_cover", cloudCoverLabel(scene)).Info("selected scene")

	bands, err := sentinel.ResolveBands(scene)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Location:   req.Location,
		Start:      req.Start,
		End:        req.End,
		Scene:      scene,
		Candidates: len(candidates),
	}
	dir := a.cfg.ResultPath(req.Location.Slug(), scene.ID)
	// Concurrent runs for the same scene share every output path.
	unlock := a.locks.Lock(dir)
	defer unlock()
	res.Files = Files{
		Dir:       dir,
		Green:     filepath.Join(dir, "green.tif"),
		NIR:       filepath.Join(dir, "nir.tif"),
		NDWI:      filepath.Join(dir, "ndwi.tif"),
		Mask:      filepath.Join(dir, "water_mask.tif"),
		MaskPNG:   filepath.Join(dir, "water_mask.png"),
		Footprint: filepath.Join(dir, "footprint.geojson"),
	}
	if req.Plot {
		res.Files.Plot = filepath.Join(dir, fmt.Sprintf("ndwi_analysis_%s.png", req.Location.Slug()))
		if bands.Visual != "" {
			res.Files.Visual = filepath.Join(dir, "rgb.tif")
		}
	}

	var clip orb.Bound
	if req.BufferKM > 0 {
		clip = req.Location.Bound(req.BufferKM)
	}
	if err := a.stage("download", func() error {
		return a.download(ctx, bands, &res.Files, clip, log)
	}); err != nil {
		return nil, err
	}

	var grid *raster.Grid
	err = a.stage("compute", func() error {
		var err error
		grid, err = ndwi.Calculate(res.Files.Green, res.Files.NIR, res.Files.NDWI)
		if err != nil {
			return err
		}
		res.Stats, err = ndwi.Analyze(grid.Data, req.Threshold)
		return err
	})
	if err != nil {
		return nil, err
	}
	res.Interpretation = ndwi.Interpret(res.Stats.WaterPercentage)
	log.WithFields(logrus.Fields{
		"water_percentage": fmt.Sprintf("%.1f", res.Stats.WaterPercentage),
		"mean":             fmt.Sprintf("%.3f", res.Stats.Mean),
	}).Info("NDWI computed")

	if err := a.stage("export", func() error {
		return a.export(ctx, req, res, grid)
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// download fetches green and nir concurrently. The true colour preview is
// best effort: a failure only drops the RGB panel.
func (a *Analyzer) download(ctx context.Context, bands sentinel.Bands, files *Files, clip orb.Bound, log logrus.FieldLogger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.fetcher.Fetch(gctx, bands.Green, files.Green, clip); err != nil {
			return fmt.Errorf("failed to download green band: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := a.fetcher.Fetch(gctx, bands.NIR, files.NIR, clip); err != nil {
			return fmt.Errorf("failed to download nir band: %w", err)
		}
		return nil
	})

	visualOK := true
	if files.Visual != "" {
		g.Go(func() error {
			if err := a.fetcher.Fetch(gctx, bands.Visual, files.Visual, clip); err != nil {
				if gctx.Err() == nil {
					log.WithError(err).Warn("failed to download RGB preview, continuing without it")
				}
				visualOK = false
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if !visualOK {
		files.Visual = ""
	}
	return nil
}
