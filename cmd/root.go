package main

import (
	"context"
	"errors"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/ndwi-water-cli/internal/cache"
	"github.com/forest-guardian/ndwi-water-cli/internal/delivery"
	"github.com/forest-guardian/ndwi-water-cli/internal/notification"
	"github.com/forest-guardian/ndwi-water-cli/internal/observability"
	"github.com/forest-guardian/ndwi-water-cli/internal/properties"
	"github.com/forest-guardian/ndwi-water-cli/internal/sentinel"
	"github.com/forest-guardian/ndwi-water-cli/internal/stac"
	"github.com/forest-guardian/ndwi-water-cli/internal/storage"
	"github.com/forest-guardian/ndwi-water-cli/internal/ui"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app holds the wired dependencies shared by every command.
type app struct {
	cfg      *properties.Config
	logger   *logrus.Logger
	registry *prometheus.Registry
	metrics  *observability.Metrics
	notifier *notification.Discord
	analyzer *delivery.Analyzer
}

func loadEnv() {
	for _, path := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(path); err == nil {
			return
		}
	}
}

func newLogger(level string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(lvl)
	return logger, nil
}

func newApp(ctx context.Context, v *viper.Viper) (*app, error) {
	cfg, err := properties.Load(v)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	godal.RegisterAll()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	stacOpts := []stac.Option{
		stac.WithHTTPClient(stac.NewHTTPClient(ctx, cfg.STAC, cfg.HTTPTimeout)),
		stac.WithRetries(cfg.STAC.Retries, cfg.STAC.RetryDelay),
		stac.WithMaxItems(cfg.STAC.MaxItems),
		stac.WithMetrics(metrics),
		stac.WithLogger(logger),
	}
	if cfg.CacheEnabled {
		stacOpts = append(stacOpts, stac.WithCache(cache.NewFileCache[[]stac.Item](cfg.CachePath("stac"), cfg.CacheMaxAge)))
	}
	catalog := stac.NewClient(cfg.STAC.URL, stacOpts...)

	objects := storage.NewS3(storage.Options{
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
	}, logger)
	fetcher := sentinel.NewDownloader(
		sentinel.WithObjectStore(objects),
		sentinel.WithMetrics(metrics),
		sentinel.WithLogger(logger),
		sentinel.WithProgress(logger.IsLevelEnabled(logrus.InfoLevel)),
	)

	notifier := notification.NewDiscord(cfg.DiscordErrorNotificationURL, cfg.DiscordSuccessNotificationURL)
	opts := []delivery.Option{
		delivery.WithNotifier(notifier),
		delivery.WithMetrics(metrics),
		delivery.WithLogger(logger),
	}
	if cfg.OutputS3URI != "" {
		opts = append(opts, delivery.WithUploader(objects))
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  metrics,
		notifier: notifier,
		analyzer: delivery.NewAnalyzer(cfg, catalog, fetcher, opts...),
	}, nil
}

type appKey struct{}

func appFrom(cmd *cobra.Command) (*app, error) {
	a, ok := cmd.Context().Value(appKey{}).(*app)
	if !ok {
		return nil, errors.New("application not initialised")
	}
	return a, nil
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "ndwi",
		Short: "Sentinel-2 NDWI water analysis from the public STAC catalog",
		Long: `Searches the Earth Search STAC catalog for the least cloudy Sentinel-2 L2A
scene around a location, downloads the green and near infrared bands, computes
the Normalized Difference Water Index and reports how much of the area is water.

Run without arguments to start the interactive menu.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loadEnv()
			a, err := newApp(cmd.Context(), v)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, a))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			printBanner()
			ui.NewMenu(cmd.Context(), a.analyzer, a.cfg).Show()
			return nil
		},
	}
	root.SetContext(context.Background())

	flags := root.PersistentFlags()
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("root-path", ".", "directory holding the data folder")
	flags.String("stac-url", properties.DefaultSTACURL, "STAC API endpoint")
	for key, name := range map[string]string{
		"LOG_LEVEL":    "log-level",
		"ROOT_PATH":    "root-path",
		"STAC_API_URL": "stac-url",
	} {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			logrus.WithError(err).Fatalf("failed to bind flag %s", name)
		}
	}

	root.AddCommand(
		newAnalyzeCmd(),
		newSearchCmd(),
		newStatsCmd(),
		newLocationsCmd(),
		newConfigCmd(),
		newHistoryCmd(),
		newServeCmd(),
	)
	return root
}
