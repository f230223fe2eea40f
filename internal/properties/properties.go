package properties

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultSTACURL     = "https://earth-search.aws.element84.com/v1"
	DefaultCollection  = "sentinel-2-l2a"
	DefaultGrpcPort    = 50051
	DefaultMetricsAddr = ":9090"
)

func RootPath() string {
	if root := os.Getenv("ROOT_PATH"); root != "" {
		return root
	}
	return "."
}

type STAC struct {
	URL          string
	Collection   string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Retries      int
	RetryDelay   time.Duration
	Limit        int
	MaxItems     int
}

// OAuthEnabled reports whether client-credentials auth is configured for the catalog.
func (s STAC) OAuthEnabled() bool {
	return s.ClientID != "" && s.ClientSecret != "" && s.TokenURL != ""
}

type Config struct {
	RootPath string
	STAC     STAC

	BufferKM       float64
	CloudCoverMax  float64
	DaysBack       int
	WaterThreshold float64

	CacheEnabled bool
	CacheMaxAge  time.Duration
	HTTPTimeout  time.Duration

	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	OutputS3URI        string

	GrpcPort    int
	MetricsAddr string
	LogLevel    string

	DiscordErrorNotificationURL   string
	DiscordSuccessNotificationURL string
}

// SetDefaults registers the analysis defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("ROOT_PATH", RootPath())
	v.SetDefault("STAC_API_URL", DefaultSTACURL)
	v.SetDefault("STAC_COLLECTION", DefaultCollection)
	v.SetDefault("STAC_RETRIES", 3)
	v.SetDefault("STAC_RETRY_DELAY", "5s")
	v.SetDefault("SEARCH_LIMIT", 5)
	v.SetDefault("STAC_MAX_ITEMS", 50)
	v.SetDefault("BUFFER_KM", 2.0)
	v.SetDefault("CLOUD_COVER_MAX", 20.0)
	v.SetDefault("DAYS_BACK", 30)
	v.SetDefault("WATER_THRESHOLD", 0.0)
	v.SetDefault("CACHE_ENABLED", true)
	v.SetDefault("CACHE_MAX_AGE", "6h")
	v.SetDefault("HTTP_TIMEOUT", "5m")
	v.SetDefault("AWS_REGION", "us-west-2")
	v.SetDefault("GRPC_PORT", DefaultGrpcPort)
	v.SetDefault("METRICS_ADDR", DefaultMetricsAddr)
	v.SetDefault("LOG_LEVEL", "info")
}

// Load reads the configuration from v, which should already carry defaults,
// environment bindings and any command line flags.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		RootPath: v.GetString("ROOT_PATH"),
		STAC: STAC{
			URL:          v.GetString("STAC_API_URL"),
			Collection:   v.GetString("STAC_COLLECTION"),
			ClientID:     v.GetString("STAC_CLIENT_ID"),
			ClientSecret: v.GetString("STAC_CLIENT_SECRET"),
			TokenURL:     v.GetString("STAC_TOKEN_URL"),
			Retries:      v.GetInt("STAC_RETRIES"),
			RetryDelay:   v.GetDuration("STAC_RETRY_DELAY"),
			Limit:        v.GetInt("SEARCH_LIMIT"),
			MaxItems:     v.GetInt("STAC_MAX_ITEMS"),
		},
		BufferKM:                      v.GetFloat64("BUFFER_KM"),
		CloudCoverMax:                 v.GetFloat64("CLOUD_COVER_MAX"),
		DaysBack:                      v.GetInt("DAYS_BACK"),
		WaterThreshold:                v.GetFloat64("WATER_THRESHOLD"),
		CacheEnabled:                  v.GetBool("CACHE_ENABLED"),
		CacheMaxAge:                   v.GetDuration("CACHE_MAX_AGE"),
		HTTPTimeout:                   v.GetDuration("HTTP_TIMEOUT"),
		AWSRegion:                     v.GetString("AWS_REGION"),
		AWSAccessKeyID:                v.GetString("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey:            v.GetString("AWS_SECRET_ACCESS_KEY"),
		OutputS3URI:                   v.GetString("OUTPUT_S3_URI"),
		GrpcPort:                      v.GetInt("GRPC_PORT"),
		MetricsAddr:                   v.GetString("METRICS_ADDR"),
		LogLevel:                      v.GetString("LOG_LEVEL"),
		DiscordErrorNotificationURL:   v.GetString("DISCORD_ERROR_NOTIFICATION_URL"),
		DiscordSuccessNotificationURL: v.GetString("DISCORD_SUCCESS_NOTIFICATION_URL"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.STAC.URL == "" {
		return errors.New("STAC_API_URL is required")
	}
	if _, err := url.ParseRequestURI(c.STAC.URL); err != nil {
		return fmt.Errorf("invalid STAC_API_URL: %w", err)
	}
	if c.STAC.Collection == "" {
		return errors.New("STAC_COLLECTION is required")
	}
	if c.STAC.Retries < 1 {
		return fmt.Errorf("STAC_RETRIES must be at least 1, got %d", c.STAC.Retries)
	}
	if c.STAC.Limit < 1 {
		return fmt.Errorf("SEARCH_LIMIT must be at least 1, got %d", c.STAC.Limit)
	}
	if c.STAC.MaxItems < c.STAC.Limit {
		return fmt.Errorf("STAC_MAX_ITEMS (%d) must not be lower than SEARCH_LIMIT (%d)", c.STAC.MaxItems, c.STAC.Limit)
	}
	if (c.STAC.ClientID != "") != (c.STAC.ClientSecret != "") {
		return errors.New("STAC_CLIENT_ID and STAC_CLIENT_SECRET must be set together")
	}
	if c.STAC.ClientID != "" && c.STAC.TokenURL == "" {
		return errors.New("STAC_TOKEN_URL is required when STAC_CLIENT_ID is set")
	}
	if c.BufferKM < 0 {
		return fmt.Errorf("BUFFER_KM must not be negative, got %g", c.BufferKM)
	}
	if c.CloudCoverMax <= 0 || c.CloudCoverMax > 100 {
		return fmt.Errorf("CLOUD_COVER_MAX must be in (0, 100], got %g", c.CloudCoverMax)
	}
	if c.DaysBack < 1 {
		return fmt.Errorf("DAYS_BACK must be at least 1, got %d", c.DaysBack)
	}
	if c.WaterThreshold < -1 || c.WaterThreshold > 1 {
		return fmt.Errorf("WATER_THRESHOLD must be in [-1, 1], got %g", c.WaterThreshold)
	}
	if c.HTTPTimeout <= 0 {
		return errors.New("HTTP_TIMEOUT must be positive")
	}
	if c.GrpcPort <= 0 || c.GrpcPort > 65535 {
		return fmt.Errorf("invalid GRPC_PORT %d", c.GrpcPort)
	}
	return nil
}

func (c *Config) DataPath() string {
	return filepath.Join(c.RootPath, "data")
}

// ResultPath is data/result/<parts...>.
func (c *Config) ResultPath(parts ...string) string {
	return filepath.Join(append([]string{c.DataPath(), "result"}, parts...)...)
}

func (c *Config) CachePath(sub string) string {
	return filepath.Join(c.DataPath(), "cache", sub)
}

func (c *Config) HistoryPath() string {
	return c.ResultPath("history.csv")
}

// Summary lists the analysis parameters shown by the config command.
func (c *Config) Summary() [][2]string {
	return [][2]string{
		{"stac_api_url", c.STAC.URL},
		{"collection", c.STAC.Collection},
		{"buffer_km", fmt.Sprintf("%g", c.BufferKM)},
		{"cloud_cover_max", fmt.Sprintf("%g", c.CloudCoverMax)},
		{"days_back", fmt.Sprintf("%d", c.DaysBack)},
		{"limit", fmt.Sprintf("%d", c.STAC.Limit)},
		{"water_threshold", fmt.Sprintf("%g", c.WaterThreshold)},
		{"cache_enabled", fmt.Sprintf("%t", c.CacheEnabled)},
		{"data_path", c.DataPath()},
		{"output_s3_uri", c.OutputS3URI},
	}
}
