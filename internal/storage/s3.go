package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
)

var ErrInvalidURI = errors.New("invalid s3 uri")

type s3Downloader interface {
	Download(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput, options ...func(*manager.Downloader)) (int64, error)
}

type s3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Location is a bucket/key pair parsed from an s3:// URI.
type Location struct {
	Bucket string
	Key    string
}

func (l Location) String() string {
	return "s3://" + l.Bucket + "/" + l.Key
}

// Join appends path elements to the key.
func (l Location) Join(elem ...string) Location {
	parts := append([]string{strings.TrimSuffix(l.Key, "/")}, elem...)
	key := strings.TrimPrefix(strings.Join(parts, "/"), "/")
	return Location{Bucket: l.Bucket, Key: key}
}

func ParseS3URI(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return Location{}, fmt.Errorf("%w: %q", ErrInvalidURI, raw)
	}
	return Location{Bucket: u.Host, Key: strings.TrimPrefix(u.Path, "/")}, nil
}

type Options struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// AWSConfig builds the SDK config. Without static keys requests are
// unsigned, which is what the public sentinel-cogs bucket expects.
func (o Options) AWSConfig() aws.Config {
	cfg := aws.Config{Region: o.Region}
	if o.AccessKeyID != "" && o.SecretAccessKey != "" {
		cfg.Credentials = credentials.NewStaticCredentialsProvider(o.AccessKeyID, o.SecretAccessKey, "")
	} else {
		cfg.Credentials = aws.AnonymousCredentials{}
	}
	return cfg
}

type S3 struct {
	downloader s3Downloader
	uploader   s3Uploader
	logger     logrus.FieldLogger
}

func NewS3(opts Options, logger logrus.FieldLogger) *S3 {
	client := s3.NewFromConfig(opts.AWSConfig())
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &S3{
		downloader: manager.NewDownloader(client),
		uploader:   manager.NewUploader(client),
		logger:     logger,
	}
}

// Download writes the object at uri to dest and returns the number of bytes written.
func (s *S3) Download(ctx context.Context, uri, dest string) (int64, error) {
	loc, err := ParseS3URI(uri)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(dest), os.ModePerm); err != nil {
		return 0, fmt.Errorf("failed to create directory for %s: %w", dest, err)
	}

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", tmp, err)
	}

	n, err := s.downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("failed to download %s: %w", loc, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("failed to move %s into place: %w", dest, err)
	}

	s.logger.WithFields(logrus.Fields{"uri": loc.String(), "bytes": n}).Debug("s3 object downloaded")
	return n, nil
}

// Upload copies the local file at path to uri and returns the object location.
func (s *S3) Upload(ctx context.Context, path, uri string) (string, error) {
	loc, err := ParseS3URI(uri)
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(loc.Bucket),
		Key:         aws.String(loc.Key),
		Body:        f,
		ContentType: aws.String(contentType(path)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to %s: %w", path, loc, err)
	}

	s.logger.WithField("uri", loc.String()).Info("uploaded analysis output")
	if out != nil && out.Location != "" {
		return out.Location, nil
	}
	return loc.String(), nil
}

func contentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		return "image/tiff; application=geotiff"
	case ".png":
		return "image/png"
	case ".geojson":
		return "application/geo+json"
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
