// Package sink opens the destination Singer messages are written to:
// stdout, or a local file with optional compression that can be uploaded
// to S3 when the run finishes.
package sink

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/Matatika/tap-shopify/pkg/clients"
	"github.com/Matatika/tap-shopify/pkg/compression"
	"github.com/Matatika/tap-shopify/pkg/config"
	"github.com/Matatika/tap-shopify/pkg/errors"
)

const (
	defaultUploadPartSize = 5 * 1024 * 1024 // 5MB
	defaultMaxConcurrency = 4
)

// Sink is an open message destination.
type Sink struct {
	w      io.Writer
	comp   io.WriteCloser
	file   *os.File
	path   string
	temp   bool
	upload config.S3Location
	logger *zap.Logger
}

// Open opens the destination described by cfg. Without a path or an S3
// location, messages go to stdout.
func Open(cfg config.OutputConfig, stdout io.Writer, logger *zap.Logger) (*Sink, error) {
	s := &Sink{upload: cfg.S3, logger: logger}

	if cfg.Path == "" && !cfg.S3.IsSet() {
		s.w = stdout
		return s, nil
	}

	algorithm, err := compression.ParseAlgorithm(cfg.Compression)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid output compression")
	}

	if cfg.Path != "" {
		s.path = cfg.Path
		s.file, err = os.Create(cfg.Path)
	} else {
		s.temp = true
		s.file, err = os.CreateTemp("", "tap-shopify-*.singer"+algorithm.Extension())
		if s.file != nil {
			s.path = s.file.Name()
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create output file").
			WithDetail("path", cfg.Path)
	}

	s.comp, err = compression.NewWriter(s.file, algorithm, compression.Default)
	if err != nil {
		s.file.Close() //nolint:errcheck,gosec
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create compressor")
	}
	s.w = s.comp
	return s, nil
}

// Writer returns the writer messages are encoded to.
func (s *Sink) Writer() io.Writer {
	return s.w
}

// Path returns the output file path, or "" for stdout.
func (s *Sink) Path() string {
	return s.path
}

// Deferred reports whether messages only reach their destination when
// Close uploads the output file.
func (s *Sink) Deferred() bool {
	return s.upload.IsSet()
}

// Flush pushes everything written so far through the compressor to the
// output file and syncs it to disk. Each message written before Flush is
// decodable from the file afterwards.
func (s *Sink) Flush() error {
	if s.file == nil {
		return nil
	}
	if f, ok := s.comp.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush compressed output").
				WithDetail("path", s.path)
		}
	}
	if err := s.file.Sync(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to sync output file").
			WithDetail("path", s.path)
	}
	return nil
}

// Close finishes the compressed stream, closes the file and uploads it
// when an S3 location is configured. The caller flushes buffered
// messages first. A temporary file is removed only after a successful
// upload; on failure it is kept and its path is logged.
func (s *Sink) Close(ctx context.Context) error {
	if s.file == nil {
		return nil
	}

	if err := s.comp.Close(); err != nil {
		s.file.Close() //nolint:errcheck,gosec
		return s.keep(errors.Wrap(err, errors.ErrorTypeFile, "failed to finish compressed output"))
	}
	if err := s.file.Close(); err != nil {
		return s.keep(errors.Wrap(err, errors.ErrorTypeFile, "failed to close output file"))
	}

	if !s.upload.IsSet() {
		return nil
	}
	if err := s.uploadFile(ctx); err != nil {
		return s.keep(err)
	}
	if s.temp {
		if err := os.Remove(s.path); err != nil {
			s.logger.Warn("failed to remove uploaded output", zap.String("path", s.path), zap.Error(err))
		}
	}
	return nil
}

func (s *Sink) keep(err error) error {
	if s.temp {
		s.logger.Error("output kept on disk", zap.String("path", s.path), zap.Error(err))
	}
	return err
}

func (s *Sink) uploadFile(ctx context.Context) error {
	start := time.Now()

	client, err := clients.NewS3Client(ctx, s.upload)
	if err != nil {
		return err
	}
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = defaultUploadPartSize
		u.Concurrency = defaultMaxConcurrency
	})

	f, err := os.Open(s.path)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to reopen output file")
	}
	defer f.Close()

	key := s.upload.Key
	if key == "" {
		key = filepath.Base(s.path)
	}

	result, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.upload.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/x-ndjson"),
		Metadata: map[string]string{
			"created": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to upload output to S3").
			WithDetail("bucket", s.upload.Bucket).
			WithDetail("key", key)
	}

	s.logger.Info("output uploaded to S3",
		zap.String("location", result.Location),
		zap.String("key", key),
		zap.Duration("duration", time.Since(start)))
	return nil
}
