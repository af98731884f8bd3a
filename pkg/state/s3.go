package state

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/Matatika/tap-shopify/pkg/clients"
	"github.com/Matatika/tap-shopify/pkg/config"
	"github.com/Matatika/tap-shopify/pkg/errors"
	"github.com/Matatika/tap-shopify/pkg/json"
	"github.com/Matatika/tap-shopify/pkg/singer"
)

// S3Store keeps state as a JSON object in S3.
type S3Store struct {
	client *s3.Client
	bucket string
	key    string
}

// NewS3Store creates a store from cfg.S3. The object key defaults to
// "<cfg.Key>/state.json".
func NewS3Store(ctx context.Context, cfg config.StateConfig) (*S3Store, error) {
	client, err := clients.NewS3Client(ctx, cfg.S3)
	if err != nil {
		return nil, err
	}
	key := cfg.S3.Key
	if key == "" {
		key = cfg.Key + "/state.json"
	}
	return &S3Store{client: client, bucket: cfg.S3.Bucket, key: key}, nil
}

// Load implements Store.
func (s *S3Store) Load(ctx context.Context) (*singer.State, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if isNotFound(err) {
		return singer.NewState(), nil
	}
	if err != nil {
		return nil, s.wrap(err, "failed to load state from s3")
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, s.wrap(err, "failed to read state from s3")
	}
	return decode(data)
}

// Save implements Store.
func (s *S3Store) Save(ctx context.Context, st *singer.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeState, "failed to encode state")
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return s.wrap(err, "failed to save state to s3")
	}
	return nil
}

// Close implements Store.
func (s *S3Store) Close() error { return nil }

func (s *S3Store) wrap(err error, msg string) error {
	return errors.Wrap(err, errors.ErrorTypeConnection, msg).
		WithDetail("bucket", s.bucket).
		WithDetail("key", s.key)
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}
