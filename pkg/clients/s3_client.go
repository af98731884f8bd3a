package clients

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/Matatika/tap-shopify/pkg/config"
	"github.com/Matatika/tap-shopify/pkg/errors"
)

const defaultS3Region = "us-east-1"

// NewS3Client creates an S3 client for loc. Endpoint and path style
// addressing allow S3-compatible stores such as MinIO.
func NewS3Client(ctx context.Context, loc config.S3Location) (*s3.Client, error) {
	if !loc.IsSet() {
		return nil, errors.New(errors.ErrorTypeConfig, "s3 bucket is required")
	}

	region := loc.Region
	if region == "" {
		region = defaultS3Region
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if loc.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(loc.AccessKeyID, loc.SecretAccessKey.Reveal(), ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS config")
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = loc.UsePathStyle
		if loc.Endpoint != "" {
			o.BaseEndpoint = aws.String(loc.Endpoint)
			// most S3-compatible stores reject the default trailing checksums
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		}
	}), nil
}
