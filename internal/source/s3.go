package source

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// ObjectGetter is the subset of *s3.Client used by S3Opener.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config selects the bucket store. Empty AccessKey falls back to the
// default AWS credential chain; a non-empty Endpoint targets an
// S3-compatible server (MinIO) with path-style addressing.
type S3Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// S3Opener reads s3://bucket/key objects.
type S3Opener struct {
	client ObjectGetter
}

func NewS3Opener(client ObjectGetter) *S3Opener {
	return &S3Opener{client: client}
}

// NewS3OpenerFromConfig builds an S3 client from c.
func NewS3OpenerFromConfig(ctx context.Context, c S3Config) (*S3Opener, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(c.Region)}
	if c.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")))
	}

	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Opener(client), nil
}

func (o *S3Opener) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	bucket, key, err := ParseS3Path(p)
	if err != nil {
		return nil, err
	}

	out, err := o.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3 object %s: %w", p, err)
	}
	return out.Body, nil
}

// ParseS3Path splits s3://bucket/key.
func ParseS3Path(p string) (bucket, key string, err error) {
	if !IsS3(p) {
		return "", "", fmt.Errorf("not an s3 path: %q", p)
	}
	bucket, key, ok := strings.Cut(strings.TrimPrefix(p, s3Scheme), "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed s3 path: %q", p)
	}
	return bucket, key, nil
}
