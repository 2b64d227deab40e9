package fetch

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config locates a bucket holding a mirror tree.
type S3Config struct {
	Bucket          string `toml:"bucket"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	Prefix          string `toml:"prefix"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
}

// getObjectAPI is the part of the S3 client the backend uses.
type getObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Backend fetches from an S3-compatible bucket using the mirror layout
// under Prefix.
type S3Backend struct {
	client getObjectAPI
	bucket string
	prefix string
}

// NewS3Backend builds a client from cfg. Static credentials are used when
// both keys are set; otherwise the SDK's default chain applies. A custom
// endpoint switches to path-style addressing for R2, MinIO and the like.
func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 backend needs a bucket")
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Backend{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Name implements Backend.
func (b *S3Backend) Name() string { return "s3" }

// Fetch implements Backend.
func (b *S3Backend) Fetch(ctx context.Context, src Source, dst string) error {
	for _, rel := range MirrorPaths(src) {
		key := strings.TrimPrefix(path.Join(b.prefix, rel), "/")
		out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			var nsk *types.NoSuchKey
			if errors.As(err, &nsk) {
				continue
			}
			return fmt.Errorf("s3://%s/%s: %w", b.bucket, key, err)
		}
		err = writeFile(ctx, dst, out.Body)
		_ = out.Body.Close()
		return err
	}
	return fmt.Errorf("%s in s3://%s: %w", src.Name(), b.bucket, ErrNotFound)
}
