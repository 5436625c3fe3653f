// Package storage talks to the S3-compatible object store that holds each
// account's files under its storage namespace.
package storage

import (
	"bytes"
	"context"
	"fmt"

	sc "github.com/dmitrijs2005/photokeeper/internal/server/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectStore is the part of the object store the account service needs.
type ObjectStore interface {
	// CreateEmptyMarker writes an empty object marking the namespace. Writing
	// it twice is harmless.
	CreateEmptyMarker(ctx context.Context, namespace string) error
}

type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) putObjectAPI {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// MarkerKey is the object key of the namespace marker.
func MarkerKey(namespace string) string {
	return fmt.Sprintf("user/%s/", namespace)
}

type S3Store struct {
	client putObjectAPI
	bucket string
}

// NewS3Store builds a client once from the S3 settings in cfg; the store is
// shared by every request.
func NewS3Store(ctx context.Context, cfg *sc.Config) (*S3Store, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKey,
			cfg.S3SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		// MinIO and Linode need path-style addressing.
		o.UsePathStyle = cfg.S3ForcePathStyle
	})

	return &S3Store{client: client, bucket: cfg.S3Bucket}, nil
}

func (s *S3Store) CreateEmptyMarker(ctx context.Context, namespace string) error {
	if namespace == "" {
		return fmt.Errorf("empty storage namespace")
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(MarkerKey(namespace)),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", MarkerKey(namespace), err)
	}

	return nil
}
