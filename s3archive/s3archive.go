// Package s3archive keeps finished batch reports as JSON objects in S3.
package s3archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/anatolykoptev/go-lookbook"
)

// ErrNotFound is returned by Load for an unknown batch.
var ErrNotFound = errors.New("report not archived")

// Config contains minimal configuration for the archive. Region and Endpoint
// are optional and fall back to the standard AWS config chain.
type Config struct {
	Bucket string // required
	Prefix string // key prefix, e.g. "lookbook/reports"
	Region string
	// Endpoint targets an S3-compatible provider; it implies path-style
	// addressing.
	Endpoint string
}

// objectAPI is the part of *s3.Client the archive uses.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Archive is a lookbook.ReportArchiver.
type Archive struct {
	client objectAPI
	bucket string
	prefix string
}

var _ lookbook.ReportArchiver = (*Archive)(nil)

// New loads the default AWS configuration and returns an Archive.
func New(ctx context.Context, cfg Config) (*Archive, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3archive: bucket is required")
	}
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &Archive{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (a *Archive) key(batchID string) string {
	return path.Join(a.prefix, batchID+".json")
}

// Archive uploads report as <prefix>/<id>.json.
func (a *Archive) Archive(ctx context.Context, report *lookbook.BatchReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", report.ID, err)
	}
	key := a.key(report.ID)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", a.bucket, key, err)
	}
	slog.Debug("lookbook: report archived", "bucket", a.bucket, "key", key, "bytes", len(body))
	return nil
}

// Load reads an archived report back.
func (a *Archive) Load(ctx context.Context, batchID string) (*lookbook.BatchReport, error) {
	key := a.key(batchID)
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, batchID)
		}
		return nil, fmt.Errorf("get s3://%s/%s: %w", a.bucket, key, err)
	}
	defer out.Body.Close()

	var report lookbook.BatchReport
	if err := json.NewDecoder(out.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", batchID, err)
	}
	return &report, nil
}
