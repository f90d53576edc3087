package s3

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Metrics observes the requests the backend sends to S3.
//
// Implementations must be safe for concurrent use. A nil Metrics disables
// observation.
type Metrics interface {
	// ObserveOperation records one request by API name ("GetObject", ...).
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes records payload bytes for "read" or "write".
	RecordBytes(direction string, bytes int64)
}

// instrumented wraps an API and reports every call to Metrics.
type instrumented struct {
	API
	metrics Metrics
}

func instrument(api API, m Metrics) API {
	if m == nil {
		return api
	}
	return &instrumented{API: api, metrics: m}
}

func (i *instrumented) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	start := time.Now()
	out, err := i.API.HeadBucket(ctx, in, opts...)
	i.metrics.ObserveOperation("HeadBucket", time.Since(start), err)
	return out, err
}

func (i *instrumented) HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	start := time.Now()
	out, err := i.API.HeadObject(ctx, in, opts...)
	i.metrics.ObserveOperation("HeadObject", time.Since(start), err)
	return out, err
}

// GetObject reports the content length announced by S3, not the bytes the
// caller ends up reading from the body.
func (i *instrumented) GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	start := time.Now()
	out, err := i.API.GetObject(ctx, in, opts...)
	i.metrics.ObserveOperation("GetObject", time.Since(start), err)
	if err == nil {
		i.metrics.RecordBytes("read", aws.ToInt64(out.ContentLength))
	}
	return out, err
}

func (i *instrumented) PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	start := time.Now()
	out, err := i.API.PutObject(ctx, in, opts...)
	i.metrics.ObserveOperation("PutObject", time.Since(start), err)
	if err == nil {
		i.metrics.RecordBytes("write", aws.ToInt64(in.ContentLength))
	}
	return out, err
}

func (i *instrumented) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	start := time.Now()
	out, err := i.API.ListObjectsV2(ctx, in, opts...)
	i.metrics.ObserveOperation("ListObjectsV2", time.Since(start), err)
	return out, err
}
