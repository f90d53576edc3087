// Package s3 implements a virtfs backend over Amazon S3 and S3-compatible
// object stores (MinIO, Localstack, Cubbit DS3, ...).
//
// URLs take the form
//
//	s3://endpoint/bucket/prefix/path?region=eu-west-1
//
// The authority is the endpoint host (with optional port); the special
// authority "aws" selects the default AWS endpoint for the region. The first
// export component is the bucket and the remaining components form a key
// prefix acting as the export root.
//
// Directories are implied by keys containing "/" and are never stored.
// Regular file content is read with ranged GETs and written back as one
// object on Sync or Close.
package s3

import (
	"context"
	"strings"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/marmos91/virtfs/internal/ratelimiter"
	"github.com/marmos91/virtfs/pkg/backend"
	"github.com/marmos91/virtfs/pkg/virtfs"
)

// Scheme is the URL scheme served by the S3 driver.
const Scheme = "s3"

// AWSAuthority selects the default AWS endpoint.
const AWSAuthority = "aws"

// API is the subset of the S3 client used by the backend.
type API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Config configures the S3 driver.
type Config struct {
	// Region used when the URL has no region option (default: us-east-1).
	Region string

	// AccessKeyID and SecretAccessKey select static credentials. When empty
	// the default AWS credential chain is used.
	AccessKeyID     string
	SecretAccessKey string

	// UseSSL selects https for custom endpoints.
	UseSSL bool

	// MaxRetries bounds attempts per request (default: 10).
	MaxRetries int

	// RequestsPerSecond limits the request rate across all connections of
	// the driver. Zero disables limiting.
	RequestsPerSecond uint

	// Burst is the number of requests allowed above the sustained rate.
	Burst uint

	// Client replaces the client built from the settings above for every
	// endpoint.
	Client API

	// Metrics observes every S3 request when non-nil.
	Metrics Metrics
}

// Driver connects to S3 endpoints.
type Driver struct {
	cfg     Config
	limiter *ratelimiter.RateLimiter
}

// NewDriver creates a driver for cfg.
func NewDriver(cfg Config) *Driver {
	d := &Driver{cfg: cfg}
	if cfg.RequestsPerSecond > 0 {
		d.limiter = ratelimiter.New(cfg.RequestsPerSecond, cfg.Burst)
	}
	return d
}

// Register binds a driver for cfg to Scheme in reg.
func Register(reg *virtfs.Registry, cfg Config) error {
	return reg.Register(Scheme, NewDriver(cfg))
}

// NewConn implements virtfs.Driver.
//
// Supported query options:
//   - region: bucket region, overriding Config.Region
//   - uid, gid: owner reported for objects without owner metadata
func (d *Driver) NewConn(u *virtfs.URL) (virtfs.Conn, error) {
	uid, gid, err := backend.OwnerOptions(u.Query)
	if err != nil {
		return nil, err
	}

	region := u.Query.Get("region")
	if region == "" {
		region = d.cfg.Region
	}
	if region == "" {
		region = "us-east-1"
	}

	return &conn{driver: d, region: region, uid: uid, gid: gid}, nil
}

// splitExport separates the bucket from the key prefix of an export path.
// The prefix is empty or ends with a slash.
func splitExport(export string) (bucket, prefix string, err error) {
	comps := backend.SplitPath(export)
	if len(comps) == 0 {
		return "", "", backend.PathError("mount", export, syscall.EINVAL)
	}
	bucket = comps[0]
	if len(comps) > 1 {
		prefix = strings.Join(comps[1:], "/") + "/"
	}
	return bucket, prefix, nil
}
