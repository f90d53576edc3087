package s3

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/marmos91/virtfs/pkg/backend"
)

// errnoForCode maps S3 error codes without a modeled type.
var errnoForCode = map[string]syscall.Errno{
	"AccessDenied":          syscall.EACCES,
	"Forbidden":             syscall.EACCES,
	"InvalidAccessKeyId":    syscall.EACCES,
	"SignatureDoesNotMatch": syscall.EACCES,
	"NoSuchBucket":          syscall.ENOENT,
	"NoSuchKey":             syscall.ENOENT,
	"NotFound":              syscall.ENOENT,
	"InvalidRange":          syscall.EINVAL,
	"InvalidBucketName":     syscall.EINVAL,
	"EntityTooLarge":        syscall.EFBIG,
	"SlowDown":              syscall.EAGAIN,
	"ServiceUnavailable":    syscall.EAGAIN,
	"RequestTimeout":        syscall.ETIMEDOUT,
	"NotImplemented":        syscall.ENOTSUP,
}

// classify converts an SDK error into the path error shape virtfs expects.
// Context errors pass through untouched.
func classify(op, p string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return err
	}

	var (
		noSuchKey    *types.NoSuchKey
		notFound     *types.NotFound
		noSuchBucket *types.NoSuchBucket
	)
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) || errors.As(err, &noSuchBucket) {
		return &fs.PathError{Op: op, Path: p, Err: errors.Join(syscall.ENOENT, err)}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if errno, ok := errnoForCode[apiErr.ErrorCode()]; ok {
			return &fs.PathError{Op: op, Path: p, Err: errors.Join(errno, err)}
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusNotFound:
			return &fs.PathError{Op: op, Path: p, Err: errors.Join(syscall.ENOENT, err)}
		case http.StatusForbidden, http.StatusUnauthorized:
			return &fs.PathError{Op: op, Path: p, Err: errors.Join(syscall.EACCES, err)}
		case http.StatusRequestedRangeNotSatisfiable:
			return &fs.PathError{Op: op, Path: p, Err: errors.Join(syscall.EINVAL, err)}
		}
	}

	return backend.IOError(op, p, err)
}

// isNotFound reports whether a classified error means the object is absent.
func isNotFound(err error) bool {
	return errors.Is(err, syscall.ENOENT)
}
