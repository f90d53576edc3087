// Package backend holds helpers shared by the virtfs backend drivers.
package backend

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"syscall"
	"time"
)

// DefaultBlockSize is the preferred I/O size reported in attributes.
const DefaultBlockSize = 4096

// MaxFileSize is the largest file a backend keeps as a single in-memory
// buffer. Writes or truncates past it fail with EFBIG.
const MaxFileSize = 1 << 30

// HandleToINode converts a backend handle (UUID bytes, object key, ...)
// to an inode number.
//
// Uses the first 8 bytes of the SHA-256 of the handle, big-endian, so the
// same handle always yields the same inode. Returns 0 for an empty handle.
func HandleToINode(handle []byte) uint64 {
	if len(handle) == 0 {
		return 0
	}
	hash := sha256.Sum256(handle)
	return binary.BigEndian.Uint64(hash[:8])
}

// PathError builds the error shape virtfs expects from backends.
func PathError(op, p string, errno syscall.Errno) error {
	return &fs.PathError{Op: op, Path: p, Err: errno}
}

// IOError reports a storage failure as EIO while keeping the cause
// reachable through errors.Is and errors.As.
func IOError(op, p string, err error) error {
	return &fs.PathError{Op: op, Path: p, Err: fmt.Errorf("%w: %w", syscall.EIO, err)}
}

// CheckExtent returns EFBIG when n bytes at offset off would end past
// limit, including when off+n overflows. off and n must be non-negative.
func CheckExtent(op, p string, off, n, limit int64) error {
	if off > limit || n > limit-off {
		return PathError(op, p, syscall.EFBIG)
	}
	return nil
}

// Blocks returns the number of 512-byte blocks needed for size bytes.
func Blocks(size uint64) uint64 {
	return (size + 511) / 512
}

// CleanPath normalizes p to an absolute, slash-separated path.
func CleanPath(p string) string {
	return path.Clean("/" + p)
}

// SplitPath returns the components of a cleaned absolute path.
// The root yields no components.
func SplitPath(p string) []string {
	p = strings.Trim(CleanPath(p), "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// Timestamp splits t into unsigned seconds and nanoseconds.
func Timestamp(t time.Time) (sec, nsec uint64) {
	if t.IsZero() {
		return 0, 0
	}
	return uint64(t.Unix()), uint64(t.Nanosecond())
}
