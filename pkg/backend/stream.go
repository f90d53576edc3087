package backend

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"sync"
	"syscall"

	"github.com/marmos91/virtfs/pkg/virtfs"
)

// OwnerOptions parses the uid and gid query options shared by the drivers
// that create files. Missing options yield 0.
func OwnerOptions(q url.Values) (uid, gid uint32, err error) {
	for key, dst := range map[string]*uint32{"uid": &uid, "gid": &gid} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		id, perr := strconv.ParseUint(v, 10, 32)
		if perr != nil {
			return 0, 0, PathError("newconn", fmt.Sprintf("%s=%s", key, v), syscall.EINVAL)
		}
		*dst = uint32(id)
	}
	return uid, gid, nil
}

// CheckOptions returns an error naming the first query option not in known.
func CheckOptions(q url.Values, known ...string) error {
	allowed := make(map[string]bool, len(known))
	for _, k := range known {
		allowed[k] = true
	}
	for key := range q {
		if !allowed[key] {
			return fmt.Errorf("unknown option %q", key)
		}
	}
	return nil
}

// Dirent builds a directory record from an attribute record. Timestamps
// are split into microseconds plus the nanosecond remainder.
func Dirent(name string, a *virtfs.RawAttr) *virtfs.RawDirent {
	split := func(sec, nsec uint64) (virtfs.Timeval, uint64) {
		return virtfs.Timeval{Sec: sec, Usec: nsec / 1000}, nsec % 1000
	}

	d := &virtfs.RawDirent{
		Name:    name,
		Ino:     a.Ino,
		Mode:    a.Mode,
		Dev:     a.Dev,
		Nlink:   a.Nlink,
		UID:     a.UID,
		GID:     a.GID,
		Rdev:    a.Rdev,
		Size:    a.Size,
		Blksize: a.Blksize,
		Blocks:  a.Blocks,
	}
	d.Atime, d.AtimeNsec = split(a.Atime, a.AtimeNsec)
	d.Mtime, d.MtimeNsec = split(a.Mtime, a.MtimeNsec)
	d.Ctime, d.CtimeNsec = split(a.Ctime, a.CtimeNsec)
	return d
}

// SnapshotStream is a directory stream over entries captured at open time.
type SnapshotStream struct {
	mu      sync.Mutex
	entries []*virtfs.RawDirent
	pos     int
	closed  bool
}

// NewSnapshotStream returns a stream yielding entries in order.
func NewSnapshotStream(entries []*virtfs.RawDirent) *SnapshotStream {
	return &SnapshotStream{entries: entries}
}

// Next returns a copy of the next entry, or io.EOF once exhausted.
func (s *SnapshotStream) Next(_ context.Context) (*virtfs.RawDirent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, PathError("readdir", "", syscall.EBADF)
	}
	if s.pos >= len(s.entries) {
		return nil, io.EOF
	}
	d := *s.entries[s.pos]
	s.pos++
	return &d, nil
}

// Close releases the entries. A second Close fails with EBADF.
func (s *SnapshotStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return PathError("closedir", "", syscall.EBADF)
	}
	s.closed = true
	s.entries = nil
	return nil
}
