package badger

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"
	xdr "github.com/rasky/go-xdr/xdr2"

	"github.com/marmos91/virtfs/pkg/backend"
	"github.com/marmos91/virtfs/pkg/virtfs"
)

// record is the persisted attribute record of one file, XDR-encoded.
//
// Timestamps are nanoseconds since the Unix epoch. Size is authoritative
// for regular files; the data key holds exactly Size bytes. Directory
// Nlink counts the entry itself, "." and one ".." per subdirectory.
type record struct {
	ID     [16]byte
	Mode   uint32
	Nlink  uint32
	UID    uint32
	GID    uint32
	Rdev   uint64
	Size   uint64
	Atime  int64
	Mtime  int64
	Ctime  int64
	Target string
}

func newRecord(mode, uid, gid uint32) *record {
	now := time.Now().UnixNano()
	r := &record{
		ID:    uuid.New(),
		Mode:  mode,
		Nlink: 1,
		UID:   uid,
		GID:   gid,
		Atime: now,
		Mtime: now,
		Ctime: now,
	}
	if r.isDir() {
		r.Nlink = 2
	}
	return r
}

func encodeRecord(r *record) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, r); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*record, error) {
	r := &record{}
	if _, err := xdr.Unmarshal(bytes.NewReader(data), r); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return r, nil
}

func (r *record) isDir() bool     { return r.Mode&virtfs.ModeTypeMask == virtfs.ModeDir }
func (r *record) isSymlink() bool { return r.Mode&virtfs.ModeTypeMask == virtfs.ModeSymlink }
func (r *record) isRegular() bool { return r.Mode&virtfs.ModeTypeMask == virtfs.ModeRegular }

func (r *record) touch() {
	r.Mtime = time.Now().UnixNano()
	r.Ctime = r.Mtime
}

func splitNanos(ns int64) (sec, nsec uint64) {
	if ns <= 0 {
		return 0, 0
	}
	return uint64(ns / int64(time.Second)), uint64(ns % int64(time.Second))
}

func (r *record) attr(dev uint64) *virtfs.RawAttr {
	size := r.Size
	switch {
	case r.isSymlink():
		size = uint64(len(r.Target))
	case r.isDir():
		size = backend.DefaultBlockSize
	}

	a := &virtfs.RawAttr{
		Dev:     dev,
		Ino:     backend.HandleToINode(r.ID[:]),
		Mode:    uint64(r.Mode),
		Nlink:   uint64(r.Nlink),
		UID:     uint64(r.UID),
		GID:     uint64(r.GID),
		Rdev:    r.Rdev,
		Size:    size,
		Blksize: backend.DefaultBlockSize,
		Blocks:  backend.Blocks(size),
	}
	a.Atime, a.AtimeNsec = splitNanos(r.Atime)
	a.Mtime, a.MtimeNsec = splitNanos(r.Mtime)
	a.Ctime, a.CtimeNsec = splitNanos(r.Ctime)
	return a
}

func (r *record) dirent(name string, dev uint64) *virtfs.RawDirent {
	return backend.Dirent(name, r.attr(dev))
}
