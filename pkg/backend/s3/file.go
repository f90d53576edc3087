package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/marmos91/virtfs/pkg/backend"
	"github.com/marmos91/virtfs/pkg/virtfs"
)

// fileObject is an open object. Reads go to S3 as ranged GETs until the
// first modification, which downloads the object into memory. Modified
// content is uploaded as a whole on Sync and Close.
type fileObject struct {
	sess *session
	path string
	key  string

	mu     sync.Mutex
	size   int64
	mtime  time.Time
	mode   uint32
	uid    uint32
	gid    uint32
	data   []byte
	loaded bool
	dirty  bool
	closed bool
}

// newFile wraps an existing object described by attr, or a new empty one
// when attr is nil.
func newFile(s *session, p string, attr *virtfs.RawAttr) *fileObject {
	f := &fileObject{
		sess:  s,
		path:  p,
		key:   s.key(p),
		mode:  defaultFileMode,
		uid:   s.conn.uid,
		gid:   s.conn.gid,
		mtime: time.Now(),
	}
	if attr == nil {
		f.data, f.loaded = []byte{}, true
		return f
	}
	f.size = int64(attr.Size)
	f.mode = uint32(attr.Mode) & virtfs.ModePermMask
	f.uid, f.gid = uint32(attr.UID), uint32(attr.GID)
	f.mtime = time.Unix(int64(attr.Mtime), int64(attr.MtimeNsec))
	return f
}

// check must be called with f.mu held.
func (f *fileObject) check(op string) error {
	if f.closed {
		return backend.PathError(op, f.path, syscall.EBADF)
	}
	return nil
}

func (f *fileObject) metadata() map[string]string {
	return map[string]string{
		metaMode: strconv.FormatUint(uint64(f.mode), 8),
		metaUID:  strconv.FormatUint(uint64(f.uid), 10),
		metaGID:  strconv.FormatUint(uint64(f.gid), 10),
	}
}

// load downloads the whole object. Must be called with f.mu held.
func (f *fileObject) load(ctx context.Context, op string) error {
	if f.loaded {
		return nil
	}
	if f.size == 0 {
		f.data, f.loaded = []byte{}, true
		return nil
	}

	if err := f.sess.wait(ctx); err != nil {
		return err
	}
	out, err := f.sess.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.sess.bucket),
		Key:    aws.String(f.key),
	})
	if err != nil {
		return classify(op, f.path, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return backend.IOError(op, f.path, err)
	}
	f.data, f.size, f.loaded = data, int64(len(data)), true
	return nil
}

// flush uploads the content. Must be called with f.mu held, or before the
// object is shared.
func (f *fileObject) flush(ctx context.Context, op string) error {
	if err := f.sess.wait(ctx); err != nil {
		return err
	}
	_, err := f.sess.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(f.sess.bucket),
		Key:           aws.String(f.key),
		Body:          bytes.NewReader(f.data),
		ContentLength: aws.Int64(int64(len(f.data))),
		Metadata:      f.metadata(),
	})
	if err != nil {
		return classify(op, f.path, err)
	}
	f.dirty = false
	f.mtime = time.Now()
	return nil
}

func (f *fileObject) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check("read"); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, backend.PathError("read", f.path, syscall.EINVAL)
	}
	if off >= f.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	if f.loaded {
		n := copy(p, f.data[off:])
		if n < len(p) {
			return n, io.EOF
		}
		return n, nil
	}

	end := min(off+int64(len(p)), f.size)
	if err := f.sess.wait(ctx); err != nil {
		return 0, err
	}
	out, err := f.sess.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.sess.bucket),
		Key:    aws.String(f.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, end-1)),
	})
	if err != nil {
		return 0, classify("read", f.path, err)
	}
	defer out.Body.Close()

	n, err := io.ReadFull(out.Body, p[:end-off])
	if err != nil && err != io.ErrUnexpectedEOF {
		return n, backend.IOError("read", f.path, err)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *fileObject) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check("write"); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, backend.PathError("write", f.path, syscall.EINVAL)
	}
	if err := backend.CheckExtent("write", f.path, off, int64(len(p)), backend.MaxFileSize); err != nil {
		return 0, err
	}
	if err := f.load(ctx, "write"); err != nil {
		return 0, err
	}

	if end := off + int64(len(p)); end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[off:], p)
	f.size = int64(len(f.data))
	f.dirty = true
	f.mtime = time.Now()
	return len(p), nil
}

func (f *fileObject) Truncate(ctx context.Context, size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check("truncate"); err != nil {
		return err
	}
	if size < 0 {
		return backend.PathError("truncate", f.path, syscall.EINVAL)
	}
	if err := backend.CheckExtent("truncate", f.path, size, 0, backend.MaxFileSize); err != nil {
		return err
	}
	if err := f.load(ctx, "truncate"); err != nil {
		return err
	}

	if size <= int64(len(f.data)) {
		f.data = f.data[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, f.data)
		f.data = grown
	}
	f.size = size
	f.dirty = true
	f.mtime = time.Now()
	return nil
}

func (f *fileObject) Stat(_ context.Context) (*virtfs.RawAttr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check("fstat"); err != nil {
		return nil, err
	}
	return f.sess.fileAttr(f.key, f.size, f.mtime, f.metadata()), nil
}

func (f *fileObject) Sync(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check("sync"); err != nil {
		return err
	}
	if !f.dirty {
		return nil
	}
	return f.flush(ctx, "sync")
}

// Close uploads pending changes. The object is closed even when the
// upload fails.
func (f *fileObject) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check("close"); err != nil {
		return err
	}
	f.closed = true

	var err error
	if f.dirty {
		err = f.flush(ctx, "close")
	}
	f.data = nil
	return err
}
