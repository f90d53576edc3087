package s3

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/marmos91/virtfs/pkg/backend"
	"github.com/marmos91/virtfs/pkg/virtfs"
)

// Object metadata keys carrying POSIX attributes.
const (
	metaMode = "mode"
	metaUID  = "uid"
	metaGID  = "gid"
)

const defaultFileMode = 0o644

type conn struct {
	driver *Driver
	region string
	uid    uint32
	gid    uint32

	mu        sync.Mutex
	client    API
	bucket    string
	prefix    string
	dev       uint64
	mountedAt time.Time
	destroyed bool
}

// ValidateURL rejects unknown query options.
func (c *conn) ValidateURL(u *virtfs.URL) error {
	return backend.CheckOptions(u.Query, "region", "uid", "gid")
}

func (c *conn) Mount(ctx context.Context, authority, export string) error {
	bucket, prefix, err := splitExport(export)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return backend.PathError("mount", export, syscall.EBADF)
	}

	client, err := c.driver.newClient(ctx, authority, c.region)
	if err != nil {
		return &fs.PathError{Op: "mount", Path: authority, Err: errors.Join(syscall.ECONNREFUSED, err)}
	}

	if err := c.driver.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return classify("mount", export, err)
	}

	c.client = client
	c.bucket, c.prefix = bucket, prefix
	c.dev = backend.HandleToINode([]byte(authority + "/" + bucket + "/" + prefix))
	c.mountedAt = time.Now()
	return nil
}

func (c *conn) Unmount(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return backend.PathError("unmount", "", syscall.EINVAL)
	}
	c.client = nil
	return nil
}

func (c *conn) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return backend.PathError("destroy", "", syscall.EBADF)
	}
	c.destroyed = true
	c.client = nil
	return nil
}

// session is the mounted state captured for one operation.
type session struct {
	conn   *conn
	client API
	bucket string
	prefix string
	dev    uint64
}

func (c *conn) session(op, p string) (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil, backend.PathError(op, p, syscall.ENOTCONN)
	}
	return &session{conn: c, client: c.client, bucket: c.bucket, prefix: c.prefix, dev: c.dev}, nil
}

// key returns the object key for an export path. The root maps to the
// prefix itself.
func (s *session) key(p string) string {
	return s.prefix + strings.TrimPrefix(backend.CleanPath(p), "/")
}

// dirPrefix returns the listing prefix for the directory at p.
func (s *session) dirPrefix(p string) string {
	if backend.CleanPath(p) == "/" {
		return s.prefix
	}
	return s.key(p) + "/"
}

func (s *session) wait(ctx context.Context) error {
	return s.conn.driver.limiter.Wait(ctx)
}

func (s *session) dirAttr(p string) *virtfs.RawAttr {
	a := &virtfs.RawAttr{
		Dev:     s.dev,
		Ino:     backend.HandleToINode([]byte(s.bucket + "/" + s.dirPrefix(p))),
		Mode:    uint64(virtfs.ModeDir | 0o755),
		Nlink:   2,
		UID:     uint64(s.conn.uid),
		GID:     uint64(s.conn.gid),
		Size:    backend.DefaultBlockSize,
		Blksize: backend.DefaultBlockSize,
		Blocks:  backend.Blocks(backend.DefaultBlockSize),
	}
	a.Atime, a.AtimeNsec = backend.Timestamp(s.conn.mountedAt)
	a.Mtime, a.MtimeNsec = a.Atime, a.AtimeNsec
	a.Ctime, a.CtimeNsec = a.Atime, a.AtimeNsec
	return a
}

// fileAttr builds the attributes of an object from its size, modification
// time and user metadata.
func (s *session) fileAttr(key string, size int64, mtime time.Time, meta map[string]string) *virtfs.RawAttr {
	mode := uint64(virtfs.ModeRegular | defaultFileMode)
	if v, err := strconv.ParseUint(meta[metaMode], 8, 32); err == nil {
		mode = uint64(virtfs.ModeRegular) | v&uint64(virtfs.ModePermMask)
	}
	uid, gid := uint64(s.conn.uid), uint64(s.conn.gid)
	if v, err := strconv.ParseUint(meta[metaUID], 10, 32); err == nil {
		uid = v
	}
	if v, err := strconv.ParseUint(meta[metaGID], 10, 32); err == nil {
		gid = v
	}
	if size < 0 {
		size = 0
	}

	a := &virtfs.RawAttr{
		Dev:     s.dev,
		Ino:     backend.HandleToINode([]byte(s.bucket + "/" + key)),
		Mode:    mode,
		Nlink:   1,
		UID:     uid,
		GID:     gid,
		Size:    uint64(size),
		Blksize: backend.DefaultBlockSize,
		Blocks:  backend.Blocks(uint64(size)),
	}
	a.Mtime, a.MtimeNsec = backend.Timestamp(mtime)
	a.Atime, a.AtimeNsec = a.Mtime, a.MtimeNsec
	a.Ctime, a.CtimeNsec = a.Mtime, a.MtimeNsec
	return a
}

// headObject returns the attributes of the object at p.
func (s *session) headObject(ctx context.Context, op, p string) (*virtfs.RawAttr, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	key := s.key(p)
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify(op, p, err)
	}
	return s.fileAttr(key, aws.ToInt64(out.ContentLength), aws.ToTime(out.LastModified), out.Metadata), nil
}

// isDir reports whether any key lives below p.
func (s *session) isDir(ctx context.Context, op, p string) (bool, error) {
	if err := s.wait(ctx); err != nil {
		return false, err
	}
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(s.dirPrefix(p)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, classify(op, p, err)
	}
	return len(out.Contents) > 0 || len(out.CommonPrefixes) > 0, nil
}

// stat resolves p to an object or an implied directory.
func (s *session) stat(ctx context.Context, op, p string) (*virtfs.RawAttr, error) {
	if backend.CleanPath(p) == "/" {
		return s.dirAttr(p), nil
	}

	attr, err := s.headObject(ctx, op, p)
	if err == nil {
		return attr, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	dir, derr := s.isDir(ctx, op, p)
	if derr != nil {
		return nil, derr
	}
	if !dir {
		return nil, backend.PathError(op, p, syscall.ENOENT)
	}
	return s.dirAttr(p), nil
}

func (c *conn) Stat(ctx context.Context, p string) (*virtfs.RawAttr, error) {
	s, err := c.session("stat", p)
	if err != nil {
		return nil, err
	}
	return s.stat(ctx, "stat", p)
}

// Lstat equals Stat: object stores have no symbolic links.
func (c *conn) Lstat(ctx context.Context, p string) (*virtfs.RawAttr, error) {
	s, err := c.session("lstat", p)
	if err != nil {
		return nil, err
	}
	return s.stat(ctx, "lstat", p)
}

func (c *conn) OpenDir(ctx context.Context, p string) (virtfs.DirStream, error) {
	s, err := c.session("opendir", p)
	if err != nil {
		return nil, err
	}

	prefix := s.dirPrefix(p)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	var entries []*virtfs.RawDirent
	for paginator.HasMorePages() {
		if err := s.wait(ctx); err != nil {
			return nil, err
		}
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify("opendir", p, err)
		}

		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
			if name == "" {
				continue
			}
			entries = append(entries, backend.Dirent(name, s.dirAttr(path.Join(p, name))))
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			name := strings.TrimPrefix(key, prefix)
			if name == "" {
				continue
			}
			attr := s.fileAttr(key, aws.ToInt64(obj.Size), aws.ToTime(obj.LastModified), nil)
			entries = append(entries, backend.Dirent(name, attr))
		}
	}

	if len(entries) == 0 && backend.CleanPath(p) != "/" {
		if _, err := s.headObject(ctx, "opendir", p); err == nil {
			return nil, backend.PathError("opendir", p, syscall.ENOTDIR)
		} else if !isNotFound(err) {
			return nil, err
		}
		return nil, backend.PathError("opendir", p, syscall.ENOENT)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return backend.NewSnapshotStream(entries), nil
}

func (c *conn) Open(ctx context.Context, p string, flags int, perm uint32) (virtfs.FileObject, error) {
	s, err := c.session("open", p)
	if err != nil {
		return nil, err
	}
	if backend.CleanPath(p) == "/" {
		return nil, backend.PathError("open", p, syscall.EISDIR)
	}

	attr, err := s.stat(ctx, "open", p)
	switch {
	case err == nil && flags&os.O_CREATE != 0 && flags&os.O_EXCL != 0:
		return nil, backend.PathError("open", p, syscall.EEXIST)
	case err == nil:
		if attr.Mode&uint64(virtfs.ModeTypeMask) == uint64(virtfs.ModeDir) {
			return nil, backend.PathError("open", p, syscall.EISDIR)
		}
	case isNotFound(err) && flags&os.O_CREATE != 0:
		parent, perr := s.stat(ctx, "open", path.Dir(backend.CleanPath(p)))
		if perr != nil {
			return nil, perr
		}
		if parent.Mode&uint64(virtfs.ModeTypeMask) != uint64(virtfs.ModeDir) {
			return nil, backend.PathError("open", p, syscall.ENOTDIR)
		}

		f := newFile(s, p, nil)
		f.mode = perm & virtfs.ModePermMask
		f.owned = true
		if err := f.flush(ctx, "open"); err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, err
	}

	f := newFile(s, p, attr)
	writable := flags&(os.O_WRONLY|os.O_RDWR) != 0
	if flags&os.O_TRUNC != 0 && writable && attr.Size > 0 {
		f.data, f.loaded, f.size = []byte{}, true, 0
		if err := f.flush(ctx, "open"); err != nil {
			return nil, err
		}
	}
	return f, nil
}
