package badger

import (
	"context"
	"io"
	"os"
	"path"
	"sync"
	"syscall"

	"github.com/dgraph-io/badger/v4"

	"github.com/marmos91/virtfs/pkg/backend"
	"github.com/marmos91/virtfs/pkg/virtfs"
)

type conn struct {
	driver *Driver
	uid    uint32
	gid    uint32

	mu        sync.Mutex
	volume    *Volume
	export    string
	destroyed bool
}

// ValidateURL rejects unknown query options and volume names that cannot
// be used as a directory name.
func (c *conn) ValidateURL(u *virtfs.URL) error {
	if !validVolume(u.Authority) {
		return backend.PathError("validate", u.Authority, syscall.EINVAL)
	}
	return backend.CheckOptions(u.Query, "uid", "gid")
}

func (c *conn) Mount(ctx context.Context, authority, export string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return backend.PathError("mount", export, syscall.EBADF)
	}

	v, err := c.driver.Open(authority)
	if err != nil {
		return err
	}

	export = backend.CleanPath(export)
	if c.driver.cfg.CreateExports {
		err = v.CreateExport(export)
	} else {
		var found bool
		found, err = v.HasExport(export)
		if err == nil && !found {
			err = backend.PathError("mount", export, syscall.ENOENT)
		}
	}
	if err != nil {
		_ = v.Close()
		return err
	}

	c.volume, c.export = v, export
	return nil
}

func (c *conn) Unmount(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.volume == nil {
		return backend.PathError("unmount", "", syscall.EINVAL)
	}
	v := c.volume
	c.volume = nil
	return v.Close()
}

func (c *conn) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return backend.PathError("destroy", "", syscall.EBADF)
	}
	c.destroyed = true
	if c.volume != nil {
		v := c.volume
		c.volume = nil
		return v.Close()
	}
	return nil
}

func (c *conn) mounted(op, p string) (*Volume, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.volume == nil {
		return nil, "", backend.PathError(op, p, syscall.ENOTCONN)
	}
	return c.volume, c.export, nil
}

func (c *conn) Stat(ctx context.Context, p string) (*virtfs.RawAttr, error) {
	return c.stat(ctx, "stat", p, true)
}

func (c *conn) Lstat(ctx context.Context, p string) (*virtfs.RawAttr, error) {
	return c.stat(ctx, "lstat", p, false)
}

func (c *conn) stat(ctx context.Context, op, p string, follow bool) (*virtfs.RawAttr, error) {
	v, export, err := c.mounted(op, p)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var attr *virtfs.RawAttr
	err = v.db.View(func(txn *badger.Txn) error {
		_, r, err := resolve(txn, export, p, follow)
		if err != nil {
			return err
		}
		attr = r.attr(v.dev(export))
		return nil
	})
	return attr, err
}

func (c *conn) OpenDir(ctx context.Context, p string) (virtfs.DirStream, error) {
	v, export, err := c.mounted("opendir", p)
	if err != nil {
		return nil, err
	}

	var entries []*virtfs.RawDirent
	err = v.db.View(func(txn *badger.Txn) error {
		dir, r, err := resolve(txn, export, p, true)
		if err != nil {
			return err
		}
		if !r.isDir() {
			return backend.PathError("opendir", p, syscall.ENOTDIR)
		}

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = keyChildPrefix(export, dir)

		it := txn.NewIterator(opts)
		defer it.Close()

		dev := v.dev(export)
		for it.Rewind(); it.Valid(); it.Next() {
			if len(entries)%100 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}

			name := string(it.Item().Key()[len(opts.Prefix):])
			child, err := getRecord(txn, export, path.Join(dir, name))
			if err != nil {
				return err
			}
			entries = append(entries, child.dirent(name, dev))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return backend.NewSnapshotStream(entries), nil
}

func (c *conn) Open(ctx context.Context, p string, flags int, perm uint32) (virtfs.FileObject, error) {
	v, export, err := c.mounted("open", p)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var resolved string
	err = v.update(func(txn *badger.Txn) error {
		var r *record
		var err error
		resolved, r, err = resolve(txn, export, p, true)
		switch {
		case err == nil && flags&os.O_CREATE != 0 && flags&os.O_EXCL != 0:
			return backend.PathError("open", p, syscall.EEXIST)
		case err == nil:
		case virtfs.Errno(err) == syscall.ENOENT && flags&os.O_CREATE != 0:
			resolved, r, err = create(txn, export, p, virtfs.ModeRegular|perm&0o7777, c.uid, c.gid)
			if err != nil {
				return err
			}
		default:
			return err
		}

		if r.isDir() {
			return backend.PathError("open", p, syscall.EISDIR)
		}
		if !r.isRegular() {
			return backend.PathError("open", p, syscall.ENXIO)
		}

		writable := flags&(os.O_WRONLY|os.O_RDWR) != 0
		if flags&os.O_TRUNC != 0 && writable && r.Size > 0 {
			r.Size = 0
			r.touch()
			if err := txn.Set(keyData(export, resolved), nil); err != nil {
				return backend.IOError("open", p, err)
			}
			return putRecord(txn, export, resolved, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &fileObject{volume: v, export: export, path: resolved}, nil
}

// create makes a new entry at p, resolving links in the parent path.
func create(txn *badger.Txn, export, p string, mode, uid, gid uint32) (string, *record, error) {
	clean := backend.CleanPath(p)
	if clean == "/" {
		return "", nil, backend.PathError("open", p, syscall.EEXIST)
	}

	dir, parent, err := resolve(txn, export, path.Dir(clean), true)
	if err != nil {
		return "", nil, err
	}
	if !parent.isDir() {
		return "", nil, backend.PathError("open", p, syscall.ENOTDIR)
	}

	resolved := path.Join(dir, path.Base(clean))
	r := newRecord(mode, uid, gid)
	if err := link(txn, export, resolved, r); err != nil {
		return "", nil, err
	}
	return resolved, r, nil
}

// fileObject addresses its file by link-free path. Content lives in a
// single value, so writes rewrite the whole file.
type fileObject struct {
	volume *Volume
	export string
	path   string

	mu     sync.Mutex
	closed bool
}

func (f *fileObject) check(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return backend.PathError(op, f.path, syscall.EBADF)
	}
	return nil
}

func (f *fileObject) load(txn *badger.Txn, op string) (*record, []byte, error) {
	r, err := getRecord(txn, f.export, f.path)
	if virtfs.Errno(err) == syscall.ENOENT {
		return nil, nil, backend.PathError(op, f.path, syscall.ESTALE)
	}
	if err != nil {
		return nil, nil, err
	}

	item, err := txn.Get(keyData(f.export, f.path))
	if err != nil {
		return nil, nil, backend.IOError(op, f.path, err)
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return nil, nil, backend.IOError(op, f.path, err)
	}
	return r, data, nil
}

func (f *fileObject) store(txn *badger.Txn, op string, r *record, data []byte) error {
	r.Size = uint64(len(data))
	r.touch()
	if err := txn.Set(keyData(f.export, f.path), data); err != nil {
		return backend.IOError(op, f.path, err)
	}
	return putRecord(txn, f.export, f.path, r)
}

func (f *fileObject) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := f.check("read"); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, backend.PathError("read", f.path, syscall.EINVAL)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var n int
	err := f.volume.db.View(func(txn *badger.Txn) error {
		_, data, err := f.load(txn, "read")
		if err != nil {
			return err
		}
		if off >= int64(len(data)) {
			return io.EOF
		}
		n = copy(p, data[off:])
		return nil
	})
	if err != nil {
		return 0, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *fileObject) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := f.check("write"); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, backend.PathError("write", f.path, syscall.EINVAL)
	}
	if err := backend.CheckExtent("write", f.path, off, int64(len(p)), backend.MaxFileSize); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	err := f.volume.update(func(txn *badger.Txn) error {
		r, data, err := f.load(txn, "write")
		if err != nil {
			return err
		}
		if end := off + int64(len(p)); end > int64(len(data)) {
			grown := make([]byte, end)
			copy(grown, data)
			data = grown
		}
		copy(data[off:], p)
		return f.store(txn, "write", r, data)
	})
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (f *fileObject) Truncate(ctx context.Context, size int64) error {
	if err := f.check("truncate"); err != nil {
		return err
	}
	if size < 0 {
		return backend.PathError("truncate", f.path, syscall.EINVAL)
	}
	if err := backend.CheckExtent("truncate", f.path, size, 0, backend.MaxFileSize); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return f.volume.update(func(txn *badger.Txn) error {
		r, data, err := f.load(txn, "truncate")
		if err != nil {
			return err
		}
		if size <= int64(len(data)) {
			data = data[:size]
		} else {
			grown := make([]byte, size)
			copy(grown, data)
			data = grown
		}
		return f.store(txn, "truncate", r, data)
	})
}

func (f *fileObject) Stat(_ context.Context) (*virtfs.RawAttr, error) {
	if err := f.check("fstat"); err != nil {
		return nil, err
	}

	var attr *virtfs.RawAttr
	err := f.volume.db.View(func(txn *badger.Txn) error {
		r, err := getRecord(txn, f.export, f.path)
		if virtfs.Errno(err) == syscall.ENOENT {
			return backend.PathError("fstat", f.path, syscall.ESTALE)
		}
		if err != nil {
			return err
		}
		attr = r.attr(f.volume.dev(f.export))
		return nil
	})
	return attr, err
}

func (f *fileObject) Sync(_ context.Context) error {
	if err := f.check("sync"); err != nil {
		return err
	}
	if f.volume.db.Opts().InMemory {
		return nil
	}
	if err := f.volume.db.Sync(); err != nil {
		return backend.IOError("sync", f.path, err)
	}
	return nil
}

func (f *fileObject) Close(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return backend.PathError("close", f.path, syscall.EBADF)
	}
	f.closed = true
	return nil
}
