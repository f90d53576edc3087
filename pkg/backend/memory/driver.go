package memory

import (
	"context"
	"io"
	"os"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/marmos91/virtfs/pkg/backend"
	"github.com/marmos91/virtfs/pkg/virtfs"
)

// Scheme is the URL scheme served by the memory driver.
const Scheme = "mem"

// Driver creates connections to a Server.
type Driver struct {
	srv *Server
}

// NewDriver returns a driver serving srv.
func NewDriver(srv *Server) *Driver {
	return &Driver{srv: srv}
}

// Register binds a driver for srv to Scheme in reg.
func Register(reg *virtfs.Registry, srv *Server) error {
	return reg.Register(Scheme, NewDriver(srv))
}

// NewConn implements virtfs.Driver.
//
// Supported query options:
//   - uid, gid: owner assigned to files created through the connection
func (d *Driver) NewConn(u *virtfs.URL) (virtfs.Conn, error) {
	uid, gid, err := backend.OwnerOptions(u.Query)
	if err != nil {
		return nil, err
	}
	return &conn{srv: d.srv, uid: uid, gid: gid}, nil
}

type conn struct {
	srv *Server
	uid uint32
	gid uint32

	mu        sync.Mutex
	export    *Export
	destroyed bool
}

// ValidateURL rejects unknown query options.
func (c *conn) ValidateURL(u *virtfs.URL) error {
	return backend.CheckOptions(u.Query, "uid", "gid")
}

func (c *conn) Mount(_ context.Context, authority, export string) error {
	e, err := c.srv.export(authority, export)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return backend.PathError("mount", export, syscall.EBADF)
	}
	c.export = e
	return nil
}

func (c *conn) Unmount(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.export == nil {
		return backend.PathError("unmount", "", syscall.EINVAL)
	}
	c.export = nil
	return nil
}

func (c *conn) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return backend.PathError("destroy", "", syscall.EBADF)
	}
	c.destroyed = true
	c.export = nil
	return nil
}

func (c *conn) mounted(op, p string) (*Export, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.export == nil {
		return nil, backend.PathError(op, p, syscall.ENOTCONN)
	}
	return c.export, nil
}

func (c *conn) Stat(_ context.Context, p string) (*virtfs.RawAttr, error) {
	return c.stat("stat", p, true)
}

func (c *conn) Lstat(_ context.Context, p string) (*virtfs.RawAttr, error) {
	return c.stat("lstat", p, false)
}

func (c *conn) stat(op, p string, follow bool) (*virtfs.RawAttr, error) {
	e, err := c.mounted(op, p)
	if err != nil {
		return nil, err
	}

	e.srv.mu.RLock()
	defer e.srv.mu.RUnlock()

	n, err := e.lookup(p, follow)
	if err != nil {
		return nil, err
	}
	return n.attr(e.dev), nil
}

func (c *conn) OpenDir(_ context.Context, p string) (virtfs.DirStream, error) {
	e, err := c.mounted("opendir", p)
	if err != nil {
		return nil, err
	}

	e.srv.mu.Lock()
	defer e.srv.mu.Unlock()

	n, err := e.lookup(p, true)
	if err != nil {
		return nil, err
	}
	if !n.isDir() {
		return nil, backend.PathError("opendir", p, syscall.ENOTDIR)
	}

	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]*virtfs.RawDirent, 0, len(names))
	for _, name := range names {
		entries = append(entries, n.children[name].dirent(name, e.dev))
	}
	n.atime = time.Now()

	return backend.NewSnapshotStream(entries), nil
}

func (c *conn) Open(_ context.Context, p string, flags int, perm uint32) (virtfs.FileObject, error) {
	e, err := c.mounted("open", p)
	if err != nil {
		return nil, err
	}

	e.srv.mu.Lock()
	defer e.srv.mu.Unlock()

	n, err := e.lookup(p, true)
	switch {
	case err == nil && flags&os.O_CREATE != 0 && flags&os.O_EXCL != 0:
		return nil, backend.PathError("open", p, syscall.EEXIST)
	case err == nil:
	case virtfs.Errno(err) == syscall.ENOENT && flags&os.O_CREATE != 0:
		parent, name, perr := e.lookupParent(p)
		if perr != nil {
			return nil, perr
		}
		n = newNode(virtfs.ModeRegular|perm&0o7777, c.uid, c.gid)
		if lerr := parent.link(name, n, false); lerr != nil {
			return nil, lerr
		}
	default:
		return nil, err
	}

	if n.isDir() {
		return nil, backend.PathError("open", p, syscall.EISDIR)
	}
	if !n.isRegular() {
		return nil, backend.PathError("open", p, syscall.ENXIO)
	}

	writable := flags&(os.O_WRONLY|os.O_RDWR) != 0
	if flags&os.O_TRUNC != 0 && writable {
		n.data = nil
		n.mtime = time.Now()
		n.ctime = n.mtime
	}

	return &fileObject{export: e, node: n, path: p}, nil
}

type fileObject struct {
	export *Export
	node   *node
	path   string
	closed bool
}

func (f *fileObject) check(op string) error {
	if f.closed {
		return backend.PathError(op, f.path, syscall.EBADF)
	}
	return nil
}

func (f *fileObject) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	f.export.srv.mu.Lock()
	defer f.export.srv.mu.Unlock()

	if err := f.check("read"); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, backend.PathError("read", f.path, syscall.EINVAL)
	}

	f.node.atime = time.Now()
	data := f.node.data
	if off >= int64(len(data)) {
		return 0, io.EOF
	}
	n := copy(p, data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *fileObject) WriteAt(_ context.Context, p []byte, off int64) (int, error) {
	f.export.srv.mu.Lock()
	defer f.export.srv.mu.Unlock()

	if err := f.check("write"); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, backend.PathError("write", f.path, syscall.EINVAL)
	}

	if err := backend.CheckExtent("write", f.path, off, int64(len(p)), backend.MaxFileSize); err != nil {
		return 0, err
	}

	end := off + int64(len(p))
	if end > int64(len(f.node.data)) {
		grown := make([]byte, end)
		copy(grown, f.node.data)
		f.node.data = grown
	}
	copy(f.node.data[off:], p)

	f.node.mtime = time.Now()
	f.node.ctime = f.node.mtime
	return len(p), nil
}

func (f *fileObject) Truncate(_ context.Context, size int64) error {
	f.export.srv.mu.Lock()
	defer f.export.srv.mu.Unlock()

	if err := f.check("truncate"); err != nil {
		return err
	}
	if size < 0 {
		return backend.PathError("truncate", f.path, syscall.EINVAL)
	}
	if err := backend.CheckExtent("truncate", f.path, size, 0, backend.MaxFileSize); err != nil {
		return err
	}

	if size <= int64(len(f.node.data)) {
		f.node.data = f.node.data[:size:size]
	} else {
		grown := make([]byte, size)
		copy(grown, f.node.data)
		f.node.data = grown
	}

	f.node.mtime = time.Now()
	f.node.ctime = f.node.mtime
	return nil
}

func (f *fileObject) Stat(_ context.Context) (*virtfs.RawAttr, error) {
	f.export.srv.mu.RLock()
	defer f.export.srv.mu.RUnlock()

	if err := f.check("fstat"); err != nil {
		return nil, err
	}
	return f.node.attr(f.export.dev), nil
}

func (f *fileObject) Sync(_ context.Context) error {
	f.export.srv.mu.RLock()
	defer f.export.srv.mu.RUnlock()
	return f.check("sync")
}

func (f *fileObject) Close(_ context.Context) error {
	f.export.srv.mu.Lock()
	defer f.export.srv.mu.Unlock()

	if err := f.check("close"); err != nil {
		return err
	}
	f.closed = true
	return nil
}
