// Package virtfstest provides a resource-counting backend for testing code
// built on virtfs.
//
// The Backend records every connection, directory stream and file object it
// hands out, so tests can assert that nothing leaks and nothing is released
// twice, and it can be told to fail at any acquisition site:
//
//	b := virtfstest.New()
//	b.AddDir("/", virtfstest.Entry("a", 0o100644, 3))
//	b.Fail(virtfstest.SiteOpenDir, syscall.ENOMEM)
//
//	fsys, err := virtfs.New("test://host/export", virtfs.WithRegistry(b.Registry()))
//	...
//	require.Zero(t, b.Counts().LiveConns)
package virtfstest

import (
	"context"
	"io"
	"io/fs"
	"os"
	"sort"
	"sync"
	"syscall"

	"github.com/marmos91/virtfs/pkg/virtfs"
)

// Scheme is the URL scheme Registry binds the backend to.
const Scheme = "test"

// Site names a point where the backend can be told to fail.
type Site string

const (
	SiteNewConn  Site = "newconn"
	SiteValidate Site = "validate"
	SiteMount    Site = "mount"
	SiteUnmount  Site = "unmount"
	SiteDestroy  Site = "destroy"
	SiteStat     Site = "stat"
	SiteLstat    Site = "lstat"
	SiteOpenDir  Site = "opendir"
	SiteReadDir  Site = "readdir"
	SiteCloseDir Site = "closedir"
	SiteOpen     Site = "open"
	SiteRead     Site = "read"
	SiteWrite    Site = "write"
	SiteClose    Site = "close"
)

// Counts is a snapshot of the backend's resource accounting.
type Counts struct {
	ConnsCreated   int
	ConnsDestroyed int
	LiveConns      int

	Mounts   int
	Unmounts int

	StreamsOpened int
	StreamsClosed int
	LiveStreams   int

	FilesOpened int
	FilesClosed int
	LiveFiles   int

	Stats  int
	Lstats int

	// DoubleReleases counts Destroy/Close calls on already released
	// resources.
	DoubleReleases int
}

// Backend is an in-memory, resource-counting virtfs backend.
type Backend struct {
	// NoUnmount makes connections lack the Unmounter capability.
	NoUnmount bool

	mu       sync.Mutex
	attrs    map[string]*virtfs.RawAttr
	links    map[string]*virtfs.RawAttr
	dirs     map[string][]virtfs.RawDirent
	data     map[string][]byte
	failures map[Site]error
	counts   Counts
}

// New creates an empty Backend with a root directory.
func New() *Backend {
	b := &Backend{
		attrs:    make(map[string]*virtfs.RawAttr),
		links:    make(map[string]*virtfs.RawAttr),
		dirs:     make(map[string][]virtfs.RawDirent),
		data:     make(map[string][]byte),
		failures: make(map[Site]error),
	}
	b.attrs["/"] = &virtfs.RawAttr{Ino: 1, Mode: virtfs.ModeDir | 0o755, Nlink: 2}
	return b
}

// Driver returns a virtfs.Driver creating connections to b.
func (b *Backend) Driver() virtfs.Driver {
	return driver{b}
}

// Registry returns a fresh registry with b bound to Scheme.
func (b *Backend) Registry() *virtfs.Registry {
	reg := virtfs.NewRegistry()
	_ = reg.Register(Scheme, b.Driver())
	return reg
}

// Fail makes every call at site fail with errno until Clear is called.
func (b *Backend) Fail(site Site, errno syscall.Errno) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[site] = errno
}

// Clear removes all injected failures.
func (b *Backend) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = make(map[Site]error)
}

// Counts returns a snapshot of the resource accounting.
func (b *Backend) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// SetAttr sets the attributes returned by Stat for path.
func (b *Backend) SetAttr(path string, attr virtfs.RawAttr) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a := attr
	b.attrs[path] = &a
}

// SetLinkAttr sets the attributes returned by Lstat for path, making it
// behave as a symbolic link whose target has the Stat attributes.
func (b *Backend) SetLinkAttr(path string, attr virtfs.RawAttr) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a := attr
	b.links[path] = &a
}

// AddDir registers a directory at path listing entries, in order.
func (b *Backend) AddDir(path string, entries ...virtfs.RawDirent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dirs[path] = append([]virtfs.RawDirent(nil), entries...)
	if _, ok := b.attrs[path]; !ok {
		b.attrs[path] = &virtfs.RawAttr{Mode: virtfs.ModeDir | 0o755, Nlink: 2}
	}
}

// SetData stores the contents of a regular file at path.
func (b *Backend) SetData(path string, data []byte, mode uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[path] = append([]byte(nil), data...)
	b.attrs[path] = &virtfs.RawAttr{Mode: virtfs.ModeRegular | mode, Nlink: 1, Size: uint64(len(data))}
}

// Data returns a copy of the contents of the file at path.
func (b *Backend) Data(path string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.data[path]
	return append([]byte(nil), d...), ok
}

// Entry builds a directory record with the given name, mode and inode.
func Entry(name string, mode, ino uint64) virtfs.RawDirent {
	return virtfs.RawDirent{Name: name, Mode: mode, Ino: ino, Nlink: 1}
}

// Paths returns every path with attributes, sorted.
func (b *Backend) Paths() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.attrs))
	for p := range b.attrs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// failure must be called with b.mu held.
func (b *Backend) failure(site Site, path string) error {
	if err, ok := b.failures[site]; ok {
		return &fs.PathError{Op: string(site), Path: path, Err: err}
	}
	return nil
}

type driver struct {
	b *Backend
}

func (d driver) NewConn(u *virtfs.URL) (virtfs.Conn, error) {
	b := d.b
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.failure(SiteNewConn, u.String()); err != nil {
		return nil, err
	}

	b.counts.ConnsCreated++
	b.counts.LiveConns++

	c := &conn{b: b}
	if b.NoUnmount {
		return c, nil
	}
	return &unmountableConn{conn: c}, nil
}

type conn struct {
	b         *Backend
	mounted   bool
	destroyed bool
}

func (c *conn) ValidateURL(u *virtfs.URL) error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	return c.b.failure(SiteValidate, u.String())
}

func (c *conn) Mount(_ context.Context, authority, export string) error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	if err := c.b.failure(SiteMount, export); err != nil {
		return err
	}
	c.b.counts.Mounts++
	c.mounted = true
	return nil
}

func (c *conn) Stat(_ context.Context, path string) (*virtfs.RawAttr, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	c.b.counts.Stats++
	if err := c.b.failure(SiteStat, path); err != nil {
		return nil, err
	}
	a, ok := c.b.attrs[path]
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: path, Err: syscall.ENOENT}
	}
	cp := *a
	return &cp, nil
}

func (c *conn) Lstat(_ context.Context, path string) (*virtfs.RawAttr, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	c.b.counts.Lstats++
	if err := c.b.failure(SiteLstat, path); err != nil {
		return nil, err
	}
	a, ok := c.b.links[path]
	if !ok {
		a, ok = c.b.attrs[path]
	}
	if !ok {
		return nil, &fs.PathError{Op: "lstat", Path: path, Err: syscall.ENOENT}
	}
	cp := *a
	return &cp, nil
}

func (c *conn) OpenDir(_ context.Context, path string) (virtfs.DirStream, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	if err := c.b.failure(SiteOpenDir, path); err != nil {
		return nil, err
	}
	entries, ok := c.b.dirs[path]
	if !ok {
		if _, exists := c.b.attrs[path]; exists {
			return nil, &fs.PathError{Op: "opendir", Path: path, Err: syscall.ENOTDIR}
		}
		return nil, &fs.PathError{Op: "opendir", Path: path, Err: syscall.ENOENT}
	}

	c.b.counts.StreamsOpened++
	c.b.counts.LiveStreams++
	return &stream{b: c.b, path: path, entries: append([]virtfs.RawDirent(nil), entries...)}, nil
}

func (c *conn) Open(_ context.Context, path string, flags int, perm uint32) (virtfs.FileObject, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	if err := c.b.failure(SiteOpen, path); err != nil {
		return nil, err
	}

	_, exists := c.b.data[path]
	switch {
	case !exists && flags&os.O_CREATE == 0:
		if _, ok := c.b.attrs[path]; ok {
			return nil, &fs.PathError{Op: "open", Path: path, Err: syscall.EISDIR}
		}
		return nil, &fs.PathError{Op: "open", Path: path, Err: syscall.ENOENT}
	case exists && flags&os.O_CREATE != 0 && flags&os.O_EXCL != 0:
		return nil, &fs.PathError{Op: "open", Path: path, Err: syscall.EEXIST}
	case !exists:
		c.b.data[path] = nil
		c.b.attrs[path] = &virtfs.RawAttr{Mode: virtfs.ModeRegular | uint64(perm&0o7777), Nlink: 1}
	}
	if flags&os.O_TRUNC != 0 {
		c.b.data[path] = nil
		c.b.attrs[path].Size = 0
	}

	c.b.counts.FilesOpened++
	c.b.counts.LiveFiles++
	return &file{b: c.b, path: path}, nil
}

func (c *conn) Destroy() error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	if c.destroyed {
		c.b.counts.DoubleReleases++
		return &fs.PathError{Op: "destroy", Path: "", Err: syscall.EBADF}
	}
	c.destroyed = true
	c.b.counts.ConnsDestroyed++
	c.b.counts.LiveConns--

	return c.b.failure(SiteDestroy, "")
}

type unmountableConn struct {
	*conn
}

func (c *unmountableConn) Unmount(_ context.Context) error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	c.b.counts.Unmounts++
	c.mounted = false
	return c.b.failure(SiteUnmount, "")
}

type stream struct {
	b       *Backend
	path    string
	entries []virtfs.RawDirent
	pos     int
	closed  bool
}

func (s *stream) Next(_ context.Context) (*virtfs.RawDirent, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	if err := s.b.failure(SiteReadDir, s.path); err != nil {
		return nil, err
	}
	if s.pos >= len(s.entries) {
		return nil, io.EOF
	}
	e := s.entries[s.pos]
	s.pos++
	return &e, nil
}

func (s *stream) Close() error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	if s.closed {
		s.b.counts.DoubleReleases++
		return &fs.PathError{Op: "closedir", Path: s.path, Err: syscall.EBADF}
	}
	s.closed = true
	s.b.counts.StreamsClosed++
	s.b.counts.LiveStreams--
	return s.b.failure(SiteCloseDir, s.path)
}

type file struct {
	b      *Backend
	path   string
	closed bool
}

func (f *file) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()

	if err := f.b.failure(SiteRead, f.path); err != nil {
		return 0, err
	}
	data := f.b.data[f.path]
	if off >= int64(len(data)) {
		return 0, io.EOF
	}
	n := copy(p, data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *file) WriteAt(_ context.Context, p []byte, off int64) (int, error) {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()

	if err := f.b.failure(SiteWrite, f.path); err != nil {
		return 0, err
	}
	data := f.b.data[f.path]
	if end := off + int64(len(p)); end > int64(len(data)) {
		grown := make([]byte, end)
		copy(grown, data)
		data = grown
	}
	copy(data[off:], p)
	f.b.data[f.path] = data
	f.b.attrs[f.path].Size = uint64(len(data))
	return len(p), nil
}

func (f *file) Truncate(_ context.Context, size int64) error {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()

	data := f.b.data[f.path]
	if size <= int64(len(data)) {
		data = data[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, data)
		data = grown
	}
	f.b.data[f.path] = data
	f.b.attrs[f.path].Size = uint64(size)
	return nil
}

func (f *file) Stat(_ context.Context) (*virtfs.RawAttr, error) {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	cp := *f.b.attrs[f.path]
	return &cp, nil
}

func (f *file) Sync(_ context.Context) error {
	return nil
}

func (f *file) Close(_ context.Context) error {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()

	if f.closed {
		f.b.counts.DoubleReleases++
		return &fs.PathError{Op: "close", Path: f.path, Err: syscall.EBADF}
	}
	f.closed = true
	f.b.counts.FilesClosed++
	f.b.counts.LiveFiles--
	return f.b.failure(SiteClose, f.path)
}
