// Package virtfs provides POSIX-like access to remote volumes through
// opaque, handle-based APIs.
//
// A filesystem handle is created from a URL of the form
//
//	scheme://authority/export-path[/file]
//
// The scheme selects a backend Driver from a Registry. The handle owns the
// backend connection and the parsed URL; directory and file handles opened
// from it borrow the connection and own only their stream or file object.
//
// Lifecycle:
//
//	fsys, err := virtfs.New("mem://server/export")
//	err = fsys.Connect(ctx)
//	st, err := fsys.Stat(ctx, "/dir/file")
//	dir, err := fsys.OpenDir(ctx, "/dir")
//	...
//	dir.Close()
//	fsys.Disconnect(ctx)
//
// Teardown order is always: close open directory and file handles, then
// disconnect the filesystem handle. Handles are not safe for concurrent use.
package virtfs

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/marmos91/virtfs/pkg/logger"
)

// FS is a filesystem handle bound to one remote volume.
type FS struct {
	conn      Conn
	url       *URL
	scheme    string
	mounted   bool
	closed    bool
	threshold logger.Level
	log       *logger.Logger
	recorder  Recorder
}

var errUnknownScheme = errors.New("no driver registered for scheme")

// New parses rawURL and allocates an unmounted filesystem handle.
//
// The whole URL path is the export path. On any failure, a connection
// allocated by the driver is destroyed before returning, so no partially
// constructed handle escapes.
//
// Returns:
//   - *FS: unmounted handle
//   - error: *Error of KindParse (malformed URL, unknown scheme, rejected by
//     the backend), KindAllocation, or KindConnect
func New(rawURL string, opts ...Option) (*FS, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	u, err := ParseURL(rawURL, ParseDir)
	if err != nil {
		return nil, err
	}
	return newFS(u, o)
}

// NewFile is like New but treats the last path segment of rawURL as the
// file component, which becomes the default target of Stat and Lstat.
func NewFile(rawURL string, opts ...Option) (*FS, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	u, err := ParseURL(rawURL, ParseFull)
	if err != nil {
		return nil, err
	}
	return newFS(u, o)
}

func newFS(u *URL, o *options) (*FS, error) {
	d, ok := o.registry.Lookup(u.Scheme)
	if !ok {
		return nil, newError(KindParse, "new", u.String(), fmt.Errorf("%w: %s", errUnknownScheme, u.Scheme))
	}

	f := &FS{
		url:       u,
		scheme:    u.Scheme,
		threshold: o.threshold,
		log:       o.log,
		recorder:  o.recorder,
	}

	conn, err := d.NewConn(u)
	if err != nil || conn == nil {
		if err == nil {
			err = pathErr("newconn", u.String(), syscall.ENOMEM)
		}
		e := backendError("new", u.String(), err)
		if e.Kind != KindAllocation {
			e.Kind = KindConnect
		}
		f.logError(e)
		return nil, e
	}

	if v, ok := conn.(URLValidator); ok {
		if err := v.ValidateURL(u); err != nil {
			if derr := conn.Destroy(); derr != nil {
				f.logf(logger.LevelWarning, "destroy after rejected url %s: %v", u, derr)
			}
			return nil, newError(KindParse, "new", u.String(), err)
		}
	}

	f.conn = conn
	f.logf(logger.LevelDebug, "created handle for %s", u)
	return f, nil
}

// Connect mounts the handle's export.
//
// Connecting an already mounted handle fails with ErrAlreadyMounted without
// calling the backend again.
func (f *FS) Connect(ctx context.Context) (err error) {
	if err := f.live("connect"); err != nil {
		return err
	}
	if f.mounted {
		return stateError("connect", f.url.String(), ErrAlreadyMounted)
	}

	defer f.observe("connect", time.Now(), &err)

	if merr := f.conn.Mount(ctx, f.url.Authority, f.url.Export); merr != nil {
		e := newError(KindConnect, "connect", f.url.String(), merr)
		f.logf(logger.LevelErr, "%v", e)
		return e
	}

	f.mounted = true
	f.logf(logger.LevelInfo, "mounted %s", f.url)
	return nil
}

// Disconnect unmounts the export (when mounted and supported by the backend)
// and releases the connection and URL.
//
// Release happens exactly once and is not blocked by unmount failures; the
// first error encountered is returned. Disconnecting a never-mounted handle
// skips the unmount step. A second call returns ErrClosed and releases
// nothing.
func (f *FS) Disconnect(ctx context.Context) (err error) {
	if f == nil {
		return stateError("disconnect", "", ErrNilHandle)
	}
	if f.closed {
		return stateError("disconnect", "", ErrClosed)
	}

	defer f.observe("disconnect", time.Now(), &err)

	target := f.url.String()
	f.closed = true

	var first error
	if f.mounted {
		if um, ok := f.conn.(Unmounter); ok {
			if uerr := um.Unmount(ctx); uerr != nil {
				first = backendError("unmount", target, uerr)
				f.logf(logger.LevelWarning, "%v", first)
			}
		} else {
			f.logf(logger.LevelDebug, "backend %s has no unmount, destroying connection", f.scheme)
		}
		f.mounted = false
	}

	if derr := f.conn.Destroy(); derr != nil && first == nil {
		first = backendError("destroy", target, derr)
	}

	f.conn = nil
	f.url = nil

	f.logf(logger.LevelInfo, "disconnected %s", target)
	return first
}

// Close is Disconnect with a background context.
func (f *FS) Close() error {
	return f.Disconnect(context.Background())
}

// Mounted reports whether the handle is mounted.
func (f *FS) Mounted() bool {
	return f != nil && f.mounted
}

// URL returns a copy of the parsed URL. The zero URL is returned for a nil
// or closed handle.
func (f *FS) URL() URL {
	if f == nil || f.url == nil {
		return URL{}
	}
	return f.url.clone()
}

// SetLogLevel changes the handle's log-level threshold.
func (f *FS) SetLogLevel(level logger.Level) {
	if f != nil {
		f.threshold = level
	}
}

// Stat returns the attributes of path, following symbolic links.
//
// An empty path selects the URL's file component, or "/" without one.
func (f *FS) Stat(ctx context.Context, path string) (*Stat, error) {
	return f.stat(ctx, "stat", path, Conn.Stat)
}

// Lstat is like Stat but does not follow a final symbolic link.
func (f *FS) Lstat(ctx context.Context, path string) (*Stat, error) {
	return f.stat(ctx, "lstat", path, Conn.Lstat)
}

func (f *FS) stat(ctx context.Context, op, path string, primitive func(Conn, context.Context, string) (*RawAttr, error)) (st *Stat, err error) {
	if err := f.live(op); err != nil {
		return nil, err
	}

	defer f.observe(op, time.Now(), &err)

	target := f.resolvePath(path)
	raw, rerr := primitive(f.conn, ctx, target)
	if rerr != nil {
		e := backendError(op, target, rerr)
		f.logError(e)
		return nil, e
	}

	return StatFromRaw(raw), nil
}

// DumpInfo writes the handle's state through its logger: URL components,
// mount state and log threshold at Info, backend details at Debug when
// verbose > 0. It never mutates the handle.
func (f *FS) DumpInfo(verbose int) error {
	if f == nil {
		return stateError("dump", "", ErrNilHandle)
	}
	if f.url == nil {
		f.logf(logger.LevelInfo, "handle: closed")
		return nil
	}

	f.logf(logger.LevelInfo, "url: %s", f.url)
	f.logf(logger.LevelInfo, "  scheme: %s", f.url.Scheme)
	f.logf(logger.LevelInfo, "  authority: %s", f.url.Authority)
	f.logf(logger.LevelInfo, "  export: %s", f.url.Export)
	if f.url.File != "" {
		f.logf(logger.LevelInfo, "  file: %s", f.url.File)
	}
	f.logf(logger.LevelInfo, "mounted: %t", f.mounted)
	f.logf(logger.LevelInfo, "log level: %s", f.threshold)

	if verbose > 0 {
		if p, ok := f.CanonicalPath(); ok {
			f.logf(logger.LevelDebug, "canonical path: %s", p)
		}
		f.logf(logger.LevelDebug, "backend: %T", f.conn)
		for k, v := range f.url.Query {
			f.logf(logger.LevelDebug, "  option %s=%v", k, v)
		}
	}
	return nil
}

// live checks the handle can still reach its connection.
func (f *FS) live(op string) error {
	if f == nil {
		return stateError(op, "", ErrNilHandle)
	}
	if f.closed || f.conn == nil {
		return stateError(op, "", ErrClosed)
	}
	return nil
}

func (f *FS) logf(level logger.Level, format string, v ...any) {
	if level > f.threshold {
		return
	}
	f.log.Logf(level, format, v...)
}

// logError logs allocation failures at error severity; other failures are
// left to the caller and only traced.
func (f *FS) logError(e *Error) {
	if e.Kind == KindAllocation {
		f.logf(logger.LevelErr, "%v", e)
		return
	}
	f.logf(logger.LevelDebug, "%v", e)
}

func (f *FS) observe(op string, start time.Time, err *error) {
	if f.recorder == nil {
		return
	}
	f.recorder.RecordOperation(op, f.scheme, time.Since(start), *err)
}
