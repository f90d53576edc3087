package virtfs

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/marmos91/virtfs/pkg/logger"
)

// Dir is an open directory stream.
//
// A Dir borrows its FS's connection: it stops working once the FS is
// disconnected, and must be closed before that.
type Dir struct {
	fs       *FS
	stream   DirStream
	path     string
	eof      bool
	released bool
}

var errNoStream = errors.New("directory stream not open")

// OpenDir opens the directory at path.
//
// On backend failure nothing is retained and the error is returned as a
// backend (or allocation) error.
func (f *FS) OpenDir(ctx context.Context, path string) (d *Dir, err error) {
	if err := f.live("opendir"); err != nil {
		return nil, err
	}

	defer f.observe("opendir", time.Now(), &err)

	target := f.resolvePath(path)
	stream, serr := f.conn.OpenDir(ctx, target)
	if serr != nil {
		e := backendError("opendir", target, serr)
		f.logError(e)
		return nil, e
	}
	if stream == nil {
		e := newError(KindAllocation, "opendir", target, errNoStream)
		f.logError(e)
		return nil, e
	}

	return &Dir{fs: f, stream: stream, path: target}, nil
}

// Path returns the path the directory was opened at.
func (d *Dir) Path() string {
	return d.path
}

// ReadDirPlus returns the next entry together with its full attributes.
//
// At the end of the stream it returns io.EOF, and keeps returning io.EOF on
// further calls. Every call returns fresh records that remain valid after
// later calls.
func (d *Dir) ReadDirPlus(ctx context.Context) (*Dirent, *Stat, error) {
	if err := d.usable("readdir"); err != nil {
		return nil, nil, err
	}
	if d.eof {
		return nil, nil, io.EOF
	}

	start := time.Now()
	raw, err := d.stream.Next(ctx)
	if errors.Is(err, io.EOF) || (err == nil && raw == nil) {
		d.eof = true
		return nil, nil, io.EOF
	}
	if err != nil {
		e := backendError("readdir", d.path, err)
		d.fs.logError(e)
		d.fs.observe("readdir", start, errPtr(e))
		return nil, nil, e
	}

	ent, st := DirentFromRaw(raw)
	d.fs.observe("readdir", start, errPtr(nil))
	return ent, st, nil
}

// Close releases the directory stream.
//
// The handle is marked released even when Close reports an error: a missing
// connection (the FS was disconnected first) or stream is a state error, and
// the stream is never closed twice.
func (d *Dir) Close() error {
	if d == nil {
		return stateError("closedir", "", ErrNilHandle)
	}
	if d.released {
		return stateError("closedir", d.path, ErrClosed)
	}
	d.released = true

	stream := d.stream
	d.stream = nil

	if d.fs == nil || d.fs.conn == nil {
		return stateError("closedir", d.path, ErrConnReleased)
	}
	if stream == nil {
		return stateError("closedir", d.path, errNoStream)
	}

	if err := stream.Close(); err != nil {
		e := backendError("closedir", d.path, err)
		d.fs.logf(logger.LevelWarning, "%v", e)
		return e
	}
	return nil
}

func (d *Dir) usable(op string) error {
	if d == nil {
		return stateError(op, "", ErrNilHandle)
	}
	if d.released || d.stream == nil {
		return stateError(op, d.path, ErrClosed)
	}
	if d.fs == nil || d.fs.conn == nil {
		return stateError(op, d.path, ErrConnReleased)
	}
	return nil
}

func errPtr(e *Error) *error {
	var err error
	if e != nil {
		err = e
	}
	return &err
}
