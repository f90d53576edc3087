package virtfs

import (
	"context"
	"errors"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/marmos91/virtfs/pkg/logger"
)

// File is an open file: either a remote file object borrowed from an FS,
// or a wrapped local OS file (see FileFromFd).
//
// File implements io.ReadWriteSeeker and io.Closer. The plain methods use a
// background context; the *Context variants forward ctx to the backend.
type File struct {
	fs     *FS
	ownsFS bool
	obj    FileObject
	local  *os.File
	osfd   int
	path   string
	flags  int
	offset int64
	fd     int
	closed bool
}

var (
	_ io.ReadWriteSeeker = (*File)(nil)
	_ io.Closer          = (*File)(nil)
)

// Open opens the file at path with os.O_* flags. perm applies when
// O_CREATE creates the file.
func (f *FS) Open(ctx context.Context, path string, flags int, perm os.FileMode) (file *File, err error) {
	if err := f.live("open"); err != nil {
		return nil, err
	}

	defer f.observe("open", time.Now(), &err)

	target := f.resolvePath(path)
	obj, oerr := f.conn.Open(ctx, target, flags, PosixMode(perm)&^ModeTypeMask)
	if oerr != nil {
		e := backendError("open", target, oerr)
		f.logError(e)
		return nil, e
	}
	if obj == nil {
		e := newError(KindAllocation, "open", target, pathErr("open", target, syscall.ENOMEM))
		f.logError(e)
		return nil, e
	}

	return &File{fs: f, obj: obj, path: target, flags: flags, fd: -1}, nil
}

// OpenURI opens the file named by a full URL
// (scheme://authority/export/.../file).
//
// The returned File owns a private, connected FS; closing the file
// disconnects it.
func OpenURI(ctx context.Context, uri string, flags int, perm os.FileMode, opts ...Option) (*File, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	u, err := ParseURL(uri, ParseFull)
	if err != nil {
		return nil, err
	}

	fsys, err := newFS(u, o)
	if err != nil {
		return nil, err
	}

	if err := fsys.Connect(ctx); err != nil {
		_ = fsys.Disconnect(ctx)
		return nil, err
	}

	file, err := fsys.Open(ctx, u.FilePath(), flags, perm)
	if err != nil {
		_ = fsys.Disconnect(ctx)
		return nil, err
	}

	file.ownsFS = true
	return file, nil
}

// Name returns the path the file was opened at.
func (fl *File) Name() string {
	return fl.path
}

// FS returns the filesystem handle the file was opened from, or nil for a
// wrapped OS file.
func (fl *File) FS() *FS {
	return fl.fs
}

// Read reads up to len(p) bytes at the current offset.
func (fl *File) Read(p []byte) (int, error) {
	return fl.ReadContext(context.Background(), p)
}

// ReadContext is Read with a context forwarded to the backend.
// At end of file it returns io.EOF unwrapped.
func (fl *File) ReadContext(ctx context.Context, p []byte) (n int, err error) {
	if err := fl.usable("read"); err != nil {
		return 0, err
	}
	if fl.local != nil {
		return fl.local.Read(p)
	}
	if accessMode(fl.flags) == os.O_WRONLY {
		return 0, stateError("read", fl.path, syscall.EBADF)
	}

	start := time.Now()
	n, err = fl.obj.ReadAt(ctx, p, fl.offset)
	fl.offset += int64(n)
	fl.record("read", start, n, err)

	if err != nil && !errors.Is(err, io.EOF) {
		return n, backendError("read", fl.path, err)
	}
	if err != nil {
		return n, io.EOF
	}
	return n, nil
}

// Write writes p at the current offset, or at end of file with O_APPEND.
func (fl *File) Write(p []byte) (int, error) {
	return fl.WriteContext(context.Background(), p)
}

// WriteContext is Write with a context forwarded to the backend.
func (fl *File) WriteContext(ctx context.Context, p []byte) (n int, err error) {
	if err := fl.usable("write"); err != nil {
		return 0, err
	}
	if fl.local != nil {
		return fl.local.Write(p)
	}
	if accessMode(fl.flags) == os.O_RDONLY {
		return 0, stateError("write", fl.path, syscall.EBADF)
	}

	if fl.flags&os.O_APPEND != 0 {
		raw, serr := fl.obj.Stat(ctx)
		if serr != nil {
			return 0, backendError("write", fl.path, serr)
		}
		fl.offset = int64(raw.Size)
	}

	start := time.Now()
	n, err = fl.obj.WriteAt(ctx, p, fl.offset)
	fl.offset += int64(n)
	fl.record("write", start, n, err)

	if err != nil {
		return n, backendError("write", fl.path, err)
	}
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// Seek sets the offset for the next Read or Write.
func (fl *File) Seek(offset int64, whence int) (int64, error) {
	return fl.SeekContext(context.Background(), offset, whence)
}

// SeekContext is Seek with a context forwarded to the backend (io.SeekEnd
// needs the current size).
func (fl *File) SeekContext(ctx context.Context, offset int64, whence int) (int64, error) {
	if err := fl.usable("seek"); err != nil {
		return 0, err
	}
	if fl.local != nil {
		return fl.local.Seek(offset, whence)
	}

	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = fl.offset
	case io.SeekEnd:
		raw, err := fl.obj.Stat(ctx)
		if err != nil {
			return 0, backendError("seek", fl.path, err)
		}
		base = int64(raw.Size)
	default:
		return 0, newError(KindInvalidArgument, "seek", fl.path, syscall.EINVAL)
	}

	pos := base + offset
	if pos < 0 {
		return 0, newError(KindInvalidArgument, "seek", fl.path, syscall.EINVAL)
	}

	fl.offset = pos
	return pos, nil
}

// Truncate changes the size of the file. The offset is left unchanged.
func (fl *File) Truncate(size int64) error {
	return fl.TruncateContext(context.Background(), size)
}

// TruncateContext is Truncate with a context forwarded to the backend.
func (fl *File) TruncateContext(ctx context.Context, size int64) (err error) {
	if err := fl.usable("truncate"); err != nil {
		return err
	}
	if size < 0 {
		return newError(KindInvalidArgument, "truncate", fl.path, syscall.EINVAL)
	}
	if fl.local != nil {
		return fl.local.Truncate(size)
	}
	if accessMode(fl.flags) == os.O_RDONLY {
		return stateError("truncate", fl.path, syscall.EBADF)
	}

	defer fl.fs.observe("truncate", time.Now(), &err)

	if terr := fl.obj.Truncate(ctx, size); terr != nil {
		return backendError("truncate", fl.path, terr)
	}
	return nil
}

// Stat returns the attributes of the open file (fstat).
func (fl *File) Stat() (*Stat, error) {
	return fl.StatContext(context.Background())
}

// StatContext is Stat with a context forwarded to the backend.
func (fl *File) StatContext(ctx context.Context) (*Stat, error) {
	if err := fl.usable("fstat"); err != nil {
		return nil, err
	}
	if fl.local != nil {
		fi, err := fl.local.Stat()
		if err != nil {
			return nil, backendError("fstat", fl.path, err)
		}
		return statFromFileInfo(fi), nil
	}

	raw, err := fl.obj.Stat(ctx)
	if err != nil {
		return nil, backendError("fstat", fl.path, err)
	}
	return StatFromRaw(raw), nil
}

// Sync flushes buffered writes to the backend.
func (fl *File) Sync() error {
	if err := fl.usable("sync"); err != nil {
		return err
	}
	if fl.local != nil {
		return fl.local.Sync()
	}
	if err := fl.obj.Sync(context.Background()); err != nil {
		return backendError("sync", fl.path, err)
	}
	return nil
}

// Close releases the file object and its descriptor slot. A file opened
// with OpenURI also disconnects its private FS. The first error wins.
func (fl *File) Close() error {
	return fl.CloseContext(context.Background())
}

// CloseContext is Close with a context forwarded to the backend.
func (fl *File) CloseContext(ctx context.Context) error {
	if fl == nil {
		return stateError("close", "", ErrNilHandle)
	}
	if fl.closed {
		return stateError("close", fl.path, ErrClosed)
	}
	fl.closed = true

	if fl.fd >= FdBase {
		fds.release(fl.fd)
	}
	fl.fd = -1

	if fl.local != nil {
		if fl.osfd >= 0 {
			fds.releaseLocal(fl.osfd, fl)
		}
		return fl.local.Close()
	}

	var first error
	if fl.fs == nil || fl.fs.conn == nil {
		first = stateError("close", fl.path, ErrConnReleased)
	} else {
		start := time.Now()
		if err := fl.obj.Close(ctx); err != nil {
			first = backendError("close", fl.path, err)
			fl.fs.logf(logger.LevelWarning, "%v", first)
		}
		fl.fs.observe("close", start, &first)
	}
	fl.obj = nil

	if fl.ownsFS {
		if err := fl.fs.Disconnect(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Fd returns a descriptor number for the file.
//
// For a wrapped OS file this is its OS descriptor. A remote file is
// assigned a slot in a process-wide table on first call, numbered from
// FdBase upward; the number is only meaningful to FileFromFd, never to the
// operating system. Returns -1 for a closed file. The conversion is lossy:
// the table keeps the *File, not its state at the time of the call.
func (fl *File) Fd() int {
	if fl == nil || fl.closed {
		return -1
	}
	if fl.local != nil {
		return int(fl.local.Fd())
	}
	if fl.fd < 0 {
		fl.fd = fds.alloc(fl)
	}
	return fl.fd
}

// FileFromFd converts a descriptor number back into a File.
//
// Numbers at or above FdBase resolve to the remote file registered by Fd.
// Smaller non-negative numbers are treated as OS descriptors and wrapped as
// a local file; the wrapped file's open flags are unknown and reported as
// O_RDWR, and closing it closes the OS descriptor. Repeated calls for the
// same OS descriptor return the same File until it is closed.
func FileFromFd(fd int) (*File, error) {
	if fd < 0 {
		return nil, newError(KindInvalidArgument, "fromfd", "", syscall.EBADF)
	}
	if fd >= FdBase {
		f, ok := fds.lookup(fd)
		if !ok {
			return nil, stateError("fromfd", "", syscall.EBADF)
		}
		return f, nil
	}
	return fds.adoptLocal(fd, func() (*File, error) { return newLocalFile(fd) })
}

func (fl *File) usable(op string) error {
	if fl == nil {
		return stateError(op, "", ErrNilHandle)
	}
	if fl.closed {
		return stateError(op, fl.path, ErrClosed)
	}
	if fl.local != nil {
		return nil
	}
	if fl.obj == nil {
		return stateError(op, fl.path, ErrClosed)
	}
	if fl.fs == nil || fl.fs.conn == nil {
		return stateError(op, fl.path, ErrConnReleased)
	}
	return nil
}

func (fl *File) record(op string, start time.Time, n int, err error) {
	if errors.Is(err, io.EOF) {
		err = nil
	}
	fl.fs.observe(op, start, &err)
	if fl.fs.recorder != nil && n > 0 {
		fl.fs.recorder.RecordBytes(op, fl.fs.scheme, n)
	}
}

func accessMode(flags int) int {
	return flags & (os.O_RDONLY | os.O_WRONLY | os.O_RDWR)
}
