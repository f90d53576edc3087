package virtfs

import "context"

// Driver creates backend connections for one URL scheme.
//
// A Driver is registered in a Registry under its scheme and must be safe for
// concurrent use.
type Driver interface {
	// NewConn allocates an unmounted connection context for u.
	//
	// The URL carries the driver's query options. A driver reports memory or
	// resource exhaustion as a *fs.PathError wrapping syscall.ENOMEM, which
	// New surfaces as an allocation error.
	NewConn(u *URL) (Conn, error)
}

// Conn is a backend connection/session, owned exclusively by one FS.
//
// Errors describing POSIX conditions should be *fs.PathError values wrapping
// a syscall.Errno (ENOENT, ENOTDIR, EACCES, ...), so callers can recover the
// errno with Errno.
//
// A Conn must be internally synchronized: directory and file handles borrow
// it concurrently.
type Conn interface {
	// Mount establishes the session against authority and export.
	Mount(ctx context.Context, authority, export string) error

	// Stat returns the attributes of path, following symbolic links.
	Stat(ctx context.Context, path string) (*RawAttr, error)

	// Lstat returns the attributes of path without following a final
	// symbolic link.
	Lstat(ctx context.Context, path string) (*RawAttr, error)

	// OpenDir opens a directory stream at path.
	OpenDir(ctx context.Context, path string) (DirStream, error)

	// Open opens the file at path. flags are os.O_* values; perm is used
	// when O_CREATE creates the file.
	Open(ctx context.Context, path string, flags int, perm uint32) (FileObject, error)

	// Destroy releases the connection context. Called exactly once, whether
	// or not Mount succeeded.
	Destroy() error
}

// Unmounter is implemented by connections that support explicit unmount.
// Connections without it are torn down by Destroy alone.
type Unmounter interface {
	Unmount(ctx context.Context) error
}

// URLValidator is implemented by connections that check a parsed URL against
// backend-specific rules (bucket naming, volume layout) before mounting.
type URLValidator interface {
	ValidateURL(u *URL) error
}

// DirStream is a cursor over the entries of a remote directory.
type DirStream interface {
	// Next returns the next entry, or io.EOF once the stream is exhausted.
	Next(ctx context.Context) (*RawDirent, error)

	// Close releases the stream.
	Close() error
}

// FileObject is an open remote file. Offsets are managed by File; the
// backend only sees positional I/O.
type FileObject interface {
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	WriteAt(ctx context.Context, p []byte, off int64) (int, error)
	Truncate(ctx context.Context, size int64) error
	Stat(ctx context.Context) (*RawAttr, error)
	Sync(ctx context.Context) error
	Close(ctx context.Context) error
}
