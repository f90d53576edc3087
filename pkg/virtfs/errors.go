package virtfs

import (
	"errors"
	"io/fs"
	"syscall"
)

// ErrorKind represents the category of a virtfs error.
//
// Every failing operation reports exactly one kind, so callers can branch on
// the category with errors.Is against the Err* sentinels below, and still
// reach the backend cause (usually a syscall.Errno) through errors.As or
// Errno.
type ErrorKind int

const (
	// KindParse indicates a malformed or incomplete URL
	// (missing scheme, authority or export path, or an unknown scheme)
	KindParse ErrorKind = iota + 1

	// KindAllocation indicates the backend could not allocate a resource
	// (connection context, directory stream, directory entry)
	KindAllocation

	// KindConnect indicates the backend failed to establish or mount a session
	KindConnect

	// KindState indicates the handle is in the wrong state for the operation
	// Examples: connecting a mounted handle, using a closed handle
	KindState

	// KindUnsupported indicates the backend or platform lacks the operation
	KindUnsupported

	// KindBackend indicates a pass-through I/O failure from the remote side
	KindBackend

	// KindInvalidArgument indicates invalid parameters were provided
	// Examples: bad whence, negative offset or size
	KindInvalidArgument
)

func (k ErrorKind) String() string {
	switch k {
	case KindParse:
		return "parse error"
	case KindAllocation:
		return "allocation error"
	case KindConnect:
		return "connect error"
	case KindState:
		return "state error"
	case KindUnsupported:
		return "unsupported"
	case KindBackend:
		return "backend error"
	case KindInvalidArgument:
		return "invalid argument"
	default:
		return "unknown error"
	}
}

// Error is the error type returned by every virtfs operation.
type Error struct {
	// Kind is the error category
	Kind ErrorKind

	// Op is the operation that failed (e.g. "stat", "opendir", "connect")
	Op string

	// Path is the remote path or URL involved (if applicable)
	Path string

	// Err is the underlying cause, typically from the backend
	Err error
}

// Error implements the error interface.
//
// Format: "op path: cause", degrading gracefully when parts are missing.
func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		if msg != "" {
			msg += " "
		}
		msg += e.Path
	}

	cause := e.Kind.String()
	if e.Err != nil {
		cause = e.Err.Error()
	}

	if msg == "" {
		return cause
	}
	return msg + ": " + cause
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches kind sentinels, so errors.Is(err, ErrBackend) holds for any
// backend failure regardless of its cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*kindError)
	return ok && t.kind == e.Kind
}

type kindError struct {
	kind ErrorKind
}

func (k *kindError) Error() string { return k.kind.String() }

// Kind sentinels. Use with errors.Is.
var (
	ErrParse           error = &kindError{KindParse}
	ErrAllocation      error = &kindError{KindAllocation}
	ErrConnect         error = &kindError{KindConnect}
	ErrState           error = &kindError{KindState}
	ErrUnsupported     error = &kindError{KindUnsupported}
	ErrBackend         error = &kindError{KindBackend}
	ErrInvalidArgument error = &kindError{KindInvalidArgument}
)

// Specific state failures. They are wrapped in an *Error of KindState, so
// both errors.Is(err, ErrState) and errors.Is(err, ErrAlreadyMounted) hold.
var (
	ErrAlreadyMounted = errors.New("already mounted")
	ErrClosed         = errors.New("handle already closed")
	ErrNilHandle      = errors.New("nil handle")
	ErrConnReleased   = errors.New("connection released")
)

func newError(kind ErrorKind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

func stateError(op, path string, err error) *Error {
	return newError(KindState, op, path, err)
}

// backendError classifies a backend failure: ENOMEM becomes an allocation
// error, ENOTSUP/ENOSYS become unsupported, anything else is a backend error.
func backendError(op, path string, err error) *Error {
	switch Errno(err) {
	case syscall.ENOMEM:
		return newError(KindAllocation, op, path, err)
	case syscall.ENOTSUP, syscall.ENOSYS:
		return newError(KindUnsupported, op, path, err)
	}
	return newError(KindBackend, op, path, err)
}

// Errno extracts the POSIX error number carried by err, or 0 if none.
func Errno(err error) syscall.Errno {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return 0
}

// pathErr builds the error shape backends are expected to return.
func pathErr(op, path string, errno syscall.Errno) error {
	return &fs.PathError{Op: op, Path: path, Err: errno}
}
