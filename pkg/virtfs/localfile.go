package virtfs

import (
	"fmt"
	"os"
	"syscall"
)

// newLocalFile wraps an OS descriptor. os.NewFile only fails for invalid
// descriptor values; whether fd is actually open is discovered on first use.
func newLocalFile(fd int) (*File, error) {
	osf := os.NewFile(uintptr(fd), fmt.Sprintf("fd%d", fd))
	if osf == nil {
		return nil, newError(KindInvalidArgument, "fromfd", "", syscall.EBADF)
	}
	return &File{
		local: osf,
		osfd:  fd,
		path:  osf.Name(),
		flags: os.O_RDWR,
		fd:    -1,
	}, nil
}

// WrapOSFile adopts an open *os.File as a File. Closing the File closes f.
//
// While the File is open, FileFromFd on f's descriptor returns it rather
// than a second wrapper.
func WrapOSFile(f *os.File) *File {
	osfd := int(f.Fd())
	wrapped, _ := fds.adoptLocal(osfd, func() (*File, error) {
		return &File{local: f, osfd: osfd, path: f.Name(), flags: os.O_RDWR, fd: -1}, nil
	})
	if wrapped.local != f {
		// The descriptor was already adopted through another *os.File.
		return &File{local: f, osfd: -1, path: f.Name(), flags: os.O_RDWR, fd: -1}
	}
	return wrapped
}
