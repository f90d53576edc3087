// Package backendtest is a conformance suite for virtfs backends.
//
// It exercises a driver only through the public virtfs handles, so the same
// tests run unchanged against every scheme.
package backendtest

import (
	"context"
	"io"
	"os"
	"sort"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/virtfs/pkg/virtfs"
)

// Suite runs the conformance tests against one backend.
//
// Usage:
//
//	func TestConformance(t *testing.T) {
//	    suite := &backendtest.Suite{
//	        NewFS: func(t *testing.T) *virtfs.FS {
//	            // register the driver, seed the layout, connect
//	        },
//	    }
//	    suite.Run(t)
//	}
type Suite struct {
	// NewFS returns a connected handle on a fresh export holding exactly:
	//
	//	/hello.txt        "hello"
	//	/docs/readme.txt  "read me"
	//
	// The suite closes the handle.
	NewFS func(t *testing.T) *virtfs.FS
}

// Run executes all tests in the suite.
func (s *Suite) Run(t *testing.T) {
	t.Run("Stat", s.RunStatTests)
	t.Run("Directory", s.RunDirectoryTests)
	t.Run("Read", s.RunReadTests)
	t.Run("Write", s.RunWriteTests)
}

func (s *Suite) fs(t *testing.T) *virtfs.FS {
	t.Helper()
	fsys := s.NewFS(t)
	require.True(t, fsys.Mounted())
	t.Cleanup(func() { _ = fsys.Close() })
	return fsys
}

// RunStatTests checks attribute lookups.
func (s *Suite) RunStatTests(t *testing.T) {
	ctx := context.Background()
	fsys := s.fs(t)

	t.Run("Root", func(t *testing.T) {
		st, err := fsys.Stat(ctx, "/")
		require.NoError(t, err)
		assert.Equal(t, uint32(virtfs.ModeDir), st.Mode&virtfs.ModeTypeMask)
	})

	t.Run("RegularFile", func(t *testing.T) {
		st, err := fsys.Stat(ctx, "/hello.txt")
		require.NoError(t, err)
		assert.Equal(t, uint32(virtfs.ModeRegular), st.Mode&virtfs.ModeTypeMask)
		assert.Equal(t, int64(5), st.Size)
		assert.Equal(t, "regular file", virtfs.FileTypeName(st))
	})

	t.Run("Lstat", func(t *testing.T) {
		st, err := fsys.Lstat(ctx, "/docs/readme.txt")
		require.NoError(t, err)
		assert.Equal(t, int64(7), st.Size)
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := fsys.Stat(ctx, "/nope")
		require.Error(t, err)
		assert.ErrorIs(t, err, virtfs.ErrBackend)
		assert.Equal(t, syscall.ENOENT, virtfs.Errno(err))
	})
}

// RunDirectoryTests checks OpenDir and ReadDirPlus.
func (s *Suite) RunDirectoryTests(t *testing.T) {
	ctx := context.Background()
	fsys := s.fs(t)

	t.Run("Root", func(t *testing.T) {
		entries := ReadDir(t, fsys, "/")
		require.Contains(t, entries, "hello.txt")
		require.Contains(t, entries, "docs")
		assert.NotContains(t, entries, ".")
		assert.NotContains(t, entries, "..")

		assert.Equal(t, int64(5), entries["hello.txt"].Size)
		assert.Equal(t, uint32(virtfs.ModeDir), entries["docs"].Mode&virtfs.ModeTypeMask)
	})

	t.Run("Subdirectory", func(t *testing.T) {
		entries := ReadDir(t, fsys, "/docs")
		assert.Len(t, entries, 1)
		require.Contains(t, entries, "readme.txt")
		assert.Equal(t, int64(7), entries["readme.txt"].Size)
	})

	t.Run("DirentMatchesStat", func(t *testing.T) {
		d, err := fsys.OpenDir(ctx, "/")
		require.NoError(t, err)
		defer d.Close()

		for {
			ent, st, err := d.ReadDirPlus(ctx)
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			assert.Equal(t, virtfs.DirentType(st.Mode), ent.Type, ent.Name)
			assert.Equal(t, st.Ino, ent.Ino, ent.Name)
		}

		// The end of the stream is sticky.
		_, _, err = d.ReadDirPlus(ctx)
		assert.Equal(t, io.EOF, err)
	})

	t.Run("NotADirectory", func(t *testing.T) {
		_, err := fsys.OpenDir(ctx, "/hello.txt")
		require.Error(t, err)
		assert.Equal(t, syscall.ENOTDIR, virtfs.Errno(err))
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := fsys.OpenDir(ctx, "/nope")
		require.Error(t, err)
		assert.Equal(t, syscall.ENOENT, virtfs.Errno(err))
	})
}

// RunReadTests checks reads and seeks on existing files.
func (s *Suite) RunReadTests(t *testing.T) {
	ctx := context.Background()
	fsys := s.fs(t)

	t.Run("ReadAll", func(t *testing.T) {
		assert.Equal(t, "read me", ReadFile(t, fsys, "/docs/readme.txt"))
	})

	t.Run("SeekAndRead", func(t *testing.T) {
		f, err := fsys.Open(ctx, "/hello.txt", os.O_RDONLY, 0)
		require.NoError(t, err)
		defer f.Close()

		off, err := f.SeekContext(ctx, -3, io.SeekEnd)
		require.NoError(t, err)
		assert.Equal(t, int64(2), off)

		buf := make([]byte, 8)
		n, err := f.ReadContext(ctx, buf)
		require.NoError(t, err)
		assert.Equal(t, "llo", string(buf[:n]))

		_, err = f.ReadContext(ctx, buf)
		assert.Equal(t, io.EOF, err)
	})

	t.Run("WriteOnReadOnly", func(t *testing.T) {
		f, err := fsys.Open(ctx, "/hello.txt", os.O_RDONLY, 0)
		require.NoError(t, err)
		defer f.Close()

		_, err = f.WriteContext(ctx, []byte("x"))
		require.Error(t, err)
		assert.Equal(t, syscall.EBADF, virtfs.Errno(err))
	})

	t.Run("OpenDirectory", func(t *testing.T) {
		_, err := fsys.Open(ctx, "/docs", os.O_WRONLY, 0)
		require.Error(t, err)
		assert.Equal(t, syscall.EISDIR, virtfs.Errno(err))
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := fsys.Open(ctx, "/nope", os.O_RDONLY, 0)
		require.Error(t, err)
		assert.Equal(t, syscall.ENOENT, virtfs.Errno(err))
	})
}

// RunWriteTests checks file creation and modification.
func (s *Suite) RunWriteTests(t *testing.T) {
	ctx := context.Background()
	fsys := s.fs(t)

	t.Run("CreateAndRead", func(t *testing.T) {
		WriteFile(t, fsys, "/new.txt", os.O_CREATE|os.O_EXCL, "fresh")
		assert.Equal(t, "fresh", ReadFile(t, fsys, "/new.txt"))

		st, err := fsys.Stat(ctx, "/new.txt")
		require.NoError(t, err)
		assert.Equal(t, int64(5), st.Size)
	})

	t.Run("CreateEmpty", func(t *testing.T) {
		WriteFile(t, fsys, "/empty.txt", os.O_CREATE|os.O_EXCL, "")

		st, err := fsys.Stat(ctx, "/empty.txt")
		require.NoError(t, err)
		assert.Equal(t, int64(0), st.Size)
		assert.Equal(t, "regular empty file", virtfs.FileTypeName(st))
	})

	t.Run("Exclusive", func(t *testing.T) {
		_, err := fsys.Open(ctx, "/hello.txt", os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		require.Error(t, err)
		assert.Equal(t, syscall.EEXIST, virtfs.Errno(err))
	})

	t.Run("CreateInSubdirectory", func(t *testing.T) {
		WriteFile(t, fsys, "/docs/notes.txt", os.O_CREATE, "notes")
		entries := ReadDir(t, fsys, "/docs")
		assert.Contains(t, entries, "notes.txt")
	})

	t.Run("MissingParent", func(t *testing.T) {
		_, err := fsys.Open(ctx, "/nodir/file.txt", os.O_WRONLY|os.O_CREATE, 0o644)
		require.Error(t, err)
		assert.Equal(t, syscall.ENOENT, virtfs.Errno(err))
	})

	t.Run("Overwrite", func(t *testing.T) {
		WriteFile(t, fsys, "/over.txt", os.O_CREATE, "initial content")
		WriteFile(t, fsys, "/over.txt", os.O_TRUNC, "new")
		assert.Equal(t, "new", ReadFile(t, fsys, "/over.txt"))
	})

	t.Run("Append", func(t *testing.T) {
		WriteFile(t, fsys, "/log.txt", os.O_CREATE, "one ")
		WriteFile(t, fsys, "/log.txt", os.O_APPEND, "two")
		assert.Equal(t, "one two", ReadFile(t, fsys, "/log.txt"))
	})

	t.Run("WriteAtOffset", func(t *testing.T) {
		WriteFile(t, fsys, "/patch.txt", os.O_CREATE, "abcdef")

		f, err := fsys.Open(ctx, "/patch.txt", os.O_RDWR, 0)
		require.NoError(t, err)
		_, err = f.SeekContext(ctx, 2, io.SeekStart)
		require.NoError(t, err)
		_, err = f.WriteContext(ctx, []byte("XY"))
		require.NoError(t, err)
		require.NoError(t, f.CloseContext(ctx))

		assert.Equal(t, "abXYef", ReadFile(t, fsys, "/patch.txt"))
	})

	t.Run("Truncate", func(t *testing.T) {
		WriteFile(t, fsys, "/trunc.txt", os.O_CREATE, "hello world")

		f, err := fsys.Open(ctx, "/trunc.txt", os.O_WRONLY, 0)
		require.NoError(t, err)
		require.NoError(t, f.TruncateContext(ctx, 5))
		require.NoError(t, f.CloseContext(ctx))
		assert.Equal(t, "hello", ReadFile(t, fsys, "/trunc.txt"))

		f, err = fsys.Open(ctx, "/trunc.txt", os.O_WRONLY, 0)
		require.NoError(t, err)
		require.NoError(t, f.TruncateContext(ctx, 7))
		require.NoError(t, f.CloseContext(ctx))
		assert.Equal(t, "hello\x00\x00", ReadFile(t, fsys, "/trunc.txt"))
	})

	t.Run("SparseWrite", func(t *testing.T) {
		f, err := fsys.Open(ctx, "/sparse.txt", os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
		require.NoError(t, err)
		_, err = f.SeekContext(ctx, 10, io.SeekStart)
		require.NoError(t, err)
		_, err = f.WriteContext(ctx, []byte("x"))
		require.NoError(t, err)
		require.NoError(t, f.CloseContext(ctx))

		assert.Equal(t, strings.Repeat("\x00", 10)+"x", ReadFile(t, fsys, "/sparse.txt"))
	})

	t.Run("OversizedOffset", func(t *testing.T) {
		WriteFile(t, fsys, "/huge.txt", os.O_CREATE, "small")

		f, err := fsys.Open(ctx, "/huge.txt", os.O_RDWR, 0)
		require.NoError(t, err)
		_, err = f.SeekContext(ctx, 1<<62, io.SeekStart)
		require.NoError(t, err)

		_, err = f.WriteContext(ctx, []byte("x"))
		require.Error(t, err)
		assert.Equal(t, syscall.EFBIG, virtfs.Errno(err))

		err = f.TruncateContext(ctx, 1<<62)
		require.Error(t, err)
		assert.Equal(t, syscall.EFBIG, virtfs.Errno(err))
		require.NoError(t, f.CloseContext(ctx))

		assert.Equal(t, "small", ReadFile(t, fsys, "/huge.txt"))
	})

	t.Run("Fstat", func(t *testing.T) {
		f, err := fsys.Open(ctx, "/hello.txt", os.O_RDONLY, 0)
		require.NoError(t, err)
		defer f.Close()

		st, err := f.StatContext(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(5), st.Size)
	})
}

// ReadDir lists p and returns the attributes keyed by entry name. A name
// listed twice fails the test.
func ReadDir(t *testing.T, fsys *virtfs.FS, p string) map[string]*virtfs.Stat {
	t.Helper()
	ctx := context.Background()

	d, err := fsys.OpenDir(ctx, p)
	require.NoError(t, err)
	defer d.Close()

	got := map[string]*virtfs.Stat{}
	var names []string
	for {
		ent, st, err := d.ReadDirPlus(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got[ent.Name] = st
		names = append(names, ent.Name)
	}

	sort.Strings(names)
	for i := 1; i < len(names); i++ {
		require.NotEqual(t, names[i-1], names[i], "duplicate entry")
	}
	return got
}

// ReadFile returns the whole content of p.
func ReadFile(t *testing.T, fsys *virtfs.FS, p string) string {
	t.Helper()
	ctx := context.Background()

	f, err := fsys.Open(ctx, p, os.O_RDONLY, 0)
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	return string(data)
}

// WriteFile opens p write-only with the extra flags, writes data and
// closes it.
func WriteFile(t *testing.T, fsys *virtfs.FS, p string, flags int, data string) {
	t.Helper()
	ctx := context.Background()

	f, err := fsys.Open(ctx, p, os.O_WRONLY|flags, 0o644)
	require.NoError(t, err)
	if data != "" {
		n, err := f.WriteContext(ctx, []byte(data))
		require.NoError(t, err)
		require.Equal(t, len(data), n)
	}
	require.NoError(t, f.CloseContext(ctx))
}
