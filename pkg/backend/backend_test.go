package backend

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"math"
	"net/url"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/virtfs/pkg/virtfs"
)

func TestHandleToINode(t *testing.T) {
	assert.Zero(t, HandleToINode(nil))

	a := HandleToINode([]byte("/export:/a"))
	assert.Equal(t, a, HandleToINode([]byte("/export:/a")))
	assert.NotEqual(t, a, HandleToINode([]byte("/export:/b")))
}

func TestPathError(t *testing.T) {
	err := PathError("open", "/x", syscall.ENOENT)

	var pe *fs.PathError
	assert.True(t, errors.As(err, &pe))
	assert.True(t, errors.Is(err, syscall.ENOENT))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestIOError(t *testing.T) {
	cause := errors.New("disk on fire")
	err := IOError("write", "/x", cause)

	assert.True(t, errors.Is(err, syscall.EIO))
	assert.True(t, errors.Is(err, cause))
}

func TestBlocks(t *testing.T) {
	assert.Equal(t, uint64(0), Blocks(0))
	assert.Equal(t, uint64(1), Blocks(1))
	assert.Equal(t, uint64(1), Blocks(512))
	assert.Equal(t, uint64(2), Blocks(513))
}

func TestCheckExtent(t *testing.T) {
	tests := []struct {
		name    string
		off, n  int64
		wantErr bool
	}{
		{"Empty", 0, 0, false},
		{"UpToLimit", 90, 10, false},
		{"PastLimit", 95, 10, true},
		{"OffsetPastLimit", 101, 0, true},
		{"Overflow", math.MaxInt64, 1, true},
		{"HugeOffset", 1 << 62, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckExtent("write", "/f", tt.off, tt.n, 100)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, syscall.EFBIG))
		})
	}
}

func TestSplitPath(t *testing.T) {
	assert.Nil(t, SplitPath("/"))
	assert.Nil(t, SplitPath(""))
	assert.Equal(t, []string{"a", "b"}, SplitPath("a//b/"))
	assert.Equal(t, []string{"b"}, SplitPath("/a/../b"))
	assert.Equal(t, "/a/b", CleanPath("a/b/"))
}

func TestTimestamp(t *testing.T) {
	sec, nsec := Timestamp(time.Unix(1700000000, 5))
	assert.Equal(t, uint64(1700000000), sec)
	assert.Equal(t, uint64(5), nsec)

	sec, nsec = Timestamp(time.Time{})
	assert.Zero(t, sec)
	assert.Zero(t, nsec)
}

func TestOwnerOptions(t *testing.T) {
	uid, gid, err := OwnerOptions(url.Values{"uid": {"1000"}, "gid": {"100"}})
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), uid)
	assert.Equal(t, uint32(100), gid)

	uid, gid, err = OwnerOptions(nil)
	require.NoError(t, err)
	assert.Zero(t, uid)
	assert.Zero(t, gid)

	_, _, err = OwnerOptions(url.Values{"gid": {"-1"}})
	assert.True(t, errors.Is(err, syscall.EINVAL))
}

func TestCheckOptions(t *testing.T) {
	assert.NoError(t, CheckOptions(url.Values{"uid": {"1"}}, "uid", "gid"))
	assert.ErrorContains(t, CheckOptions(url.Values{"color": {"x"}}, "uid"), `"color"`)
}

func TestDirent(t *testing.T) {
	a := &virtfs.RawAttr{Ino: 7, Mode: uint64(virtfs.ModeRegular | 0o644), Size: 3, Mtime: 10, MtimeNsec: 123456789}
	d := Dirent("f", a)

	assert.Equal(t, "f", d.Name)
	assert.Equal(t, uint64(7), d.Ino)
	assert.Equal(t, virtfs.Timeval{Sec: 10, Usec: 123456}, d.Mtime)
	assert.Equal(t, uint64(789), d.MtimeNsec)
}

func TestSnapshotStream(t *testing.T) {
	ctx := context.Background()
	s := NewSnapshotStream([]*virtfs.RawDirent{{Name: "a"}, {Name: "b"}})

	d, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", d.Name)
	d.Name = "mutated"

	d, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", d.Name)

	_, err = s.Next(ctx)
	assert.Equal(t, io.EOF, err)
	_, err = s.Next(ctx)
	assert.Equal(t, io.EOF, err)

	require.NoError(t, s.Close())
	assert.True(t, errors.Is(s.Close(), syscall.EBADF))
	_, err = s.Next(ctx)
	assert.True(t, errors.Is(err, syscall.EBADF))
}
