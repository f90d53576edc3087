package virtfs

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModeString(t *testing.T) {
	tests := []struct {
		mode uint32
		want string
	}{
		{ModeDir | 0o755, "drwxr-xr-x"},
		{ModeRegular | 0o644, "-rw-r--r--"},
		{ModeSymlink | 0o777, "lrwxrwxrwx"},
		{ModeRegular | ModeSetuid | 0o755, "-rwsr-xr-x"},
		{ModeRegular | ModeSetuid | 0o644, "-rwSr--r--"},
		{ModeRegular | ModeSetgid | 0o750, "-rwxr-s---"},
		{ModeDir | ModeSticky | 0o777, "drwxrwxrwt"},
		{ModeDir | ModeSticky | 0o776, "drwxrwxrwT"},
		{ModeFIFO | 0o600, "prw-------"},
		{ModeSocket | 0o600, "srw-------"},
		{ModeChar | 0o620, "crw--w----"},
		{ModeBlock | 0o660, "brw-rw----"},
		{0o644, "?rw-r--r--"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ModeString(tt.mode))
		})
	}
}

func TestFileTypeName(t *testing.T) {
	assert.Equal(t, "regular empty file", FileTypeName(&Stat{Mode: ModeRegular}))
	assert.Equal(t, "regular file", FileTypeName(&Stat{Mode: ModeRegular, Size: 1}))
	assert.Equal(t, "directory", FileTypeName(&Stat{Mode: ModeDir}))
	assert.Equal(t, "symbolic link", FileTypeName(&Stat{Mode: ModeSymlink}))
	assert.Equal(t, "block special file", FileTypeName(&Stat{Mode: ModeBlock}))
	assert.Equal(t, "character special file", FileTypeName(&Stat{Mode: ModeChar}))
	assert.Equal(t, "fifo", FileTypeName(&Stat{Mode: ModeFIFO}))
	assert.Equal(t, "socket", FileTypeName(&Stat{Mode: ModeSocket}))
	assert.Equal(t, "weird file", FileTypeName(&Stat{}))
}

func TestPosixModeRoundTrip(t *testing.T) {
	modes := []uint32{
		ModeRegular | 0o644,
		ModeDir | 0o755,
		ModeSymlink | 0o777,
		ModeFIFO | 0o600,
		ModeSocket | 0o700,
		ModeChar | 0o666,
		ModeBlock | 0o660,
		ModeRegular | ModeSetuid | ModeSetgid | 0o755,
		ModeDir | ModeSticky | 0o1777&ModePermMask,
	}

	for _, m := range modes {
		st := &Stat{Mode: m}
		assert.Equal(t, m, PosixMode(st.FileMode()), ModeString(m))
	}

	assert.Equal(t, fs.ModeDir|0o755, (&Stat{Mode: ModeDir | 0o755}).FileMode())
}

func TestTimespecTime(t *testing.T) {
	ts := Timespec{Sec: 1700000000, Nsec: 42}
	assert.Equal(t, int64(1700000000), ts.Time().Unix())
	assert.Equal(t, 42, ts.Time().Nanosecond())
}
