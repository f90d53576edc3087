package virtfs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRaw() *RawAttr {
	return &RawAttr{
		Dev:       0xfd01,
		Ino:       1<<40 + 7,
		Mode:      ModeRegular | 0o640,
		Nlink:     3,
		UID:       1000,
		GID:       100,
		Rdev:      0,
		Size:      1<<33 + 5,
		Blksize:   65536,
		Blocks:    16777217,
		Atime:     1700000000,
		AtimeNsec: 123456789,
		Mtime:     1700000100,
		MtimeNsec: 999999999,
		Ctime:     1700000200,
		CtimeNsec: 1,
	}
}

func TestStatFromRaw(t *testing.T) {
	raw := sampleRaw()
	st := StatFromRaw(raw)

	assert.Equal(t, raw.Dev, st.Dev)
	assert.Equal(t, raw.Ino, st.Ino)
	assert.Equal(t, uint32(raw.Mode), st.Mode)
	assert.Equal(t, raw.Nlink, st.Nlink)
	assert.Equal(t, uint32(raw.UID), st.UID)
	assert.Equal(t, uint32(raw.GID), st.GID)
	assert.Equal(t, int64(raw.Size), st.Size)
	assert.Equal(t, int64(raw.Blksize), st.Blksize)
	assert.Equal(t, int64(raw.Blocks), st.Blocks)
	assert.Equal(t, Timespec{Sec: 1700000000, Nsec: 123456789}, st.Atim)
	assert.Equal(t, Timespec{Sec: 1700000100, Nsec: 999999999}, st.Mtim)
	assert.Equal(t, Timespec{Sec: 1700000200, Nsec: 1}, st.Ctim)
}

func TestRawFromDirent_ComposesNanoseconds(t *testing.T) {
	d := &RawDirent{
		Name:      "f",
		Ino:       9,
		Mode:      ModeDir | 0o755,
		Size:      4096,
		Atime:     Timeval{Sec: 10, Usec: 123456},
		AtimeNsec: 789,
		Mtime:     Timeval{Sec: 20, Usec: 1},
		Ctime:     Timeval{Sec: 30},
		CtimeNsec: 999,
	}

	raw := RawFromDirent(d)
	assert.Equal(t, uint64(10), raw.Atime)
	assert.Equal(t, uint64(123456789), raw.AtimeNsec)
	assert.Equal(t, uint64(20), raw.Mtime)
	assert.Equal(t, uint64(1000), raw.MtimeNsec)
	assert.Equal(t, uint64(30), raw.Ctime)
	assert.Equal(t, uint64(999), raw.CtimeNsec)
	assert.Equal(t, uint64(4096), raw.Size)
}

func TestDirentFromRaw(t *testing.T) {
	t.Run("TypeMatchesMode", func(t *testing.T) {
		tests := []struct {
			mode uint64
			want uint8
		}{
			{ModeRegular | 0o644, DTRegular},
			{ModeDir | 0o755, DTDir},
			{ModeSymlink | 0o777, DTSymlink},
			{ModeFIFO, DTFIFO},
			{ModeSocket, DTSocket},
			{ModeChar, DTChar},
			{ModeBlock, DTBlock},
			{0o644, DTUnknown},
		}
		for _, tt := range tests {
			ent, st := DirentFromRaw(&RawDirent{Name: "x", Mode: tt.mode, Ino: 5})
			assert.Equal(t, tt.want, ent.Type)
			assert.Equal(t, DirentType(st.Mode), ent.Type)
			assert.Equal(t, uint64(5), ent.Ino)
		}
	})

	t.Run("TruncatesLongNames", func(t *testing.T) {
		long := strings.Repeat("n", MaxNameLen+40)
		ent, _ := DirentFromRaw(&RawDirent{Name: long})
		assert.Len(t, ent.Name, MaxNameLen)
	})

	t.Run("SameTableAsStat", func(t *testing.T) {
		d := &RawDirent{
			Ino: 42, Mode: ModeRegular | 0o600, Nlink: 1, UID: 7, GID: 8,
			Size: 99, Blksize: 512, Blocks: 1,
			Mtime: Timeval{Sec: 5, Usec: 6}, MtimeNsec: 7,
		}
		_, st := DirentFromRaw(d)
		assert.Equal(t, StatFromRaw(RawFromDirent(d)), st)
	})
}

type narrow struct {
	Mode  uint16
	Size  int32
	Nlink uint8
	Atim  struct{ Sec int32 }
}

func TestTranslate_WidthConversionAndMissingFields(t *testing.T) {
	src := &Stat{Mode: 0o100644, Size: 1<<32 + 3, Nlink: 257, Atim: Timespec{Sec: 11, Nsec: 12}}
	dst := &narrow{}

	translate(dst, src, []fieldMap{
		{"Mode", "Mode"},
		{"Size", "Size"},
		{"Nlink", "Nlink"},
		{"Atim.Sec", "Atim.Sec"},
		{"Atim.Nsec", "Atim.Nsec"},
		{"Missing", "Size"},
	})

	assert.Equal(t, uint16(0o100644), dst.Mode)
	assert.Equal(t, int32(3), dst.Size)
	assert.Equal(t, uint8(1), dst.Nlink)
	assert.Equal(t, int32(11), dst.Atim.Sec)
}

func TestTruncHelpers(t *testing.T) {
	assert.Equal(t, int64(-1), truncSigned(-1, 32))
	assert.Equal(t, int64(-1), truncSigned(0xffff, 16))
	assert.Equal(t, int64(0x7fff), truncSigned(0x7fff, 16))
	assert.Equal(t, uint64(0xff), truncUnsigned(0x1ff, 8))
	assert.Equal(t, uint64(1<<63), truncUnsigned(1<<63, 64))
}

func TestResolvePlan_Cached(t *testing.T) {
	st := &Stat{}
	translate(st, sampleRaw(), statFields)
	translate(st, sampleRaw(), statFields)

	count := 0
	plans.Range(func(_, _ any) bool {
		count++
		return true
	})
	require.Positive(t, count)
}

func TestTranslate_EmptyTable(t *testing.T) {
	src := &Stat{Size: 42}
	dst := &narrow{}

	assert.NotPanics(t, func() { translate(dst, src, nil) })
	assert.NotPanics(t, func() { translate(dst, src, []fieldMap{}) })
	assert.Equal(t, narrow{}, *dst)
}

func TestResolvePlan_SubsliceGetsOwnPlan(t *testing.T) {
	table := []fieldMap{{"Size", "Size"}, {"Nlink", "Nlink"}}
	dst := &narrow{}

	translate(dst, &Stat{Size: 7, Nlink: 3}, table[:1])
	assert.Equal(t, int32(7), dst.Size)
	assert.Zero(t, dst.Nlink)

	translate(dst, &Stat{Size: 7, Nlink: 3}, table)
	assert.Equal(t, uint8(3), dst.Nlink)
}
