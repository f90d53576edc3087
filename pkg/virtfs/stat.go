package virtfs

import (
	"io/fs"
	"time"
)

// POSIX file type and permission bits, as carried in Stat.Mode.
const (
	ModeTypeMask = 0o170000
	ModeSocket   = 0o140000
	ModeSymlink  = 0o120000
	ModeRegular  = 0o100000
	ModeBlock    = 0o060000
	ModeDir      = 0o040000
	ModeChar     = 0o020000
	ModeFIFO     = 0o010000
	ModeSetuid   = 0o4000
	ModeSetgid   = 0o2000
	ModeSticky   = 0o1000
	ModePermMask = 0o777
)

// Directory entry type tags, equal to (mode & ModeTypeMask) >> 12.
const (
	DTUnknown uint8 = 0
	DTFIFO    uint8 = 1
	DTChar    uint8 = 2
	DTDir     uint8 = 4
	DTBlock   uint8 = 6
	DTRegular uint8 = 8
	DTSymlink uint8 = 10
	DTSocket  uint8 = 12
)

// MaxNameLen bounds Dirent.Name, in bytes.
const MaxNameLen = 255

// Timespec is a timestamp with nanosecond resolution.
type Timespec struct {
	Sec  int64
	Nsec int64
}

// Time converts the timestamp to a time.Time.
func (t Timespec) Time() time.Time {
	return time.Unix(t.Sec, t.Nsec)
}

// Stat is the standard attribute structure produced by stat, lstat, fstat
// and readdir-plus.
type Stat struct {
	Dev     uint64
	Ino     uint64
	Mode    uint32
	Nlink   uint64
	UID     uint32
	GID     uint32
	Rdev    uint64
	Size    int64
	Blksize int64
	Blocks  int64
	Atim    Timespec
	Mtim    Timespec
	Ctim    Timespec
}

func (s *Stat) IsDir() bool     { return s.Mode&ModeTypeMask == ModeDir }
func (s *Stat) IsRegular() bool { return s.Mode&ModeTypeMask == ModeRegular }
func (s *Stat) IsSymlink() bool { return s.Mode&ModeTypeMask == ModeSymlink }

// FileMode converts the POSIX mode bits to an fs.FileMode.
func (s *Stat) FileMode() fs.FileMode {
	m := fs.FileMode(s.Mode & ModePermMask)
	switch s.Mode & ModeTypeMask {
	case ModeDir:
		m |= fs.ModeDir
	case ModeSymlink:
		m |= fs.ModeSymlink
	case ModeFIFO:
		m |= fs.ModeNamedPipe
	case ModeSocket:
		m |= fs.ModeSocket
	case ModeBlock:
		m |= fs.ModeDevice
	case ModeChar:
		m |= fs.ModeDevice | fs.ModeCharDevice
	}
	if s.Mode&ModeSetuid != 0 {
		m |= fs.ModeSetuid
	}
	if s.Mode&ModeSetgid != 0 {
		m |= fs.ModeSetgid
	}
	if s.Mode&ModeSticky != 0 {
		m |= fs.ModeSticky
	}
	return m
}

// Dirent is a translated directory entry.
type Dirent struct {
	Ino  uint64
	Name string
	Type uint8
}

// RawAttr is the backend-native attribute record: every field is an
// explicit 64-bit quantity, timestamps split into seconds and nanoseconds.
type RawAttr struct {
	Dev       uint64
	Ino       uint64
	Mode      uint64
	Nlink     uint64
	UID       uint64
	GID       uint64
	Rdev      uint64
	Size      uint64
	Blksize   uint64
	Blocks    uint64
	Atime     uint64
	AtimeNsec uint64
	Mtime     uint64
	MtimeNsec uint64
	Ctime     uint64
	CtimeNsec uint64
}

// Timeval is a backend timestamp with microsecond resolution.
type Timeval struct {
	Sec  uint64
	Usec uint64
}

// RawDirent is the backend-native directory entry. Timestamps are split into
// a microsecond Timeval plus a sub-microsecond nanosecond remainder.
type RawDirent struct {
	Name      string
	Ino       uint64
	Mode      uint64
	Dev       uint64
	Nlink     uint64
	UID       uint64
	GID       uint64
	Rdev      uint64
	Size      uint64
	Blksize   uint64
	Blocks    uint64
	Atime     Timeval
	Mtime     Timeval
	Ctime     Timeval
	AtimeNsec uint64
	MtimeNsec uint64
	CtimeNsec uint64
}

// DirentType derives the entry type tag from POSIX mode bits.
func DirentType(mode uint32) uint8 {
	return uint8((mode & ModeTypeMask) >> 12)
}

// FileTypeName describes the file type of st the way stat(1) does.
func FileTypeName(st *Stat) string {
	switch st.Mode & ModeTypeMask {
	case ModeRegular:
		if st.Size == 0 {
			return "regular empty file"
		}
		return "regular file"
	case ModeDir:
		return "directory"
	case ModeSymlink:
		return "symbolic link"
	case ModeBlock:
		return "block special file"
	case ModeChar:
		return "character special file"
	case ModeFIFO:
		return "fifo"
	case ModeSocket:
		return "socket"
	default:
		return "weird file"
	}
}

func typeLetter(mode uint32) byte {
	switch mode & ModeTypeMask {
	case ModeRegular:
		return '-'
	case ModeDir:
		return 'd'
	case ModeBlock:
		return 'b'
	case ModeChar:
		return 'c'
	case ModeSymlink:
		return 'l'
	case ModeFIFO:
		return 'p'
	case ModeSocket:
		return 's'
	default:
		return '?'
	}
}

// ModeString renders mode as the 10-character ls(1) string, e.g. "drwxr-xr-x".
func ModeString(mode uint32) string {
	b := []byte("----------")
	b[0] = typeLetter(mode)

	const rwx = "rwx"
	for i := 0; i < 9; i++ {
		if mode&(1<<uint(8-i)) != 0 {
			b[1+i] = rwx[i%3]
		}
	}

	special := func(pos int, bit uint32, set, unset byte) {
		if mode&bit == 0 {
			return
		}
		if b[pos] == 'x' {
			b[pos] = set
		} else {
			b[pos] = unset
		}
	}
	special(3, ModeSetuid, 's', 'S')
	special(6, ModeSetgid, 's', 'S')
	special(9, ModeSticky, 't', 'T')

	return string(b)
}

// PosixMode converts an fs.FileMode into POSIX mode bits.
func PosixMode(m fs.FileMode) uint32 {
	mode := uint32(m.Perm())
	switch {
	case m&fs.ModeDir != 0:
		mode |= ModeDir
	case m&fs.ModeSymlink != 0:
		mode |= ModeSymlink
	case m&fs.ModeNamedPipe != 0:
		mode |= ModeFIFO
	case m&fs.ModeSocket != 0:
		mode |= ModeSocket
	case m&fs.ModeCharDevice != 0:
		mode |= ModeChar
	case m&fs.ModeDevice != 0:
		mode |= ModeBlock
	default:
		mode |= ModeRegular
	}
	if m&fs.ModeSetuid != 0 {
		mode |= ModeSetuid
	}
	if m&fs.ModeSetgid != 0 {
		mode |= ModeSetgid
	}
	if m&fs.ModeSticky != 0 {
		mode |= ModeSticky
	}
	return mode
}

func genericStat(fi fs.FileInfo) *Stat {
	mt := fi.ModTime()
	ts := Timespec{Sec: mt.Unix(), Nsec: int64(mt.Nanosecond())}
	return &Stat{
		Mode:  PosixMode(fi.Mode()),
		Nlink: 1,
		Size:  fi.Size(),
		Atim:  ts,
		Mtim:  ts,
		Ctim:  ts,
	}
}
