package cli

import (
	"fmt"
	"io"
	"os/user"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/marmos91/virtfs/pkg/virtfs"
)

// userName resolves uid to a login name, or "UNKNOWN".
func userName(uid uint32) string {
	if u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10)); err == nil {
		return u.Username
	}
	return "UNKNOWN"
}

// groupName resolves gid to a group name, or "UNKNOWN".
func groupName(gid uint32) string {
	if g, err := user.LookupGroupId(strconv.FormatUint(uint64(gid), 10)); err == nil {
		return g.Name
	}
	return "UNKNOWN"
}

// humanTime renders a timestamp as stat(1) does, with microseconds.
func humanTime(ts virtfs.Timespec) string {
	t := ts.Time().Local()
	return fmt.Sprintf("%s.%06d %s", t.Format("2006-01-02 15:04:05"), ts.Nsec/1000, t.Format("-0700"))
}

// printStat writes st in the layout of stat(1).
func printStat(w io.Writer, path string, st *virtfs.Stat) {
	fmt.Fprintf(w, "  File: `%s'\n", path)
	fmt.Fprintf(w, "  Size: %-10d\tBlocks: %-10d IO Block: %-6d %s\n",
		st.Size, st.Blocks, st.Blksize, virtfs.FileTypeName(st))
	fmt.Fprintf(w, "Device: %xh/%dd\tInode: %-10d Links: %d\n",
		st.Dev, st.Dev, st.Ino, st.Nlink)
	fmt.Fprintf(w, "Access: (%04o/%10.10s)  Uid: (%5d/%8s)   Gid: (%5d/%8s)\n",
		st.Mode&(virtfs.ModePermMask|virtfs.ModeSetuid|virtfs.ModeSetgid|virtfs.ModeSticky),
		virtfs.ModeString(st.Mode),
		st.UID, userName(st.UID),
		st.GID, groupName(st.GID))
	fmt.Fprintf(w, "Access: %s\n", humanTime(st.Atim))
	fmt.Fprintf(w, "Modify: %s\n", humanTime(st.Mtim))
	fmt.Fprintf(w, "Change: %s\n", humanTime(st.Ctim))
}

// printLong writes one ls -l line for name.
func printLong(w io.Writer, name string, st *virtfs.Stat, human bool) {
	size := strconv.FormatInt(st.Size, 10)
	if human {
		size = humanize.Bytes(uint64(st.Size))
	}
	mtime := st.Mtim.Time().Local().Format(time.Stamp)

	fmt.Fprintf(w, "%s %d %-15s %-15s %-10s %s %s\n",
		virtfs.ModeString(st.Mode),
		st.Nlink,
		userName(st.UID),
		groupName(st.GID),
		size,
		mtime,
		name)
}
