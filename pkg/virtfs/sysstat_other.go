//go:build !linux && !darwin

package virtfs

import "os"

func statFromFileInfo(fi os.FileInfo) *Stat {
	return genericStat(fi)
}
