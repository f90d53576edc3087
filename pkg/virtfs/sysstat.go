//go:build linux || darwin

package virtfs

import (
	"os"
	"syscall"
)

// ToSysStat converts st into the platform's native stat structure.
// Fields the platform does not carry are dropped.
func ToSysStat(st *Stat) *syscall.Stat_t {
	sys := &syscall.Stat_t{}
	translate(sys, st, sysStatFields)
	return sys
}

// FromSysStat converts a native stat structure into a Stat.
func FromSysStat(sys *syscall.Stat_t) *Stat {
	st := &Stat{}
	translate(st, sys, sysStatFieldsReverse)
	return st
}

var sysStatFieldsReverse = reverseFields(sysStatFields)

func reverseFields(table []fieldMap) []fieldMap {
	out := make([]fieldMap, len(table))
	for i, f := range table {
		out[i] = fieldMap{dst: f.src, src: f.dst}
	}
	return out
}

func statFromFileInfo(fi os.FileInfo) *Stat {
	if sys, ok := fi.Sys().(*syscall.Stat_t); ok {
		return FromSysStat(sys)
	}
	return genericStat(fi)
}
