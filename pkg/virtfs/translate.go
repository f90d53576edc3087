package virtfs

import (
	"reflect"
	"strings"
	"sync"
)

// fieldMap pairs a destination field path with a source field path.
// Paths are dot-separated for nested structs (e.g. "Atim.Nsec").
type fieldMap struct {
	dst string
	src string
}

// statFields is the single description of how a backend attribute record
// maps onto Stat. Both the stat path and the readdir-plus path go through it.
var statFields = []fieldMap{
	{"Dev", "Dev"},
	{"Ino", "Ino"},
	{"Mode", "Mode"},
	{"Nlink", "Nlink"},
	{"UID", "UID"},
	{"GID", "GID"},
	{"Rdev", "Rdev"},
	{"Size", "Size"},
	{"Blksize", "Blksize"},
	{"Blocks", "Blocks"},
	{"Atim.Sec", "Atime"},
	{"Atim.Nsec", "AtimeNsec"},
	{"Mtim.Sec", "Mtime"},
	{"Mtim.Nsec", "MtimeNsec"},
	{"Ctim.Sec", "Ctime"},
	{"Ctim.Nsec", "CtimeNsec"},
}

// StatFromRaw translates a backend attribute record into a Stat.
func StatFromRaw(raw *RawAttr) *Stat {
	st := &Stat{}
	translate(st, raw, statFields)
	return st
}

// RawFromDirent extracts the attribute record carried by a directory entry,
// composing each timestamp's nanoseconds as usec*1000 + remainder.
func RawFromDirent(d *RawDirent) *RawAttr {
	return &RawAttr{
		Dev:       d.Dev,
		Ino:       d.Ino,
		Mode:      d.Mode,
		Nlink:     d.Nlink,
		UID:       d.UID,
		GID:       d.GID,
		Rdev:      d.Rdev,
		Size:      d.Size,
		Blksize:   d.Blksize,
		Blocks:    d.Blocks,
		Atime:     d.Atime.Sec,
		AtimeNsec: d.Atime.Usec*1000 + d.AtimeNsec,
		Mtime:     d.Mtime.Sec,
		MtimeNsec: d.Mtime.Usec*1000 + d.MtimeNsec,
		Ctime:     d.Ctime.Sec,
		CtimeNsec: d.Ctime.Usec*1000 + d.CtimeNsec,
	}
}

// DirentFromRaw builds the translated entry and its attributes from one
// backend directory record. Names longer than MaxNameLen are truncated.
func DirentFromRaw(d *RawDirent) (*Dirent, *Stat) {
	st := StatFromRaw(RawFromDirent(d))

	name := d.Name
	if len(name) > MaxNameLen {
		name = name[:MaxNameLen]
	}

	return &Dirent{
		Ino:  d.Ino,
		Name: name,
		Type: DirentType(st.Mode),
	}, st
}

// translatePlan is a resolved field table for one (dst, src) type pair.
type translatePlan []struct {
	dst []int
	src []int
}

// planKey identifies a table by its backing array and length, so
// subslices of one table get distinct plans.
type planKey struct {
	dst, src reflect.Type
	table    uintptr
	n        int
}

var plans sync.Map // planKey -> translatePlan

// translate copies the fields named by table from src to dst, both pointers
// to structs, converting between integer widths and signedness. Destination
// fields that do not exist on dst's type are skipped, which is how platforms
// without nanosecond timestamp fields lose only that precision.
func translate(dst, src any, table []fieldMap) {
	dv := reflect.ValueOf(dst).Elem()
	sv := reflect.ValueOf(src).Elem()

	for _, f := range resolvePlan(dv.Type(), sv.Type(), table) {
		setInt(dv.FieldByIndex(f.dst), sv.FieldByIndex(f.src))
	}
}

func resolvePlan(dt, st reflect.Type, table []fieldMap) translatePlan {
	key := planKey{dst: dt, src: st, table: reflect.ValueOf(table).Pointer(), n: len(table)}
	if p, ok := plans.Load(key); ok {
		return p.(translatePlan)
	}

	plan := make(translatePlan, 0, len(table))
	for _, f := range table {
		di, ok := fieldIndex(dt, f.dst)
		if !ok {
			continue
		}
		si, ok := fieldIndex(st, f.src)
		if !ok {
			continue
		}
		plan = append(plan, struct {
			dst []int
			src []int
		}{di, si})
	}

	plans.Store(key, plan)
	return plan
}

func fieldIndex(t reflect.Type, path string) ([]int, bool) {
	var index []int
	for _, name := range strings.Split(path, ".") {
		if t.Kind() != reflect.Struct {
			return nil, false
		}
		sf, ok := t.FieldByName(name)
		if !ok || !isInteger(sf.Type.Kind()) && sf.Type.Kind() != reflect.Struct {
			return nil, false
		}
		index = append(index, sf.Index...)
		t = sf.Type
	}
	if !isInteger(t.Kind()) {
		return nil, false
	}
	return index, true
}

func isInteger(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

// setInt assigns src to dst with C-style truncating conversion.
func setInt(dst, src reflect.Value) {
	var bits uint64
	switch src.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		bits = uint64(src.Int())
	default:
		bits = src.Uint()
	}

	switch dst.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		dst.SetInt(truncSigned(int64(bits), dst.Type().Bits()))
	default:
		dst.SetUint(truncUnsigned(bits, dst.Type().Bits()))
	}
}

func truncSigned(v int64, bits int) int64 {
	if bits >= 64 {
		return v
	}
	shift := uint(64 - bits)
	return v << shift >> shift
}

func truncUnsigned(v uint64, bits int) uint64 {
	if bits >= 64 {
		return v
	}
	return v & (1<<uint(bits) - 1)
}
