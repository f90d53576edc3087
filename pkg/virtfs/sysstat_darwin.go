package virtfs

var sysStatFields = []fieldMap{
	{"Dev", "Dev"},
	{"Ino", "Ino"},
	{"Mode", "Mode"},
	{"Nlink", "Nlink"},
	{"Uid", "UID"},
	{"Gid", "GID"},
	{"Rdev", "Rdev"},
	{"Size", "Size"},
	{"Blksize", "Blksize"},
	{"Blocks", "Blocks"},
	{"Atimespec.Sec", "Atim.Sec"},
	{"Atimespec.Nsec", "Atim.Nsec"},
	{"Mtimespec.Sec", "Mtim.Sec"},
	{"Mtimespec.Nsec", "Mtim.Nsec"},
	{"Ctimespec.Sec", "Ctim.Sec"},
	{"Ctimespec.Nsec", "Ctim.Nsec"},
}
