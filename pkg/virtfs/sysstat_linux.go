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
	{"Atim.Sec", "Atim.Sec"},
	{"Atim.Nsec", "Atim.Nsec"},
	{"Mtim.Sec", "Mtim.Sec"},
	{"Mtim.Nsec", "Mtim.Nsec"},
	{"Ctim.Sec", "Ctim.Sec"},
	{"Ctim.Nsec", "Ctim.Nsec"},
}
