package badger

// Key layout
//
// All keys of an export share the export path as namespace, separated from
// the rest of the key by a NUL byte so that "/a" and "/ab" never overlap:
//
//	a:<export>\x00<path>               XDR record of the file at path
//	c:<export>\x00<dir>\x00<name>      child index entry (empty value)
//	d:<export>\x00<path>               content of a regular file
//
// Child entries of one directory sort by name, which gives directory
// listings a stable order for free.
const (
	prefixAttr  = "a:"
	prefixChild = "c:"
	prefixData  = "d:"
)

func keyAttr(export, p string) []byte {
	return []byte(prefixAttr + export + "\x00" + p)
}

func keyData(export, p string) []byte {
	return []byte(prefixData + export + "\x00" + p)
}

func keyChild(export, dir, name string) []byte {
	return []byte(prefixChild + export + "\x00" + dir + "\x00" + name)
}

func keyChildPrefix(export, dir string) []byte {
	return []byte(prefixChild + export + "\x00" + dir + "\x00")
}
