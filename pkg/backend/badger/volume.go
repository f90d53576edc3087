package badger

import (
	"errors"
	"os"
	"path"
	"strings"
	"syscall"

	"github.com/dgraph-io/badger/v4"

	"github.com/marmos91/virtfs/pkg/backend"
	"github.com/marmos91/virtfs/pkg/virtfs"
)

const (
	// maxSymlinkHops bounds symbolic link resolution, as Linux's MAXSYMLINKS.
	maxSymlinkHops = 40

	// maxConflictRetries bounds how often a read-write transaction is rerun
	// after losing a conflict to a concurrent writer.
	maxConflictRetries = 8
)

// update runs fn in a read-write transaction, retrying on conflicts.
func (v *Volume) update(fn func(txn *badger.Txn) error) error {
	for attempt := 0; ; attempt++ {
		err := v.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) || attempt >= maxConflictRetries {
			return err
		}
	}
}

// dev returns the device number reported for files of export.
func (v *Volume) dev(export string) uint64 {
	return backend.HandleToINode([]byte(v.name + ":" + export))
}

// CreateExport creates the export root if it does not exist yet.
func (v *Volume) CreateExport(export string) error {
	export = backend.CleanPath(export)
	return v.update(func(txn *badger.Txn) error {
		_, err := getRecord(txn, export, "/")
		if err == nil {
			return nil
		}
		if virtfs.Errno(err) != syscall.ENOENT {
			return err
		}
		return putRecord(txn, export, "/", newRecord(virtfs.ModeDir|0o755, 0, 0))
	})
}

// HasExport reports whether the export root exists.
func (v *Volume) HasExport(export string) (bool, error) {
	var found bool
	err := v.db.View(func(txn *badger.Txn) error {
		_, err := getRecord(txn, backend.CleanPath(export), "/")
		switch {
		case err == nil:
			found = true
		case virtfs.Errno(err) == syscall.ENOENT:
		default:
			return err
		}
		return nil
	})
	return found, err
}

// MkdirAll creates the directory p and any missing parents in export.
func (v *Volume) MkdirAll(export, p string, perm os.FileMode) error {
	export = backend.CleanPath(export)
	return v.update(func(txn *badger.Txn) error {
		_, err := mkdirAll(txn, export, p, uint32(perm.Perm()))
		return err
	})
}

// WriteFile creates or replaces the regular file at p, creating parents.
func (v *Volume) WriteFile(export, p string, data []byte, perm os.FileMode) error {
	export = backend.CleanPath(export)
	p = backend.CleanPath(p)
	return v.update(func(txn *badger.Txn) error {
		if _, err := mkdirAll(txn, export, path.Dir(p), 0o755); err != nil {
			return err
		}
		r := newRecord(virtfs.ModeRegular|uint32(perm.Perm()), 0, 0)
		existing, err := getRecord(txn, export, p)
		switch {
		case err == nil:
			if existing.isDir() {
				return backend.PathError("write", p, syscall.EISDIR)
			}
			r.ID = existing.ID
		case virtfs.Errno(err) == syscall.ENOENT:
			if err := link(txn, export, p, r); err != nil {
				return err
			}
		default:
			return err
		}
		r.Size = uint64(len(data))
		if err := txn.Set(keyData(export, p), data); err != nil {
			return backend.IOError("write", p, err)
		}
		return putRecord(txn, export, p, r)
	})
}

// Symlink creates a symbolic link at p pointing to target.
func (v *Volume) Symlink(export, target, p string) error {
	export = backend.CleanPath(export)
	p = backend.CleanPath(p)
	return v.update(func(txn *badger.Txn) error {
		if _, err := mkdirAll(txn, export, path.Dir(p), 0o755); err != nil {
			return err
		}
		r := newRecord(virtfs.ModeSymlink|0o777, 0, 0)
		r.Target = target
		return link(txn, export, p, r)
	})
}

func getRecord(txn *badger.Txn, export, p string) (*record, error) {
	item, err := txn.Get(keyAttr(export, p))
	if err == badger.ErrKeyNotFound {
		return nil, backend.PathError("lookup", p, syscall.ENOENT)
	}
	if err != nil {
		return nil, backend.IOError("lookup", p, err)
	}

	var r *record
	err = item.Value(func(val []byte) error {
		var derr error
		r, derr = decodeRecord(val)
		return derr
	})
	if err != nil {
		return nil, backend.IOError("lookup", p, err)
	}
	return r, nil
}

func putRecord(txn *badger.Txn, export, p string, r *record) error {
	data, err := encodeRecord(r)
	if err != nil {
		return backend.IOError("setattr", p, err)
	}
	if err := txn.Set(keyAttr(export, p), data); err != nil {
		return backend.IOError("setattr", p, err)
	}
	return nil
}

// link stores a new entry at the cleaned path p and indexes it in its
// parent, which must be an existing directory.
func link(txn *badger.Txn, export, p string, child *record) error {
	if p == "/" {
		return backend.PathError("link", p, syscall.EEXIST)
	}
	dir, name := path.Dir(p), path.Base(p)

	parent, err := getRecord(txn, export, dir)
	if err != nil {
		return err
	}
	if !parent.isDir() {
		return backend.PathError("link", p, syscall.ENOTDIR)
	}
	if _, err := getRecord(txn, export, p); err == nil {
		return backend.PathError("link", p, syscall.EEXIST)
	}

	if err := txn.Set(keyChild(export, dir, name), nil); err != nil {
		return backend.IOError("link", p, err)
	}
	if child.isRegular() {
		if err := txn.Set(keyData(export, p), nil); err != nil {
			return backend.IOError("link", p, err)
		}
	}
	if err := putRecord(txn, export, p, child); err != nil {
		return err
	}

	if child.isDir() {
		parent.Nlink++
	}
	parent.touch()
	return putRecord(txn, export, dir, parent)
}

func mkdirAll(txn *badger.Txn, export, p string, perm uint32) (*record, error) {
	cur, err := getRecord(txn, export, "/")
	if err != nil {
		return nil, err
	}

	dir := "/"
	for _, name := range backend.SplitPath(p) {
		dir = path.Join(dir, name)
		child, err := getRecord(txn, export, dir)
		if virtfs.Errno(err) == syscall.ENOENT {
			child = newRecord(virtfs.ModeDir|perm, 0, 0)
			err = link(txn, export, dir, child)
		}
		if err != nil {
			return nil, err
		}
		if !child.isDir() {
			return nil, backend.PathError("mkdir", p, syscall.ENOTDIR)
		}
		cur = child
	}
	return cur, nil
}

// resolve walks p and returns the link-free path of the final entry with
// its record. Links in intermediate components are always followed; a
// final link only when follow is set. Absolute link targets are relative
// to the export root.
func resolve(txn *badger.Txn, export, p string, follow bool) (string, *record, error) {
	root, err := getRecord(txn, export, "/")
	if err != nil {
		return "", nil, err
	}

	comps := backend.SplitPath(p)
	cur, dir := root, "/"
	hops := 0

	for i := 0; i < len(comps); i++ {
		if !cur.isDir() {
			return "", nil, backend.PathError("lookup", p, syscall.ENOTDIR)
		}
		next := path.Join(dir, comps[i])
		child, err := getRecord(txn, export, next)
		if virtfs.Errno(err) == syscall.ENOENT {
			return "", nil, backend.PathError("lookup", p, syscall.ENOENT)
		}
		if err != nil {
			return "", nil, err
		}

		last := i == len(comps)-1
		if child.isSymlink() && (follow || !last) {
			hops++
			if hops > maxSymlinkHops {
				return "", nil, backend.PathError("lookup", p, syscall.ELOOP)
			}
			target := child.Target
			if !strings.HasPrefix(target, "/") {
				target = path.Join(dir, target)
			}
			comps = append(backend.SplitPath(target), comps[i+1:]...)
			cur, dir, i = root, "/", -1
			continue
		}

		cur, dir = child, next
	}
	return dir, cur, nil
}
