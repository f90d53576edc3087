// Package memory implements a process-local virtfs backend.
//
// A Server holds hosts, each host holds exports, and each export is a tree
// of directories, regular files, symbolic links and FIFOs kept entirely in
// memory. URLs take the form
//
//	mem://host/export/path
//
// The backend is useful for tests, demos and as a scratch volume in the
// shell. Data does not survive the process.
package memory

import (
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/virtfs/pkg/backend"
	"github.com/marmos91/virtfs/pkg/virtfs"
)

// maxSymlinkHops bounds symbolic link resolution, as Linux's MAXSYMLINKS.
const maxSymlinkHops = 40

// Server is a set of in-memory hosts and their exports.
//
// Thread Safety:
// All operations are protected by a single read-write mutex, so a Server may
// be shared by any number of connections.
type Server struct {
	mu    sync.RWMutex
	hosts map[string]map[string]*Export
}

// NewServer creates an empty server.
func NewServer() *Server {
	return &Server{hosts: make(map[string]map[string]*Export)}
}

// AddExport creates (or returns the existing) export at path on host.
func (s *Server) AddExport(host, exportPath string) *Export {
	s.mu.Lock()
	defer s.mu.Unlock()

	exportPath = backend.CleanPath(exportPath)
	exports, ok := s.hosts[host]
	if !ok {
		exports = make(map[string]*Export)
		s.hosts[host] = exports
	}
	if e, ok := exports[exportPath]; ok {
		return e
	}

	e := &Export{
		srv:  s,
		host: host,
		path: exportPath,
		dev:  backend.HandleToINode([]byte(host + ":" + exportPath)),
	}
	e.root = newNode(virtfs.ModeDir|0o755, 0, 0)
	exports[exportPath] = e
	return e
}

// RemoveExport deletes an export. Connections mounted on it keep their
// reference to the tree until they unmount.
func (s *Server) RemoveExport(host, exportPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exports, ok := s.hosts[host]; ok {
		delete(exports, backend.CleanPath(exportPath))
	}
}

func (s *Server) export(host, exportPath string) (*Export, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exports, ok := s.hosts[host]
	if !ok {
		return nil, backend.PathError("mount", host, syscall.ECONNREFUSED)
	}
	e, ok := exports[backend.CleanPath(exportPath)]
	if !ok {
		return nil, backend.PathError("mount", exportPath, syscall.ENOENT)
	}
	return e, nil
}

// Export is one exported directory tree.
type Export struct {
	srv  *Server
	host string
	path string
	dev  uint64
	root *node
}

// Path returns the export path.
func (e *Export) Path() string {
	return e.path
}

// MkdirAll creates the directory p and any missing parents.
func (e *Export) MkdirAll(p string, perm os.FileMode) error {
	e.srv.mu.Lock()
	defer e.srv.mu.Unlock()
	_, err := e.mkdirAll(p, perm)
	return err
}

// WriteFile creates or replaces the regular file at p, creating parents.
func (e *Export) WriteFile(p string, data []byte, perm os.FileMode) error {
	e.srv.mu.Lock()
	defer e.srv.mu.Unlock()

	parent, err := e.mkdirAll(path.Dir(backend.CleanPath(p)), 0o755)
	if err != nil {
		return err
	}
	n := newNode(virtfs.ModeRegular|uint32(perm.Perm()), 0, 0)
	n.data = append([]byte(nil), data...)
	return parent.link(path.Base(p), n, true)
}

// Symlink creates a symbolic link at p pointing to target.
func (e *Export) Symlink(target, p string) error {
	e.srv.mu.Lock()
	defer e.srv.mu.Unlock()

	parent, err := e.mkdirAll(path.Dir(backend.CleanPath(p)), 0o755)
	if err != nil {
		return err
	}
	n := newNode(virtfs.ModeSymlink|0o777, 0, 0)
	n.target = target
	return parent.link(path.Base(p), n, false)
}

// Mkfifo creates a named pipe at p.
func (e *Export) Mkfifo(p string, perm os.FileMode) error {
	e.srv.mu.Lock()
	defer e.srv.mu.Unlock()

	parent, err := e.mkdirAll(path.Dir(backend.CleanPath(p)), 0o755)
	if err != nil {
		return err
	}
	return parent.link(path.Base(p), newNode(virtfs.ModeFIFO|uint32(perm.Perm()), 0, 0), false)
}

// Chown sets the owner of p without following a final symbolic link.
func (e *Export) Chown(p string, uid, gid uint32) error {
	e.srv.mu.Lock()
	defer e.srv.mu.Unlock()

	n, err := e.lookup(p, false)
	if err != nil {
		return err
	}
	n.uid, n.gid = uid, gid
	n.ctime = time.Now()
	return nil
}

// Import copies the local directory tree rooted at dir into the export
// root. Symbolic links are recreated; other special files are skipped.
func (e *Export) Import(dir string) error {
	return filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		target := backend.CleanPath(filepath.ToSlash(rel))

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return e.MkdirAll(target, info.Mode().Perm())
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(p)
			if err != nil {
				return err
			}
			return e.Symlink(filepath.ToSlash(link), target)
		case info.Mode().IsRegular():
			data, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			return e.WriteFile(target, data, info.Mode().Perm())
		}
		return nil
	})
}

// mkdirAll must be called with the server lock held.
func (e *Export) mkdirAll(p string, perm os.FileMode) (*node, error) {
	cur := e.root
	for _, name := range backend.SplitPath(p) {
		child, ok := cur.children[name]
		if !ok {
			child = newNode(virtfs.ModeDir|uint32(perm.Perm()), 0, 0)
			if err := cur.link(name, child, false); err != nil {
				return nil, err
			}
		}
		if !child.isDir() {
			return nil, backend.PathError("mkdir", p, syscall.ENOTDIR)
		}
		cur = child
	}
	return cur, nil
}

// lookup resolves p within the export. Symbolic links in intermediate
// components are always followed; a final link only when follow is set.
// Absolute link targets are relative to the export root.
//
// Must be called with the server lock held.
func (e *Export) lookup(p string, follow bool) (*node, error) {
	comps := backend.SplitPath(p)
	cur := e.root
	dir := "/"
	hops := 0

	for i := 0; i < len(comps); i++ {
		if !cur.isDir() {
			return nil, backend.PathError("lookup", p, syscall.ENOTDIR)
		}
		child, ok := cur.children[comps[i]]
		if !ok {
			return nil, backend.PathError("lookup", p, syscall.ENOENT)
		}

		last := i == len(comps)-1
		if child.isSymlink() && (follow || !last) {
			hops++
			if hops > maxSymlinkHops {
				return nil, backend.PathError("lookup", p, syscall.ELOOP)
			}
			target := child.target
			if !strings.HasPrefix(target, "/") {
				target = path.Join(dir, target)
			}
			comps = append(backend.SplitPath(target), comps[i+1:]...)
			cur, dir, i = e.root, "/", -1
			continue
		}

		cur = child
		dir = path.Join(dir, comps[i])
	}
	return cur, nil
}

// lookupParent resolves the directory that holds p, and p's final name.
func (e *Export) lookupParent(p string) (*node, string, error) {
	clean := backend.CleanPath(p)
	if clean == "/" {
		return nil, "", backend.PathError("lookup", p, syscall.EEXIST)
	}
	parent, err := e.lookup(path.Dir(clean), true)
	if err != nil {
		return nil, "", err
	}
	if !parent.isDir() {
		return nil, "", backend.PathError("lookup", p, syscall.ENOTDIR)
	}
	return parent, path.Base(clean), nil
}

// node is a file, directory, symbolic link or FIFO.
type node struct {
	id       uuid.UUID
	mode     uint32
	uid      uint32
	gid      uint32
	data     []byte
	target   string
	children map[string]*node
	atime    time.Time
	mtime    time.Time
	ctime    time.Time
}

func newNode(mode uint32, uid, gid uint32) *node {
	now := time.Now()
	n := &node{
		id:    uuid.New(),
		mode:  mode,
		uid:   uid,
		gid:   gid,
		atime: now,
		mtime: now,
		ctime: now,
	}
	if n.isDir() {
		n.children = make(map[string]*node)
	}
	return n
}

func (n *node) isDir() bool     { return n.mode&virtfs.ModeTypeMask == virtfs.ModeDir }
func (n *node) isSymlink() bool { return n.mode&virtfs.ModeTypeMask == virtfs.ModeSymlink }
func (n *node) isRegular() bool { return n.mode&virtfs.ModeTypeMask == virtfs.ModeRegular }

func (n *node) ino() uint64 {
	return backend.HandleToINode(n.id[:])
}

func (n *node) size() uint64 {
	switch {
	case n.isSymlink():
		return uint64(len(n.target))
	case n.isDir():
		return backend.DefaultBlockSize
	default:
		return uint64(len(n.data))
	}
}

func (n *node) nlink() uint64 {
	if !n.isDir() {
		return 1
	}
	links := uint64(2)
	for _, c := range n.children {
		if c.isDir() {
			links++
		}
	}
	return links
}

// link adds child under name. Existing entries are only replaced when
// replace is set and neither side is a directory.
func (n *node) link(name string, child *node, replace bool) error {
	if existing, ok := n.children[name]; ok {
		if !replace {
			return backend.PathError("link", name, syscall.EEXIST)
		}
		if existing.isDir() || child.isDir() {
			return backend.PathError("link", name, syscall.EISDIR)
		}
	}
	n.children[name] = child
	n.mtime = time.Now()
	n.ctime = n.mtime
	return nil
}

func (n *node) attr(dev uint64) *virtfs.RawAttr {
	size := n.size()
	a := &virtfs.RawAttr{
		Dev:     dev,
		Ino:     n.ino(),
		Mode:    uint64(n.mode),
		Nlink:   n.nlink(),
		UID:     uint64(n.uid),
		GID:     uint64(n.gid),
		Size:    size,
		Blksize: backend.DefaultBlockSize,
		Blocks:  backend.Blocks(size),
	}
	a.Atime, a.AtimeNsec = backend.Timestamp(n.atime)
	a.Mtime, a.MtimeNsec = backend.Timestamp(n.mtime)
	a.Ctime, a.CtimeNsec = backend.Timestamp(n.ctime)
	return a
}

func (n *node) dirent(name string, dev uint64) *virtfs.RawDirent {
	return backend.Dirent(name, n.attr(dev))
}
