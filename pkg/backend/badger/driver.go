// Package badger implements a persistent virtfs backend on top of BadgerDB.
//
// URLs take the form
//
//	badger://volume/export/path
//
// where volume names a database directory below Config.DataDir and export
// is a namespace inside that database. Several connections to the same
// volume share one open database.
package badger

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/marmos91/virtfs/pkg/backend"
	"github.com/marmos91/virtfs/pkg/virtfs"
)

// Scheme is the URL scheme served by the badger driver.
const Scheme = "badger"

// Config configures the badger driver.
type Config struct {
	// DataDir holds one BadgerDB directory per volume.
	DataDir string

	// CreateExports makes Mount create a missing export instead of failing
	// with ENOENT.
	CreateExports bool

	// InMemory keeps every volume in memory. DataDir is ignored.
	InMemory bool

	// BlockCacheSizeMB is the BadgerDB block cache size (default: 64).
	BlockCacheSizeMB int64

	// IndexCacheSizeMB is the BadgerDB index cache size (default: 32).
	IndexCacheSizeMB int64

	// BadgerOptions overrides every other database setting when non-nil.
	// Its Dir and ValueDir are replaced by the volume directory.
	BadgerOptions *badger.Options
}

// Driver opens volumes on demand and shares them between connections.
//
// Thread Safety:
// Safe for concurrent use.
type Driver struct {
	cfg Config

	mu      sync.Mutex
	volumes map[string]*Volume
}

// NewDriver creates a driver for cfg.
func NewDriver(cfg Config) *Driver {
	return &Driver{cfg: cfg, volumes: make(map[string]*Volume)}
}

// Register binds a driver for cfg to Scheme in reg and returns it.
func Register(reg *virtfs.Registry, cfg Config) (*Driver, error) {
	d := NewDriver(cfg)
	if err := reg.Register(Scheme, d); err != nil {
		return nil, err
	}
	return d, nil
}

// NewConn implements virtfs.Driver.
//
// Supported query options:
//   - uid, gid: owner assigned to files created through the connection
func (d *Driver) NewConn(u *virtfs.URL) (virtfs.Conn, error) {
	uid, gid, err := backend.OwnerOptions(u.Query)
	if err != nil {
		return nil, err
	}
	return &conn{driver: d, uid: uid, gid: gid}, nil
}

// validVolume reports whether name can be used as a directory name below
// the data directory.
func validVolume(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// Volume is an open volume database. Volumes are reference counted;
// every Open must be paired with a Close.
type Volume struct {
	driver *Driver
	name   string
	db     *badger.DB
	refs   int
}

// Open acquires the named volume, opening its database if needed.
func (d *Driver) Open(name string) (*Volume, error) {
	if !validVolume(name) {
		return nil, backend.PathError("open", name, syscall.EINVAL)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if v, ok := d.volumes[name]; ok {
		v.refs++
		return v, nil
	}

	dir := filepath.Join(d.cfg.DataDir, name)
	db, err := badger.Open(d.options(dir))
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", dir, err)
	}

	v := &Volume{driver: d, name: name, db: db, refs: 1}
	d.volumes[name] = v
	return v, nil
}

func (d *Driver) options(dir string) badger.Options {
	if d.cfg.BadgerOptions != nil {
		opts := *d.cfg.BadgerOptions
		if opts.InMemory {
			return opts.WithDir("").WithValueDir("")
		}
		return opts.WithDir(dir).WithValueDir(dir)
	}

	opts := badger.DefaultOptions(dir)
	if d.cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)

	blockCacheMB := d.cfg.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 64
	}
	indexCacheMB := d.cfg.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = 32
	}
	opts = opts.WithBlockCacheSize(blockCacheMB << 20)
	opts = opts.WithIndexCacheSize(indexCacheMB << 20)
	return opts
}

// Name returns the volume name.
func (v *Volume) Name() string {
	return v.name
}

// Close releases the volume. The database is closed with the last
// reference.
func (v *Volume) Close() error {
	d := v.driver
	d.mu.Lock()
	defer d.mu.Unlock()

	if v.refs == 0 {
		return backend.PathError("close", v.name, syscall.EBADF)
	}
	v.refs--
	if v.refs > 0 {
		return nil
	}
	delete(d.volumes, v.name)
	return v.db.Close()
}

// OpenVolumes returns the number of volumes with an open database.
func (d *Driver) OpenVolumes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.volumes)
}
