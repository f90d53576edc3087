package virtfs

import "sync"

// FdBase is the lowest descriptor number handed out for remote files.
// Remote descriptors are keys into a process-wide table, never valid OS
// descriptors, and are kept far above the range an OS normally allocates.
const FdBase = 1 << 20

type fdTable struct {
	mu    sync.Mutex
	files map[int]*File
	free  []int
	next  int

	// locals maps OS descriptors to the File wrapping them.
	locals map[int]*File
}

var fds = &fdTable{files: make(map[int]*File), locals: make(map[int]*File), next: FdBase}

// alloc assigns the lowest free descriptor to f.
func (t *fdTable) alloc(f *File) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	var fd int
	if n := len(t.free); n > 0 {
		lowest := 0
		for i := 1; i < n; i++ {
			if t.free[i] < t.free[lowest] {
				lowest = i
			}
		}
		fd = t.free[lowest]
		t.free[lowest] = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		fd = t.next
		t.next++
	}

	t.files[fd] = f
	return fd
}

func (t *fdTable) lookup(fd int) (*File, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.files[fd]
	return f, ok
}

func (t *fdTable) release(fd int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.files[fd]; !ok {
		return
	}
	delete(t.files, fd)
	t.free = append(t.free, fd)
}

// adoptLocal returns the File already wrapping OS descriptor fd, or
// registers the one built by wrap.
func (t *fdTable) adoptLocal(fd int, wrap func() (*File, error)) (*File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if f, ok := t.locals[fd]; ok {
		return f, nil
	}
	f, err := wrap()
	if err != nil {
		return nil, err
	}
	t.locals[fd] = f
	return f, nil
}

// releaseLocal forgets fd, unless it has since been adopted by another File.
func (t *fdTable) releaseLocal(fd int, f *File) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.locals[fd] == f {
		delete(t.locals, fd)
	}
}

func (t *fdTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.files)
}
