package kernel

import (
	"sort"
	"sync"

	"github.com/CSCC69/userprog/abi"
	"github.com/CSCC69/userprog/fs"
)

// FDTable maps descriptors to open files for one process. Descriptors
// start at abi.FirstFileFd and are never handed out twice; 0 and 1 are the
// console and never appear here.
type FDTable struct {
	mu    sync.Mutex
	next  int
	files map[int]fs.File
}

func NewFDTable() *FDTable {
	return &FDTable{
		next:  abi.FirstFileFd,
		files: make(map[int]fs.File),
	}
}

func (t *FDTable) Add(f fs.File) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	fd := t.next
	t.next++

	t.files[fd] = f

	return fd
}

func (t *FDTable) Get(fd int) (fs.File, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.files[fd]
	return f, ok
}

// Remove drops fd from the table. It does not close the file.
func (t *FDTable) Remove(fd int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.files, fd)
}

func (t *FDTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.files)
}

// CloseAll closes and removes every open file, lowest fd first. The first
// close error is returned after all files have been closed.
func (t *FDTable) CloseAll() error {
	t.mu.Lock()
	files := t.files
	t.files = make(map[int]fs.File)
	t.mu.Unlock()

	fds := make([]int, 0, len(files))
	for fd := range files {
		fds = append(fds, fd)
	}

	sort.Ints(fds)

	var err error

	for _, fd := range fds {
		se := files[fd].Close()
		if se != nil && err == nil {
			err = se
		}
	}

	return err
}
