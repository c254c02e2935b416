// Package memfs is a flat, in-memory filesystem with fixed size files.
package memfs

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/CSCC69/userprog/fs"
	"github.com/CSCC69/userprog/log"
	"github.com/pkg/errors"
)

type inode struct {
	mu   sync.RWMutex
	name string
	body []byte
}

type FS struct {
	mu    sync.Mutex
	files map[string]*inode
}

func New() *FS {
	return &FS{
		files: make(map[string]*inode),
	}
}

func (m *FS) Create(ctx context.Context, name string, size int64) error {
	if err := fs.CheckName(name); err != nil {
		return err
	}

	if err := fs.CheckSize(name, size); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[name]; ok {
		return errors.Wrapf(fs.ErrExists, "name: %s", name)
	}

	log.L.Trace("memfs-create", "name", name, "size", size)

	m.files[name] = &inode{
		name: name,
		body: make([]byte, size),
	}

	return nil
}

// WriteFile creates name holding data, replacing any previous file. It is
// how disk images get populated.
func (m *FS) WriteFile(name string, data []byte) error {
	if err := fs.CheckName(name); err != nil {
		return err
	}

	body := make([]byte, len(data))
	copy(body, data)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.files[name] = &inode{name: name, body: body}

	return nil
}

func (m *FS) Remove(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[name]; !ok {
		return errors.Wrapf(fs.ErrUnknownPath, "name: %s", name)
	}

	log.L.Trace("memfs-remove", "name", name)

	delete(m.files, name)

	return nil
}

func (m *FS) Open(ctx context.Context, name string) (fs.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ino, ok := m.files[name]
	if !ok {
		return nil, errors.Wrapf(fs.ErrUnknownPath, "name: %s", name)
	}

	return &File{ino: ino}, nil
}

// Names lists the files in the filesystem, sorted.
func (m *FS) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.files))
	for name := range m.files {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// ReadFile returns a copy of the contents of name.
func (m *FS) ReadFile(name string) ([]byte, error) {
	m.mu.Lock()
	ino, ok := m.files[name]
	m.mu.Unlock()

	if !ok {
		return nil, errors.Wrapf(fs.ErrUnknownPath, "name: %s", name)
	}

	ino.mu.RLock()
	defer ino.mu.RUnlock()

	out := make([]byte, len(ino.body))
	copy(out, ino.body)

	return out, nil
}

type File struct {
	mu     sync.Mutex
	ino    *inode
	pos    int64
	closed bool
}

func (f *File) Length() int64 {
	f.ino.mu.RLock()
	defer f.ino.mu.RUnlock()

	return int64(len(f.ino.body))
}

func (f *File) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, fs.ErrClosed
	}

	f.ino.mu.RLock()
	defer f.ino.mu.RUnlock()

	if f.pos >= int64(len(f.ino.body)) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}

	n := copy(p, f.ino.body[f.pos:])
	f.pos += int64(n)

	return n, nil
}

func (f *File) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, fs.ErrClosed
	}

	f.ino.mu.Lock()
	defer f.ino.mu.Unlock()

	if f.pos >= int64(len(f.ino.body)) {
		return 0, nil
	}

	n := copy(f.ino.body[f.pos:], p)
	f.pos += int64(n)

	return n, nil
}

func (f *File) Seek(pos int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if pos < 0 {
		pos = 0
	}

	f.pos = pos
}

func (f *File) Tell() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.pos
}

func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fs.ErrClosed
	}

	f.closed = true

	return nil
}
