// Package host exposes a directory of the host as a flat kernel
// filesystem.
package host

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/CSCC69/userprog/fs"
	"github.com/CSCC69/userprog/log"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

type HostFS struct {
	root string

	// name -> resolved host path
	paths *lru.ARCCache
}

func NewHostFS(path string) (*HostFS, error) {
	log.L.Trace("creating host fs", "path", path)

	stat, err := os.Stat(path)
	if err != nil {
		log.L.Error("error stating hostfs path", "error", err)
		return nil, err
	}

	if !stat.IsDir() {
		return nil, errors.Errorf("%s is not a directory", path)
	}

	root, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	cache, err := lru.NewARC(256)
	if err != nil {
		return nil, err
	}

	return &HostFS{root: root, paths: cache}, nil
}

func (h *HostFS) resolve(name string) (string, error) {
	if val, ok := h.paths.Get(name); ok {
		return val.(string), nil
	}

	if err := fs.CheckName(name); err != nil {
		return "", err
	}

	cp := filepath.Join(h.root, name)

	h.paths.Add(name, cp)

	return cp, nil
}

func (h *HostFS) Create(ctx context.Context, name string, size int64) error {
	cp, err := h.resolve(name)
	if err != nil {
		return err
	}

	err = fs.CheckSize(name, size)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(cp, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return errors.Wrapf(fs.ErrExists, "name: %s", name)
		}

		return err
	}

	defer f.Close()

	return f.Truncate(size)
}

func (h *HostFS) Remove(ctx context.Context, name string) error {
	cp, err := h.resolve(name)
	if err != nil {
		return err
	}

	h.paths.Remove(name)

	err = os.Remove(cp)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(fs.ErrUnknownPath, "name: %s", name)
		}

		return err
	}

	return nil
}

func (h *HostFS) Open(ctx context.Context, name string) (fs.File, error) {
	cp, err := h.resolve(name)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(cp, os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(fs.ErrUnknownPath, "name: %s", name)
		}

		return nil, err
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	if !stat.Mode().IsRegular() {
		f.Close()
		return nil, errors.Wrapf(fs.ErrInvalidName, "%s is not a regular file", name)
	}

	return &File{f: f}, nil
}

type File struct {
	mu sync.Mutex
	f  *os.File
}

func (f *File) Length() int64 {
	stat, err := f.f.Stat()
	if err != nil {
		return 0
	}

	return stat.Size()
}

func (f *File) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, err := io.ReadFull(f.f, p)
	if err == io.ErrUnexpectedEOF {
		err = nil
	}

	return n, err
}

func (f *File) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pos, err := f.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}

	left := f.Length() - pos
	if left <= 0 {
		return 0, nil
	}

	if int64(len(p)) > left {
		p = p[:left]
	}

	return f.f.Write(p)
}

func (f *File) Seek(pos int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.f.Seek(pos, io.SeekStart)
}

func (f *File) Tell() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	pos, err := f.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0
	}

	return pos
}

func (f *File) Close() error {
	return f.f.Close()
}
