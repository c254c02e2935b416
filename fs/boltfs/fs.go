// Package boltfs keeps the kernel's flat filesystem in a bolt database so
// a disk survives between boots.
package boltfs

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/CSCC69/userprog/fs"
	"github.com/CSCC69/userprog/log"
	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
)

var filesBucket = []byte("files")

type BoltFS struct {
	db *bolt.DB

	mu     sync.Mutex
	inodes map[string]*inode
}

// inode is the shared body of every open handle on one file. A removed
// inode stays readable through the handles that still hold it.
type inode struct {
	mu      sync.RWMutex
	name    string
	body    []byte
	removed bool
	refs    int
}

func Open(path string) (*BoltFS, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening disk %s", path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(filesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltFS{db: db, inodes: make(map[string]*inode)}, nil
}

func (b *BoltFS) Close() error {
	return b.db.Close()
}

func (b *BoltFS) Create(ctx context.Context, name string, size int64) error {
	if err := fs.CheckName(name); err != nil {
		return err
	}

	if err := fs.CheckSize(name, size); err != nil {
		return err
	}

	return b.put(name, make([]byte, size), false)
}

// WriteFile stores data under name, replacing any existing file.
func (b *BoltFS) WriteFile(name string, data []byte) error {
	return b.put(name, data, true)
}

func (b *BoltFS) put(name string, data []byte, replace bool) error {
	if err := fs.CheckName(name); err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(filesBucket)

		if !replace && bkt.Get([]byte(name)) != nil {
			return errors.Wrapf(fs.ErrExists, "name: %s", name)
		}

		return bkt.Put([]byte(name), data)
	})
}

func (b *BoltFS) Remove(ctx context.Context, name string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(filesBucket)

		if bkt.Get([]byte(name)) == nil {
			return errors.Wrapf(fs.ErrUnknownPath, "name: %s", name)
		}

		return bkt.Delete([]byte(name))
	})
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if ino, ok := b.inodes[name]; ok {
		ino.mu.Lock()
		ino.removed = true
		ino.mu.Unlock()

		delete(b.inodes, name)
	}

	return nil
}

func (b *BoltFS) Open(ctx context.Context, name string) (fs.File, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ino, ok := b.inodes[name]; ok {
		ino.refs++
		return &File{fs: b, ino: ino}, nil
	}

	var body []byte

	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(filesBucket).Get([]byte(name))
		if data == nil {
			return errors.Wrapf(fs.ErrUnknownPath, "name: %s", name)
		}

		// data is only valid inside the transaction.
		body = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	ino := &inode{name: name, body: body, refs: 1}
	b.inodes[name] = ino

	log.L.Trace("boltfs-open", "name", name, "size", len(body))

	return &File{fs: b, ino: ino}, nil
}

// Names lists the stored files in order.
func (b *BoltFS) Names() ([]string, error) {
	var names []string

	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(filesBucket).ForEach(func(k, v []byte) error {
			names = append(names, string(k))
			return nil
		})
	})

	sort.Strings(names)

	return names, err
}

func (b *BoltFS) release(ino *inode) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ino.refs--
	if ino.refs == 0 && b.inodes[ino.name] == ino {
		delete(b.inodes, ino.name)
	}
}

type File struct {
	fs  *BoltFS
	ino *inode

	mu     sync.Mutex
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

// Write updates the shared body and, unless the file has been removed,
// writes it through to the database.
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

	if f.ino.removed {
		return n, nil
	}

	err := f.fs.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(filesBucket).Put([]byte(f.ino.name), f.ino.body)
	})
	if err != nil {
		return 0, errors.Wrapf(err, "writing through %s", f.ino.name)
	}

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
	f.fs.release(f.ino)

	return nil
}
