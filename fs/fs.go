// Package fs describes the filesystem the kernel delegates file syscalls
// to. The kernel only sees these interfaces; storage lives in memfs, host
// or whatever else is plugged in.
package fs

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrUnknownPath = errors.New("unknown path")
	ErrExists      = errors.New("file exists")
	ErrInvalidName = errors.New("invalid file name")
	ErrNameTooLong = errors.New("file name too long")
	ErrClosed      = errors.New("file already closed")
	ErrTooLarge    = errors.New("file too large")
)

// MaxNameLen is the longest name accepted by the short-name filesystems
// in this tree.
const MaxNameLen = 14

// MaxFileSize caps the size of a created file. Sizes come straight from
// user programs, so they are checked before anything is allocated.
const MaxFileSize = 8 << 20

type FileSystem interface {
	// Create makes a new file of size zero bytes filled with zeroes. It fails
	// with ErrExists if the name is taken.
	Create(ctx context.Context, name string, size int64) error
	Remove(ctx context.Context, name string) error
	Open(ctx context.Context, name string) (File, error)
}

// File is an open handle. Every Open returns a handle with its own
// position. Handles stay usable after the name is removed.
type File interface {
	Length() int64

	// Read reads from the current position. It returns fewer bytes than
	// requested at end of file, and 0, io.EOF past it.
	Read(p []byte) (int, error)

	// Write writes at the current position. Files do not grow; writes stop
	// at end of file and report the short count.
	Write(p []byte) (int, error)

	Seek(pos int64)
	Tell() int64
	Close() error
}

// CheckName validates a flat file name.
func CheckName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\x00") || name == "." || name == ".." {
		return errors.Wrapf(ErrInvalidName, "name: %q", name)
	}

	if len(name) > MaxNameLen {
		return errors.Wrapf(ErrNameTooLong, "name: %q", name)
	}

	return nil
}

// CheckSize validates the size passed to Create.
func CheckSize(name string, size int64) error {
	if size < 0 {
		return errors.Errorf("negative size %d for %s", size, name)
	}

	if size > MaxFileSize {
		return errors.Wrapf(ErrTooLarge, "name: %s, size: %d", name, size)
	}

	return nil
}
