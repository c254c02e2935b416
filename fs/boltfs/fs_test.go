package boltfs

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/CSCC69/userprog/fs"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func TestBoltFS(t *testing.T) {
	if raceEnabled {
		t.Skip("bolt fails checkptr under the race detector")
	}

	n := neko.Modern(t)

	ctx := context.Background()

	open := func(t *testing.T, path string) *BoltFS {
		b, err := Open(path)
		require.NoError(t, err)

		t.Cleanup(func() { b.Close() })

		return b
	}

	tempDisk := func(t *testing.T) string {
		return filepath.Join(t.TempDir(), "disk.db")
	}

	n.It("creates zero filled files once", func(t *testing.T) {
		b := open(t, tempDisk(t))

		require.NoError(t, b.Create(ctx, "a", 3))

		err := b.Create(ctx, "a", 3)
		require.Equal(t, fs.ErrExists, errors.Cause(err))

		f, err := b.Open(ctx, "a")
		require.NoError(t, err)
		require.Equal(t, int64(3), f.Length())

		buf := make([]byte, 8)
		n, err := f.Read(buf)
		require.NoError(t, err)
		require.Equal(t, []byte{0, 0, 0}, buf[:n])

		_, err = f.Read(buf)
		require.Equal(t, io.EOF, err)
	})

	n.It("refuses files larger than the disk allows", func(t *testing.T) {
		b := open(t, tempDisk(t))

		err := b.Create(ctx, "big", 0xfffffff0)
		require.Equal(t, fs.ErrTooLarge, errors.Cause(err))

		require.NoError(t, b.Create(ctx, "max", fs.MaxFileSize))

		names, err := b.Names()
		require.NoError(t, err)
		require.Equal(t, []string{"max"}, names)
	})

	n.It("persists writes across reopen", func(t *testing.T) {
		path := tempDisk(t)
		b := open(t, path)

		require.NoError(t, b.Create(ctx, "log", 5))

		f, err := b.Open(ctx, "log")
		require.NoError(t, err)

		n, err := f.Write([]byte("hello world"))
		require.NoError(t, err)
		require.Equal(t, 5, n)
		require.NoError(t, f.Close())

		require.NoError(t, b.Close())

		b = open(t, path)

		f, err = b.Open(ctx, "log")
		require.NoError(t, err)

		buf := make([]byte, 5)
		_, err = f.Read(buf)
		require.NoError(t, err)
		require.Equal(t, "hello", string(buf))
	})

	n.It("shares contents between handles and keeps removed files readable", func(t *testing.T) {
		b := open(t, tempDisk(t))

		require.NoError(t, b.WriteFile("x", []byte("abcd")))

		f1, err := b.Open(ctx, "x")
		require.NoError(t, err)
		f2, err := b.Open(ctx, "x")
		require.NoError(t, err)

		f1.Seek(2)
		_, err = f1.Write([]byte("ZZ"))
		require.NoError(t, err)

		require.NoError(t, b.Remove(ctx, "x"))

		_, err = b.Open(ctx, "x")
		require.Equal(t, fs.ErrUnknownPath, errors.Cause(err))

		buf := make([]byte, 4)
		_, err = f2.Read(buf)
		require.NoError(t, err)
		require.Equal(t, "abZZ", string(buf))

		names, err := b.Names()
		require.NoError(t, err)
		require.Empty(t, names)
	})

	n.It("reports unknown files and bad names", func(t *testing.T) {
		b := open(t, tempDisk(t))

		err := b.Remove(ctx, "nope")
		require.Equal(t, fs.ErrUnknownPath, errors.Cause(err))

		err = b.Create(ctx, "a-name-that-is-too-long", 0)
		require.Equal(t, fs.ErrNameTooLong, errors.Cause(err))
	})

	n.Meow()
}
