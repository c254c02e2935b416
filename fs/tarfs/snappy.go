package tarfs

import (
	"bufio"
	"bytes"
	"io"

	"github.com/CSCC69/userprog/fs/memfs"
	"github.com/golang/snappy"
)

// snappyMagic opens every snappy framed stream.
var snappyMagic = []byte("\xff\x06\x00\x00sNaPpY")

// OpenDisk loads a disk archive that may be snappy compressed.
func OpenDisk(r io.Reader) (*memfs.FS, error) {
	br := bufio.NewReader(r)

	head, err := br.Peek(len(snappyMagic))
	if err == nil && bytes.Equal(head, snappyMagic) {
		return NewTarFS(snappy.NewReader(br))
	}

	return NewTarFS(br)
}

// WriteCompressed is WriteTar through a snappy framed stream.
func WriteCompressed(w io.Writer, m *memfs.FS) error {
	zw := snappy.NewBufferedWriter(w)

	err := WriteTar(zw, m)
	if err != nil {
		zw.Close()
		return err
	}

	return zw.Close()
}
