// Package tarfs loads a tar archive as the kernel's disk. The archive is
// flat: each regular file becomes a file of the same base name.
package tarfs

import (
	"archive/tar"
	"io"
	"io/ioutil"
	"path/filepath"

	"github.com/CSCC69/userprog/fs/memfs"
	"github.com/CSCC69/userprog/log"
	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
)

func NewTarFS(r io.Reader) (*memfs.FS, error) {
	tr := tar.NewReader(r)

	m := memfs.New()

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, errors.Wrap(err, "reading tar header")
		}

		if hdr.Typeflag != tar.TypeReg && hdr.Typeflag != tar.TypeRegA {
			log.L.Trace("tarfs-skip", "name", hdr.Name, "type", hdr.Typeflag)
			continue
		}

		data, err := ioutil.ReadAll(tr)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", hdr.Name)
		}

		name := filepath.Base(hdr.Name)

		err = m.WriteFile(name, data)
		if err != nil {
			log.L.Debug("tarfs-bad-entry", "header", spew.Sdump(hdr))
			return nil, errors.Wrapf(err, "loading %s", hdr.Name)
		}
	}

	return m, nil
}

// WriteTar serializes the files of m into a tar archive that NewTarFS can
// read back.
func WriteTar(w io.Writer, m *memfs.FS) error {
	tw := tar.NewWriter(w)

	for _, name := range m.Names() {
		data, err := m.ReadFile(name)
		if err != nil {
			return err
		}

		err = tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0644,
			Size:     int64(len(data)),
			Typeflag: tar.TypeReg,
		})
		if err != nil {
			return errors.Wrapf(err, "writing header for %s", name)
		}

		_, err = tw.Write(data)
		if err != nil {
			return errors.Wrapf(err, "writing %s", name)
		}
	}

	return tw.Close()
}
