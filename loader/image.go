package loader

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

const (
	ImageMagic   = "UPRG"
	ImageVersion = 1
)

var ErrBadImage = errors.New("not a user program image")

// Header starts every executable. Entry names the registered program the
// image runs.
type Header struct {
	Magic    string `struc:"[4]byte"`
	Version  uint16
	EntryLen uint16 `struc:"uint16,sizeof=Entry"`
	Entry    string
}

func ReadHeader(r io.Reader) (*Header, error) {
	var hdr Header

	err := struc.UnpackWithOrder(r, &hdr, binary.LittleEndian)
	if err != nil {
		return nil, errors.Wrapf(ErrBadImage, "decoding header: %s", err)
	}

	if hdr.Magic != ImageMagic {
		return nil, errors.Wrapf(ErrBadImage, "magic %q", hdr.Magic)
	}

	if hdr.Version != ImageVersion {
		return nil, errors.Wrapf(ErrBadImage, "version %d", hdr.Version)
	}

	if hdr.Entry == "" {
		return nil, errors.Wrap(ErrBadImage, "no entry point")
	}

	return &hdr, nil
}

// WriteImage writes an executable that runs entry.
func WriteImage(w io.Writer, entry string) error {
	if entry == "" {
		return errors.New("image needs an entry point")
	}

	hdr := &Header{
		Magic:   ImageMagic,
		Version: ImageVersion,
		Entry:   entry,
	}

	return struc.PackWithOrder(w, hdr, binary.LittleEndian)
}

// MakeImage is WriteImage into memory.
func MakeImage(entry string) ([]byte, error) {
	var buf bytes.Buffer

	err := WriteImage(&buf, entry)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
