package device

import (
	"os"

	"golang.org/x/sys/unix"
)

// MakeRaw switches the terminal on f to character-at-a-time input so the
// keyboard delivers keys without waiting for a newline. The returned func
// restores the previous settings.
func MakeRaw(f *os.File) (func() error, error) {
	fd := int(f.Fd())

	old, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, err
	}

	raw := *old
	raw.Lflag &^= unix.ICANON | unix.ECHO
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0

	err = unix.IoctlSetTermios(fd, unix.TCSETS, &raw)
	if err != nil {
		return nil, err
	}

	return func() error {
		return unix.IoctlSetTermios(fd, unix.TCSETS, old)
	}, nil
}
