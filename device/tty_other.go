//go:build !linux
// +build !linux

package device

import (
	"os"

	"github.com/pkg/errors"
)

func MakeRaw(f *os.File) (func() error, error) {
	return nil, errors.New("raw mode is only supported on linux")
}
