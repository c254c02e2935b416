// Package loader turns executables stored in the kernel filesystem into
// runnable images.
package loader

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"

	"github.com/CSCC69/userprog/boundary"
	"github.com/CSCC69/userprog/fs"
	"github.com/CSCC69/userprog/kernel"
	"github.com/CSCC69/userprog/log"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

var ErrUnknownEntry = errors.New("no program registered for entry")

type Loader struct {
	L        hclog.Logger
	Registry *Registry
	Invoker  boundary.SyscallInvoker

	cache *LoaderCache
}

func NewLoader(reg *Registry, inv boundary.SyscallInvoker, cache *LoaderCache) *Loader {
	return &Loader{
		L:        log.L.Named("loader"),
		Registry: reg,
		Invoker:  inv,
		cache:    cache,
	}
}

func (l *Loader) Load(ctx context.Context, fsys fs.FileSystem, name string) (kernel.Image, error) {
	f, err := fsys.Open(ctx, name)
	if err != nil {
		return nil, errors.Wrapf(err, "opening executable %s", name)
	}

	defer f.Close()

	data := make([]byte, f.Length())

	_, err = io.ReadFull(f, data)
	if err != nil {
		return nil, errors.Wrapf(err, "reading executable %s", name)
	}

	hdr, err := l.header(data)
	if err != nil {
		return nil, errors.Wrapf(err, "executable %s", name)
	}

	prog, ok := l.Registry.Lookup(hdr.Entry)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownEntry, "entry=%s", hdr.Entry)
	}

	l.L.Trace("loaded image", "name", name, "entry", hdr.Entry)

	return &Image{Entry: hdr.Entry, prog: prog, invoker: l.Invoker}, nil
}

func (l *Loader) header(data []byte) (*Header, error) {
	if l.cache == nil {
		return ReadHeader(bytes.NewReader(data))
	}

	sum := blake2b.Sum256(data)
	cacheKey := base64.URLEncoding.EncodeToString(sum[:])

	if hdr, ok := l.cache.Lookup(cacheKey); ok {
		l.L.Trace("using cached image header", "key", cacheKey)
		return hdr, nil
	}

	hdr, err := ReadHeader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	l.L.Debug("cached image header", "key", cacheKey)
	l.cache.Set(cacheKey, hdr)

	return hdr, nil
}

type Image struct {
	Entry string

	prog    Program
	invoker boundary.SyscallInvoker
}

func (i *Image) Run(ctx context.Context, t *kernel.Task, args []string) int {
	return i.prog(ctx, boundary.NewUser(ctx, t, i.invoker), args)
}
