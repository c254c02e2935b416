// Package device holds the console the kernel talks to for standard input
// and output.
package device

import (
	"context"
	"io"
	"sync"

	"github.com/CSCC69/userprog/log"
	"github.com/pkg/errors"
)

// DefaultMaxChunk is the largest transfer WriteBytes accepts by default.
const DefaultMaxChunk = 256

var ErrChunkTooLarge = errors.New("write exceeds console chunk size")

type Console struct {
	mu       sync.Mutex
	out      io.Writer
	maxChunk int

	in      io.Reader
	start   sync.Once
	keys    chan byte
	readErr error
}

// NewConsole builds a console over in and out. The input is read by a
// background pump the first time a character is requested.
func NewConsole(in io.Reader, out io.Writer, maxChunk int) *Console {
	if maxChunk <= 0 {
		maxChunk = DefaultMaxChunk
	}

	return &Console{
		in:       in,
		out:      out,
		maxChunk: maxChunk,
		keys:     make(chan byte, 64),
	}
}

func (c *Console) MaxChunk() int {
	return c.maxChunk
}

// WriteBytes writes b atomically with respect to other console writes.
func (c *Console) WriteBytes(b []byte) error {
	if len(b) > c.maxChunk {
		return errors.Wrapf(ErrChunkTooLarge, "size=%d, max=%d", len(b), c.maxChunk)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.out.Write(b)
	return err
}

func (c *Console) pump() {
	var buf [1]byte

	for {
		n, err := c.in.Read(buf[:])
		if n == 1 {
			c.keys <- buf[0]
		}

		if err != nil {
			if err != io.EOF {
				log.L.Error("error reading console input", "error", err)
			}

			c.readErr = err
			close(c.keys)
			return
		}
	}
}

// ReadChar blocks until a key is available.
func (c *Console) ReadChar(ctx context.Context) (byte, error) {
	c.start.Do(func() {
		go c.pump()
	})

	select {
	case b, ok := <-c.keys:
		if !ok {
			return 0, c.readErr
		}

		return b, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
