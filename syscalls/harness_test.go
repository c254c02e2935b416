package syscalls

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/CSCC69/userprog/device"
	"github.com/CSCC69/userprog/fs"
	"github.com/CSCC69/userprog/fs/memfs"
	"github.com/CSCC69/userprog/kernel"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type funcImage func(ctx context.Context, t *kernel.Task, args []string) int

func (f funcImage) Run(ctx context.Context, t *kernel.Task, args []string) int {
	return f(ctx, t, args)
}

type mapLoader map[string]funcImage

func (m mapLoader) Load(ctx context.Context, fsys fs.FileSystem, name string) (kernel.Image, error) {
	img, ok := m[name]
	if !ok {
		return nil, errors.Errorf("no program %s", name)
	}

	return img, nil
}

type harness struct {
	t       *testing.T
	k       *kernel.Kernel
	fs      *memfs.FS
	out     *bytes.Buffer
	inv     *Invoker
	loader  mapLoader
	timeout time.Duration
}

func newHarness(t *testing.T, input string) *harness {
	out := new(bytes.Buffer)
	console := device.NewConsole(strings.NewReader(input), out, 4)

	h := &harness{
		t:       t,
		fs:      memfs.New(),
		out:     out,
		inv:     NewInvoker(),
		loader:  mapLoader{},
		timeout: 5 * time.Second,
	}

	k, err := kernel.NewKernel(kernel.DefaultConfig(), h.fs, console, h.loader)
	require.NoError(t, err)

	h.k = k

	return h
}

// run executes body as the first process and returns it once it has
// exited. Assertions belong after run; body only records what it sees.
func (h *harness) run(name string, body func(ctx context.Context, t *kernel.Task) int) *kernel.Process {
	h.loader[name] = body2image(body)

	proc, err := h.k.InitProcess(name)
	require.NoError(h.t, err)

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	require.NoError(h.t, proc.WaitExit(ctx))

	return proc
}

func body2image(body func(ctx context.Context, t *kernel.Task) int) funcImage {
	return func(ctx context.Context, t *kernel.Task, args []string) int {
		return body(ctx, t)
	}
}

func (h *harness) status(p *kernel.Process) int {
	status, ok := p.ExitStatus()
	require.True(h.t, ok)
	return status
}

// trap lays words out at the top of the task's stack and raises a syscall.
func (h *harness) trap(ctx context.Context, t *kernel.Task, words ...uint32) *Frame {
	data, err := EncodeWords(words...)
	if err != nil {
		panic(err)
	}

	esp := uint32(t.Stack.End()) - 64

	_, err = t.Mem.WriteAt(data, int64(esp))
	if err != nil {
		panic(err)
	}

	return h.trapAt(ctx, esp)
}

func (h *harness) trapAt(ctx context.Context, esp uint32) *Frame {
	f := &Frame{ESP: esp, EAX: 0xdeadbeef}
	h.inv.InvokeSyscall(ctx, f)
	return f
}

func cstring(t *kernel.Task, s string) uint32 {
	return buffer(t, []byte(s+"\x00"))
}

func buffer(t *kernel.Task, b []byte) uint32 {
	addr, err := t.Data.Alloc(uint32(len(b)))
	if err != nil {
		panic(err)
	}

	_, err = t.Mem.WriteAt(b, int64(addr))
	if err != nil {
		panic(err)
	}

	return addr
}

func word(i int32) uint32 {
	return uint32(i)
}
