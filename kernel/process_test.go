package kernel

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/CSCC69/userprog/abi"
	"github.com/CSCC69/userprog/fs"
	"github.com/CSCC69/userprog/fs/memfs"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

type testConsole struct {
	mu     sync.Mutex
	out    bytes.Buffer
	chunks []int
	max    int
	keys   chan byte
}

func newTestConsole(max int) *testConsole {
	return &testConsole{max: max, keys: make(chan byte, 16)}
}

func (c *testConsole) ReadChar(ctx context.Context) (byte, error) {
	select {
	case b := <-c.keys:
		return b, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (c *testConsole) WriteBytes(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(b) > c.max {
		return errors.Errorf("chunk of %d exceeds %d", len(b), c.max)
	}

	c.chunks = append(c.chunks, len(b))
	c.out.Write(b)
	return nil
}

func (c *testConsole) MaxChunk() int {
	return c.max
}

func (c *testConsole) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.out.String()
}

type funcImage func(ctx context.Context, t *Task, args []string) int

func (f funcImage) Run(ctx context.Context, t *Task, args []string) int {
	return f(ctx, t, args)
}

type mapLoader map[string]funcImage

func (m mapLoader) Load(ctx context.Context, fsys fs.FileSystem, name string) (Image, error) {
	img, ok := m[name]
	if !ok {
		return nil, errors.Errorf("no program %s", name)
	}

	return img, nil
}

type panicLoader struct{}

func (panicLoader) Load(ctx context.Context, fsys fs.FileSystem, name string) (Image, error) {
	panic("corrupt image " + name)
}

func newTestKernel(t *testing.T, programs mapLoader) (*Kernel, *testConsole) {
	console := newTestConsole(8)

	k, err := NewKernel(DefaultConfig(), memfs.New(), console, programs)
	require.NoError(t, err)

	return k, console
}

func newTestParent(t *testing.T, k *Kernel) *Process {
	parent, err := k.newProcess(nil, "parent", []string{"parent"})
	require.NoError(t, err)

	parent.setStatus(Running)

	return parent
}

func timeout(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestWait(t *testing.T) {
	n := neko.Modern(t)

	n.It("returns the exit status of a child", func(t *testing.T) {
		k, console := newTestKernel(t, mapLoader{
			"child": func(ctx context.Context, t *Task, args []string) int {
				return 81
			},
		})

		parent := newTestParent(t, k)

		ctx := timeout(t)

		pid, err := parent.Exec(ctx, "child")
		require.NoError(t, err)

		status, err := parent.Wait(ctx, pid)
		require.NoError(t, err)
		require.Equal(t, 81, status)

		require.Equal(t, "child: exit(81)\n", console.String())

		_, ok := k.Lookup(pid)
		require.False(t, ok, "child record should be reclaimed")
	})

	n.It("waits for a child that is still running", func(t *testing.T) {
		release := make(chan struct{})

		k, _ := newTestKernel(t, mapLoader{
			"slow": func(ctx context.Context, t *Task, args []string) int {
				<-release
				return 3
			},
		})

		parent := newTestParent(t, k)
		ctx := timeout(t)

		pid, err := parent.Exec(ctx, "slow")
		require.NoError(t, err)

		go func() {
			time.Sleep(20 * time.Millisecond)
			close(release)
		}()

		status, err := parent.Wait(ctx, pid)
		require.NoError(t, err)
		require.Equal(t, 3, status)
	})

	n.It("succeeds on a child that exited before the wait", func(t *testing.T) {
		k, _ := newTestKernel(t, mapLoader{
			"quick": func(ctx context.Context, t *Task, args []string) int {
				return 7
			},
		})

		parent := newTestParent(t, k)
		ctx := timeout(t)

		pid, err := parent.Exec(ctx, "quick")
		require.NoError(t, err)

		child, ok := parent.Children().Lookup(pid)
		require.True(t, ok)
		require.NoError(t, child.WaitExit(ctx))

		status, err := parent.Wait(ctx, pid)
		require.NoError(t, err)
		require.Equal(t, 7, status)
	})

	n.It("only lets one wait consume a status", func(t *testing.T) {
		k, _ := newTestKernel(t, mapLoader{
			"child": func(ctx context.Context, t *Task, args []string) int {
				return 0
			},
		})

		parent := newTestParent(t, k)
		ctx := timeout(t)

		pid, err := parent.Exec(ctx, "child")
		require.NoError(t, err)

		_, err = parent.Wait(ctx, pid)
		require.NoError(t, err)

		_, err = parent.Wait(ctx, pid)
		require.Equal(t, ErrNotChild, errors.Cause(err))
	})

	n.It("refuses to wait on a process that is not a child", func(t *testing.T) {
		block := make(chan struct{})
		defer close(block)

		k, _ := newTestKernel(t, mapLoader{
			"child": func(ctx context.Context, t *Task, args []string) int {
				<-block
				return 0
			},
		})

		parent := newTestParent(t, k)
		other := newTestParent(t, k)
		ctx := timeout(t)

		pid, err := parent.Exec(ctx, "child")
		require.NoError(t, err)

		_, err = other.Wait(ctx, pid)
		require.Equal(t, ErrNotChild, errors.Cause(err))

		_, err = parent.Wait(ctx, 9999)
		require.Equal(t, ErrNotChild, errors.Cause(err))

		_, err = parent.Wait(ctx, parent.Pid)
		require.Equal(t, ErrNotChild, errors.Cause(err))
	})

	n.Meow()
}

func TestExec(t *testing.T) {
	n := neko.Modern(t)

	n.It("returns the pid of a loaded child", func(t *testing.T) {
		started := make(chan []string, 1)

		k, _ := newTestKernel(t, mapLoader{
			"echo": func(ctx context.Context, t *Task, args []string) int {
				started <- args
				return 0
			},
		})

		parent := newTestParent(t, k)
		ctx := timeout(t)

		pid, err := parent.Exec(ctx, "  echo   a b ")
		require.NoError(t, err)
		require.True(t, pid > parent.Pid)

		require.Equal(t, []string{"echo", "a", "b"}, <-started)

		child, ok := k.Lookup(pid)
		require.True(t, ok)

		pp, ok := child.Parent()
		require.True(t, ok)
		require.Equal(t, parent, pp)
	})

	n.It("reports a load failure only after the child is finished", func(t *testing.T) {
		k, console := newTestKernel(t, mapLoader{})

		parent := newTestParent(t, k)
		ctx := timeout(t)

		before := k.Processes()

		_, err := parent.Exec(ctx, "no-such-file arg")
		require.Equal(t, ErrLoadFailed, errors.Cause(err))

		require.Equal(t, "no-such-file: exit(-1)\n", console.String())
		require.Equal(t, 0, parent.Children().Len())
		require.Equal(t, before, k.Processes())
	})

	n.It("fails the exec when the loader panics", func(t *testing.T) {
		console := newTestConsole(8)

		k, err := NewKernel(DefaultConfig(), memfs.New(), console, panicLoader{})
		require.NoError(t, err)

		parent := newTestParent(t, k)

		_, err = parent.Exec(timeout(t), "broken")
		require.Equal(t, ErrLoadFailed, errors.Cause(err))

		require.Equal(t, "broken: exit(-1)\n", console.String())
		require.Equal(t, 0, parent.Children().Len())
		require.False(t, k.Halted())
	})

	n.It("rejects an empty command line", func(t *testing.T) {
		k, _ := newTestKernel(t, mapLoader{})

		parent := newTestParent(t, k)

		_, err := parent.Exec(timeout(t), "   ")
		require.Equal(t, ErrEmptyCommand, errors.Cause(err))
		require.Equal(t, 1, k.Processes())
	})

	n.It("turns a panicking program into a faulted exit", func(t *testing.T) {
		k, _ := newTestKernel(t, mapLoader{
			"bad": func(ctx context.Context, t *Task, args []string) int {
				panic("boom")
			},
		})

		parent := newTestParent(t, k)
		ctx := timeout(t)

		pid, err := parent.Exec(ctx, "bad")
		require.NoError(t, err)

		status, err := parent.Wait(ctx, pid)
		require.NoError(t, err)
		require.Equal(t, abi.ExitFault, status)
	})

	n.Meow()
}

func TestExit(t *testing.T) {
	n := neko.Modern(t)

	n.It("records the status only once", func(t *testing.T) {
		k, console := newTestKernel(t, mapLoader{})
		p := newTestParent(t, k)

		_, ok := p.ExitStatus()
		require.False(t, ok)

		require.True(t, p.Exit(4))
		require.False(t, p.Exit(5))

		status, ok := p.ExitStatus()
		require.True(t, ok)
		require.Equal(t, 4, status)

		require.Equal(t, "parent: exit(4)\n", console.String())
	})

	n.It("truncates long names in the exit notice", func(t *testing.T) {
		k, console := newTestKernel(t, mapLoader{})

		p, err := k.newProcess(nil, "a-really-long-program-name", nil)
		require.NoError(t, err)

		p.Exit(0)

		require.Equal(t, "a-really-long-p: exit(0)\n", console.String())
	})

	n.It("closes every open file", func(t *testing.T) {
		k, _ := newTestKernel(t, mapLoader{})
		p := newTestParent(t, k)

		ctx := context.Background()
		mfs := k.FS.(*memfs.FS)
		require.NoError(t, mfs.Create(ctx, "a", 1))

		f1, err := mfs.Open(ctx, "a")
		require.NoError(t, err)
		f2, err := mfs.Open(ctx, "a")
		require.NoError(t, err)

		p.Files().Add(f1)
		p.Files().Add(f2)

		p.Exit(0)

		require.Equal(t, 0, p.Files().Len())
		require.Equal(t, fs.ErrClosed, f1.Close())
		require.Equal(t, fs.ErrClosed, f2.Close())
	})

	n.It("releases children that were never waited on", func(t *testing.T) {
		block := make(chan struct{})

		k, _ := newTestKernel(t, mapLoader{
			"done": func(ctx context.Context, t *Task, args []string) int {
				return 1
			},
			"live": func(ctx context.Context, t *Task, args []string) int {
				<-block
				return 2
			},
		})

		parent := newTestParent(t, k)
		ctx := timeout(t)

		donePid, err := parent.Exec(ctx, "done")
		require.NoError(t, err)

		livePid, err := parent.Exec(ctx, "live")
		require.NoError(t, err)

		doneChild, _ := parent.Children().Lookup(donePid)
		require.NoError(t, doneChild.WaitExit(ctx))

		liveChild, _ := parent.Children().Lookup(livePid)

		parent.Exit(0)

		_, ok := k.Lookup(donePid)
		require.False(t, ok, "exited orphan should be reclaimed at once")

		_, ok = k.Lookup(livePid)
		require.True(t, ok, "running orphan stays until it exits")

		_, ok = liveChild.Parent()
		require.False(t, ok)

		close(block)
		require.NoError(t, liveChild.WaitExit(ctx))

		k.WaitIdle()

		_, ok = k.Lookup(livePid)
		require.False(t, ok)
	})

	n.Meow()
}

func TestHalt(t *testing.T) {
	k, _ := newTestKernel(t, mapLoader{
		"sleeper": func(ctx context.Context, t *Task, args []string) int {
			<-ctx.Done()
			return 0
		},
	})

	var powered bool
	k.SetPowerOff(func() { powered = true })

	parent := newTestParent(t, k)

	pid, err := parent.Exec(timeout(t), "sleeper")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := parent.Wait(timeout(t), pid)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)

	k.Halt()
	k.Halt()

	require.True(t, powered)
	require.True(t, k.Halted())

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("wait never returned after halt")
	}

	k.WaitIdle()

	_, err = k.Spawn(parent, "sleeper")
	require.Equal(t, context.Canceled, err)
}

func TestWriteConsole(t *testing.T) {
	k, console := newTestKernel(t, mapLoader{})

	require.NoError(t, k.WriteConsole([]byte("HELLOWORLD!!!!!!!X")))

	require.Equal(t, "HELLOWORLD!!!!!!!X", console.String())
	require.Equal(t, []int{8, 8, 2}, console.chunks)
}
