package kernel

import (
	"context"
	"sync"

	"github.com/CSCC69/userprog/fs"
	"github.com/CSCC69/userprog/log"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// Console is the terminal device. WriteBytes rejects transfers larger than
// MaxChunk, so callers split their output.
type Console interface {
	ReadChar(ctx context.Context) (byte, error)
	WriteBytes(b []byte) error
	MaxChunk() int
}

// Image is a loaded program, ready to run on a task.
type Image interface {
	Run(ctx context.Context, t *Task, args []string) int
}

// Loader turns a program name into an Image. Any error is a load failure.
type Loader interface {
	Load(ctx context.Context, fsys fs.FileSystem, name string) (Image, error)
}

type Config struct {
	// StackSize and DataSize size the two regions every process is given.
	StackSize uint32
	DataSize  uint32
}

func DefaultConfig() Config {
	return Config{
		StackSize: 64 * 1024,
		DataSize:  256 * 1024,
	}
}

type Kernel struct {
	L hclog.Logger

	FS      fs.FileSystem
	Console Console

	cfg       Config
	loader    Loader
	processes *ProcessManager

	ctx    context.Context
	cancel func()

	haltOnce sync.Once
	halted   chan struct{}
	powerOff func()

	running sync.WaitGroup
}

func NewKernel(cfg Config, fsys fs.FileSystem, console Console, loader Loader) (*Kernel, error) {
	if fsys == nil || console == nil || loader == nil {
		return nil, errors.New("kernel needs a filesystem, console and loader")
	}

	def := DefaultConfig()
	if cfg.StackSize == 0 {
		cfg.StackSize = def.StackSize
	}

	if cfg.DataSize == 0 {
		cfg.DataSize = def.DataSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	k := &Kernel{
		L:         log.L,
		FS:        fsys,
		Console:   console,
		cfg:       cfg,
		loader:    loader,
		processes: NewProcessManager(),
		ctx:       ctx,
		cancel:    cancel,
		halted:    make(chan struct{}),
	}

	return k, nil
}

func (k *Kernel) Config() Config {
	return k.cfg
}

// Context is cancelled when the machine powers off. Every blocking kernel
// operation is bound to it.
func (k *Kernel) Context() context.Context {
	return k.ctx
}

func (k *Kernel) Lookup(pid int) (*Process, bool) {
	return k.processes.Lookup(pid)
}

// Processes is the number of process records still reachable.
func (k *Kernel) Processes() int {
	return k.processes.Count()
}

// SetPowerOff installs the hook Halt calls once the kernel has stopped.
func (k *Kernel) SetPowerOff(f func()) {
	k.powerOff = f
}

// Halt powers the machine off. Blocked processes are woken with a
// cancelled context and no further syscalls complete.
func (k *Kernel) Halt() {
	k.haltOnce.Do(func() {
		k.L.Info("powering off")

		close(k.halted)
		k.cancel()

		if k.powerOff != nil {
			k.powerOff()
		}
	})
}

func (k *Kernel) Halted() bool {
	select {
	case <-k.halted:
		return true
	default:
		return false
	}
}

// Done is closed by Halt.
func (k *Kernel) Done() <-chan struct{} {
	return k.halted
}

// WaitIdle blocks until every process goroutine has returned.
func (k *Kernel) WaitIdle() {
	k.running.Wait()
}
