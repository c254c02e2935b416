package kernel

import (
	"context"
	"fmt"
	"sync"

	"github.com/CSCC69/userprog/abi"
	"github.com/CSCC69/userprog/fs"
	"github.com/CSCC69/userprog/memory"
	"github.com/CSCC69/userprog/pkg/waiter"
	"github.com/pkg/errors"
)

var (
	ErrUnknownFile  = errors.New("unknown file")
	ErrNotChild     = errors.New("not a waitable child")
	ErrLoadFailed   = errors.New("child failed to load")
	ErrEmptyCommand = errors.New("empty command line")
)

type prockey struct{}

func GetTask(ctx context.Context) (*Task, bool) {
	if v := ctx.Value(prockey{}); v != nil {
		return v.(*Task), true
	}

	return nil, false
}

func SetTask(ctx context.Context, t *Task) context.Context {
	return context.WithValue(ctx, prockey{}, t)
}

// Task is the execution context handed to syscall handlers: the calling
// process and, through it, the kernel.
type Task struct {
	*Process
}

type ProcessStatus int

const (
	Created ProcessStatus = iota
	Loading
	Running
	LoadFailed
	Exited
	Reclaimed
)

func (s ProcessStatus) String() string {
	switch s {
	case Created:
		return "created"
	case Loading:
		return "loading"
	case Running:
		return "running"
	case LoadFailed:
		return "load-failed"
	case Exited:
		return "exited"
	case Reclaimed:
		return "reclaimed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

const (
	_ waiter.EventType = 1 << iota
	LoadFinished
	ProcessExited
)

type Process struct {
	Kernel *Kernel
	Pid    int
	Name   string
	Args   []string

	Mem   *memory.VirtualMemory
	Stack *memory.Region
	Data  *memory.Region

	fds      *FDTable
	children *Children

	// events carries LoadFinished and ProcessExited to the parent.
	events waiter.Waiter

	mu         sync.Mutex
	status     ProcessStatus
	parent     int
	orphan     bool
	loaded     bool
	exitStatus int
}

func (p *Process) Status() ProcessStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.status
}

func (p *Process) setStatus(s ProcessStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = s
}

// Parent resolves the creating process. It fails once the parent has been
// reclaimed or this process has been orphaned.
func (p *Process) Parent() (*Process, bool) {
	p.mu.Lock()
	ppid := p.parent
	p.mu.Unlock()

	if ppid == 0 {
		return nil, false
	}

	return p.Kernel.Lookup(ppid)
}

func (p *Process) Files() *FDTable {
	return p.fds
}

func (p *Process) Children() *Children {
	return p.children
}

// DisplayName is the name used in exit notices.
func (p *Process) DisplayName() string {
	if len(p.Name) > abi.MaxProcessName {
		return p.Name[:abi.MaxProcessName]
	}

	return p.Name
}

func (p *Process) GetFile(fd int) (fs.File, bool) {
	return p.fds.Get(fd)
}

func (p *Process) CloseFile(fd int) error {
	file, ok := p.fds.Get(fd)
	if !ok {
		return errors.Wrapf(ErrUnknownFile, "fd=%d", fd)
	}

	p.fds.Remove(fd)

	return file.Close()
}

// finishLoad records a successful load and releases the parent blocked in
// exec.
func (p *Process) finishLoad() {
	p.mu.Lock()
	p.loaded = true
	p.status = Running
	p.mu.Unlock()

	p.Kernel.L.Trace("process-loaded", "pid", p.Pid, "name", p.Name)
	p.events.Notify(LoadFinished)
}

// failLoad terminates a process whose image could not be loaded. The
// parent is released only after the exit is final so it never sees a
// half-dead child.
func (p *Process) failLoad() {
	p.mu.Lock()
	p.loaded = false
	p.status = LoadFailed
	p.mu.Unlock()

	p.Kernel.L.Trace("process-load-failed", "pid", p.Pid, "name", p.Name)

	p.Exit(abi.ExitFault)
	p.events.Notify(LoadFinished)
}

// WaitLoaded blocks until the process has finished loading and reports
// whether the load succeeded.
func (p *Process) WaitLoaded(ctx context.Context) (bool, error) {
	err := p.events.Wait(ctx, LoadFinished)
	if err != nil {
		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.loaded, nil
}

// ExitStatus returns the final status and true once the process has
// exited.
func (p *Process) ExitStatus() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status < Exited {
		return abi.StatusNotExited, false
	}

	return p.exitStatus, true
}

func (p *Process) Exited() bool {
	_, ok := p.ExitStatus()
	return ok
}

// WaitExit blocks until the process has exited.
func (p *Process) WaitExit(ctx context.Context) error {
	return p.events.Wait(ctx, ProcessExited)
}

// Exit terminates the process with status. Only the first call has any
// effect; it prints the exit notice, closes every open file, releases
// children that were never waited on, and wakes the parent. It returns
// false if the process had already exited.
func (p *Process) Exit(status int) bool {
	p.mu.Lock()
	if p.status >= Exited {
		p.mu.Unlock()
		return false
	}

	p.exitStatus = status
	p.status = Exited
	orphan := p.orphan
	p.mu.Unlock()

	k := p.Kernel

	k.L.Trace("process-exit", "pid", p.Pid, "code", status)

	err := k.WriteConsole([]byte(fmt.Sprintf("%s: exit(%d)\n", p.DisplayName(), status)))
	if err != nil {
		k.L.Error("error writing exit notice", "error", err, "pid", p.Pid)
	}

	err = p.fds.CloseAll()
	if err != nil {
		k.L.Error("error closing files at exit", "error", err, "pid", p.Pid)
	}

	for _, child := range p.children.DetachAll() {
		child.detach()
	}

	p.events.Notify(ProcessExited)

	if orphan {
		p.reclaim()
	}

	return true
}

// detach cuts the link to the parent. An already exited child is reclaimed
// here; a live one reclaims itself when it exits.
func (p *Process) detach() {
	p.mu.Lock()
	p.parent = 0
	p.orphan = true
	exited := p.status == Exited
	p.mu.Unlock()

	p.Kernel.L.Trace("process-orphaned", "pid", p.Pid, "exited", exited)

	if exited {
		p.reclaim()
	}
}

func (p *Process) reclaim() {
	p.mu.Lock()
	p.status = Reclaimed
	p.mu.Unlock()

	p.Kernel.L.Trace("process-reclaimed", "pid", p.Pid)
	p.Kernel.processes.RemoveProc(p)
}

// Wait blocks until the direct child pid exits, reclaims it, and returns
// its status. It fails at once with ErrNotChild if pid is not a child or
// has already been waited on.
func (p *Process) Wait(ctx context.Context, pid int) (int, error) {
	child, ok := p.children.Take(pid)
	if !ok {
		return 0, errors.Wrapf(ErrNotChild, "pid=%d", pid)
	}

	err := child.WaitExit(ctx)
	if err != nil {
		p.children.Add(child)
		return 0, err
	}

	status, _ := child.ExitStatus()

	child.reclaim()

	return status, nil
}

// Exec starts cmdline as a child and waits for its load to finish. It
// returns the child's pid, or ErrLoadFailed after the child has already
// exited because it could not be loaded.
func (p *Process) Exec(ctx context.Context, cmdline string) (int, error) {
	child, err := p.Kernel.Spawn(p, cmdline)
	if err != nil {
		return 0, err
	}

	ok, err := child.WaitLoaded(ctx)
	if err != nil {
		return 0, err
	}

	if !ok {
		// The caller never learns the pid, so nobody could wait on it.
		if c, found := p.children.Take(child.Pid); found {
			c.detach()
		}

		return 0, errors.Wrapf(ErrLoadFailed, "command: %q", cmdline)
	}

	return child.Pid, nil
}
