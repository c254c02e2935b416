package kernel

import (
	"strings"

	"github.com/CSCC69/userprog/abi"
	"github.com/CSCC69/userprog/memory"
	"github.com/pkg/errors"
)

// ParseCommandLine splits a command line on spaces. The first word names
// the program; all words, the name included, become its arguments.
func ParseCommandLine(cmdline string) (string, []string) {
	args := strings.Fields(cmdline)
	if len(args) == 0 {
		return "", nil
	}

	return args[0], args
}

func (k *Kernel) newProcess(parent *Process, name string, args []string) (*Process, error) {
	proc := &Process{
		Kernel:     k,
		Name:       name,
		Args:       args,
		Mem:        memory.NewVirtualMemory(),
		fds:        NewFDTable(),
		children:   NewChildren(),
		exitStatus: abi.StatusNotExited,
	}

	var err error

	proc.Data, err = proc.Mem.NewRegion(memory.UserDataBase, k.cfg.DataSize)
	if err != nil {
		return nil, errors.Wrap(err, "mapping data region")
	}

	proc.Stack, err = proc.Mem.NewRegion(memory.UserStackTop-k.cfg.StackSize, k.cfg.StackSize)
	if err != nil {
		return nil, errors.Wrap(err, "mapping stack region")
	}

	k.processes.AssignPid(proc)

	if parent != nil {
		proc.parent = parent.Pid
		parent.children.Add(proc)
	} else {
		// Nobody will wait on the first process.
		proc.orphan = true
	}

	return proc, nil
}

// Spawn creates a process for cmdline owned by parent and starts loading
// it in the background. The caller learns the load outcome through
// WaitLoaded.
func (k *Kernel) Spawn(parent *Process, cmdline string) (*Process, error) {
	name, args := ParseCommandLine(cmdline)
	if name == "" {
		return nil, ErrEmptyCommand
	}

	if k.Halted() {
		return nil, k.ctx.Err()
	}

	proc, err := k.newProcess(parent, name, args)
	if err != nil {
		return nil, err
	}

	ppid := 0
	if parent != nil {
		ppid = parent.Pid
	}

	k.L.Trace("process-spawn", "pid", proc.Pid, "parent", ppid, "name", name)

	k.running.Add(1)
	go k.run(proc)

	return proc, nil
}

// InitProcess starts the first process. It has no parent; callers follow
// it with WaitExit.
func (k *Kernel) InitProcess(cmdline string) (*Process, error) {
	return k.Spawn(nil, cmdline)
}

func (k *Kernel) run(proc *Process) {
	defer k.running.Done()

	task := &Task{Process: proc}
	ctx := SetTask(k.ctx, task)

	proc.setStatus(Loading)

	loaded := false

	defer func() {
		r := recover()
		if r == nil {
			return
		}

		if !loaded {
			k.L.Error("loader panicked", "pid", proc.Pid, "name", proc.Name, "panic", r)
			proc.failLoad()
			return
		}

		k.L.Error("process faulted", "pid", proc.Pid, "name", proc.Name, "panic", r)
		proc.Exit(abi.ExitFault)
	}()

	img, err := k.loader.Load(ctx, k.FS, proc.Name)
	if err != nil {
		k.L.Debug("unable to load process", "pid", proc.Pid, "name", proc.Name, "error", err)
		proc.failLoad()
		return
	}

	loaded = true
	proc.finishLoad()

	code := img.Run(ctx, task, proc.Args)

	proc.Exit(code)
}
