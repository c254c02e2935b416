package syscalls

import (
	"context"

	"github.com/CSCC69/userprog/abi"
	"github.com/CSCC69/userprog/kernel"
	"github.com/CSCC69/userprog/log"
	"github.com/davecgh/go-spew/spew"
	hclog "github.com/hashicorp/go-hclog"
)

type Invoker struct {
	L hclog.Logger
}

func NewInvoker() *Invoker {
	return &Invoker{L: log.L.Named("syscall")}
}

// InvokeSyscall handles one trap raised by the task carried in ctx. The
// return value, if the call has one, is left in f.EAX. A process that
// violates the protocol is terminated and f is left untouched.
func (i *Invoker) InvokeSyscall(ctx context.Context, f *Frame) {
	t, ok := kernel.GetTask(ctx)
	if !ok {
		i.L.Error("syscall raised outside of a task")
		return
	}

	l := i.L.With("pid", t.Pid)

	if l.IsTrace() {
		l.Trace("trap", "frame", spew.Sdump(f))
	}

	if t.Exited() {
		return
	}

	sa := NewStackArgs(t.Mem, f.ESP)

	nums, err := sa.Next(1)
	if err != nil {
		fault(l, t, "bad stack pointer", err)
		return
	}

	no := abi.Sysno(int32(nums[0]))

	sc, ok := Lookup(no)
	if !ok {
		fault(l, t, "unknown syscall "+no.String(), nil)
		return
	}

	words, err := sa.Next(len(sc.Args))
	if err != nil {
		fault(l, t, "bad argument words for "+sc.Name, err)
		return
	}

	args, err := Decode(t.Mem, sc.Args, words)
	if err != nil {
		fault(l, t, "bad string argument for "+sc.Name, err)
		return
	}

	l.Trace("syscall", "name", sc.Name, "args", args)

	ret := sc.Fn(ctx, l, t, args)

	if sc.Returns && !t.Exited() {
		f.EAX = uint32(ret)
		l.Trace("syscall-return", "name", sc.Name, "value", ret)
	}
}
