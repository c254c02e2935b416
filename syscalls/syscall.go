// Package syscalls is the kernel side of the trap boundary. It decodes the
// syscall number and arguments from the user stack, validates every user
// pointer, and routes the call to its handler.
package syscalls

import (
	"context"

	"github.com/CSCC69/userprog/abi"
	"github.com/CSCC69/userprog/kernel"
	hclog "github.com/hashicorp/go-hclog"
)

type Handler func(ctx context.Context, l hclog.Logger, t *kernel.Task, args Args) int32

// Syscall describes one entry of the table: how its arguments are typed
// and whether it hands a value back in EAX.
type Syscall struct {
	Name    string
	Args    []ArgKind
	Returns bool
	Fn      Handler
}

var Syscalls [abi.NumSyscalls]*Syscall

func register(no abi.Sysno, returns bool, fn Handler, kinds ...ArgKind) {
	if len(kinds) != abi.ArgCounts[no] {
		panic("argument kinds for " + no.String() + " do not match the abi")
	}

	Syscalls[no] = &Syscall{
		Name:    no.String(),
		Args:    kinds,
		Returns: returns,
		Fn:      fn,
	}
}

// Lookup returns the table entry for no, if there is one.
func Lookup(no abi.Sysno) (*Syscall, bool) {
	if !no.Valid() {
		return nil, false
	}

	sc := Syscalls[no]
	return sc, sc != nil
}

// fault terminates t after it handed the kernel something it could not
// use. It always returns 0; callers return it straight away.
func fault(l hclog.Logger, t *kernel.Task, reason string, err error) int32 {
	l.Debug("terminating process", "pid", t.Pid, "reason", reason, "error", err)
	t.Exit(abi.ExitFault)
	return 0
}
