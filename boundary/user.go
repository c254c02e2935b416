// Package boundary is the user side of the trap. Programs call through a
// User, which lays their arguments out in process memory the same way
// compiled user code would and then raises the trap.
package boundary

import (
	"context"
	"fmt"
	"runtime"

	"github.com/CSCC69/userprog/abi"
	"github.com/CSCC69/userprog/kernel"
	"github.com/CSCC69/userprog/log"
	"github.com/CSCC69/userprog/syscalls"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// redZone is left untouched above the pushed words.
const redZone = 16

type SyscallInvoker interface {
	InvokeSyscall(ctx context.Context, f *syscalls.Frame)
}

type User struct {
	L hclog.Logger

	ctx     context.Context
	task    *kernel.Task
	invoker SyscallInvoker
}

func NewUser(ctx context.Context, t *kernel.Task, inv SyscallInvoker) *User {
	return &User{
		L:       log.L.Named("user").With("pid", t.Pid),
		ctx:     ctx,
		task:    t,
		invoker: inv,
	}
}

func (u *User) Pid() int {
	return u.task.Pid
}

func (u *User) Task() *kernel.Task {
	return u.task
}

// Trap raises a syscall with the stack pointer at esp. It does not return
// once the process has exited or the machine has been halted.
func (u *User) Trap(esp uint32) int32 {
	f := &syscalls.Frame{ESP: esp}

	u.invoker.InvokeSyscall(u.ctx, f)

	if u.task.Exited() || u.task.Kernel.Halted() {
		u.L.Trace("unwinding user goroutine", "exited", u.task.Exited())
		runtime.Goexit()
	}

	return int32(f.EAX)
}

// RawSyscall pushes words onto the user stack, first word lowest, and
// traps. The first word is normally the syscall number.
func (u *User) RawSyscall(words ...uint32) int32 {
	data, err := syscalls.EncodeWords(words...)
	if err != nil {
		panic(errors.Wrap(err, "encoding syscall words"))
	}

	esp := uint32(u.task.Stack.End()) - redZone - uint32(len(data))

	_, err = u.task.Mem.WriteAt(data, int64(esp))
	if err != nil {
		panic(errors.Wrap(err, "pushing syscall words"))
	}

	return u.Trap(esp)
}

func (u *User) call(no abi.Sysno, args ...uint32) int32 {
	return u.RawSyscall(append([]uint32{uint32(no)}, args...)...)
}

// Buffer copies b into the data region and returns its user address.
func (u *User) Buffer(b []byte) uint32 {
	addr, err := u.task.Data.Alloc(uint32(len(b)))
	if err != nil {
		panic(err)
	}

	_, err = u.task.Mem.WriteAt(b, int64(addr))
	if err != nil {
		panic(err)
	}

	return addr
}

// CString copies s into the data region with a terminating NUL.
func (u *User) CString(s string) uint32 {
	return u.Buffer(append([]byte(s), 0))
}

// scratch releases the data region used by the previous call.
func (u *User) scratch() {
	u.task.Data.Reset()
}

func (u *User) Halt() {
	u.call(abi.SysHalt)
}

func (u *User) Exit(status int) {
	u.call(abi.SysExit, uint32(int32(status)))
}

func (u *User) Exec(cmdline string) int {
	u.scratch()
	return int(u.call(abi.SysExec, u.CString(cmdline)))
}

func (u *User) Wait(pid int) int {
	return int(u.call(abi.SysWait, uint32(int32(pid))))
}

func (u *User) Create(name string, size uint32) bool {
	u.scratch()
	return u.call(abi.SysCreate, u.CString(name), size) != 0
}

func (u *User) Remove(name string) bool {
	u.scratch()
	return u.call(abi.SysRemove, u.CString(name)) != 0
}

func (u *User) Open(name string) int {
	u.scratch()
	return int(u.call(abi.SysOpen, u.CString(name)))
}

func (u *User) Filesize(fd int) int {
	return int(u.call(abi.SysFilesize, uint32(int32(fd))))
}

// Read fills buf from fd and returns the count the kernel reported.
func (u *User) Read(fd int, buf []byte) int {
	u.scratch()

	addr := u.Buffer(make([]byte, len(buf)))

	n := u.call(abi.SysRead, uint32(int32(fd)), addr, uint32(len(buf)))
	if n > 0 {
		_, err := u.task.Mem.ReadAt(buf[:n], int64(addr))
		if err != nil {
			panic(err)
		}
	}

	return int(n)
}

func (u *User) Write(fd int, buf []byte) int {
	u.scratch()
	return int(u.call(abi.SysWrite, uint32(int32(fd)), u.Buffer(buf), uint32(len(buf))))
}

func (u *User) Seek(fd int, pos uint32) {
	u.call(abi.SysSeek, uint32(int32(fd)), pos)
}

func (u *User) Tell(fd int) uint32 {
	return uint32(u.call(abi.SysTell, uint32(int32(fd))))
}

func (u *User) Close(fd int) {
	u.call(abi.SysClose, uint32(int32(fd)))
}

// Printf writes to standard output.
func (u *User) Printf(format string, args ...interface{}) int {
	return u.Write(abi.StdoutFileno, []byte(fmt.Sprintf(format, args...)))
}
