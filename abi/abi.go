// Package abi holds the fixed protocol shared by user programs and the
// kernel: syscall numbers, argument counts and the sentinel values
// handlers hand back to user mode.
package abi

import "fmt"

// Sysno identifies a system call. It is the first word on the user stack
// when the trap is raised.
type Sysno int32

const (
	SysHalt Sysno = iota
	SysExit
	SysExec
	SysWait
	SysCreate
	SysRemove
	SysOpen
	SysFilesize
	SysRead
	SysWrite
	SysSeek
	SysTell
	SysClose

	NumSyscalls = int(SysClose) + 1
)

var SyscallNames = [NumSyscalls]string{
	SysHalt:     "halt",
	SysExit:     "exit",
	SysExec:     "exec",
	SysWait:     "wait",
	SysCreate:   "create",
	SysRemove:   "remove",
	SysOpen:     "open",
	SysFilesize: "filesize",
	SysRead:     "read",
	SysWrite:    "write",
	SysSeek:     "seek",
	SysTell:     "tell",
	SysClose:    "close",
}

// ArgCounts is the number of argument words each call pops after the
// syscall number.
var ArgCounts = [NumSyscalls]int{
	SysHalt:     0,
	SysExit:     1,
	SysExec:     1,
	SysWait:     1,
	SysCreate:   2,
	SysRemove:   1,
	SysOpen:     1,
	SysFilesize: 1,
	SysRead:     3,
	SysWrite:    3,
	SysSeek:     2,
	SysTell:     1,
	SysClose:    1,
}

func (s Sysno) Valid() bool {
	return s >= 0 && int(s) < NumSyscalls
}

func (s Sysno) String() string {
	if s.Valid() {
		return SyscallNames[s]
	}

	return fmt.Sprintf("sys_%d", int32(s))
}

const (
	// WordSize is the size in bytes of every value passed on the stack.
	WordSize = 4

	MaxArgs = 3

	StdinFileno  = 0
	StdoutFileno = 1

	// FirstFileFd is the first descriptor handed out by open.
	FirstFileFd = 2

	// MaxFileName is the longest name the short-name filesystem accepts.
	MaxFileName = 14

	// MaxProcessName bounds the name printed in exit notices.
	MaxProcessName = 15

	// MaxCommandLine bounds the strings the kernel will copy in from user
	// memory, one page.
	MaxCommandLine = 4096
)

const (
	// Failure is returned by exec, wait, open, filesize, read and write.
	Failure int32 = -1

	// ExitFault is the status a process is killed with after a protocol
	// violation or a bad pointer.
	ExitFault = -1

	// StatusNotExited is what a process record reports before exit.
	StatusNotExited = -0x7fffffff - 1
)
