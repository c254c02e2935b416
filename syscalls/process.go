package syscalls

import (
	"context"

	"github.com/CSCC69/userprog/abi"
	"github.com/CSCC69/userprog/kernel"
	hclog "github.com/hashicorp/go-hclog"
)

func sysHalt(ctx context.Context, l hclog.Logger, t *kernel.Task, args Args) int32 {
	l.Debug("halt requested")
	t.Kernel.Halt()
	return 0
}

func sysExit(ctx context.Context, l hclog.Logger, t *kernel.Task, args Args) int32 {
	t.Exit(int(args[0].Int()))
	return 0
}

func sysExec(ctx context.Context, l hclog.Logger, t *kernel.Task, args Args) int32 {
	cmdline := args[0]
	if cmdline.Null || cmdline.Str == "" {
		return abi.Failure
	}

	pid, err := t.Exec(ctx, cmdline.Str)
	if err != nil {
		l.Debug("exec failed", "cmdline", cmdline.Str, "error", err)
		return abi.Failure
	}

	return int32(pid)
}

func sysWait(ctx context.Context, l hclog.Logger, t *kernel.Task, args Args) int32 {
	pid := args[0].Int()

	status, err := t.Wait(ctx, int(pid))
	if err != nil {
		l.Debug("wait failed", "child", pid, "error", err)
		return abi.Failure
	}

	return int32(status)
}

func init() {
	register(abi.SysHalt, false, sysHalt)
	register(abi.SysExit, false, sysExit, IntArg)
	register(abi.SysExec, true, sysExec, StringArg)
	register(abi.SysWait, true, sysWait, IntArg)
}
