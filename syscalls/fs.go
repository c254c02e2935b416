package syscalls

import (
	"context"

	"github.com/CSCC69/userprog/abi"
	"github.com/CSCC69/userprog/fs"
	"github.com/CSCC69/userprog/kernel"
	hclog "github.com/hashicorp/go-hclog"
)

const (
	sysFalse int32 = 0
	sysTrue  int32 = 1
)

// lookupFile rejects negative descriptors before touching the table.
func lookupFile(t *kernel.Task, fd int32) (fs.File, bool) {
	if fd < 0 {
		return nil, false
	}

	return t.GetFile(int(fd))
}

func sysCreate(ctx context.Context, l hclog.Logger, t *kernel.Task, args Args) int32 {
	var (
		name = args[0]
		size = args[1].Uint()
	)

	if name.Null || name.Str == "" || len(name.Str) > abi.MaxFileName {
		return sysFalse
	}

	err := t.Kernel.FS.Create(ctx, name.Str, int64(size))
	if err != nil {
		l.Debug("create failed", "name", name.Str, "error", err)
		return sysFalse
	}

	return sysTrue
}

func sysRemove(ctx context.Context, l hclog.Logger, t *kernel.Task, args Args) int32 {
	name := args[0]

	if name.Null || name.Str == "" {
		return fault(l, t, "remove without a name", nil)
	}

	err := t.Kernel.FS.Remove(ctx, name.Str)
	if err != nil {
		l.Debug("remove failed", "name", name.Str, "error", err)
		return sysFalse
	}

	return sysTrue
}

func sysOpen(ctx context.Context, l hclog.Logger, t *kernel.Task, args Args) int32 {
	name := args[0]

	if name.Null || name.Str == "" {
		return abi.Failure
	}

	f, err := t.Kernel.FS.Open(ctx, name.Str)
	if err != nil {
		l.Debug("open failed", "name", name.Str, "error", err)
		return abi.Failure
	}

	fd := t.Files().Add(f)

	l.Trace("open file", "name", name.Str, "fd", fd)

	return int32(fd)
}

func sysFilesize(ctx context.Context, l hclog.Logger, t *kernel.Task, args Args) int32 {
	f, ok := lookupFile(t, args[0].Int())
	if !ok {
		return abi.Failure
	}

	return int32(f.Length())
}

func sysSeek(ctx context.Context, l hclog.Logger, t *kernel.Task, args Args) int32 {
	f, ok := lookupFile(t, args[0].Int())
	if !ok {
		return 0
	}

	f.Seek(int64(args[1].Uint()))

	return 0
}

func sysTell(ctx context.Context, l hclog.Logger, t *kernel.Task, args Args) int32 {
	f, ok := lookupFile(t, args[0].Int())
	if !ok {
		return 0
	}

	return int32(uint32(f.Tell()))
}

func sysClose(ctx context.Context, l hclog.Logger, t *kernel.Task, args Args) int32 {
	fd := args[0].Int()
	if fd < 0 {
		return 0
	}

	err := t.CloseFile(int(fd))
	if err != nil {
		l.Trace("close ignored", "fd", fd, "error", err)
	}

	return 0
}

func init() {
	register(abi.SysCreate, true, sysCreate, StringArg, UnsignedArg)
	register(abi.SysRemove, true, sysRemove, StringArg)
	register(abi.SysOpen, true, sysOpen, StringArg)
	register(abi.SysFilesize, true, sysFilesize, IntArg)
	register(abi.SysSeek, false, sysSeek, IntArg, UnsignedArg)
	register(abi.SysTell, true, sysTell, IntArg)
	register(abi.SysClose, false, sysClose, IntArg)
}
