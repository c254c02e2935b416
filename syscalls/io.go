package syscalls

import (
	"context"
	"io"

	"github.com/CSCC69/userprog/abi"
	"github.com/CSCC69/userprog/kernel"
	hclog "github.com/hashicorp/go-hclog"
)

func sysRead(ctx context.Context, l hclog.Logger, t *kernel.Task, args Args) int32 {
	var (
		fd   = args[0].Int()
		buf  = args[1].Ptr()
		size = args[2].Uint()
	)

	if fd < 0 {
		return abi.Failure
	}

	dst, err := t.Mem.Project(buf, size)
	if err != nil {
		return fault(l, t, "read into unmapped buffer", err)
	}

	if fd == abi.StdinFileno {
		for i := range dst {
			c, err := t.Kernel.Console.ReadChar(ctx)
			if err != nil {
				l.Debug("console input ended", "read", i, "error", err)
				return int32(i)
			}

			dst[i] = c
		}

		return int32(size)
	}

	f, ok := lookupFile(t, fd)
	if !ok {
		return abi.Failure
	}

	n, err := f.Read(dst)
	if err != nil && err != io.EOF {
		l.Debug("read failed", "fd", fd, "error", err)
		return abi.Failure
	}

	return int32(n)
}

func sysWrite(ctx context.Context, l hclog.Logger, t *kernel.Task, args Args) int32 {
	var (
		fd     = args[0].Int()
		buf    = args[1]
		length = args[2].Int()
	)

	if fd < 0 || buf.Null || length < 0 {
		return abi.Failure
	}

	src, err := t.Mem.Project(buf.Ptr(), uint32(length))
	if err != nil {
		return fault(l, t, "write from unmapped buffer", err)
	}

	if fd == abi.StdoutFileno {
		err = t.Kernel.WriteConsole(src)
		if err != nil {
			l.Error("error writing to console", "error", err)
		}

		return length
	}

	f, ok := lookupFile(t, fd)
	if !ok {
		return abi.Failure
	}

	n, err := f.Write(src)
	if err != nil {
		l.Debug("write failed", "fd", fd, "error", err)
		return abi.Failure
	}

	return int32(n)
}

func init() {
	register(abi.SysRead, true, sysRead, IntArg, PointerArg, UnsignedArg)
	register(abi.SysWrite, true, sysWrite, IntArg, PointerArg, IntArg)
}
