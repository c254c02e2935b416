// Package programs holds the user programs shipped with userprog. Each is
// registered under the entry name its image carries.
package programs

import (
	"context"
	"strconv"
	"strings"

	"github.com/CSCC69/userprog/abi"
	"github.com/CSCC69/userprog/boundary"
	"github.com/CSCC69/userprog/loader"
)

var builtin = map[string]loader.Program{
	"echo":     echo,
	"cat":      cat,
	"write":    write,
	"rm":       rm,
	"halt":     halt,
	"exit":     exit,
	"run":      run,
	"readline": readline,
	"badptr":   badptr,
}

// Register adds every builtin program to reg.
func Register(reg *loader.Registry) {
	for name, prog := range builtin {
		reg.Register(name, prog)
	}
}

func echo(ctx context.Context, u *boundary.User, args []string) int {
	u.Printf("%s\n", strings.Join(args[1:], " "))
	return 0
}

func cat(ctx context.Context, u *boundary.User, args []string) int {
	status := 0

	buf := make([]byte, 64)

	for _, name := range args[1:] {
		fd := u.Open(name)
		if fd < 0 {
			u.Printf("cat: %s: no such file\n", name)
			status = 1
			continue
		}

		for {
			n := u.Read(fd, buf)
			if n <= 0 {
				break
			}

			u.Write(abi.StdoutFileno, buf[:n])
		}

		u.Close(fd)
	}

	return status
}

func write(ctx context.Context, u *boundary.User, args []string) int {
	if len(args) < 2 {
		u.Printf("usage: write FILE [TEXT...]\n")
		return 2
	}

	name := args[1]
	text := strings.Join(args[2:], " ")

	if !u.Create(name, uint32(len(text))) {
		u.Printf("write: cannot create %s\n", name)
		return 1
	}

	fd := u.Open(name)
	if fd < 0 {
		return 1
	}

	defer u.Close(fd)

	if u.Write(fd, []byte(text)) != len(text) {
		return 1
	}

	return 0
}

func rm(ctx context.Context, u *boundary.User, args []string) int {
	status := 0

	for _, name := range args[1:] {
		if !u.Remove(name) {
			u.Printf("rm: cannot remove %s\n", name)
			status = 1
		}
	}

	return status
}

func halt(ctx context.Context, u *boundary.User, args []string) int {
	u.Halt()
	return 0
}

func exit(ctx context.Context, u *boundary.User, args []string) int {
	status := 0

	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return 2
		}

		status = n
	}

	u.Exit(status)

	return 0
}

// run executes its arguments as a command line and reports the status.
func run(ctx context.Context, u *boundary.User, args []string) int {
	cmdline := strings.Join(args[1:], " ")

	pid := u.Exec(cmdline)
	if pid < 0 {
		u.Printf("run: %s: exec failed\n", cmdline)
		return 1
	}

	u.Printf("run: %s => %d\n", cmdline, u.Wait(pid))

	return 0
}

func readline(ctx context.Context, u *boundary.User, args []string) int {
	var (
		line []byte
		c    [1]byte
	)

	for len(line) < 128 {
		if u.Read(abi.StdinFileno, c[:]) != 1 || c[0] == '\n' || c[0] == '\r' {
			break
		}

		line = append(line, c[0])
	}

	u.Printf("%s\n", line)

	return len(line)
}

// badptr hands the kernel a buffer in unmapped memory and is killed for it.
func badptr(ctx context.Context, u *boundary.User, args []string) int {
	u.RawSyscall(uint32(abi.SysWrite), abi.StdoutFileno, 0x1000, 16)
	return 0
}

// Names lists the builtin programs.
func Names() []string {
	reg := loader.NewRegistry()
	Register(reg)
	return reg.Entries()
}
