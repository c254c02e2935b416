package main

import (
	"fmt"
	"log"
	"os"
	"runtime/pprof"
	"strings"

	"github.com/CSCC69/userprog/device"
	"github.com/CSCC69/userprog/fs"
	"github.com/CSCC69/userprog/fs/boltfs"
	"github.com/CSCC69/userprog/fs/host"
	"github.com/CSCC69/userprog/fs/memfs"
	"github.com/CSCC69/userprog/fs/tarfs"
	"github.com/CSCC69/userprog/kernel"
	"github.com/CSCC69/userprog/loader"
	clog "github.com/CSCC69/userprog/log"
	"github.com/CSCC69/userprog/programs"
	"github.com/CSCC69/userprog/syscalls"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

type options struct {
	disk  string
	root  string
	bolt  string
	chunk int
	stack uint32
	data  uint32
	trace bool
	raw   bool
}

func parseFlags(args []string) (*options, []string, error) {
	def := kernel.DefaultConfig()

	var o options

	flags := pflag.NewFlagSet("userprog", pflag.ContinueOnError)
	flags.StringVarP(&o.disk, "disk", "d", "", "tar archive, optionally snappy compressed, to load as the disk")
	flags.StringVarP(&o.root, "root", "r", "", "host directory to use as the disk")
	flags.StringVarP(&o.bolt, "bolt", "b", "", "bolt database to use as a persistent disk")
	flags.IntVar(&o.chunk, "chunk", device.DefaultMaxChunk, "largest single console write")
	flags.Uint32Var(&o.stack, "stack-size", def.StackSize, "user stack size in bytes")
	flags.Uint32Var(&o.data, "data-size", def.DataSize, "user data size in bytes")
	flags.BoolVar(&o.trace, "trace", false, "log at trace level")
	flags.BoolVar(&o.raw, "raw", false, "read the terminal a key at a time")

	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: userprog [flags] program [args...]\n")
		flags.PrintDefaults()
	}

	err := flags.Parse(args)
	if err != nil {
		return nil, nil, err
	}

	if flags.NArg() == 0 {
		flags.Usage()
		return nil, nil, pflag.ErrHelp
	}

	return &o, flags.Args(), nil
}

// installer is a disk the builtin images can be copied onto.
type installer interface {
	WriteFile(name string, data []byte) error
}

func install(disk installer) error {
	for _, name := range programs.Names() {
		data, err := loader.MakeImage(name)
		if err != nil {
			return err
		}

		err = disk.WriteFile(name, data)
		if err != nil {
			return err
		}
	}

	return nil
}

func openDisk(o *options) (fs.FileSystem, func() error, error) {
	set := 0
	for _, v := range []string{o.disk, o.root, o.bolt} {
		if v != "" {
			set++
		}
	}

	if set > 1 {
		return nil, nil, errors.New("--disk, --root and --bolt are exclusive")
	}

	noop := func() error { return nil }

	switch {
	case o.disk != "":
		f, err := os.Open(o.disk)
		if err != nil {
			return nil, nil, err
		}

		defer f.Close()

		m, err := tarfs.OpenDisk(f)
		if err != nil {
			return nil, nil, err
		}

		return m, noop, nil
	case o.root != "":
		h, err := host.NewHostFS(o.root)
		if err != nil {
			return nil, nil, err
		}

		return h, noop, nil
	case o.bolt != "":
		b, err := boltfs.Open(o.bolt)
		if err != nil {
			return nil, nil, err
		}

		names, err := b.Names()
		if err == nil && len(names) == 0 {
			err = install(b)
		}

		if err != nil {
			b.Close()
			return nil, nil, err
		}

		return b, b.Close, nil
	}

	// Without a disk every builtin program is installed.
	m := memfs.New()

	err := install(m)
	if err != nil {
		return nil, nil, err
	}

	return m, noop, nil
}

func main() {
	os.Exit(boot(os.Args[1:]))
}

func boot(args []string) int {
	cpuprofile := os.Getenv("CPUPROFILE")
	if cpuprofile != "" {
		f, err := os.Create(cpuprofile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	o, rest, err := parseFlags(args)
	if err != nil {
		return 2
	}

	if o.trace {
		clog.EnableTrace()
	}

	cmdline := strings.Join(rest, " ")

	disk, closeDisk, err := openDisk(o)
	if err != nil {
		clog.L.Error("unable to open disk", "error", err)
		return 1
	}

	defer closeDisk()

	if o.raw && device.IsTerminal(os.Stdin) {
		restore, err := device.MakeRaw(os.Stdin)
		if err != nil {
			clog.L.Error("unable to put terminal in raw mode", "error", err)
			return 1
		}

		defer restore()
	}

	reg := loader.NewRegistry()
	programs.Register(reg)

	ld := loader.NewLoader(reg, syscalls.NewInvoker(), loader.NewLoaderCache())

	cfg := kernel.Config{
		StackSize: o.stack,
		DataSize:  o.data,
	}

	k, err := kernel.NewKernel(cfg, disk, device.NewConsole(os.Stdin, os.Stdout, o.chunk), ld)
	if err != nil {
		clog.L.Error("unable to start kernel", "error", err)
		return 1
	}

	proc, err := k.InitProcess(cmdline)
	if err != nil {
		clog.L.Error("unable to start initial process", "error", err)
		k.Halt()
		return 1
	}

	done := make(chan error, 1)
	go func() {
		done <- proc.WaitExit(k.Context())
	}()

	select {
	case <-done:
	case <-k.Done():
	}

	k.Halt()

	status, ok := proc.ExitStatus()
	if !ok {
		return 0
	}

	clog.L.Debug("initial process finished", "status", status)

	if status != 0 {
		return 1
	}

	return 0
}
