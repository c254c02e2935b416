package main

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/CSCC69/userprog/fs/memfs"
	"github.com/CSCC69/userprog/fs/tarfs"
	"github.com/CSCC69/userprog/loader"
	"github.com/CSCC69/userprog/programs"
	"github.com/spf13/pflag"
)

var (
	fOut  = pflag.StringP("out", "o", "disk.tar", "tar archive to write")
	fList = pflag.StringP("list", "l", "", "print the images in an existing archive")
	fZip  = pflag.BoolP("compress", "z", false, "snappy compress the archive")
)

func list(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	defer f.Close()

	m, err := tarfs.OpenDisk(f)
	if err != nil {
		return err
	}

	tr := tabwriter.NewWriter(os.Stdout, 4, 8, 1, ' ', 0)

	fmt.Fprintf(tr, "name\tsize\tentry\n")

	for _, name := range m.Names() {
		data, err := m.ReadFile(name)
		if err != nil {
			return err
		}

		entry := "-"

		hdr, err := loader.ReadHeader(bytes.NewReader(data))
		if err == nil {
			entry = hdr.Entry
		}

		fmt.Fprintf(tr, "%s\t%d\t%s\n", name, len(data), entry)
	}

	return tr.Flush()
}

func build(path string, names []string) error {
	if len(names) == 0 {
		names = programs.Names()
	}

	m := memfs.New()

	for _, name := range names {
		data, err := loader.MakeImage(name)
		if err != nil {
			return err
		}

		err = m.WriteFile(name, data)
		if err != nil {
			return err
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if *fZip {
		err = tarfs.WriteCompressed(f, m)
	} else {
		err = tarfs.WriteTar(f, m)
	}

	if err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

func main() {
	pflag.Parse()

	var err error

	if *fList != "" {
		err = list(*fList)
	} else {
		err = build(*fOut, pflag.Args())
	}

	if err != nil {
		log.Fatal(err)
	}
}
